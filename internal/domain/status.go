package domain

// OrderStatus enumerates the fixed lifecycle states of an order. The tokens
// are persisted as-is and shared with the automation conditions.
type OrderStatus string

const (
	// OrderStatusReceived is the initial status of every created order.
	OrderStatusReceived OrderStatus = "received"
	// OrderStatusConfirmed marks an order confirmed with the customer.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPacking marks an order being prepared.
	OrderStatusPacking OrderStatus = "packing"
	// OrderStatusShipping marks an order handed to the carrier.
	OrderStatusShipping OrderStatus = "shipping"
	// OrderStatusDelivered marks a completed delivery.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled releases the stock reservation.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusReturned releases the stock reservation.
	OrderStatusReturned OrderStatus = "returned"
	// OrderStatusNoAnswer releases the stock reservation.
	OrderStatusNoAnswer OrderStatus = "no_answer"
	// OrderStatusPostponed keeps the reservation while delivery is deferred.
	OrderStatusPostponed OrderStatus = "postponed"
)

var orderStatuses = map[OrderStatus]struct{}{
	OrderStatusReceived:  {},
	OrderStatusConfirmed: {},
	OrderStatusPacking:   {},
	OrderStatusShipping:  {},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
	OrderStatusReturned:  {},
	OrderStatusNoAnswer:  {},
	OrderStatusPostponed: {},
}

// Valid reports whether s is one of the fixed status tokens.
func (s OrderStatus) Valid() bool {
	_, ok := orderStatuses[s]
	return ok
}

// Inactive reports whether s releases the order's stock reservation.
// The Active/Inactive partition is the sole input to stock delta computation.
func (s OrderStatus) Inactive() bool {
	switch s {
	case OrderStatusCancelled, OrderStatusReturned, OrderStatusNoAnswer:
		return true
	}
	return false
}

// Active reports whether s holds a stock reservation.
func (s OrderStatus) Active() bool {
	return !s.Inactive()
}

// ShouldRestock reports whether an old→new status change returns the order's
// quantity to stock (active order leaving the active set).
func ShouldRestock(old, new OrderStatus) bool {
	return old.Active() && new.Inactive()
}

// ShouldDeduct reports whether an old→new status change consumes stock again
// (inactive order re-entering the active set).
func ShouldDeduct(old, new OrderStatus) bool {
	return old.Inactive() && new.Active()
}

// StockDelta computes the signed amount to add to the linked product's stock
// for an order edit. Positive values return units to stock, negative values
// consume them.
//
// Restock/deduct pairs are symmetric: cancelling then re-activating an order
// leaves stock exactly where it started.
func StockDelta(old, new OrderStatus, oldQty, newQty int) int {
	switch {
	case ShouldRestock(old, new):
		return oldQty
	case ShouldDeduct(old, new):
		return -newQty
	case new.Active():
		// Same-partition edit: quantity changes adjust the reservation.
		return -(newQty - oldQty)
	default:
		// Inactive orders hold no reservation; quantity edits are free.
		return 0
	}
}

// NextPaidFlag applies the payment coupling rules for a status change:
// entering the inactive set refunds (clears isPaid), reaching delivered
// settles cash-on-delivery (sets isPaid).
func NextPaidFlag(new OrderStatus, isPaid bool) bool {
	if new.Inactive() && isPaid {
		return false
	}
	if new == OrderStatusDelivered && !isPaid {
		return true
	}
	return isPaid
}
