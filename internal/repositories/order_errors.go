package repositories

import "fmt"

// OrderErrorCode enumerates repository error causes for order transactions.
type OrderErrorCode string

const (
	// OrderErrorUnknown represents an unspecified failure.
	OrderErrorUnknown OrderErrorCode = "order_unknown"
	// OrderErrorOutOfStock indicates the linked product cannot cover the
	// requested quantity. Available carries the current stock level so the
	// caller can surface it.
	OrderErrorOutOfStock OrderErrorCode = "order_out_of_stock"
	// OrderErrorProductNotFound indicates the linked product vanished.
	OrderErrorProductNotFound OrderErrorCode = "order_product_not_found"
	// OrderErrorNotFound indicates the order document is missing.
	OrderErrorNotFound OrderErrorCode = "order_not_found"
	// OrderErrorInvalidStatus indicates an unknown status token was supplied.
	OrderErrorInvalidStatus OrderErrorCode = "order_invalid_status"
	// OrderErrorStatusConflict indicates the stored status moved underneath an
	// optimistic caller.
	OrderErrorStatusConflict OrderErrorCode = "order_status_conflict"
)

// OrderError wraps order-transaction failures with machine readable codes.
type OrderError struct {
	Op        string
	Code      OrderErrorCode
	Message   string
	Available int
	Err       error
}

// Error implements the error interface.
func (e *OrderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *OrderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOrderError constructs a typed order error.
func NewOrderError(code OrderErrorCode, message string, err error) *OrderError {
	if message == "" {
		message = string(code)
	}
	return &OrderError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewOutOfStockError constructs the out-of-stock business error carrying the
// currently available quantity.
func NewOutOfStockError(productID string, available int, requested int) *OrderError {
	return &OrderError{
		Code:      OrderErrorOutOfStock,
		Message:   fmt.Sprintf("product %s has %d in stock, %d requested", productID, available, requested),
		Available: available,
	}
}
