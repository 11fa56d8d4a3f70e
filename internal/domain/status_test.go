package domain

import "testing"

func TestOrderStatusPartition(t *testing.T) {
	inactive := []OrderStatus{OrderStatusCancelled, OrderStatusReturned, OrderStatusNoAnswer}
	for _, s := range inactive {
		if s.Active() {
			t.Errorf("%s should be inactive", s)
		}
	}

	active := []OrderStatus{
		OrderStatusReceived, OrderStatusConfirmed, OrderStatusPacking,
		OrderStatusShipping, OrderStatusDelivered, OrderStatusPostponed,
	}
	for _, s := range active {
		if s.Inactive() {
			t.Errorf("%s should be active", s)
		}
	}

	if OrderStatus("bogus").Valid() {
		t.Error("unknown token should not validate")
	}
	if !OrderStatusNoAnswer.Valid() {
		t.Error("no_answer should validate")
	}
}

func TestStockDelta(t *testing.T) {
	cases := []struct {
		name   string
		old    OrderStatus
		new    OrderStatus
		oldQty int
		newQty int
		want   int
	}{
		{"cancel returns old quantity", OrderStatusReceived, OrderStatusCancelled, 3, 3, 3},
		{"return releases even with qty edit", OrderStatusShipping, OrderStatusReturned, 2, 5, 2},
		{"reactivation deducts new quantity", OrderStatusCancelled, OrderStatusReceived, 3, 4, -4},
		{"no_answer back to confirmed", OrderStatusNoAnswer, OrderStatusConfirmed, 1, 1, -1},
		{"active quantity increase consumes", OrderStatusReceived, OrderStatusReceived, 2, 5, -3},
		{"active quantity decrease releases", OrderStatusConfirmed, OrderStatusConfirmed, 5, 2, 3},
		{"active status change same qty", OrderStatusReceived, OrderStatusDelivered, 3, 3, 0},
		{"inactive stays inactive", OrderStatusCancelled, OrderStatusReturned, 2, 9, 0},
		{"inactive quantity edit is free", OrderStatusReturned, OrderStatusReturned, 1, 7, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := StockDelta(tc.old, tc.new, tc.oldQty, tc.newQty)
			if got != tc.want {
				t.Fatalf("StockDelta(%s, %s, %d, %d) = %d, want %d", tc.old, tc.new, tc.oldQty, tc.newQty, got, tc.want)
			}
		})
	}
}

func TestStockDeltaCancelRestoreSymmetry(t *testing.T) {
	// Start at stock S with an order of qty q already reserved. Cancelling and
	// re-activating must restore exactly S-q, never S or S-2q.
	const q = 3
	stock := 7 // S - q with S = 10

	stock += StockDelta(OrderStatusReceived, OrderStatusReturned, q, q)
	if stock != 10 {
		t.Fatalf("after cancel stock = %d, want 10", stock)
	}
	stock += StockDelta(OrderStatusReturned, OrderStatusReceived, q, q)
	if stock != 7 {
		t.Fatalf("after restore stock = %d, want 7", stock)
	}
}

func TestNextPaidFlag(t *testing.T) {
	if NextPaidFlag(OrderStatusReturned, true) {
		t.Error("entering inactive must clear isPaid")
	}
	if !NextPaidFlag(OrderStatusDelivered, false) {
		t.Error("delivered must settle unpaid orders")
	}
	if !NextPaidFlag(OrderStatusDelivered, true) {
		t.Error("delivered keeps already-paid orders paid")
	}
	if NextPaidFlag(OrderStatusConfirmed, false) {
		t.Error("ordinary transition must not flip isPaid on")
	}
	if !NextPaidFlag(OrderStatusShipping, true) {
		t.Error("ordinary transition must not flip isPaid off")
	}
}
