package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/sellerdesk/api/internal/domain"
	"github.com/sellerdesk/api/internal/repositories"
)

type stubOrderRepository struct {
	mu           sync.Mutex
	createFn     func(context.Context, repositories.OrderCreateRequest) (repositories.OrderCreateResult, error)
	updateFn     func(context.Context, repositories.OrderUpdateRequest) (repositories.OrderUpdateResult, error)
	findFn       func(context.Context, string, string) (domain.Order, error)
	listFn       func(context.Context, string, repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	setDeletedFn func(context.Context, string, string, bool, time.Time) (domain.Order, error)
	scanFn       func(context.Context, string, func(domain.Order) error) error
	updateCalls  []repositories.OrderUpdateRequest
}

func (s *stubOrderRepository) Create(ctx context.Context, req repositories.OrderCreateRequest) (repositories.OrderCreateResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, req)
	}
	return repositories.OrderCreateResult{Order: req.Order}, nil
}

func (s *stubOrderRepository) Update(ctx context.Context, req repositories.OrderUpdateRequest) (repositories.OrderUpdateResult, error) {
	s.mu.Lock()
	s.updateCalls = append(s.updateCalls, req)
	s.mu.Unlock()
	if s.updateFn != nil {
		return s.updateFn(ctx, req)
	}
	return repositories.OrderUpdateResult{}, nil
}

func (s *stubOrderRepository) FindByID(ctx context.Context, storeID string, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, storeID, orderID)
	}
	return domain.Order{}, nil
}

func (s *stubOrderRepository) List(ctx context.Context, storeID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, storeID, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderRepository) SetDeleted(ctx context.Context, storeID string, orderID string, deleted bool, now time.Time) (domain.Order, error) {
	if s.setDeletedFn != nil {
		return s.setDeletedFn(ctx, storeID, orderID, deleted, now)
	}
	return domain.Order{}, nil
}

func (s *stubOrderRepository) ScanAll(ctx context.Context, storeID string, fn func(domain.Order) error) error {
	if s.scanFn != nil {
		return s.scanFn(ctx, storeID, fn)
	}
	return nil
}

type stubEventPublisher struct {
	mu        sync.Mutex
	publishFn func(context.Context, OrderEventMessage) (string, error)
	messages  []OrderEventMessage
}

func (s *stubEventPublisher) PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error) {
	s.mu.Lock()
	s.messages = append(s.messages, message)
	s.mu.Unlock()
	if s.publishFn != nil {
		return s.publishFn(ctx, message)
	}
	return message.EventID, nil
}

type stubAutomationEngine struct {
	createdCalls []Order
	updatedCalls [][2]Order
	summary      AutomationRunSummary
}

func (s *stubAutomationEngine) OnOrderCreated(_ context.Context, order Order) AutomationRunSummary {
	s.createdCalls = append(s.createdCalls, order)
	return s.summary
}

func (s *stubAutomationEngine) OnOrderUpdated(_ context.Context, previous Order, current Order) AutomationRunSummary {
	s.updatedCalls = append(s.updatedCalls, [2]Order{previous, current})
	return s.summary
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestOrderServiceCreateDefaultsAndPublishes(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	repo := &stubOrderRepository{}
	repo.createFn = func(_ context.Context, req repositories.OrderCreateRequest) (repositories.OrderCreateResult, error) {
		remaining := 7
		return repositories.OrderCreateResult{Order: req.Order, RemainingStock: &remaining}, nil
	}
	publisher := &stubEventPublisher{}
	engine := &stubAutomationEngine{}

	ids := []string{"order-1", "event-1"}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:      repo,
		Events:      publisher,
		Automations: engine,
		Clock:       fixedClock(now),
		IDGenerator: func() string {
			id := ids[0]
			ids = ids[1:]
			return id
		},
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	order, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		StoreID:   "store-1",
		ArticleID: "prod-1",
		Quantity:  3,
		Price:     120,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.ID != "order-1" {
		t.Fatalf("expected generated id order-1, got %s", order.ID)
	}
	if order.Status != domain.OrderStatusReceived {
		t.Fatalf("expected default status received, got %s", order.Status)
	}
	if !order.Date.Equal(now) {
		t.Fatalf("expected date defaulted to clock, got %s", order.Date)
	}

	if len(publisher.messages) != 1 {
		t.Fatalf("expected one event, got %d", len(publisher.messages))
	}
	msg := publisher.messages[0]
	if msg.Type != "order_created" || msg.OrderID != "order-1" || msg.StoreID != "store-1" {
		t.Fatalf("unexpected event payload: %+v", msg)
	}
	if len(engine.createdCalls) != 1 {
		t.Fatalf("expected engine invoked once, got %d", len(engine.createdCalls))
	}
}

func TestOrderServiceCreateDeliveredIsPaid(t *testing.T) {
	repo := &stubOrderRepository{}
	svc, err := NewOrderService(OrderServiceDeps{Orders: repo})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	order, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		StoreID:  "store-1",
		Quantity: 1,
		Status:   domain.OrderStatusDelivered,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if !order.IsPaid {
		t.Fatal("expected delivered order to be marked paid")
	}
}

func TestOrderServiceCreateValidation(t *testing.T) {
	repo := &stubOrderRepository{}
	svc, err := NewOrderService(OrderServiceDeps{Orders: repo})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	cases := []CreateOrderCommand{
		{Quantity: 1},
		{StoreID: "store-1", Quantity: 0},
		{StoreID: "store-1", Quantity: 1, Price: -5},
		{StoreID: "store-1", Quantity: 1, Status: "lost_in_transit"},
	}
	for i, cmd := range cases {
		if _, err := svc.CreateOrder(context.Background(), cmd); !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("case %d: expected invalid input, got %v", i, err)
		}
	}
}

func TestOrderServiceCreateRejectsInactiveStart(t *testing.T) {
	repo := &stubOrderRepository{}
	svc, err := NewOrderService(OrderServiceDeps{Orders: repo})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	// A create debits stock, so backfilled orders may only start active.
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusCancelled,
		domain.OrderStatusReturned,
		domain.OrderStatusNoAnswer,
	} {
		cmd := CreateOrderCommand{StoreID: "store-1", ArticleID: "prod-1", Quantity: 1, Status: status}
		if _, err := svc.CreateOrder(context.Background(), cmd); !errors.Is(err, ErrOrderInvalidInput) {
			t.Fatalf("status %s: expected invalid input, got %v", status, err)
		}
	}

	// Active backfill statuses still pass through.
	created, err := svc.CreateOrder(context.Background(), CreateOrderCommand{
		StoreID: "store-1", ArticleID: "prod-1", Quantity: 1, Status: domain.OrderStatusShipping,
	})
	if err != nil {
		t.Fatalf("create shipping order: %v", err)
	}
	if created.Status != domain.OrderStatusShipping {
		t.Fatalf("expected shipping status preserved, got %s", created.Status)
	}
}

func TestOrderServiceCreateMapsOutOfStock(t *testing.T) {
	repo := &stubOrderRepository{}
	repo.createFn = func(context.Context, repositories.OrderCreateRequest) (repositories.OrderCreateResult, error) {
		return repositories.OrderCreateResult{}, repositories.NewOutOfStockError("prod-1", 2, 5)
	}
	publisher := &stubEventPublisher{}
	svc, err := NewOrderService(OrderServiceDeps{Orders: repo, Events: publisher})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	_, err = svc.CreateOrder(context.Background(), CreateOrderCommand{StoreID: "store-1", ArticleID: "prod-1", Quantity: 5})
	if !errors.Is(err, ErrOutOfStock) {
		t.Fatalf("expected out of stock, got %v", err)
	}
	if len(publisher.messages) != 0 {
		t.Fatalf("expected no events on failed create, got %d", len(publisher.messages))
	}
}

func TestOrderServiceUpdatePublishesTransition(t *testing.T) {
	now := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)
	repo := &stubOrderRepository{}
	repo.updateFn = func(_ context.Context, req repositories.OrderUpdateRequest) (repositories.OrderUpdateResult, error) {
		remaining := 10
		return repositories.OrderUpdateResult{
			Order:          domain.Order{ID: req.OrderID, StoreID: req.StoreID, Status: domain.OrderStatusCancelled},
			Previous:       domain.Order{ID: req.OrderID, StoreID: req.StoreID, Status: domain.OrderStatusConfirmed},
			StockDelta:     3,
			RemainingStock: &remaining,
		}, nil
	}
	publisher := &stubEventPublisher{}
	engine := &stubAutomationEngine{}
	svc, err := NewOrderService(OrderServiceDeps{Orders: repo, Events: publisher, Automations: engine, Clock: fixedClock(now)})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	status := domain.OrderStatusCancelled
	_, err = svc.UpdateOrder(context.Background(), UpdateOrderCommand{StoreID: "store-1", OrderID: "order-1", Status: &status})
	if err != nil {
		t.Fatalf("update order: %v", err)
	}

	if len(publisher.messages) != 1 {
		t.Fatalf("expected one event, got %d", len(publisher.messages))
	}
	msg := publisher.messages[0]
	if msg.Type != "order_updated" || msg.PreviousStatus != "confirmed" || msg.Status != "cancelled" || msg.StockDelta != 3 {
		t.Fatalf("unexpected event payload: %+v", msg)
	}
	if len(engine.updatedCalls) != 1 {
		t.Fatalf("expected engine invoked once, got %d", len(engine.updatedCalls))
	}
	if engine.updatedCalls[0][0].Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected previous order passed to engine, got %s", engine.updatedCalls[0][0].Status)
	}
}

func TestOrderServiceUpdateMapsStatusConflict(t *testing.T) {
	repo := &stubOrderRepository{}
	repo.updateFn = func(context.Context, repositories.OrderUpdateRequest) (repositories.OrderUpdateResult, error) {
		return repositories.OrderUpdateResult{}, repositories.NewOrderError(repositories.OrderErrorStatusConflict, "status moved", nil)
	}
	svc, err := NewOrderService(OrderServiceDeps{Orders: repo})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	expected := domain.OrderStatusConfirmed
	_, err = svc.UpdateOrder(context.Background(), UpdateOrderCommand{StoreID: "store-1", OrderID: "order-1", ExpectedStatus: &expected})
	if !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected status conflict, got %v", err)
	}
}

func TestOrderServicePublishFailureDoesNotFailRequest(t *testing.T) {
	repo := &stubOrderRepository{}
	publisher := &stubEventPublisher{}
	publisher.publishFn = func(context.Context, OrderEventMessage) (string, error) {
		return "", errors.New("topic unavailable")
	}
	var logged []string
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: repo,
		Events: publisher,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	if _, err := svc.CreateOrder(context.Background(), CreateOrderCommand{StoreID: "store-1", Quantity: 1}); err != nil {
		t.Fatalf("create order: %v", err)
	}

	var found bool
	for _, event := range logged {
		if event == "order_event_publish_failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected publish failure logged, got %v", logged)
	}
}

func TestOrderServiceSoftDeleteAndRestore(t *testing.T) {
	repo := &stubOrderRepository{}
	var deletedFlags []bool
	repo.setDeletedFn = func(_ context.Context, storeID string, orderID string, deleted bool, _ time.Time) (domain.Order, error) {
		deletedFlags = append(deletedFlags, deleted)
		return domain.Order{ID: orderID, StoreID: storeID, Status: domain.OrderStatusConfirmed, Deleted: deleted}, nil
	}
	publisher := &stubEventPublisher{}
	svc, err := NewOrderService(OrderServiceDeps{Orders: repo, Events: publisher})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	if _, err := svc.SoftDeleteOrder(context.Background(), "store-1", "order-1"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := svc.RestoreOrder(context.Background(), "store-1", "order-1"); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if len(deletedFlags) != 2 || !deletedFlags[0] || deletedFlags[1] {
		t.Fatalf("expected delete then restore, got %v", deletedFlags)
	}
	if len(publisher.messages) != 1 || publisher.messages[0].Type != "order_deleted" {
		t.Fatalf("expected a single order_deleted event, got %+v", publisher.messages)
	}
}
