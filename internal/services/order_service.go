package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/sellerdesk/api/internal/domain"
	"github.com/sellerdesk/api/internal/repositories"
)

const (
	eventOrderCreated = "order_created"
	eventOrderUpdated = "order_updated"
	eventOrderDeleted = "order_deleted"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid arguments.
	ErrOrderInvalidInput = errors.New("orders: invalid input")
	// ErrOrderNotFound indicates the order does not exist in the store.
	ErrOrderNotFound = errors.New("orders: order not found")
	// ErrOutOfStock indicates the linked product cannot cover the requested quantity.
	ErrOutOfStock = errors.New("orders: out of stock")
	// ErrProductNotFound indicates the linked product record is missing.
	ErrProductNotFound = errors.New("orders: product not found")
	// ErrStatusConflict indicates the stored status moved underneath the caller.
	ErrStatusConflict = errors.New("orders: status conflict")
)

// OrderServiceDeps bundles the collaborators required to construct an order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Events      OrderEventPublisher
	Automations AutomationEngine
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders      repositories.OrderRepository
	events      OrderEventPublisher
	automations AutomationEngine
	clock       func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:      deps.Orders,
		events:      deps.Events,
		automations: deps.Automations,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	if err := validateCreateOrder(cmd); err != nil {
		return Order{}, err
	}

	now := s.clock()
	status := cmd.Status
	if status == "" {
		status = domain.OrderStatusReceived
	}
	date := cmd.Date
	if date.IsZero() {
		date = now
	}

	order := Order{
		ID:               s.newID(),
		StoreID:          strings.TrimSpace(cmd.StoreID),
		ArticleID:        strings.TrimSpace(cmd.ArticleID),
		ArticleName:      strings.TrimSpace(cmd.ArticleName),
		Quantity:         cmd.Quantity,
		Price:            cmd.Price,
		CostPrice:        cmd.CostPrice,
		RealDeliveryCost: cmd.RealDeliveryCost,
		Status:           status,
		IsPaid:           domain.NextPaidFlag(status, cmd.IsPaid),
		PaymentMethod:    strings.TrimSpace(cmd.PaymentMethod),
		CustomerID:       strings.TrimSpace(cmd.CustomerID),
		CustomerName:     strings.TrimSpace(cmd.CustomerName),
		CustomerPhone:    strings.TrimSpace(cmd.CustomerPhone),
		CustomerCity:     strings.TrimSpace(cmd.CustomerCity),
		CustomerAddress:  strings.TrimSpace(cmd.CustomerAddress),
		Date:             date.UTC(),
	}

	result, err := s.orders.Create(ctx, repositories.OrderCreateRequest{Order: order, Now: now})
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	created := result.Order

	if result.RemainingStock != nil {
		s.logger(ctx, "order.stock_debited", map[string]any{
			"orderId":   created.ID,
			"articleId": created.ArticleID,
			"remaining": *result.RemainingStock,
		})
	}

	s.publishEvent(ctx, OrderEventMessage{
		EventID:    s.newID(),
		Type:       eventOrderCreated,
		StoreID:    created.StoreID,
		OrderID:    created.ID,
		Status:     string(created.Status),
		OccurredAt: now,
	})
	s.runAutomations(ctx, func(engine AutomationEngine) AutomationRunSummary {
		return engine.OnOrderCreated(ctx, created)
	})

	return created, nil
}

func (s *orderService) UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (Order, error) {
	storeID := strings.TrimSpace(cmd.StoreID)
	if storeID == "" {
		return Order{}, fmt.Errorf("%w: store id is required", ErrOrderInvalidInput)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if cmd.Status != nil && !cmd.Status.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, *cmd.Status)
	}
	if cmd.Quantity != nil && *cmd.Quantity < 1 {
		return Order{}, fmt.Errorf("%w: quantity must be >= 1", ErrOrderInvalidInput)
	}

	now := s.clock()
	result, err := s.orders.Update(ctx, repositories.OrderUpdateRequest{
		StoreID:        storeID,
		OrderID:        orderID,
		Fields:         orderFieldsFromCommand(cmd),
		ExpectedStatus: cmd.ExpectedStatus,
		Now:            now,
	})
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}

	if result.StockDelta != 0 && result.RemainingStock != nil {
		s.logger(ctx, "order.stock_adjusted", map[string]any{
			"orderId":   result.Order.ID,
			"articleId": result.Order.ArticleID,
			"delta":     result.StockDelta,
			"remaining": *result.RemainingStock,
		})
	}

	s.publishEvent(ctx, OrderEventMessage{
		EventID:        s.newID(),
		Type:           eventOrderUpdated,
		StoreID:        result.Order.StoreID,
		OrderID:        result.Order.ID,
		Status:         string(result.Order.Status),
		PreviousStatus: string(result.Previous.Status),
		StockDelta:     result.StockDelta,
		OccurredAt:     now,
	})
	s.runAutomations(ctx, func(engine AutomationEngine) AutomationRunSummary {
		return engine.OnOrderUpdated(ctx, result.Previous, result.Order)
	})

	return result.Order, nil
}

func (s *orderService) GetOrder(ctx context.Context, storeID string, orderID string) (Order, error) {
	if strings.TrimSpace(storeID) == "" || strings.TrimSpace(orderID) == "" {
		return Order{}, fmt.Errorf("%w: store id and order id are required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, storeID, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, storeID string, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if strings.TrimSpace(storeID) == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: store id is required", ErrOrderInvalidInput)
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, *filter.Status)
	}
	page, err := s.orders.List(ctx, storeID, repositories.OrderListFilter{
		Status:         filter.Status,
		IncludeDeleted: filter.IncludeDeleted,
		Pagination:     filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, mapOrderRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) SoftDeleteOrder(ctx context.Context, storeID string, orderID string) (Order, error) {
	return s.setDeleted(ctx, storeID, orderID, true)
}

func (s *orderService) RestoreOrder(ctx context.Context, storeID string, orderID string) (Order, error) {
	return s.setDeleted(ctx, storeID, orderID, false)
}

func (s *orderService) setDeleted(ctx context.Context, storeID string, orderID string, deleted bool) (Order, error) {
	if strings.TrimSpace(storeID) == "" || strings.TrimSpace(orderID) == "" {
		return Order{}, fmt.Errorf("%w: store id and order id are required", ErrOrderInvalidInput)
	}
	now := s.clock()
	order, err := s.orders.SetDeleted(ctx, storeID, orderID, deleted, now)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	if deleted {
		s.publishEvent(ctx, OrderEventMessage{
			EventID:    s.newID(),
			Type:       eventOrderDeleted,
			StoreID:    order.StoreID,
			OrderID:    order.ID,
			Status:     string(order.Status),
			OccurredAt: now,
		})
	}
	return order, nil
}

// publishEvent never fails the request; delivery problems are logged and the
// committed state stands.
func (s *orderService) publishEvent(ctx context.Context, message OrderEventMessage) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, message); err != nil {
		s.logger(ctx, "order_event_publish_failed", map[string]any{
			"orderId": message.OrderID,
			"type":    message.Type,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) runAutomations(ctx context.Context, run func(AutomationEngine) AutomationRunSummary) {
	if s.automations == nil {
		return
	}
	summary := run(s.automations)
	for _, failure := range summary.Failures {
		s.logger(ctx, "automation_action_failed", map[string]any{
			"automationId": failure.AutomationID,
			"error":        failure.Err.Error(),
		})
	}
}

func validateCreateOrder(cmd CreateOrderCommand) error {
	if strings.TrimSpace(cmd.StoreID) == "" {
		return fmt.Errorf("%w: store id is required", ErrOrderInvalidInput)
	}
	if cmd.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be >= 1", ErrOrderInvalidInput)
	}
	if cmd.Price < 0 {
		return fmt.Errorf("%w: price must be >= 0", ErrOrderInvalidInput)
	}
	if cmd.Status != "" {
		if !cmd.Status.Valid() {
			return fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
		}
		// Create always debits stock, so an order cannot start inactive.
		// Cancel it through an update once it exists.
		if cmd.Status.Inactive() {
			return fmt.Errorf("%w: new orders cannot start in status %q", ErrOrderInvalidInput, cmd.Status)
		}
	}
	return nil
}

func orderFieldsFromCommand(cmd UpdateOrderCommand) repositories.OrderFields {
	return repositories.OrderFields{
		ArticleID:        cmd.ArticleID,
		Quantity:         cmd.Quantity,
		Price:            cmd.Price,
		CostPrice:        cmd.CostPrice,
		RealDeliveryCost: cmd.RealDeliveryCost,
		Status:           cmd.Status,
		IsPaid:           cmd.IsPaid,
		PaymentMethod:    cmd.PaymentMethod,
		CustomerID:       cmd.CustomerID,
		CustomerName:     cmd.CustomerName,
		CustomerPhone:    cmd.CustomerPhone,
		CustomerCity:     cmd.CustomerCity,
		CustomerAddress:  cmd.CustomerAddress,
		Date:             cmd.Date,
		Carrier:          cmd.Carrier,
		TrackingID:       cmd.TrackingID,
	}
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		switch orderErr.Code {
		case repositories.OrderErrorOutOfStock:
			return fmt.Errorf("%w: %s", ErrOutOfStock, orderErr.Message)
		case repositories.OrderErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrProductNotFound, orderErr.Message)
		case repositories.OrderErrorNotFound:
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderErr.Message)
		case repositories.OrderErrorStatusConflict:
			return fmt.Errorf("%w: %s", ErrStatusConflict, orderErr.Message)
		case repositories.OrderErrorInvalidStatus:
			return fmt.Errorf("%w: %s", ErrOrderInvalidInput, orderErr.Message)
		}
	}
	return err
}
