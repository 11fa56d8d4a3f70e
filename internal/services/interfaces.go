package services

import (
	"context"
	"time"

	domain "github.com/sellerdesk/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	Order                = domain.Order
	OrderStatus          = domain.OrderStatus
	Product              = domain.Product
	Customer             = domain.Customer
	Store                = domain.Store
	AggregateStats       = domain.AggregateStats
	AutomationDefinition = domain.AutomationDefinition
	TriggerKind          = domain.TriggerKind
)

// OrderService owns the order lifecycle: creation with stock debit, merged
// updates with transition side effects, listing, and soft deletion.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	UpdateOrder(ctx context.Context, cmd UpdateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, storeID string, orderID string) (Order, error)
	ListOrders(ctx context.Context, storeID string, filter OrderListFilter) (domain.CursorPage[Order], error)
	SoftDeleteOrder(ctx context.Context, storeID string, orderID string) (Order, error)
	RestoreOrder(ctx context.Context, storeID string, orderID string) (Order, error)
}

// AutomationService manages automation definitions for a store.
type AutomationService interface {
	ListAutomations(ctx context.Context, storeID string) ([]AutomationDefinition, error)
	SaveAutomation(ctx context.Context, cmd SaveAutomationCommand) (AutomationDefinition, error)
}

// AutomationEngine reacts to order lifecycle events by running the store's
// matching active definitions. Failures are isolated per definition and
// surfaced in the run summary, never as an error on the triggering request.
type AutomationEngine interface {
	OnOrderCreated(ctx context.Context, order Order) AutomationRunSummary
	OnOrderUpdated(ctx context.Context, previous Order, current Order) AutomationRunSummary
}

// StatsService recomputes and serves the per-store aggregate document.
type StatsService interface {
	Reconcile(ctx context.Context, storeID string) (AggregateStats, error)
	GetStats(ctx context.Context, storeID string) (AggregateStats, error)
}

// OrderEventPublisher accepts order lifecycle notifications for downstream processing.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// CarrierGateway abstracts delivery carrier integrations used by automation actions.
type CarrierGateway interface {
	CreateDelivery(ctx context.Context, cmd CreateDeliveryCommand) (DeliveryTicket, error)
	RequestPickup(ctx context.Context, cmd RequestPickupCommand) error
}

// MessageSender delivers a rendered customer message.
type MessageSender interface {
	SendOrderMessage(ctx context.Context, cmd SendOrderMessageCommand) error
}

// OrderEventMessage is the wire payload published on the order lifecycle topic.
type OrderEventMessage struct {
	EventID        string    `json:"eventId"`
	Type           string    `json:"type"`
	StoreID        string    `json:"storeId"`
	OrderID        string    `json:"orderId"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	StockDelta     int       `json:"stockDelta,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// CreateOrderCommand captures everything needed to register a new order.
// New orders normally start as received and unpaid; Status and IsPaid exist
// for backfilling orders taken outside the system and are restricted to
// active statuses, with the delivered/paid coupling still applied.
type CreateOrderCommand struct {
	StoreID          string
	ArticleID        string
	ArticleName      string
	Quantity         int
	Price            float64
	CostPrice        float64
	RealDeliveryCost float64
	Status           OrderStatus
	IsPaid           bool
	PaymentMethod    string
	CustomerID       string
	CustomerName     string
	CustomerPhone    string
	CustomerCity     string
	CustomerAddress  string
	Date             time.Time
}

// UpdateOrderCommand merges the set fields into the stored order. Nil fields
// keep their stored values.
type UpdateOrderCommand struct {
	StoreID          string
	OrderID          string
	ArticleID        *string
	Quantity         *int
	Price            *float64
	CostPrice        *float64
	RealDeliveryCost *float64
	Status           *OrderStatus
	IsPaid           *bool
	PaymentMethod    *string
	CustomerID       *string
	CustomerName     *string
	CustomerPhone    *string
	CustomerCity     *string
	CustomerAddress  *string
	Date             *time.Time
	Carrier          *string
	TrackingID       *string
	// ExpectedStatus, when set, aborts the update if the stored status moved.
	ExpectedStatus *OrderStatus
}

// OrderListFilter narrows and pages the order listing.
type OrderListFilter struct {
	Status         *OrderStatus
	IncludeDeleted bool
	Pagination     Pagination
}

// SaveAutomationCommand creates or replaces an automation definition.
type SaveAutomationCommand struct {
	ID      string
	StoreID string
	Name    string
	Status  domain.AutomationStatus
	Nodes   []domain.AutomationNode
}

// AutomationRunSummary reports the outcome of one engine invocation.
type AutomationRunSummary struct {
	Trigger  TriggerKind
	Matched  int
	Executed int
	Skipped  int
	Failures []AutomationFailure
}

// AutomationFailure records one definition whose action failed.
type AutomationFailure struct {
	AutomationID string
	Err          error
}

// CreateDeliveryCommand asks a carrier to register a parcel.
type CreateDeliveryCommand struct {
	Carrier         string
	StoreID         string
	OrderID         string
	CustomerName    string
	CustomerPhone   string
	CustomerCity    string
	CustomerAddress string
	Amount          float64
	Products        string
}

// DeliveryTicket is the carrier's answer to a created delivery.
type DeliveryTicket struct {
	Carrier    string
	TrackingID string
	LabelURL   string
}

// RequestPickupCommand asks the carrier to collect registered parcels.
type RequestPickupCommand struct {
	Carrier    string
	StoreID    string
	TrackingID string
}

// SendOrderMessageCommand delivers a templated message about an order.
type SendOrderMessageCommand struct {
	StoreID  string
	OrderID  string
	Phone    string
	Template string
	Order    Order
	Store    Store
}
