package repositories

import (
	"context"
	"time"

	domain "github.com/sellerdesk/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Stores() StoreRepository
	Products() ProductRepository
	Orders() OrderRepository
	Customers() CustomerRepository
	Automations() AutomationRepository
	Stats() StatsRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// StoreRepository reads tenant settings (name, sender info) consumed by automations.
type StoreRepository interface {
	FindByID(ctx context.Context, storeID string) (domain.Store, error)
}

// ProductRepository manages catalog entries. Stock is only ever mutated inside
// the order transactions owned by OrderRepository.
type ProductRepository interface {
	FindByID(ctx context.Context, storeID string, productID string) (domain.Product, error)
	Upsert(ctx context.Context, product domain.Product) error
}

// OrderFields carries a partial order update. Nil pointers leave the stored
// value untouched (merge, not replace).
type OrderFields struct {
	ArticleID        *string
	Quantity         *int
	Price            *float64
	CostPrice        *float64
	RealDeliveryCost *float64
	Status           *domain.OrderStatus
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
}

// OrderCreateRequest captures the payload for the atomic order create transaction.
type OrderCreateRequest struct {
	Order domain.Order
	Now   time.Time
}

// OrderCreateResult returns the created order and the remaining stock of the
// linked product when one was debited.
type OrderCreateResult struct {
	Order          domain.Order
	RemainingStock *int
}

// OrderUpdateRequest captures the payload for the atomic order update transaction.
// ExpectedStatus, when set, aborts with a conflict if the stored status moved
// underneath the caller.
type OrderUpdateRequest struct {
	StoreID        string
	OrderID        string
	Fields         OrderFields
	ExpectedStatus *domain.OrderStatus
	Now            time.Time
}

// OrderUpdateResult returns the merged order plus the stock delta that was
// applied to the linked product (zero when none).
type OrderUpdateResult struct {
	Order          domain.Order
	Previous       domain.Order
	StockDelta     int
	RemainingStock *int
}

// OrderRepository owns the order ledger and the transactional consistency
// boundary between orders, product stock and customer contact records.
type OrderRepository interface {
	Create(ctx context.Context, req OrderCreateRequest) (OrderCreateResult, error)
	Update(ctx context.Context, req OrderUpdateRequest) (OrderUpdateResult, error)
	FindByID(ctx context.Context, storeID string, orderID string) (domain.Order, error)
	List(ctx context.Context, storeID string, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	SetDeleted(ctx context.Context, storeID string, orderID string, deleted bool, now time.Time) (domain.Order, error)
	// ScanAll streams every order of the store to fn, including soft-deleted
	// ones, without loading the full ledger into memory.
	ScanAll(ctx context.Context, storeID string, fn func(domain.Order) error) error
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	Status         *domain.OrderStatus
	IncludeDeleted bool
	Pagination     domain.Pagination
}

// CustomerRepository reads customer contact records. Writes happen only inside
// the order update transaction (denormalisation sync).
type CustomerRepository interface {
	FindByID(ctx context.Context, storeID string, customerID string) (domain.Customer, error)
	Upsert(ctx context.Context, customer domain.Customer) error
}

// AutomationRepository persists automation definitions and serves the engine's
// per-event queries.
type AutomationRepository interface {
	QueryActive(ctx context.Context, storeID string, trigger domain.TriggerKind) ([]domain.AutomationDefinition, error)
	List(ctx context.Context, storeID string) ([]domain.AutomationDefinition, error)
	Upsert(ctx context.Context, def domain.AutomationDefinition) error
}

// StatsRepository persists the per-store aggregate document. Overwrite replaces
// the whole document in one write; partial merges are not supported.
type StatsRepository interface {
	Overwrite(ctx context.Context, stats domain.AggregateStats) error
	Get(ctx context.Context, storeID string) (domain.AggregateStats, error)
}
