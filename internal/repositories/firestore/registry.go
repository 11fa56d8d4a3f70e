package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/sellerdesk/api/internal/platform/firestore"
	"github.com/sellerdesk/api/internal/repositories"
)

// Registry wires every Firestore-backed repository onto a shared provider.
type Registry struct {
	provider    *pfirestore.Provider
	stores      *StoreRepository
	products    *ProductRepository
	orders      *OrderRepository
	customers   *CustomerRepository
	automations *AutomationRepository
	stats       *StatsRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the registry and all repositories.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}
	stores, err := NewStoreRepository(provider)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	customers, err := NewCustomerRepository(provider)
	if err != nil {
		return nil, err
	}
	automations, err := NewAutomationRepository(provider)
	if err != nil {
		return nil, err
	}
	stats, err := NewStatsRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:    provider,
		stores:      stores,
		products:    products,
		orders:      orders,
		customers:   customers,
		automations: automations,
		stats:       stats,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Stores returns the tenant repository.
func (r *Registry) Stores() repositories.StoreRepository { return r.stores }

// Products returns the catalog repository.
func (r *Registry) Products() repositories.ProductRepository { return r.products }

// Orders returns the order ledger repository.
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }

// Customers returns the customer repository.
func (r *Registry) Customers() repositories.CustomerRepository { return r.customers }

// Automations returns the automation definition repository.
func (r *Registry) Automations() repositories.AutomationRepository { return r.automations }

// Stats returns the aggregate stats repository.
func (r *Registry) Stats() repositories.StatsRepository { return r.stats }
