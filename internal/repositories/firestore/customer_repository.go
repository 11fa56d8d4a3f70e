package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/sellerdesk/api/internal/domain"
	pfirestore "github.com/sellerdesk/api/internal/platform/firestore"
)

// CustomerRepository reads customer contact records. The denormalisation sync
// back from orders runs inside the order update transaction, not here.
type CustomerRepository struct {
	customers *pfirestore.BaseRepository[customerDocument]
}

// NewCustomerRepository constructs the repository bound to the shared provider.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		customers: pfirestore.NewBaseRepository[customerDocument](provider, customersCollection),
	}, nil
}

// FindByID fetches a customer scoped to the store.
func (r *CustomerRepository) FindByID(ctx context.Context, storeID string, customerID string) (domain.Customer, error) {
	if r == nil || r.customers == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Customer{}, errors.New("customer find: id is required")
	}

	doc, err := r.customers.Get(ctx, customerID)
	if err != nil {
		return domain.Customer{}, pfirestore.WrapError("customers.find", err)
	}
	if doc.Data.StoreID != strings.TrimSpace(storeID) {
		return domain.Customer{}, pfirestore.WrapError("customers.find", errors.New("customer belongs to another store"))
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Upsert writes the customer record as-is.
func (r *CustomerRepository) Upsert(ctx context.Context, customer domain.Customer) error {
	if r == nil || r.customers == nil {
		return errors.New("customer repository not initialised")
	}
	if strings.TrimSpace(customer.ID) == "" {
		return errors.New("customer upsert: id is required")
	}
	_, err := r.customers.Set(ctx, customer.ID, newCustomerDocument(customer))
	return pfirestore.WrapError("customers.upsert", err)
}

type customerDocument struct {
	StoreID   string    `firestore:"storeId"`
	Name      string    `firestore:"name"`
	Phone     string    `firestore:"phone"`
	City      string    `firestore:"city"`
	Address   string    `firestore:"address"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newCustomerDocument(customer domain.Customer) customerDocument {
	return customerDocument{
		StoreID:   strings.TrimSpace(customer.StoreID),
		Name:      strings.TrimSpace(customer.Name),
		Phone:     strings.TrimSpace(customer.Phone),
		City:      strings.TrimSpace(customer.City),
		Address:   strings.TrimSpace(customer.Address),
		CreatedAt: customer.CreatedAt.UTC(),
		UpdatedAt: customer.UpdatedAt.UTC(),
	}
}

func (d customerDocument) toDomain(id string) domain.Customer {
	return domain.Customer{
		ID:        id,
		StoreID:   d.StoreID,
		Name:      d.Name,
		Phone:     d.Phone,
		City:      d.City,
		Address:   d.Address,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
