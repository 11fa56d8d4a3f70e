package firestore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"context"

	domain "github.com/sellerdesk/api/internal/domain"
	pfirestore "github.com/sellerdesk/api/internal/platform/firestore"
	"github.com/sellerdesk/api/internal/repositories"
)

// ProductRepository reads and upserts catalog entries. Stock mutations never
// happen here; they are owned by the order transactions.
type ProductRepository struct {
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs the repository bound to the shared provider.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

// FindByID fetches a product scoped to the store.
func (r *ProductRepository) FindByID(ctx context.Context, storeID string, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product find: id is required")
	}

	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.Product{}, repositories.NewOrderError(repositories.OrderErrorProductNotFound, fmt.Sprintf("product %s not found", productID), err)
		}
		return domain.Product{}, pfirestore.WrapError("products.find", err)
	}
	if doc.Data.StoreID != strings.TrimSpace(storeID) {
		return domain.Product{}, repositories.NewOrderError(repositories.OrderErrorProductNotFound, fmt.Sprintf("product %s not found", productID), nil)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Upsert writes the catalog entry as-is.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) error {
	if r == nil || r.products == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product upsert: id is required")
	}
	if product.Stock < 0 {
		return errors.New("product upsert: stock must be >= 0")
	}
	_, err := r.products.Set(ctx, product.ID, newProductDocument(product))
	return pfirestore.WrapError("products.upsert", err)
}

type productDocument struct {
	StoreID   string    `firestore:"storeId"`
	Name      string    `firestore:"name"`
	Stock     int       `firestore:"stock"`
	Price     float64   `firestore:"price"`
	CostPrice float64   `firestore:"costPrice"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newProductDocument(product domain.Product) productDocument {
	return productDocument{
		StoreID:   strings.TrimSpace(product.StoreID),
		Name:      strings.TrimSpace(product.Name),
		Stock:     product.Stock,
		Price:     product.Price,
		CostPrice: product.CostPrice,
		CreatedAt: product.CreatedAt.UTC(),
		UpdatedAt: product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:        id,
		StoreID:   d.StoreID,
		Name:      d.Name,
		Stock:     d.Stock,
		Price:     d.Price,
		CostPrice: d.CostPrice,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
