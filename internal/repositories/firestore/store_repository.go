package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/sellerdesk/api/internal/domain"
	pfirestore "github.com/sellerdesk/api/internal/platform/firestore"
)

const storesCollection = "stores"

// StoreRepository reads tenant settings.
type StoreRepository struct {
	stores *pfirestore.BaseRepository[storeDocument]
}

// NewStoreRepository constructs the repository bound to the shared provider.
func NewStoreRepository(provider *pfirestore.Provider) (*StoreRepository, error) {
	if provider == nil {
		return nil, errors.New("store repository requires firestore provider")
	}
	return &StoreRepository{
		stores: pfirestore.NewBaseRepository[storeDocument](provider, storesCollection),
	}, nil
}

// FindByID fetches the tenant record.
func (r *StoreRepository) FindByID(ctx context.Context, storeID string) (domain.Store, error) {
	if r == nil || r.stores == nil {
		return domain.Store{}, errors.New("store repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return domain.Store{}, errors.New("store find: id is required")
	}
	doc, err := r.stores.Get(ctx, storeID)
	if err != nil {
		return domain.Store{}, pfirestore.WrapError("stores.find", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

type storeDocument struct {
	Name          string    `firestore:"name"`
	Phone         string    `firestore:"phone,omitempty"`
	Currency      string    `firestore:"currency,omitempty"`
	SenderName    string    `firestore:"senderName,omitempty"`
	SenderCity    string    `firestore:"senderCity,omitempty"`
	SenderAddress string    `firestore:"senderAddress,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func (d storeDocument) toDomain(id string) domain.Store {
	return domain.Store{
		ID:            id,
		Name:          d.Name,
		Phone:         d.Phone,
		Currency:      d.Currency,
		SenderName:    d.SenderName,
		SenderCity:    d.SenderCity,
		SenderAddress: d.SenderAddress,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}
