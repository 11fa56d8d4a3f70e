package firestore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/sellerdesk/api/internal/domain"
	pfirestore "github.com/sellerdesk/api/internal/platform/firestore"
	"github.com/sellerdesk/api/internal/repositories"
)

const (
	ordersCollection    = "orders"
	productsCollection  = "products"
	customersCollection = "customers"
)

// OrderRepository owns the order ledger plus the atomic coupling between
// orders, product stock and customer contact records. All mutations run inside
// Firestore transactions with every read issued before the first write, so the
// store can retry conflicting commits transparently.
type OrderRepository struct {
	provider  *pfirestore.Provider
	orders    *pfirestore.BaseRepository[orderDocument]
	products  *pfirestore.BaseRepository[productDocument]
	customers *pfirestore.BaseRepository[customerDocument]
}

// NewOrderRepository constructs the repository bound to the shared provider.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider:  provider,
		orders:    pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
		products:  pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
		customers: pfirestore.NewBaseRepository[customerDocument](provider, customersCollection),
	}, nil
}

// Create atomically debits the linked product's stock (when any) and writes
// the new order. Aborts with an out-of-stock error before any write when the
// product cannot cover the quantity.
func (r *OrderRepository) Create(ctx context.Context, req repositories.OrderCreateRequest) (repositories.OrderCreateResult, error) {
	if r == nil || r.provider == nil {
		return repositories.OrderCreateResult{}, errors.New("order repository not initialised")
	}
	order := req.Order
	if strings.TrimSpace(order.ID) == "" {
		return repositories.OrderCreateResult{}, errors.New("order create: order id is required")
	}
	if strings.TrimSpace(order.StoreID) == "" {
		return repositories.OrderCreateResult{}, errors.New("order create: store id is required")
	}
	if order.Quantity < 1 {
		return repositories.OrderCreateResult{}, repositories.NewOrderError(repositories.OrderErrorUnknown, "order create: quantity must be >= 1", nil)
	}

	now := req.Now.UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	var result repositories.OrderCreateResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}

		var remaining *int
		var productRef *firestore.DocumentRef
		var productDoc productDocument

		if articleID := strings.TrimSpace(order.ArticleID); articleID != "" {
			productRef, err = r.products.DocumentRef(ctx, articleID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(productRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewOrderError(repositories.OrderErrorProductNotFound, fmt.Sprintf("product %s not found", articleID), err)
				}
				return err
			}
			if err := snap.DataTo(&productDoc); err != nil {
				return fmt.Errorf("decode product %s: %w", articleID, err)
			}
			if productDoc.Stock-order.Quantity < 0 {
				return repositories.NewOutOfStockError(articleID, productDoc.Stock, order.Quantity)
			}
			productDoc.Stock -= order.Quantity
			productDoc.UpdatedAt = now
			left := productDoc.Stock
			remaining = &left
		}

		if productRef != nil {
			if err := tx.Set(productRef, productDoc); err != nil {
				return err
			}
		}

		doc := newOrderDocument(order)
		if err := tx.Create(orderRef, doc); err != nil {
			return err
		}

		result = repositories.OrderCreateResult{
			Order:          doc.toDomain(order.ID),
			RemainingStock: remaining,
		}
		return nil
	})
	if err != nil {
		return repositories.OrderCreateResult{}, wrapOrderError("orders.create", err)
	}
	return result, nil
}

// Update merges the supplied fields into the stored order inside one
// transaction: reads the order, the linked customer and the linked product
// before any write, applies the stock delta and the payment coupling, then
// writes product, order and customer in that sequence.
func (r *OrderRepository) Update(ctx context.Context, req repositories.OrderUpdateRequest) (repositories.OrderUpdateResult, error) {
	if r == nil || r.provider == nil {
		return repositories.OrderUpdateResult{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return repositories.OrderUpdateResult{}, errors.New("order update: order id is required")
	}
	storeID := strings.TrimSpace(req.StoreID)
	if storeID == "" {
		return repositories.OrderUpdateResult{}, errors.New("order update: store id is required")
	}
	if req.Fields.Status != nil && !req.Fields.Status.Valid() {
		return repositories.OrderUpdateResult{}, repositories.NewOrderError(repositories.OrderErrorInvalidStatus, fmt.Sprintf("unknown order status %q", *req.Fields.Status), nil)
	}
	if req.Fields.Quantity != nil && *req.Fields.Quantity < 1 {
		return repositories.OrderUpdateResult{}, repositories.NewOrderError(repositories.OrderErrorUnknown, "order update: quantity must be >= 1", nil)
	}

	now := req.Now.UTC()
	var result repositories.OrderUpdateResult

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		orderSnap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
			}
			return err
		}
		var oldDoc orderDocument
		if err := orderSnap.DataTo(&oldDoc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if oldDoc.StoreID != storeID {
			return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), nil)
		}
		old := oldDoc.toDomain(orderID)

		if req.ExpectedStatus != nil && old.Status != *req.ExpectedStatus {
			return repositories.NewOrderError(repositories.OrderErrorStatusConflict, fmt.Sprintf("expected status %q but order is %q", *req.ExpectedStatus, old.Status), nil)
		}

		// Customer pre-read: all transaction reads happen before the first
		// write, so the contact sync target is fetched up front.
		customerID := old.CustomerID
		if req.Fields.CustomerID != nil {
			customerID = strings.TrimSpace(*req.Fields.CustomerID)
		}
		var customerRef *firestore.DocumentRef
		var customerDoc customerDocument
		customerExists := false
		if customerID != "" {
			customerRef, err = r.customers.DocumentRef(ctx, customerID)
			if err != nil {
				return err
			}
			custSnap, err := tx.Get(customerRef)
			if err == nil {
				if err := custSnap.DataTo(&customerDoc); err != nil {
					return fmt.Errorf("decode customer %s: %w", customerID, err)
				}
				customerExists = true
			} else if status.Code(err) != codes.NotFound {
				return err
			}
		}

		merged := mergeOrderFields(old, req.Fields)

		// Stock adjustments only apply while the order stays linked to the
		// same product.
		sameArticle := old.ArticleID != "" && merged.ArticleID == old.ArticleID
		stockDelta := 0
		if sameArticle {
			stockDelta = domain.StockDelta(old.Status, merged.Status, old.Quantity, merged.Quantity)
		}

		var remaining *int
		var productRef *firestore.DocumentRef
		var productDoc productDocument
		if stockDelta != 0 {
			productRef, err = r.products.DocumentRef(ctx, old.ArticleID)
			if err != nil {
				return err
			}
			snap, err := tx.Get(productRef)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return repositories.NewOrderError(repositories.OrderErrorProductNotFound, fmt.Sprintf("product %s not found", old.ArticleID), err)
				}
				return err
			}
			if err := snap.DataTo(&productDoc); err != nil {
				return fmt.Errorf("decode product %s: %w", old.ArticleID, err)
			}
			if productDoc.Stock+stockDelta < 0 {
				return repositories.NewOutOfStockError(old.ArticleID, productDoc.Stock, -stockDelta)
			}
			productDoc.Stock += stockDelta
			productDoc.UpdatedAt = now
			left := productDoc.Stock
			remaining = &left
		}

		if old.Status != merged.Status {
			merged.IsPaid = domain.NextPaidFlag(merged.Status, merged.IsPaid)
		}
		merged.UpdatedAt = now

		if productRef != nil {
			if err := tx.Set(productRef, productDoc); err != nil {
				return err
			}
		}

		mergedDoc := newOrderDocument(merged)
		if err := tx.Set(orderRef, mergedDoc); err != nil {
			return err
		}

		if customerExists {
			customerDoc.Name = merged.CustomerName
			customerDoc.Phone = merged.CustomerPhone
			customerDoc.City = merged.CustomerCity
			customerDoc.Address = merged.CustomerAddress
			customerDoc.UpdatedAt = now
			if err := tx.Set(customerRef, customerDoc); err != nil {
				return err
			}
		}

		result = repositories.OrderUpdateResult{
			Order:          mergedDoc.toDomain(orderID),
			Previous:       old,
			StockDelta:     stockDelta,
			RemainingStock: remaining,
		}
		return nil
	})
	if err != nil {
		return repositories.OrderUpdateResult{}, wrapOrderError("orders.update", err)
	}
	return result, nil
}

// FindByID fetches a single order scoped to the store.
func (r *OrderRepository) FindByID(ctx context.Context, storeID string, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: id is required")
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
		}
		return domain.Order{}, wrapOrderError("orders.find", err)
	}
	if doc.Data.StoreID != strings.TrimSpace(storeID) {
		return domain.Order{}, repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), nil)
	}
	return doc.Data.toDomain(doc.ID), nil
}

// SetDeleted flips the soft-delete flag. No stock effect: soft deletion is
// orthogonal to the status partition.
func (r *OrderRepository) SetDeleted(ctx context.Context, storeID string, orderID string, deleted bool, now time.Time) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order set deleted: id is required")
	}

	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, orderID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(orderRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
			}
			return err
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if doc.StoreID != strings.TrimSpace(storeID) {
			return repositories.NewOrderError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), nil)
		}
		doc.Deleted = deleted
		doc.UpdatedAt = now.UTC()
		if err := tx.Set(orderRef, doc); err != nil {
			return err
		}
		updated = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, wrapOrderError("orders.setDeleted", err)
	}
	return updated, nil
}

// List pages through the store's orders, newest first.
func (r *OrderRepository) List(ctx context.Context, storeID string, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order list: store id is required")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 200 {
		pageSize = 200
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
	}

	query := client.Collection(ordersCollection).Query.
		Where("storeId", "==", storeID)
	if filter.Status != nil {
		query = query.Where("status", "==", string(*filter.Status))
	}
	if !filter.IncludeDeleted {
		query = query.Where("deleted", "==", false)
	}
	query = query.
		OrderBy("date", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		decoded, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
		}
		query = query.StartAfter(decoded.Date, decoded.ID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := encodeOrderPageToken(orderPageToken{ID: last.ID, Date: last.Date})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, wrapOrderError("orders.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

// ScanAll streams every order of the store to fn. Used by the stats
// reconciler; the iterator pages server-side so the ledger never has to fit
// in memory.
func (r *OrderRepository) ScanAll(ctx context.Context, storeID string, fn func(domain.Order) error) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if fn == nil {
		return errors.New("order scan: fn is required")
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return errors.New("order scan: store id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return wrapOrderError("orders.scan", err)
	}

	iter := client.Collection(ordersCollection).Query.
		Where("storeId", "==", storeID).
		Documents(ctx)
	defer iter.Stop()

	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return wrapOrderError("orders.scan", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		if err := fn(doc.toDomain(snap.Ref.ID)); err != nil {
			return err
		}
	}
}

// Helper structures ---------------------------------------------------------

type orderDocument struct {
	StoreID          string    `firestore:"storeId"`
	ArticleID        string    `firestore:"articleId,omitempty"`
	ArticleName      string    `firestore:"articleName,omitempty"`
	Quantity         int       `firestore:"quantity"`
	Price            float64   `firestore:"price"`
	CostPrice        float64   `firestore:"costPrice"`
	RealDeliveryCost float64   `firestore:"realDeliveryCost"`
	Status           string    `firestore:"status"`
	IsPaid           bool      `firestore:"isPaid"`
	PaymentMethod    string    `firestore:"paymentMethod,omitempty"`
	CustomerID       string    `firestore:"customerId,omitempty"`
	CustomerName     string    `firestore:"customerName,omitempty"`
	CustomerPhone    string    `firestore:"customerPhone,omitempty"`
	CustomerCity     string    `firestore:"customerCity,omitempty"`
	CustomerAddress  string    `firestore:"customerAddress,omitempty"`
	Date             time.Time `firestore:"date"`
	Carrier          string    `firestore:"carrier,omitempty"`
	TrackingID       string    `firestore:"trackingId,omitempty"`
	Deleted          bool      `firestore:"deleted"`
	CreatedAt        time.Time `firestore:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		StoreID:          strings.TrimSpace(order.StoreID),
		ArticleID:        strings.TrimSpace(order.ArticleID),
		ArticleName:      strings.TrimSpace(order.ArticleName),
		Quantity:         order.Quantity,
		Price:            order.Price,
		CostPrice:        order.CostPrice,
		RealDeliveryCost: order.RealDeliveryCost,
		Status:           string(order.Status),
		IsPaid:           order.IsPaid,
		PaymentMethod:    strings.TrimSpace(order.PaymentMethod),
		CustomerID:       strings.TrimSpace(order.CustomerID),
		CustomerName:     strings.TrimSpace(order.CustomerName),
		CustomerPhone:    strings.TrimSpace(order.CustomerPhone),
		CustomerCity:     strings.TrimSpace(order.CustomerCity),
		CustomerAddress:  strings.TrimSpace(order.CustomerAddress),
		Date:             order.Date.UTC(),
		Carrier:          strings.TrimSpace(order.Carrier),
		TrackingID:       strings.TrimSpace(order.TrackingID),
		Deleted:          order.Deleted,
		CreatedAt:        order.CreatedAt.UTC(),
		UpdatedAt:        order.UpdatedAt.UTC(),
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	return domain.Order{
		ID:               id,
		StoreID:          d.StoreID,
		ArticleID:        d.ArticleID,
		ArticleName:      d.ArticleName,
		Quantity:         d.Quantity,
		Price:            d.Price,
		CostPrice:        d.CostPrice,
		RealDeliveryCost: d.RealDeliveryCost,
		Status:           domain.OrderStatus(d.Status),
		IsPaid:           d.IsPaid,
		PaymentMethod:    d.PaymentMethod,
		CustomerID:       d.CustomerID,
		CustomerName:     d.CustomerName,
		CustomerPhone:    d.CustomerPhone,
		CustomerCity:     d.CustomerCity,
		CustomerAddress:  d.CustomerAddress,
		Date:             d.Date,
		Carrier:          d.Carrier,
		TrackingID:       d.TrackingID,
		Deleted:          d.Deleted,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func mergeOrderFields(old domain.Order, fields repositories.OrderFields) domain.Order {
	merged := old
	if fields.ArticleID != nil {
		merged.ArticleID = strings.TrimSpace(*fields.ArticleID)
	}
	if fields.Quantity != nil {
		merged.Quantity = *fields.Quantity
	}
	if fields.Price != nil {
		merged.Price = *fields.Price
	}
	if fields.CostPrice != nil {
		merged.CostPrice = *fields.CostPrice
	}
	if fields.RealDeliveryCost != nil {
		merged.RealDeliveryCost = *fields.RealDeliveryCost
	}
	if fields.Status != nil {
		merged.Status = *fields.Status
	}
	if fields.IsPaid != nil {
		merged.IsPaid = *fields.IsPaid
	}
	if fields.PaymentMethod != nil {
		merged.PaymentMethod = strings.TrimSpace(*fields.PaymentMethod)
	}
	if fields.CustomerID != nil {
		merged.CustomerID = strings.TrimSpace(*fields.CustomerID)
	}
	if fields.CustomerName != nil {
		merged.CustomerName = strings.TrimSpace(*fields.CustomerName)
	}
	if fields.CustomerPhone != nil {
		merged.CustomerPhone = strings.TrimSpace(*fields.CustomerPhone)
	}
	if fields.CustomerCity != nil {
		merged.CustomerCity = strings.TrimSpace(*fields.CustomerCity)
	}
	if fields.CustomerAddress != nil {
		merged.CustomerAddress = strings.TrimSpace(*fields.CustomerAddress)
	}
	if fields.Date != nil {
		merged.Date = fields.Date.UTC()
	}
	if fields.Carrier != nil {
		merged.Carrier = strings.TrimSpace(*fields.Carrier)
	}
	if fields.TrackingID != nil {
		merged.TrackingID = strings.TrimSpace(*fields.TrackingID)
	}
	return merged
}

type orderPageToken struct {
	ID   string
	Date time.Time
}

func encodeOrderPageToken(token orderPageToken) (string, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(token); err != nil {
		return "", fmt.Errorf("encode order page token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

func decodeOrderPageToken(encoded string) (*orderPageToken, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode order page token: %w", err)
	}
	var token orderPageToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("decode order page token json: %w", err)
	}
	return &token, nil
}

func wrapOrderError(op string, err error) error {
	if err == nil {
		return nil
	}
	var orderErr *repositories.OrderError
	if errors.As(err, &orderErr) {
		if orderErr.Op == "" {
			orderErr.Op = op
		}
		return orderErr
	}
	return pfirestore.WrapError(op, err)
}
