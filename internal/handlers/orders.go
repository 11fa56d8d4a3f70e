package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/sellerdesk/api/internal/domain"
	"github.com/sellerdesk/api/internal/platform/httpx"
	"github.com/sellerdesk/api/internal/platform/requestctx"
	"github.com/sellerdesk/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 32 * 1024
)

type orderPayload struct {
	ID               string     `json:"id"`
	ArticleID        string     `json:"articleId,omitempty"`
	ArticleName      string     `json:"articleName,omitempty"`
	Quantity         int        `json:"quantity"`
	Price            float64    `json:"price"`
	CostPrice        float64    `json:"costPrice,omitempty"`
	RealDeliveryCost float64    `json:"realDeliveryCost,omitempty"`
	Total            float64    `json:"total"`
	Status           string     `json:"status"`
	IsPaid           bool       `json:"isPaid"`
	PaymentMethod    string     `json:"paymentMethod,omitempty"`
	CustomerID       string     `json:"customerId,omitempty"`
	CustomerName     string     `json:"customerName,omitempty"`
	CustomerPhone    string     `json:"customerPhone,omitempty"`
	CustomerCity     string     `json:"customerCity,omitempty"`
	CustomerAddress  string     `json:"customerAddress,omitempty"`
	Date             time.Time  `json:"date"`
	Carrier          string     `json:"carrier,omitempty"`
	TrackingID       string     `json:"trackingId,omitempty"`
	Deleted          bool       `json:"deleted,omitempty"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

type createOrderRequest struct {
	ArticleID        string   `json:"articleId"`
	ArticleName      string   `json:"articleName"`
	Quantity         int      `json:"quantity"`
	Price            float64  `json:"price"`
	CostPrice        float64  `json:"costPrice"`
	RealDeliveryCost float64  `json:"realDeliveryCost"`
	Status           string   `json:"status"`
	IsPaid           bool     `json:"isPaid"`
	PaymentMethod    string   `json:"paymentMethod"`
	CustomerID       string   `json:"customerId"`
	CustomerName     string   `json:"customerName"`
	CustomerPhone    string   `json:"customerPhone"`
	CustomerCity     string   `json:"customerCity"`
	CustomerAddress  string   `json:"customerAddress"`
	Date             *string  `json:"date"`
}

type updateOrderRequest struct {
	ArticleID        *string  `json:"articleId"`
	Quantity         *int     `json:"quantity"`
	Price            *float64 `json:"price"`
	CostPrice        *float64 `json:"costPrice"`
	RealDeliveryCost *float64 `json:"realDeliveryCost"`
	Status           *string  `json:"status"`
	IsPaid           *bool    `json:"isPaid"`
	PaymentMethod    *string  `json:"paymentMethod"`
	CustomerID       *string  `json:"customerId"`
	CustomerName     *string  `json:"customerName"`
	CustomerPhone    *string  `json:"customerPhone"`
	CustomerCity     *string  `json:"customerCity"`
	CustomerAddress  *string  `json:"customerAddress"`
	Date             *string  `json:"date"`
	Carrier          *string  `json:"carrier"`
	TrackingID       *string  `json:"trackingId"`
	ExpectedStatus   *string  `json:"expectedStatus"`
}

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listOrders)
	r.Post("/", h.createOrder)
	r.Get("/{orderID}", h.getOrder)
	r.Patch("/{orderID}", h.updateOrder)
	r.Delete("/{orderID}", h.deleteOrder)
	r.Post("/{orderID}:restore", h.restoreOrder)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, ok := h.requireScope(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := services.OrderListFilter{
		IncludeDeleted: parseBoolParam(query.Get("include_deleted")),
	}
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status := domain.OrderStatus(raw)
		if !status.Valid() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown status filter", http.StatusBadRequest))
			return
		}
		filter.Status = &status
	}

	pageSize := defaultOrderPageSize
	if sizeRaw := strings.TrimSpace(query.Get("page_size")); sizeRaw != "" {
		size, err := strconv.Atoi(sizeRaw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case size <= 0:
			pageSize = defaultOrderPageSize
		case size > maxOrderPageSize:
			pageSize = maxOrderPageSize
		default:
			pageSize = size
		}
	}
	filter.Pagination = services.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	}

	page, err := h.orders.ListOrders(ctx, storeID, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, ok := h.requireScope(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	cmd := services.CreateOrderCommand{
		StoreID:          storeID,
		ArticleID:        req.ArticleID,
		ArticleName:      req.ArticleName,
		Quantity:         req.Quantity,
		Price:            req.Price,
		CostPrice:        req.CostPrice,
		RealDeliveryCost: req.RealDeliveryCost,
		Status:           domain.OrderStatus(strings.TrimSpace(req.Status)),
		IsPaid:           req.IsPaid,
		PaymentMethod:    req.PaymentMethod,
		CustomerID:       req.CustomerID,
		CustomerName:     req.CustomerName,
		CustomerPhone:    req.CustomerPhone,
		CustomerCity:     req.CustomerCity,
		CustomerAddress:  req.CustomerAddress,
	}
	if req.Date != nil {
		date, err := parseTimeParam(*req.Date)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "date must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.Date = date
	}

	order, err := h.orders.CreateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, ok := h.requireScope(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, storeID, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, ok := h.requireScope(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	var req updateOrderRequest
	if !decodeJSONBody(ctx, w, r, &req) {
		return
	}

	cmd := services.UpdateOrderCommand{
		StoreID:          storeID,
		OrderID:          orderID,
		ArticleID:        req.ArticleID,
		Quantity:         req.Quantity,
		Price:            req.Price,
		CostPrice:        req.CostPrice,
		RealDeliveryCost: req.RealDeliveryCost,
		IsPaid:           req.IsPaid,
		PaymentMethod:    req.PaymentMethod,
		CustomerID:       req.CustomerID,
		CustomerName:     req.CustomerName,
		CustomerPhone:    req.CustomerPhone,
		CustomerCity:     req.CustomerCity,
		CustomerAddress:  req.CustomerAddress,
		Carrier:          req.Carrier,
		TrackingID:       req.TrackingID,
	}
	if req.Status != nil {
		status := domain.OrderStatus(strings.TrimSpace(*req.Status))
		cmd.Status = &status
	}
	if req.ExpectedStatus != nil {
		expected := domain.OrderStatus(strings.TrimSpace(*req.ExpectedStatus))
		cmd.ExpectedStatus = &expected
	}
	if req.Date != nil {
		date, err := parseTimeParam(*req.Date)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "date must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.Date = &date
	}

	order, err := h.orders.UpdateOrder(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, ok := h.requireScope(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.SoftDeleteOrder(ctx, storeID, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) restoreOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, ok := h.requireScope(ctx, w)
	if !ok {
		return
	}
	orderID, ok := orderIDParam(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.RestoreOrder(ctx, storeID, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) requireScope(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	storeID := requestctx.StoreID(ctx)
	if storeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("store_scope_required", "X-Store-Id header is required", http.StatusBadRequest))
		return "", false
	}
	return storeID, true
}

func orderIDParam(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return "", false
	}
	return orderID, true
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:               order.ID,
		ArticleID:        order.ArticleID,
		ArticleName:      order.ArticleName,
		Quantity:         order.Quantity,
		Price:            order.Price,
		CostPrice:        order.CostPrice,
		RealDeliveryCost: order.RealDeliveryCost,
		Total:            order.Total(),
		Status:           string(order.Status),
		IsPaid:           order.IsPaid,
		PaymentMethod:    order.PaymentMethod,
		CustomerID:       order.CustomerID,
		CustomerName:     order.CustomerName,
		CustomerPhone:    order.CustomerPhone,
		CustomerCity:     order.CustomerCity,
		CustomerAddress:  order.CustomerAddress,
		Date:             order.Date,
		Carrier:          order.Carrier,
		TrackingID:       order.TrackingID,
		Deleted:          order.Deleted,
	}
	if !order.CreatedAt.IsZero() {
		created := order.CreatedAt
		payload.CreatedAt = &created
	}
	if !order.UpdatedAt.IsZero() {
		updated := order.UpdatedAt
		payload.UpdatedAt = &updated
	}
	return payload
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrOutOfStock):
		httpx.WriteError(ctx, w, httpx.NewError("out_of_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrStatusConflict):
		httpx.WriteError(ctx, w, httpx.NewError("status_conflict", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxOrderBodySize))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
		return false
	}
	if len(body) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is not valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func parseTimeParam(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(raw))
}

func parseBoolParam(raw string) bool {
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return value
}
