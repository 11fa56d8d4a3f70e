package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/sellerdesk/api/internal/domain"
	"github.com/sellerdesk/api/internal/platform/requestctx"
	"github.com/sellerdesk/api/internal/services"
)

type stubOrderService struct {
	createFn  func(context.Context, services.CreateOrderCommand) (services.Order, error)
	updateFn  func(context.Context, services.UpdateOrderCommand) (services.Order, error)
	getFn     func(context.Context, string, string) (services.Order, error)
	listFn    func(context.Context, string, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	deleteFn  func(context.Context, string, string) (services.Order, error)
	restoreFn func(context.Context, string, string) (services.Order, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) UpdateOrder(ctx context.Context, cmd services.UpdateOrderCommand) (services.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, storeID string, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, storeID, orderID)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) ListOrders(ctx context.Context, storeID string, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, storeID, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) SoftDeleteOrder(ctx context.Context, storeID string, orderID string) (services.Order, error) {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, storeID, orderID)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) RestoreOrder(ctx context.Context, storeID string, orderID string) (services.Order, error) {
	if s.restoreFn != nil {
		return s.restoreFn(ctx, storeID, orderID)
	}
	return services.Order{}, nil
}

func newOrderTestRouter(svc services.OrderService) chi.Router {
	r := chi.NewRouter()
	r.Route("/orders", NewOrderHandlers(svc).Routes)
	return r
}

func scopedRequest(method, target, storeID string, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if storeID != "" {
		req = req.WithContext(requestctx.WithStoreID(req.Context(), storeID))
	}
	return req
}

func TestOrderHandlersCreate(t *testing.T) {
	svc := &stubOrderService{}
	svc.createFn = func(_ context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
		if cmd.StoreID != "store-1" {
			t.Fatalf("expected scope from context, got %q", cmd.StoreID)
		}
		if cmd.Quantity != 3 || cmd.ArticleID != "prod-1" {
			t.Fatalf("unexpected command: %+v", cmd)
		}
		return services.Order{ID: "order-1", StoreID: cmd.StoreID, Quantity: cmd.Quantity, Price: cmd.Price, Status: domain.OrderStatusReceived}, nil
	}

	rr := httptest.NewRecorder()
	req := scopedRequest(http.MethodPost, "/orders/", "store-1", `{"articleId":"prod-1","quantity":3,"price":120}`)
	newOrderTestRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload.ID != "order-1" || payload.Total != 360 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestOrderHandlersCreateRequiresScope(t *testing.T) {
	rr := httptest.NewRecorder()
	req := scopedRequest(http.MethodPost, "/orders/", "", `{"quantity":1}`)
	newOrderTestRouter(&stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "store_scope_required") {
		t.Fatalf("expected scope error, got %s", rr.Body.String())
	}
}

func TestOrderHandlersCreateOutOfStock(t *testing.T) {
	svc := &stubOrderService{}
	svc.createFn = func(context.Context, services.CreateOrderCommand) (services.Order, error) {
		return services.Order{}, services.ErrOutOfStock
	}

	rr := httptest.NewRecorder()
	req := scopedRequest(http.MethodPost, "/orders/", "store-1", `{"articleId":"prod-1","quantity":9}`)
	newOrderTestRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "out_of_stock") {
		t.Fatalf("expected out_of_stock code, got %s", rr.Body.String())
	}
}

func TestOrderHandlersUpdatePassesMergeFields(t *testing.T) {
	svc := &stubOrderService{}
	var got services.UpdateOrderCommand
	svc.updateFn = func(_ context.Context, cmd services.UpdateOrderCommand) (services.Order, error) {
		got = cmd
		return services.Order{ID: cmd.OrderID, Status: domain.OrderStatusCancelled}, nil
	}

	rr := httptest.NewRecorder()
	req := scopedRequest(http.MethodPatch, "/orders/order-1", "store-1", `{"status":"cancelled","expectedStatus":"confirmed","quantity":2}`)
	newOrderTestRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.OrderID != "order-1" || got.Status == nil || *got.Status != domain.OrderStatusCancelled {
		t.Fatalf("unexpected command: %+v", got)
	}
	if got.ExpectedStatus == nil || *got.ExpectedStatus != domain.OrderStatusConfirmed {
		t.Fatalf("expected expectedStatus forwarded, got %+v", got.ExpectedStatus)
	}
	if got.Quantity == nil || *got.Quantity != 2 {
		t.Fatalf("expected quantity forwarded, got %+v", got.Quantity)
	}
	if got.Price != nil || got.ArticleID != nil {
		t.Fatalf("expected unset fields to stay nil, got %+v", got)
	}
}

func TestOrderHandlersUpdateStatusConflict(t *testing.T) {
	svc := &stubOrderService{}
	svc.updateFn = func(context.Context, services.UpdateOrderCommand) (services.Order, error) {
		return services.Order{}, services.ErrStatusConflict
	}

	rr := httptest.NewRecorder()
	req := scopedRequest(http.MethodPatch, "/orders/order-1", "store-1", `{"status":"cancelled"}`)
	newOrderTestRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "status_conflict") {
		t.Fatalf("expected status_conflict code, got %s", rr.Body.String())
	}
}

func TestOrderHandlersListFilters(t *testing.T) {
	svc := &stubOrderService{}
	var gotFilter services.OrderListFilter
	svc.listFn = func(_ context.Context, storeID string, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
		gotFilter = filter
		return domain.CursorPage[services.Order]{
			Items:         []services.Order{{ID: "order-1", Status: domain.OrderStatusConfirmed}},
			NextPageToken: "tok",
		}, nil
	}

	rr := httptest.NewRecorder()
	req := scopedRequest(http.MethodGet, "/orders/?status=confirmed&include_deleted=true&page_size=5&page_token=abc", "store-1", "")
	newOrderTestRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotFilter.Status == nil || *gotFilter.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected status filter, got %+v", gotFilter.Status)
	}
	if !gotFilter.IncludeDeleted || gotFilter.Pagination.PageSize != 5 || gotFilter.Pagination.PageToken != "abc" {
		t.Fatalf("unexpected filter: %+v", gotFilter)
	}

	var resp orderListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(resp.Items) != 1 || resp.NextPageToken != "tok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestOrderHandlersListRejectsUnknownStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	req := scopedRequest(http.MethodGet, "/orders/?status=teleported", "store-1", "")
	newOrderTestRouter(&stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestOrderHandlersGetNotFound(t *testing.T) {
	svc := &stubOrderService{}
	svc.getFn = func(context.Context, string, string) (services.Order, error) {
		return services.Order{}, services.ErrOrderNotFound
	}

	rr := httptest.NewRecorder()
	req := scopedRequest(http.MethodGet, "/orders/missing", "store-1", "")
	newOrderTestRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestOrderHandlersDeleteAndRestore(t *testing.T) {
	svc := &stubOrderService{}
	svc.deleteFn = func(_ context.Context, _ string, orderID string) (services.Order, error) {
		return services.Order{ID: orderID, Deleted: true}, nil
	}
	svc.restoreFn = func(_ context.Context, _ string, orderID string) (services.Order, error) {
		return services.Order{ID: orderID}, nil
	}
	router := newOrderTestRouter(svc)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, scopedRequest(http.MethodDelete, "/orders/order-1", "store-1", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rr.Code)
	}
	var deleted orderPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &deleted); err != nil || !deleted.Deleted {
		t.Fatalf("expected deleted payload, got %s (err %v)", rr.Body.String(), err)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, scopedRequest(http.MethodPost, "/orders/order-1:restore", "store-1", ""))
	if rr.Code != http.StatusOK {
		t.Fatalf("restore: expected 200, got %d", rr.Code)
	}
}

func TestOrderHandlersRejectsInvalidJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	req := scopedRequest(http.MethodPost, "/orders/", "store-1", `{"quantity":`)
	newOrderTestRouter(&stubOrderService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
