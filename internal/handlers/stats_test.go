package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/sellerdesk/api/internal/domain"
	"github.com/sellerdesk/api/internal/services"
)

type stubStatsService struct {
	reconcileFn func(context.Context, string) (services.AggregateStats, error)
	getFn       func(context.Context, string) (services.AggregateStats, error)
}

func (s *stubStatsService) Reconcile(ctx context.Context, storeID string) (services.AggregateStats, error) {
	if s.reconcileFn != nil {
		return s.reconcileFn(ctx, storeID)
	}
	return services.AggregateStats{StoreID: storeID}, nil
}

func (s *stubStatsService) GetStats(ctx context.Context, storeID string) (services.AggregateStats, error) {
	if s.getFn != nil {
		return s.getFn(ctx, storeID)
	}
	return services.AggregateStats{StoreID: storeID}, nil
}

func newStatsTestRouter(svc services.StatsService) chi.Router {
	r := chi.NewRouter()
	r.Route("/stats", NewStatsHandlers(svc).Routes)
	return r
}

func TestStatsHandlersGet(t *testing.T) {
	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	svc := &stubStatsService{}
	svc.getFn = func(_ context.Context, storeID string) (services.AggregateStats, error) {
		return services.AggregateStats{
			StoreID: storeID,
			Totals: domain.AggregateTotals{
				Revenue: 430, Count: 3, DeliveredRevenue: 200, RealizedRevenue: 200,
			},
			StatusCounts: map[string]int64{"delivered": 1, "confirmed": 2},
			Daily:        map[string]domain.DailyStat{"2026-03-01": {Revenue: 430, Count: 3}},
			GeneratedAt:  now,
		}, nil
	}

	rr := httptest.NewRecorder()
	req := scopedRequest(http.MethodGet, "/stats/", "store-1", "")
	newStatsTestRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var payload statsPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if payload.StoreID != "store-1" || payload.Totals.Revenue != 430 || payload.Totals.Count != 3 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.StatusCounts["delivered"] != 1 || payload.Daily["2026-03-01"].Count != 3 {
		t.Fatalf("unexpected breakdowns: %+v", payload)
	}
}

func TestStatsHandlersReconcile(t *testing.T) {
	svc := &stubStatsService{}
	var reconciled string
	svc.reconcileFn = func(_ context.Context, storeID string) (services.AggregateStats, error) {
		reconciled = storeID
		return services.AggregateStats{StoreID: storeID, GeneratedAt: time.Now()}, nil
	}

	rr := httptest.NewRecorder()
	req := scopedRequest(http.MethodPost, "/stats/reconcile", "store-1", "")
	newStatsTestRouter(svc).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if reconciled != "store-1" {
		t.Fatalf("expected reconcile for store-1, got %q", reconciled)
	}
}

func TestStatsHandlersRequireScope(t *testing.T) {
	rr := httptest.NewRecorder()
	req := scopedRequest(http.MethodGet, "/stats/", "", "")
	newStatsTestRouter(&stubStatsService{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
