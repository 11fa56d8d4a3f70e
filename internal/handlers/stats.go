package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sellerdesk/api/internal/platform/httpx"
	"github.com/sellerdesk/api/internal/platform/requestctx"
	"github.com/sellerdesk/api/internal/services"
)

type statsTotalsPayload struct {
	Revenue              float64 `json:"revenue"`
	Count                int64   `json:"count"`
	RealizedRevenue      float64 `json:"realizedRevenue"`
	RealizedCOGS         float64 `json:"realizedCogs"`
	RealizedDeliveryCost float64 `json:"realizedDeliveryCost"`
	DeliveredRevenue     float64 `json:"deliveredRevenue"`
}

type dailyStatPayload struct {
	Revenue float64 `json:"revenue"`
	Count   int64   `json:"count"`
}

type statsPayload struct {
	StoreID      string                      `json:"storeId"`
	Totals       statsTotalsPayload          `json:"totals"`
	StatusCounts map[string]int64            `json:"statusCounts"`
	Daily        map[string]dailyStatPayload `json:"daily"`
	GeneratedAt  *time.Time                  `json:"generatedAt,omitempty"`
}

// StatsHandlers exposes the aggregate statistics endpoints.
type StatsHandlers struct {
	stats services.StatsService
}

// NewStatsHandlers constructs a new StatsHandlers instance.
func NewStatsHandlers(stats services.StatsService) *StatsHandlers {
	return &StatsHandlers{stats: stats}
}

// Routes registers the /stats endpoints.
func (h *StatsHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getStats)
	r.Post("/reconcile", h.reconcile)
}

func (h *StatsHandlers) getStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, ok := h.requireScope(ctx, w)
	if !ok {
		return
	}

	stats, err := h.stats.GetStats(ctx, storeID)
	if err != nil {
		writeStatsError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildStatsPayload(stats))
}

func (h *StatsHandlers) reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storeID, ok := h.requireScope(ctx, w)
	if !ok {
		return
	}

	stats, err := h.stats.Reconcile(ctx, storeID)
	if err != nil {
		writeStatsError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildStatsPayload(stats))
}

func (h *StatsHandlers) requireScope(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.stats == nil {
		httpx.WriteError(ctx, w, httpx.NewError("stats_service_unavailable", "stats service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	storeID := requestctx.StoreID(ctx)
	if storeID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("store_scope_required", "X-Store-Id header is required", http.StatusBadRequest))
		return "", false
	}
	return storeID, true
}

func buildStatsPayload(stats services.AggregateStats) statsPayload {
	daily := make(map[string]dailyStatPayload, len(stats.Daily))
	for key, stat := range stats.Daily {
		daily[key] = dailyStatPayload{Revenue: stat.Revenue, Count: stat.Count}
	}
	statusCounts := stats.StatusCounts
	if statusCounts == nil {
		statusCounts = map[string]int64{}
	}
	payload := statsPayload{
		StoreID: stats.StoreID,
		Totals: statsTotalsPayload{
			Revenue:              stats.Totals.Revenue,
			Count:                stats.Totals.Count,
			RealizedRevenue:      stats.Totals.RealizedRevenue,
			RealizedCOGS:         stats.Totals.RealizedCOGS,
			RealizedDeliveryCost: stats.Totals.RealizedDeliveryCost,
			DeliveredRevenue:     stats.Totals.DeliveredRevenue,
		},
		StatusCounts: statusCounts,
		Daily:        daily,
	}
	if !stats.GeneratedAt.IsZero() {
		generated := stats.GeneratedAt
		payload.GeneratedAt = &generated
	}
	return payload
}

func writeStatsError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, services.ErrStatsInvalidInput) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
}
