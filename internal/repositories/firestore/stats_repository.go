package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/sellerdesk/api/internal/domain"
	pfirestore "github.com/sellerdesk/api/internal/platform/firestore"
)

const statsCollection = "stats"

// StatsRepository persists the per-store aggregate document. The document id
// is the store id, so there is exactly one per tenant.
type StatsRepository struct {
	stats *pfirestore.BaseRepository[statsDocument]
}

// NewStatsRepository constructs the repository bound to the shared provider.
func NewStatsRepository(provider *pfirestore.Provider) (*StatsRepository, error) {
	if provider == nil {
		return nil, errors.New("stats repository requires firestore provider")
	}
	return &StatsRepository{
		stats: pfirestore.NewBaseRepository[statsDocument](provider, statsCollection),
	}, nil
}

// Overwrite replaces the whole aggregate document in a single write.
// Merging is deliberately unsupported: the reconciler's output is the full
// truth derived from the ledger.
func (r *StatsRepository) Overwrite(ctx context.Context, stats domain.AggregateStats) error {
	if r == nil || r.stats == nil {
		return errors.New("stats repository not initialised")
	}
	storeID := strings.TrimSpace(stats.StoreID)
	if storeID == "" {
		return errors.New("stats overwrite: store id is required")
	}
	_, err := r.stats.Set(ctx, storeID, newStatsDocument(stats))
	return pfirestore.WrapError("stats.overwrite", err)
}

// Get fetches the store's aggregate document.
func (r *StatsRepository) Get(ctx context.Context, storeID string) (domain.AggregateStats, error) {
	if r == nil || r.stats == nil {
		return domain.AggregateStats{}, errors.New("stats repository not initialised")
	}
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return domain.AggregateStats{}, errors.New("stats get: store id is required")
	}
	doc, err := r.stats.Get(ctx, storeID)
	if err != nil {
		return domain.AggregateStats{}, pfirestore.WrapError("stats.get", err)
	}
	return doc.Data.toDomain(doc.ID), nil
}

type statsDocument struct {
	Totals       statsTotalsDocument       `firestore:"totals"`
	StatusCounts map[string]int64          `firestore:"statusCounts"`
	Daily        map[string]statsDailyStat `firestore:"daily"`
	GeneratedAt  time.Time                 `firestore:"generatedAt"`
}

type statsTotalsDocument struct {
	Revenue              float64 `firestore:"revenue"`
	Count                int64   `firestore:"count"`
	RealizedRevenue      float64 `firestore:"realizedRevenue"`
	RealizedCOGS         float64 `firestore:"realizedCogs"`
	RealizedDeliveryCost float64 `firestore:"realizedDeliveryCost"`
	DeliveredRevenue     float64 `firestore:"deliveredRevenue"`
}

type statsDailyStat struct {
	Revenue float64 `firestore:"revenue"`
	Count   int64   `firestore:"count"`
}

func newStatsDocument(stats domain.AggregateStats) statsDocument {
	statusCounts := make(map[string]int64, len(stats.StatusCounts))
	for k, v := range stats.StatusCounts {
		statusCounts[k] = v
	}
	daily := make(map[string]statsDailyStat, len(stats.Daily))
	for k, v := range stats.Daily {
		daily[k] = statsDailyStat{Revenue: v.Revenue, Count: v.Count}
	}
	return statsDocument{
		Totals: statsTotalsDocument{
			Revenue:              stats.Totals.Revenue,
			Count:                stats.Totals.Count,
			RealizedRevenue:      stats.Totals.RealizedRevenue,
			RealizedCOGS:         stats.Totals.RealizedCOGS,
			RealizedDeliveryCost: stats.Totals.RealizedDeliveryCost,
			DeliveredRevenue:     stats.Totals.DeliveredRevenue,
		},
		StatusCounts: statusCounts,
		Daily:        daily,
		GeneratedAt:  stats.GeneratedAt.UTC(),
	}
}

func (d statsDocument) toDomain(storeID string) domain.AggregateStats {
	statusCounts := make(map[string]int64, len(d.StatusCounts))
	for k, v := range d.StatusCounts {
		statusCounts[k] = v
	}
	daily := make(map[string]domain.DailyStat, len(d.Daily))
	for k, v := range d.Daily {
		daily[k] = domain.DailyStat{Revenue: v.Revenue, Count: v.Count}
	}
	return domain.AggregateStats{
		StoreID: storeID,
		Totals: domain.AggregateTotals{
			Revenue:              d.Totals.Revenue,
			Count:                d.Totals.Count,
			RealizedRevenue:      d.Totals.RealizedRevenue,
			RealizedCOGS:         d.Totals.RealizedCOGS,
			RealizedDeliveryCost: d.Totals.RealizedDeliveryCost,
			DeliveredRevenue:     d.Totals.DeliveredRevenue,
		},
		StatusCounts: statusCounts,
		Daily:        daily,
		GeneratedAt:  d.GeneratedAt,
	}
}
