package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/sellerdesk/api/internal/domain"
	"github.com/sellerdesk/api/internal/repositories"
)

// ErrStatsInvalidInput signals the caller provided invalid arguments.
var ErrStatsInvalidInput = errors.New("stats: invalid input")

// StatsServiceDeps bundles the collaborators required to construct the service.
type StatsServiceDeps struct {
	Orders repositories.OrderRepository
	Stats  repositories.StatsRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type statsService struct {
	orders repositories.OrderRepository
	stats  repositories.StatsRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewStatsService wires dependencies into a concrete StatsService.
func NewStatsService(deps StatsServiceDeps) (StatsService, error) {
	if deps.Orders == nil {
		return nil, errors.New("stats service: order repository is required")
	}
	if deps.Stats == nil {
		return nil, errors.New("stats service: stats repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &statsService{
		orders: deps.Orders,
		stats:  deps.Stats,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Reconcile recomputes the aggregate document from the full order ledger and
// overwrites the stored copy. Any drift introduced by partial failures or
// manual data edits disappears on the next run. Everything except GeneratedAt
// is a pure function of the ledger: running twice over unchanged orders
// produces identical aggregates, only the run timestamp moves.
func (s *statsService) Reconcile(ctx context.Context, storeID string) (AggregateStats, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return AggregateStats{}, fmt.Errorf("%w: store id is required", ErrStatsInvalidInput)
	}

	now := s.clock()
	stats := AggregateStats{
		StoreID:      storeID,
		StatusCounts: map[string]int64{},
		Daily:        map[string]domain.DailyStat{},
		GeneratedAt:  now,
	}

	var scanned int
	err := s.orders.ScanAll(ctx, storeID, func(order domain.Order) error {
		scanned++
		foldOrder(&stats, order)
		return nil
	})
	if err != nil {
		return AggregateStats{}, fmt.Errorf("scan orders for %s: %w", storeID, err)
	}

	if err := s.stats.Overwrite(ctx, stats); err != nil {
		return AggregateStats{}, fmt.Errorf("write stats for %s: %w", storeID, err)
	}

	s.logger(ctx, "stats.reconciled", map[string]any{
		"storeId": storeID,
		"scanned": scanned,
		"counted": stats.Totals.Count,
	})
	return stats, nil
}

func (s *statsService) GetStats(ctx context.Context, storeID string) (AggregateStats, error) {
	storeID = strings.TrimSpace(storeID)
	if storeID == "" {
		return AggregateStats{}, fmt.Errorf("%w: store id is required", ErrStatsInvalidInput)
	}
	stats, err := s.stats.Get(ctx, storeID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			// A store with no reconciled document reads as all-zero stats.
			return AggregateStats{
				StoreID:      storeID,
				StatusCounts: map[string]int64{},
				Daily:        map[string]domain.DailyStat{},
			}, nil
		}
		return AggregateStats{}, err
	}
	return stats, nil
}

// foldOrder accumulates one ledger entry into the aggregate. Soft-deleted
// orders are invisible to every counter.
func foldOrder(stats *AggregateStats, order domain.Order) {
	if order.Deleted {
		return
	}

	total := order.Total()
	stats.Totals.Revenue += total
	stats.Totals.Count++
	stats.StatusCounts[string(order.Status)]++

	if order.IsPaid {
		stats.Totals.RealizedRevenue += total
		stats.Totals.RealizedCOGS += order.CostPrice * float64(order.Quantity)
		stats.Totals.RealizedDeliveryCost += order.RealDeliveryCost
	}
	if order.Status == domain.OrderStatusDelivered {
		stats.Totals.DeliveredRevenue += total
	}

	key := domain.DailyBucketKey(order.Date)
	daily := stats.Daily[key]
	daily.Revenue += total
	daily.Count++
	stats.Daily[key] = daily
}
