//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	domain "github.com/sellerdesk/api/internal/domain"
	pconfig "github.com/sellerdesk/api/internal/platform/config"
	pfirestore "github.com/sellerdesk/api/internal/platform/firestore"
	"github.com/sellerdesk/api/internal/repositories"
	fsrepo "github.com/sellerdesk/api/internal/repositories/firestore"
)

const emulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

// TestOrderTransactionIntegration drives the order/stock/stats consistency
// path against a real Firestore emulator.
func TestOrderTransactionIntegration(t *testing.T) {
	registry := startRegistry(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	now := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	const storeID = "store-1"

	if err := registry.Products().Upsert(ctx, domain.Product{
		ID:        "prod-1",
		StoreID:   storeID,
		Name:      "Lamp",
		Stock:     10,
		Price:     120,
		CostPrice: 40,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	orders := registry.Orders()

	created, err := orders.Create(ctx, repositories.OrderCreateRequest{
		Order: domain.Order{
			ID:           "order-1",
			StoreID:      storeID,
			ArticleID:    "prod-1",
			ArticleName:  "Lamp",
			Quantity:     3,
			Price:        120,
			CostPrice:    40,
			Status:       domain.OrderStatusReceived,
			CustomerName: "Amina",
			Date:         now,
		},
		Now: now,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if created.RemainingStock == nil || *created.RemainingStock != 7 {
		t.Fatalf("expected stock debited to 7, got %v", created.RemainingStock)
	}

	// Creating beyond the remaining stock must abort without writes.
	_, err = orders.Create(ctx, repositories.OrderCreateRequest{
		Order: domain.Order{
			ID:        "order-overflow",
			StoreID:   storeID,
			ArticleID: "prod-1",
			Quantity:  100,
			Price:     120,
			Status:    domain.OrderStatusReceived,
			Date:      now,
		},
		Now: now,
	})
	var orderErr *repositories.OrderError
	if !errors.As(err, &orderErr) || orderErr.Code != repositories.OrderErrorOutOfStock {
		t.Fatalf("expected out-of-stock error, got %v", err)
	}
	if orderErr.Available != 7 {
		t.Fatalf("expected available stock 7 in error, got %d", orderErr.Available)
	}

	// Cancelling restores the debited quantity.
	cancelled := domain.OrderStatusCancelled
	updated, err := orders.Update(ctx, repositories.OrderUpdateRequest{
		StoreID: storeID,
		OrderID: "order-1",
		Fields:  repositories.OrderFields{Status: &cancelled},
		Now:     now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	if updated.StockDelta != 3 || updated.RemainingStock == nil || *updated.RemainingStock != 10 {
		t.Fatalf("expected stock restored to 10, got delta %d remaining %v", updated.StockDelta, updated.RemainingStock)
	}
	if updated.Order.IsPaid {
		t.Fatal("cancelled order must not stay paid")
	}

	// Optimistic concurrency: the stored status is cancelled, not received.
	received := domain.OrderStatusReceived
	confirmed := domain.OrderStatusConfirmed
	_, err = orders.Update(ctx, repositories.OrderUpdateRequest{
		StoreID:        storeID,
		OrderID:        "order-1",
		Fields:         repositories.OrderFields{Status: &confirmed},
		ExpectedStatus: &received,
		Now:            now.Add(2 * time.Minute),
	})
	if !errors.As(err, &orderErr) || orderErr.Code != repositories.OrderErrorStatusConflict {
		t.Fatalf("expected status conflict, got %v", err)
	}

	// Reactivating debits the stock again.
	updated, err = orders.Update(ctx, repositories.OrderUpdateRequest{
		StoreID:        storeID,
		OrderID:        "order-1",
		Fields:         repositories.OrderFields{Status: &confirmed},
		ExpectedStatus: &cancelled,
		Now:            now.Add(3 * time.Minute),
	})
	if err != nil {
		t.Fatalf("reactivate order: %v", err)
	}
	if updated.StockDelta != -3 || updated.RemainingStock == nil || *updated.RemainingStock != 7 {
		t.Fatalf("expected stock debited to 7, got delta %d remaining %v", updated.StockDelta, updated.RemainingStock)
	}

	// Delivery marks the order paid.
	delivered := domain.OrderStatusDelivered
	updated, err = orders.Update(ctx, repositories.OrderUpdateRequest{
		StoreID: storeID,
		OrderID: "order-1",
		Fields:  repositories.OrderFields{Status: &delivered},
		Now:     now.Add(4 * time.Minute),
	})
	if err != nil {
		t.Fatalf("deliver order: %v", err)
	}
	if !updated.Order.IsPaid {
		t.Fatal("delivered order must be marked paid")
	}
	if updated.StockDelta != 0 {
		t.Fatalf("expected no stock movement between active statuses, got %d", updated.StockDelta)
	}

	// Soft delete keeps the document readable and leaves stock untouched.
	deleted, err := orders.SetDeleted(ctx, storeID, "order-1", true, now.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if !deleted.Deleted || deleted.Status != domain.OrderStatusDelivered {
		t.Fatalf("unexpected deleted order: %+v", deleted)
	}
	product, err := registry.Products().FindByID(ctx, storeID, "prod-1")
	if err != nil {
		t.Fatalf("read product: %v", err)
	}
	if product.Stock != 7 {
		t.Fatalf("soft delete must not touch stock, got %d", product.Stock)
	}

	// ScanAll streams deleted orders too.
	var scanned int
	if err := orders.ScanAll(ctx, storeID, func(domain.Order) error {
		scanned++
		return nil
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if scanned != 1 {
		t.Fatalf("expected 1 scanned order, got %d", scanned)
	}

	// Stats document round-trip: overwrite then read back.
	stats := domain.AggregateStats{
		StoreID:      storeID,
		Totals:       domain.AggregateTotals{Revenue: 360, Count: 1},
		StatusCounts: map[string]int64{"delivered": 1},
		Daily:        map[string]domain.DailyStat{"2026-03-14": {Revenue: 360, Count: 1}},
		GeneratedAt:  now,
	}
	if err := registry.Stats().Overwrite(ctx, stats); err != nil {
		t.Fatalf("overwrite stats: %v", err)
	}
	got, err := registry.Stats().Get(ctx, storeID)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if got.Totals.Revenue != 360 || got.StatusCounts["delivered"] != 1 {
		t.Fatalf("unexpected stats: %+v", got)
	}
}

func startRegistry(t *testing.T) *fsrepo.Registry {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "test-project",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	registry, err := fsrepo.NewRegistry(provider)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return registry
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port
}

func startEmulator(t *testing.T, port int) string {
	t.Helper()
	cmd := exec.Command("docker",
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		emulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatal("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		lastErr = err
		time.Sleep(250 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = errors.New("timeout waiting for endpoint")
	}
	t.Fatalf("emulator did not become ready: %v", lastErr)
}
