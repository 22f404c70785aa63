package tests

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"tripsync/internal/domain"
	"tripsync/internal/service"
	"tripsync/internal/store"
)

// ──────────────────────────────────────────────
// 4. SYNC QUEUE EDGE CASES
// ──────────────────────────────────────────────

func newSyncFixture(t *testing.T) (*service.SyncService, *store.OrderStore, *MemOrderStorage, *MockOrderRepository) {
	t.Helper()
	storage := NewMemOrderStorage()
	orders := store.NewOrderStore(storage)
	repo := NewMockOrderRepository()
	return service.NewSyncService(orders, repo, 0), orders, storage, repo
}

func queueOrder(t *testing.T, orders *store.OrderStore, id string, price float64) {
	t.Helper()
	ctx := context.Background()
	if err := orders.SaveOrder(ctx, &domain.LocalOrder{ID: id, Status: domain.TripStatusOnWay}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := orders.UpdateOrder(ctx, id, map[string]any{"price": price}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSync_PartialFailure(t *testing.T) {
	t.Parallel()

	sync, orders, storage, repo := newSyncFixture(t)
	ctx := context.Background()

	queueOrder(t, orders, "order-1", 10)
	queueOrder(t, orders, "order-2", 20)
	queueOrder(t, orders, "order-3", 30)
	repo.WriteOrderErrors["order-2"] = errors.New("connection reset")

	report, err := sync.SyncAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Success != 2 || report.Failed != 1 {
		t.Fatalf("expected report {2, 1}, got {%d, %d}", report.Success, report.Failed)
	}

	// The failed order keeps everything it needs for a retry.
	failed, err := orders.GetOrder(ctx, "order-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if failed.SyncStatus != domain.SyncStatusFailed {
		t.Errorf("expected order-2 marked failed, got %s", failed.SyncStatus)
	}
	if len(failed.PendingUpdates) == 0 {
		t.Error("expected order-2 to keep its journal for retry")
	}
	if !storage.QueueContains("order-2") {
		t.Error("expected order-2 to stay queued")
	}

	// The synced orders are settled and dequeued.
	for _, id := range []string{"order-1", "order-3"} {
		order, err := orders.GetOrder(ctx, id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if order.SyncStatus != domain.SyncStatusSynced {
			t.Errorf("expected %s synced, got %s", id, order.SyncStatus)
		}
		if storage.QueueContains(id) {
			t.Errorf("expected %s dequeued", id)
		}
	}
}

func TestSync_FailedOrderRecoversOnRetry(t *testing.T) {
	t.Parallel()

	sync, orders, storage, repo := newSyncFixture(t)
	ctx := context.Background()

	queueOrder(t, orders, "order-1", 10)
	repo.WriteOrderErrors["order-1"] = errors.New("timeout")

	if err := sync.SyncOne(ctx, "order-1"); !errors.Is(err, service.ErrSyncFailure) {
		t.Fatalf("expected ErrSyncFailure, got %v", err)
	}

	// Connectivity comes back.
	delete(repo.WriteOrderErrors, "order-1")

	report, err := sync.SyncAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Success != 1 || report.Failed != 0 {
		t.Fatalf("expected report {1, 0}, got {%d, %d}", report.Success, report.Failed)
	}
	if storage.QueueContains("order-1") {
		t.Error("expected order-1 dequeued after the successful retry")
	}

	fields := repo.LastWrite("order-1")
	if fields == nil {
		t.Fatal("expected a remote write for order-1")
	}
	if fields["price"] != 10.0 {
		t.Errorf("expected the journaled price pushed, got %v", fields["price"])
	}
	if fields["status"] != string(domain.TripStatusOnWay) {
		t.Errorf("expected the status pushed, got %v", fields["status"])
	}
}

func TestSync_DeletedOrderDroppedFromQueue(t *testing.T) {
	t.Parallel()

	sync, orders, storage, _ := newSyncFixture(t)
	ctx := context.Background()

	queueOrder(t, orders, "order-1", 10)

	// The order is deleted locally while still queued; storage-level delete
	// leaves the queue entry behind.
	if err := storage.DeleteOrder(ctx, "order-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sync.SyncOne(ctx, "order-1"); err != nil {
		t.Fatalf("expected a deleted order to be dropped silently, got %v", err)
	}
	if storage.QueueContains("order-1") {
		t.Error("expected the orphaned queue entry removed")
	}
}

func TestSync_AlreadySyncedOrderIsDequeuedWithoutWrite(t *testing.T) {
	t.Parallel()

	sync, orders, storage, repo := newSyncFixture(t)
	ctx := context.Background()

	// Queue an order, then settle it out of band (the finish coordinator
	// does this after a confirmed remote commit).
	queueOrder(t, orders, "order-1", 10)
	if err := orders.MarkSynced(ctx, "order-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := storage.EnqueueSync(ctx, "order-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sync.SyncOne(ctx, "order-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.WriteOrderCallCount != 0 {
		t.Errorf("expected no remote write for an already-synced order, called %d times", repo.WriteOrderCallCount)
	}
	if storage.QueueContains("order-1") {
		t.Error("expected the stale queue entry removed")
	}
}

func TestSync_SweepIsRepeatable(t *testing.T) {
	t.Parallel()

	sync, orders, _, repo := newSyncFixture(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		queueOrder(t, orders, fmt.Sprintf("order-%d", i), float64(i*10))
	}

	if _, err := sync.SyncAll(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	writes := repo.WriteOrderCallCount

	// A second sweep over an empty queue must not push anything again.
	report, err := sync.SyncAll(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Success != 0 || report.Failed != 0 {
		t.Errorf("expected an empty sweep, got {%d, %d}", report.Success, report.Failed)
	}
	if repo.WriteOrderCallCount != writes {
		t.Errorf("expected no additional writes, got %d", repo.WriteOrderCallCount-writes)
	}
}

func TestSync_CompletedAtPushedForTerminalOrders(t *testing.T) {
	t.Parallel()

	sync, orders, _, repo := newSyncFixture(t)
	ctx := context.Background()

	if err := orders.SaveOrder(ctx, &domain.LocalOrder{ID: "order-1", Status: domain.TripStatusOnWay}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := orders.UpdateOrder(ctx, "order-1", map[string]any{"status": domain.TripStatusCancelled}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sync.SyncOne(ctx, "order-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fields := repo.LastWrite("order-1")
	if fields["status"] != string(domain.TripStatusCancelled) {
		t.Errorf("expected cancelled status pushed, got %v", fields["status"])
	}
	if _, ok := fields["completed_at"]; !ok {
		t.Error("expected completed_at pushed for a terminal order")
	}
}
