package tests

import (
	"context"
	"errors"
	"testing"

	"tripsync/internal/domain"
	"tripsync/internal/service"
	"tripsync/internal/store"
)

// ──────────────────────────────────────────────
// 6. FINISH COORDINATOR EDGE CASES
// ──────────────────────────────────────────────

func driveToInProgress(t *testing.T, f *serviceFixture) {
	t.Helper()
	ctx := context.Background()
	f.accept(t)
	if _, err := f.service.ChangeStatus(ctx, domain.TripStatusWaiting); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.service.ChangeStatus(ctx, domain.TripStatusInProgress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.service.ReportMetrics(ctx, store.WholesaleMetrics(domain.TripMetrics{
		TripDistanceKm:  10.0,
		TripDurationMin: 20.0,
	})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFinish_CommitsRemoteAndClearsLocal(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	driveToInProgress(t, f)
	wantTotal := f.trips.GetTrip().Billing.TotalCost

	invoice, err := f.service.Finish(ctx, 4.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if invoice.TripID != "trip-1" || invoice.OrderID != "order-1" {
		t.Errorf("expected invoice for trip-1/order-1, got %s/%s", invoice.TripID, invoice.OrderID)
	}
	if invoice.Rating != 4.5 {
		t.Errorf("expected rating 4.5, got %v", invoice.Rating)
	}
	if invoice.Billing.TotalCost != wantTotal {
		t.Errorf("expected invoice total %v, got %v", wantTotal, invoice.Billing.TotalCost)
	}

	// The remote row carries the final state and cost.
	row := f.repo.Row("order-1")
	if row == nil || row.Status != domain.TripStatusCompleted {
		t.Fatalf("expected the remote row completed, got %+v", row)
	}
	if row.TotalCost != wantTotal {
		t.Errorf("expected remote total %v, got %v", wantTotal, row.TotalCost)
	}

	// Local state is cleared, and the settled order is confirmed, not queued.
	if f.trips.GetTrip() != nil {
		t.Error("expected the trip cleared after finish")
	}
	order, err := f.orders.GetOrder(ctx, "order-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.TripStatusCompleted {
		t.Errorf("expected the settled order completed, got %s", order.Status)
	}
	if order.SyncStatus != domain.SyncStatusSynced {
		t.Errorf("expected the settled order synced, got %s", order.SyncStatus)
	}
	if len(order.PendingUpdates) != 0 {
		t.Errorf("expected the settled order's journal cleared, got %d entries", len(order.PendingUpdates))
	}
	if order.Price != wantTotal {
		t.Errorf("expected the settled order priced at %v, got %v", wantTotal, order.Price)
	}
}

func TestFinish_BridgeFailureDoesNotBlockFinish(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	driveToInProgress(t, f)

	// The host bridge is best-effort; a dead webview must not hold the
	// commit hostage.
	f.bridge.NotifyError = errors.New("bridge gone")

	if _, err := f.service.Finish(context.Background(), 5.0); err != nil {
		t.Fatalf("expected finish to succeed despite the bridge failure, got %v", err)
	}
	if f.trips.GetTrip() != nil {
		t.Error("expected the trip cleared")
	}
	if f.repo.CompleteTripCallCount != 1 {
		t.Errorf("expected CompleteTrip called once, called %d times", f.repo.CompleteTripCallCount)
	}
}

func TestFinish_RemoteFailureRetainsLocalState(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	driveToInProgress(t, f)

	f.repo.CompleteTripErr = errors.New("connection refused")

	_, err := f.service.Finish(ctx, 4.0)
	if !errors.Is(err, service.ErrFinishFailed) {
		t.Fatalf("expected ErrFinishFailed, got %v", err)
	}

	// The trip reached completed locally but must survive for the retry.
	rec := f.trips.GetTrip()
	if rec == nil {
		t.Fatal("expected the trip retained after a failed remote commit")
	}
	if rec.Status != domain.TripStatusCompleted {
		t.Errorf("expected the retained trip at completed, got %s", rec.Status)
	}

	// Connectivity comes back; the retry commits without re-transitioning.
	f.repo.CompleteTripErr = nil
	invoice, err := f.service.Finish(ctx, 4.0)
	if err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if invoice.Billing.TotalCost != rec.Billing.TotalCost {
		t.Errorf("expected the retry to bill %v, got %v", rec.Billing.TotalCost, invoice.Billing.TotalCost)
	}
	if f.trips.GetTrip() != nil {
		t.Error("expected the trip cleared after the successful retry")
	}
}

func TestFinish_NoActiveTrip(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	_, err := f.service.Finish(context.Background(), 5.0)
	if !errors.Is(err, store.ErrNoActiveTrip) {
		t.Fatalf("expected ErrNoActiveTrip, got %v", err)
	}
}

func TestFinish_CompleteTripIsIdempotentRemotely(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	driveToInProgress(t, f)
	wantTotal := f.trips.GetTrip().Billing.TotalCost

	if _, err := f.service.Finish(ctx, 5.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A duplicated completion (say a retried request) must not change the
	// already-committed row.
	if err := f.repo.CompleteTrip(ctx, "order-1", 999.0, 1.0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row := f.repo.Row("order-1"); row.TotalCost != wantTotal {
		t.Errorf("expected the committed total %v untouched, got %v", wantTotal, row.TotalCost)
	}
}

func TestCancel_QueuesCancellationForSync(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	ctx := context.Background()
	f.accept(t)

	rec, err := f.service.ChangeStatus(ctx, domain.TripStatusCancelled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != domain.TripStatusCancelled {
		t.Errorf("expected the trip at cancelled, got %s", rec.Status)
	}
	if f.trips.GetTrip() != nil {
		t.Error("expected the trip cleared after cancellation")
	}

	// Cancellation has no billing finalization: it reaches the remote store
	// through the ordinary sync queue.
	order, err := f.orders.GetOrder(ctx, "order-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.TripStatusCancelled {
		t.Errorf("expected the order at cancelled, got %s", order.Status)
	}
	if order.SyncStatus != domain.SyncStatusPending {
		t.Errorf("expected the cancellation pending sync, got %s", order.SyncStatus)
	}
	if !f.storage.QueueContains("order-1") {
		t.Error("expected the cancelled order queued for sync")
	}
	if f.repo.CompleteTripCallCount != 0 {
		t.Errorf("expected no remote completion on cancel, called %d times", f.repo.CompleteTripCallCount)
	}
}
