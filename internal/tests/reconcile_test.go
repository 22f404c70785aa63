package tests

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"tripsync/internal/domain"
	"tripsync/internal/service"
	"tripsync/internal/store"
)

// ──────────────────────────────────────────────
// 5. RECONCILIATION EDGE CASES
// ──────────────────────────────────────────────

// fakeStream is a test implementation of service.EventStream.
type fakeStream struct {
	ch chan domain.SyncEvent

	mu     sync.Mutex
	closed bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{ch: make(chan domain.SyncEvent, 16)}
}

func (s *fakeStream) Events() <-chan domain.SyncEvent { return s.ch }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// fakeSource is a test implementation of service.EventSource.
type fakeSource struct {
	mu             sync.Mutex
	streams        map[string]*fakeStream
	SubscribeCount int
}

func newFakeSource() *fakeSource {
	return &fakeSource{streams: make(map[string]*fakeStream)}
}

func (s *fakeSource) Subscribe(ctx context.Context, tripID string) (service.EventStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream := newFakeStream()
	s.streams[tripID] = stream
	s.SubscribeCount++
	return stream, nil
}

func (s *fakeSource) Stream(tripID string) *fakeStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams[tripID]
}

func newReconciler(t *testing.T, f *serviceFixture, grace time.Duration) *service.Reconciler {
	t.Helper()
	return service.NewReconciler(f.service, f.trips, f.repo, nil, nil, time.Hour, grace)
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func statusEvent(tripID string, status domain.TripStatus) domain.SyncEvent {
	return domain.SyncEvent{
		ID:        "ev-" + string(status),
		TripID:    tripID,
		Kind:      domain.EventStatusUpdate,
		NewStatus: status,
		SentAt:    time.Now(),
	}
}

func TestReconcile_OutOfOrderStatusEvents(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	r := newReconciler(t, f, time.Hour)
	ctx := context.Background()
	f.accept(t)

	// in_progress arrives before waiting: parked, not applied, not dropped.
	r.Apply(ctx, statusEvent("trip-1", domain.TripStatusInProgress))
	if got := f.trips.GetTrip().Status; got != domain.TripStatusOnWay {
		t.Fatalf("expected the premature event to be parked, trip moved to %s", got)
	}

	// The missing predecessor arrives; both steps are now applied in order.
	r.Apply(ctx, statusEvent("trip-1", domain.TripStatusWaiting))
	if got := f.trips.GetTrip().Status; got != domain.TripStatusInProgress {
		t.Fatalf("expected the parked event applied after its predecessor, got %s", got)
	}

	// Both arrived from the network: the mirror is confirmed state, never
	// re-queued for sync.
	if f.storage.QueueContains("order-1") {
		t.Error("expected remote transitions to bypass the sync queue")
	}
}

func TestReconcile_DuplicateStatusEventIsNoop(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	r := newReconciler(t, f, time.Hour)
	ctx := context.Background()
	f.accept(t)

	r.Apply(ctx, statusEvent("trip-1", domain.TripStatusWaiting))
	before := f.trips.GetTrip()

	r.Apply(ctx, statusEvent("trip-1", domain.TripStatusWaiting))
	after := f.trips.GetTrip()

	if !reflect.DeepEqual(before, after) {
		t.Errorf("duplicate event changed the record:\nbefore: %+v\nafter:  %+v", before, after)
	}
}

func TestReconcile_DuplicateMetricsEventIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	r := newReconciler(t, f, time.Hour)
	ctx := context.Background()
	f.accept(t)

	ev := domain.SyncEvent{
		TripID: "trip-1",
		Kind:   domain.EventMetricsUpdate,
		Metrics: &domain.TripMetrics{
			OnWayDistanceKm: 3.0,
			TripDistanceKm:  7.5,
			TripDurationMin: 14.0,
		},
	}

	r.Apply(ctx, ev)
	first := f.trips.GetTrip()
	r.Apply(ctx, ev)
	second := f.trips.GetTrip()

	if !reflect.DeepEqual(first, second) {
		t.Errorf("replayed metrics event changed the record:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if first.Metrics.TripDistanceKm != 7.5 {
		t.Errorf("expected trip distance 7.5, got %v", first.Metrics.TripDistanceKm)
	}
}

func TestReconcile_EventForOtherTripDropped(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	r := newReconciler(t, f, time.Hour)
	ctx := context.Background()
	f.accept(t)

	before := f.trips.GetTrip()
	r.Apply(ctx, statusEvent("trip-other", domain.TripStatusWaiting))

	if after := f.trips.GetTrip(); !reflect.DeepEqual(before, after) {
		t.Error("expected an event for another trip to be dropped")
	}
}

func TestReconcile_EventAfterClearIsNoop(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	r := newReconciler(t, f, time.Hour)
	ctx := context.Background()

	// No trip at all; a late event must not panic or resurrect state.
	r.Apply(ctx, statusEvent("trip-1", domain.TripStatusWaiting))
	if f.trips.GetTrip() != nil {
		t.Error("expected no trip after a late event")
	}
}

func TestReconcile_TerminalEventClearsAfterGrace(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	r := newReconciler(t, f, 30*time.Millisecond)
	ctx := context.Background()
	f.accept(t)

	r.Apply(ctx, statusEvent("trip-1", domain.TripStatusWaiting))
	r.Apply(ctx, statusEvent("trip-1", domain.TripStatusInProgress))
	r.Apply(ctx, domain.SyncEvent{TripID: "trip-1", Kind: domain.EventTripCompleted})

	// The terminal state lands immediately; the cleanup waits for the grace
	// period so the UI can show the final screen.
	rec := f.trips.GetTrip()
	if rec == nil || rec.Status != domain.TripStatusCompleted {
		t.Fatalf("expected the trip at completed before cleanup, got %+v", rec)
	}

	if !waitFor(t, 2*time.Second, func() bool { return f.trips.GetTrip() == nil }) {
		t.Fatal("expected the trip cleared after the grace period")
	}

	// The counterpart committed the remote row; the mirror is confirmed
	// state, not queued for sync.
	order, err := f.orders.GetOrder(ctx, "order-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.TripStatusCompleted {
		t.Errorf("expected the order mirrored at completed, got %s", order.Status)
	}
	if f.storage.QueueContains("order-1") {
		t.Error("expected the remotely-completed order to bypass the sync queue")
	}
}

func TestReconcile_PresencePollAdvancesThroughEveryGate(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	r := newReconciler(t, f, time.Hour)
	ctx := context.Background()
	f.accept(t)

	// The authoritative row is two steps ahead of local state.
	f.repo.SetRow(&domain.TripRow{
		OrderID: "order-1",
		Status:  domain.TripStatusInProgress,
		Metrics: domain.TripMetrics{OnWayDistanceKm: 4.0, TripDistanceKm: 2.0},
		Lat:     24.7,
		Lon:     46.6,
	})

	r.Apply(ctx, domain.SyncEvent{TripID: "trip-1", Kind: domain.EventPresence})

	rec := f.trips.GetTrip()
	if rec.Status != domain.TripStatusInProgress {
		t.Fatalf("expected the trip advanced to in_progress, got %s", rec.Status)
	}
	// Each gate was passed, so each timestamp was stamped.
	if rec.ArrivedAt.IsZero() || rec.StartedAt.IsZero() {
		t.Error("expected arrived_at and started_at stamped during the stepwise advance")
	}
	if rec.Metrics.OnWayDistanceKm != 4.0 || rec.Metrics.TripDistanceKm != 2.0 {
		t.Errorf("expected row metrics merged, got %+v", rec.Metrics)
	}
	if rec.Lat != 24.7 || rec.Lon != 46.6 {
		t.Errorf("expected row position merged, got (%v, %v)", rec.Lat, rec.Lon)
	}
}

func TestReconcile_PollNeverRewindsMetrics(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	r := newReconciler(t, f, time.Hour)
	ctx := context.Background()
	f.accept(t)

	// Local measurement is ahead of the last remote write.
	if _, err := f.service.ReportMetrics(ctx, store.WholesaleMetrics(domain.TripMetrics{TripDistanceKm: 9.0})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.repo.SetRow(&domain.TripRow{
		OrderID: "order-1",
		Status:  domain.TripStatusOnWay,
		Metrics: domain.TripMetrics{TripDistanceKm: 6.0},
	})

	r.Apply(ctx, domain.SyncEvent{TripID: "trip-1", Kind: domain.EventPresence})

	if got := f.trips.GetTrip().Metrics.TripDistanceKm; got != 9.0 {
		t.Errorf("expected the stale row value ignored, distance rewound to %v", got)
	}
}

func TestReconcile_RunFollowsTripLifecycle(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	source := newFakeSource()
	r := service.NewReconciler(f.service, f.trips, f.repo, source, nil, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	f.accept(t)

	// The subscription follows the trip becoming active.
	if !waitFor(t, 3*time.Second, func() bool { return source.Stream("trip-1") != nil }) {
		t.Fatal("expected a subscription on the active trip's topic")
	}

	// An event delivered on the topic reaches local state.
	source.Stream("trip-1").ch <- statusEvent("trip-1", domain.TripStatusWaiting)
	if !waitFor(t, 3*time.Second, func() bool {
		rec := f.trips.GetTrip()
		return rec != nil && rec.Status == domain.TripStatusWaiting
	}) {
		t.Fatal("expected the broadcast event applied to local state")
	}
}
