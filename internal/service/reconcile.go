package service

import (
	"context"
	"errors"
	"log"
	"time"

	"tripsync/internal/domain"
	"tripsync/internal/repository"
	"tripsync/internal/store"
)

// EventStream is a live subscription on one trip's broadcast topic.
type EventStream interface {
	Events() <-chan domain.SyncEvent
	Close() error
}

// EventSource opens subscriptions on per-trip topics.
type EventSource interface {
	Subscribe(ctx context.Context, tripID string) (EventStream, error)
}

// Reconciler keeps this client eventually consistent with its counterpart.
// Two producers feed it: the broadcast subscription and the remote row feed
// (plus a coarse poller over the same row). Both converge on the single
// Apply path, so there is exactly one merge logic and it is idempotent.
type Reconciler struct {
	svc          *TripService
	trips        *store.TripStore
	repo         repository.OrderRepository
	source       EventSource
	rowIDs       <-chan string
	pollInterval time.Duration
	grace        time.Duration

	// deferred holds at most one status event that arrived ahead of its
	// predecessor; it is retried after the next successful apply.
	deferred *domain.SyncEvent

	cleanupFor string
}

// NewReconciler creates a Reconciler. source and rowIDs may be nil; the
// poller alone still converges, just more slowly.
func NewReconciler(
	svc *TripService,
	trips *store.TripStore,
	repo repository.OrderRepository,
	source EventSource,
	rowIDs <-chan string,
	pollInterval, grace time.Duration,
) *Reconciler {
	return &Reconciler{
		svc:          svc,
		trips:        trips,
		repo:         repo,
		source:       source,
		rowIDs:       rowIDs,
		pollInterval: pollInterval,
		grace:        grace,
	}
}

// Run consumes both producers until the context is cancelled. It follows the
// trip lifecycle: the subscription is opened when a trip becomes active and
// closed when it is cleared.
func (r *Reconciler) Run(ctx context.Context) {
	watch := time.NewTicker(time.Second)
	defer watch.Stop()

	poll := time.NewTicker(r.pollInterval)
	defer poll.Stop()

	var (
		sub     EventStream
		subTrip string
		events  <-chan domain.SyncEvent
	)
	closeSub := func() {
		if sub != nil {
			_ = sub.Close()
			sub, events, subTrip = nil, nil, ""
		}
	}
	defer closeSub()

	for {
		select {
		case <-ctx.Done():
			return

		case <-watch.C:
			active := r.trips.ActiveTripID()
			if active == subTrip {
				continue
			}
			closeSub()
			if active == "" || r.source == nil {
				continue
			}
			s, err := r.source.Subscribe(ctx, active)
			if err != nil {
				log.Printf("[RECONCILE] subscribing to trip %s: %v", active, err)
				continue
			}
			sub, events, subTrip = s, s.Events(), active

		case ev, ok := <-events:
			if !ok {
				closeSub()
				continue
			}
			r.Apply(ctx, ev)

		case id, ok := <-r.rowIDs:
			if !ok {
				r.rowIDs = nil
				continue
			}
			// An empty id marks a reconnect gap: notifications may have
			// been lost, so re-read the row unconditionally.
			rec := r.trips.GetTrip()
			if rec == nil {
				continue
			}
			if id == "" || id == rec.OrderID {
				r.pollRow(ctx)
			}

		case <-poll.C:
			r.pollRow(ctx)
		}
	}
}

// Apply merges one event into local state. Applying the same event twice
// produces the same state as applying it once.
func (r *Reconciler) Apply(ctx context.Context, ev domain.SyncEvent) {
	rec := r.trips.GetTrip()
	if rec == nil {
		// Trip already cleared; late events are no-ops, not errors.
		return
	}
	if ev.TripID != "" && ev.TripID != rec.TripID {
		log.Printf("[RECONCILE] dropping %s for unknown trip %s", ev.Kind, ev.TripID)
		return
	}

	switch ev.Kind {
	case domain.EventMetricsUpdate:
		if ev.Metrics == nil {
			log.Printf("[RECONCILE] dropping metrics event without metrics")
			return
		}
		if _, err := r.trips.UpdateMetrics(ctx, store.WholesaleMetrics(*ev.Metrics), true); err != nil {
			log.Printf("[RECONCILE] applying metrics: %v", err)
			return
		}
		r.retryDeferred(ctx)

	case domain.EventLocationUpdate:
		if ev.Lat == nil || ev.Lon == nil {
			log.Printf("[RECONCILE] dropping location event without coordinates")
			return
		}
		if err := r.trips.UpdateLocation(ctx, *ev.Lat, *ev.Lon, true); err != nil {
			log.Printf("[RECONCILE] applying location: %v", err)
			return
		}
		r.retryDeferred(ctx)

	case domain.EventStatusUpdate:
		r.applyStatus(ctx, ev)

	case domain.EventTripCompleted:
		ev.NewStatus = domain.TripStatusCompleted
		r.applyStatus(ctx, ev)
		r.scheduleCleanup(domain.TripStatusCompleted)

	case domain.EventTripCancelled:
		ev.NewStatus = domain.TripStatusCancelled
		r.applyStatus(ctx, ev)
		r.scheduleCleanup(domain.TripStatusCancelled)

	case domain.EventPresence:
		// Counterpart reconnected; its broadcast may have dropped messages
		// while it was away, so re-derive from the authoritative row.
		log.Printf("[RECONCILE] presence signal on trip %s", rec.TripID)
		r.pollRow(ctx)

	default:
		log.Printf("[RECONCILE] dropping event of unknown kind %q", ev.Kind)
	}
}

// applyStatus feeds the target state through the transition gate. A status
// that is not yet legal (reordered delivery) is parked and retried after the
// next successful apply; a duplicate of the current status is dropped.
func (r *Reconciler) applyStatus(ctx context.Context, ev domain.SyncEvent) {
	rec := r.trips.GetTrip()
	if rec == nil || rec.Status == ev.NewStatus {
		return
	}

	err := r.svc.ApplyRemoteStatus(ctx, ev.NewStatus)
	switch {
	case errors.Is(err, store.ErrInvalidTransition):
		e := ev
		r.deferred = &e
		log.Printf("[RECONCILE] status %s not yet legal from %s, parked", ev.NewStatus, rec.Status)
	case err != nil:
		log.Printf("[RECONCILE] applying status %s: %v", ev.NewStatus, err)
	default:
		r.retryDeferred(ctx)
	}
}

func (r *Reconciler) retryDeferred(ctx context.Context) {
	if r.deferred == nil {
		return
	}
	d := *r.deferred
	r.deferred = nil

	rec := r.trips.GetTrip()
	if rec == nil || rec.Status == d.NewStatus {
		return
	}
	if err := r.svc.ApplyRemoteStatus(ctx, d.NewStatus); errors.Is(err, store.ErrInvalidTransition) {
		r.deferred = &d
	}
}

// pollRow re-derives status, metrics and location from the authoritative
// remote row and applies them through the same idempotent update path as
// broadcast events.
func (r *Reconciler) pollRow(ctx context.Context) {
	rec := r.trips.GetTrip()
	if rec == nil {
		return
	}

	row, err := r.repo.ReadTripRow(ctx, rec.OrderID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Printf("[RECONCILE] reading trip row %s: %v", rec.OrderID, err)
		}
		return
	}

	if _, err := r.trips.UpdateMetrics(ctx, store.WholesaleMetrics(row.Metrics), true); err != nil {
		log.Printf("[RECONCILE] applying row metrics: %v", err)
	}
	if row.Lat != 0 || row.Lon != 0 {
		if err := r.trips.UpdateLocation(ctx, row.Lat, row.Lon, true); err != nil {
			log.Printf("[RECONCILE] applying row location: %v", err)
		}
	}
	r.advanceTo(ctx, row.Status)
}

// advanceTo walks the status chain stepwise toward the authoritative state,
// so a row that is several steps ahead still passes through every gate.
func (r *Reconciler) advanceTo(ctx context.Context, target domain.TripStatus) {
	for {
		rec := r.trips.GetTrip()
		if rec == nil || rec.Status == target || rec.Status.IsTerminal() {
			return
		}

		step := target
		if target != domain.TripStatusCancelled {
			next, ok := domain.NextStatus(rec.Status)
			if !ok {
				return
			}
			step = next
		}

		if err := r.svc.ApplyRemoteStatus(ctx, step); err != nil {
			if !errors.Is(err, store.ErrInvalidTransition) {
				log.Printf("[RECONCILE] advancing to %s: %v", step, err)
			}
			return
		}
		if step.IsTerminal() {
			r.scheduleCleanup(step)
			return
		}
	}
}

// scheduleCleanup clears local state after a short grace period so the UI
// can render a final message first.
func (r *Reconciler) scheduleCleanup(status domain.TripStatus) {
	rec := r.trips.GetTrip()
	if rec == nil || r.cleanupFor == rec.TripID {
		return
	}
	r.cleanupFor = rec.TripID

	final := *rec
	time.AfterFunc(r.grace, func() {
		if err := r.svc.FinalizeRemote(context.Background(), &final, status); err != nil {
			log.Printf("[RECONCILE] finalizing trip %s: %v", final.TripID, err)
		}
	})
}
