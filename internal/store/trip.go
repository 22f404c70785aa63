package store

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripsync/internal/domain"
)

// TripStore holds the single active trip of a client. Every mutation is
// written through to durable storage before it returns, so the record
// survives the process being killed mid-trip.
type TripStore struct {
	mu      sync.Mutex
	storage TripStorage
	pub     EventPublisher // nil disables broadcasting
	pricing domain.PricingParams

	trip *domain.TripRecord
}

// NewTripStore creates a TripStore. Call Load to hydrate it from storage.
func NewTripStore(storage TripStorage, pub EventPublisher, pricing domain.PricingParams) *TripStore {
	return &TripStore{storage: storage, pub: pub, pricing: pricing}
}

// Load hydrates the in-memory record from durable storage, typically once at
// startup to resume a trip that was active when the process last exited.
func (s *TripStore) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.storage.LoadTrip(ctx)
	if err != nil {
		return err
	}
	s.trip = rec
	return nil
}

// GetTrip returns a snapshot of the active trip, or nil when none is active.
func (s *TripStore) GetTrip() *domain.TripRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// SetTrip installs a new active trip. Setting the same trip again is a no-op
// overwrite; setting a different trip while one is active fails with
// ErrTripAlreadyActive.
func (s *TripStore) SetTrip(ctx context.Context, rec *domain.TripRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.trip != nil && s.trip.TripID != rec.TripID {
		return ErrTripAlreadyActive
	}

	r := *rec
	if r.Status == "" {
		r.Status = domain.TripStatusOnWay
	}
	if r.AcceptedAt.IsZero() {
		r.AcceptedAt = time.Now()
	}
	r.Billing = domain.ComputeBilling(r.Metrics, r.FreeOnWayKm, r.FreeWaitingMin, s.pricing)

	if err := s.storage.SaveTrip(ctx, &r); err != nil {
		return err
	}
	s.trip = &r
	return nil
}

// MetricsUpdate carries new values for a subset of the five trip metrics.
// Values are wholesale replacements, not deltas.
type MetricsUpdate struct {
	OnWayDistanceKm    *float64 `json:"on_way_distance_km,omitempty"`
	OnWayDurationMin   *float64 `json:"on_way_duration_min,omitempty"`
	WaitingDurationMin *float64 `json:"waiting_duration_min,omitempty"`
	TripDistanceKm     *float64 `json:"trip_distance_km,omitempty"`
	TripDurationMin    *float64 `json:"trip_duration_min,omitempty"`
}

// WholesaleMetrics converts a full metrics snapshot into an update replacing
// all five fields, as carried by reconciliation events.
func WholesaleMetrics(m domain.TripMetrics) MetricsUpdate {
	return MetricsUpdate{
		OnWayDistanceKm:    &m.OnWayDistanceKm,
		OnWayDurationMin:   &m.OnWayDurationMin,
		WaitingDurationMin: &m.WaitingDurationMin,
		TripDistanceKm:     &m.TripDistanceKm,
		TripDurationMin:    &m.TripDurationMin,
	}
}

// UpdateMetrics applies the update, recomputes every billing field from the
// result and persists before returning. Metric fields never decrease, which
// makes replayed and reordered updates converge on the same final values.
// Each metric only accrues during its own phase: entering waiting freezes the
// on-way fields, entering in_progress freezes the waiting duration, and a
// terminal status freezes everything, so a late event for a passed phase
// cannot inflate its cost. With fromRemote set, the change is not rebroadcast
// (it arrived from the network) and an update for a cleared trip is dropped
// as a no-op.
func (s *TripStore) UpdateMetrics(ctx context.Context, u MetricsUpdate, fromRemote bool) (*domain.TripRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.trip == nil {
		if fromRemote {
			return nil, nil
		}
		return nil, ErrNoActiveTrip
	}
	if s.trip.Status.IsTerminal() {
		return s.snapshot(), nil
	}

	m := s.trip.Metrics
	if s.trip.Status == domain.TripStatusOnWay {
		raise(&m.OnWayDistanceKm, u.OnWayDistanceKm)
		raise(&m.OnWayDurationMin, u.OnWayDurationMin)
	}
	if s.trip.Status != domain.TripStatusInProgress {
		raise(&m.WaitingDurationMin, u.WaitingDurationMin)
	}
	raise(&m.TripDistanceKm, u.TripDistanceKm)
	raise(&m.TripDurationMin, u.TripDurationMin)

	r := *s.trip
	r.Metrics = m
	r.Billing = domain.ComputeBilling(m, r.FreeOnWayKm, r.FreeWaitingMin, s.pricing)

	if err := s.storage.SaveTrip(ctx, &r); err != nil {
		return nil, err
	}
	s.trip = &r

	if !fromRemote {
		s.broadcast(ctx, domain.SyncEvent{
			TripID:  r.TripID,
			Kind:    domain.EventMetricsUpdate,
			Metrics: &m,
		})
	}
	return s.snapshot(), nil
}

// UpdateLocation overwrites the last known position sample.
func (s *TripStore) UpdateLocation(ctx context.Context, lat, lon float64, fromRemote bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.trip == nil {
		if fromRemote {
			return nil
		}
		return ErrNoActiveTrip
	}

	r := *s.trip
	r.Lat, r.Lon = lat, lon

	if err := s.storage.SaveTrip(ctx, &r); err != nil {
		return err
	}
	s.trip = &r

	if !fromRemote {
		s.broadcast(ctx, domain.SyncEvent{
			TripID: r.TripID,
			Kind:   domain.EventLocationUpdate,
			Lat:    &lat,
			Lon:    &lon,
		})
	}
	return nil
}

// ChangeStatus moves the trip to the target status if that is the legal next
// step (or a permitted cancellation). An illegal target fails with
// ErrInvalidTransition and leaves the record untouched, which is what guards
// against duplicated or reordered transition messages re-applying a step.
func (s *TripStore) ChangeStatus(ctx context.Context, target domain.TripStatus, fromRemote bool) (*domain.TripRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.trip == nil {
		if fromRemote {
			return nil, nil
		}
		return nil, ErrNoActiveTrip
	}

	old := s.trip.Status
	if !domain.CanTransition(old, target) {
		return nil, ErrInvalidTransition
	}

	now := time.Now()
	r := *s.trip
	r.Status = target

	// Each transition timestamp is set exactly once.
	switch target {
	case domain.TripStatusWaiting:
		if r.ArrivedAt.IsZero() {
			r.ArrivedAt = now
		}
	case domain.TripStatusInProgress:
		if r.StartedAt.IsZero() {
			r.StartedAt = now
		}
	case domain.TripStatusCompleted, domain.TripStatusCancelled:
		if r.CompletedAt.IsZero() {
			r.CompletedAt = now
		}
	}

	r.Billing = domain.ComputeBilling(r.Metrics, r.FreeOnWayKm, r.FreeWaitingMin, s.pricing)

	if err := s.storage.SaveTrip(ctx, &r); err != nil {
		return nil, err
	}
	s.trip = &r

	if !fromRemote {
		kind := domain.EventStatusUpdate
		switch target {
		case domain.TripStatusCompleted:
			kind = domain.EventTripCompleted
		case domain.TripStatusCancelled:
			kind = domain.EventTripCancelled
		}
		s.broadcast(ctx, domain.SyncEvent{
			TripID:    r.TripID,
			Kind:      kind,
			OldStatus: old,
			NewStatus: target,
		})
	}
	return s.snapshot(), nil
}

// ClearTrip removes the active trip. It is idempotent: clearing an empty
// store is a no-op.
func (s *TripStore) ClearTrip(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.trip == nil {
		return nil
	}
	if err := s.storage.DeleteTrip(ctx); err != nil {
		return err
	}
	s.trip = nil
	return nil
}

// ActiveTripID returns the id of the active trip, or "" when none is active.
func (s *TripStore) ActiveTripID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trip == nil {
		return ""
	}
	return s.trip.TripID
}

func (s *TripStore) snapshot() *domain.TripRecord {
	if s.trip == nil {
		return nil
	}
	r := *s.trip
	return &r
}

// broadcast is best-effort: local mutation already happened and persisted,
// and the reconciliation backup channel covers a lost message.
func (s *TripStore) broadcast(ctx context.Context, ev domain.SyncEvent) {
	if s.pub == nil {
		return
	}
	ev.ID = uuid.New().String()
	ev.SentAt = time.Now()
	if err := s.pub.Publish(ctx, ev); err != nil {
		log.Printf("[TRIPSTORE] broadcast %s for trip %s failed: %v", ev.Kind, ev.TripID, err)
	}
}

func raise(dst *float64, v *float64) {
	if v != nil && *v > *dst {
		*dst = *v
	}
}
