package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"tripsync/internal/domain"
	"tripsync/internal/store"
)

// TripService is the transition gate in front of the local trip store: it
// validates status changes, applies their side effects, mirrors the order
// cache and notifies the host bridge.
type TripService struct {
	trips    *store.TripStore
	orders   *store.OrderStore
	finisher *FinishCoordinator
	bridge   HostBridge
}

// NewTripService creates a new TripService.
func NewTripService(
	trips *store.TripStore,
	orders *store.OrderStore,
	finisher *FinishCoordinator,
	bridge HostBridge,
) *TripService {
	return &TripService{trips: trips, orders: orders, finisher: finisher, bridge: bridge}
}

// AcceptTripRequest contains the parameters for starting a trip.
type AcceptTripRequest struct {
	TripID         string
	OrderID        string
	Counterpart    domain.Counterpart
	FreeOnWayKm    float64
	FreeWaitingMin float64
	Payload        map[string]any
}

// Accept installs a new active trip and its underlying order.
func (s *TripService) Accept(ctx context.Context, req AcceptTripRequest) (*domain.TripRecord, error) {
	if req.OrderID == "" {
		return nil, ErrInvalidOrderID
	}
	if req.TripID == "" {
		req.TripID = uuid.New().String()
	}

	rec := &domain.TripRecord{
		TripID:         req.TripID,
		OrderID:        req.OrderID,
		Counterpart:    req.Counterpart,
		Status:         domain.TripStatusOnWay,
		FreeOnWayKm:    req.FreeOnWayKm,
		FreeWaitingMin: req.FreeWaitingMin,
	}
	if err := s.trips.SetTrip(ctx, rec); err != nil {
		return nil, err
	}

	if err := s.orders.SaveOrder(ctx, &domain.LocalOrder{
		ID:      req.OrderID,
		Status:  domain.TripStatusOnWay,
		Payload: req.Payload,
	}); err != nil {
		return nil, err
	}

	if s.bridge != nil {
		_ = s.bridge.Notify(ctx, BridgeTripAccepted, map[string]any{
			"trip_id":  req.TripID,
			"order_id": req.OrderID,
		})
		_ = s.bridge.Notify(ctx, BridgeRouteTrackingStart, map[string]any{"trip_id": req.TripID})
	}

	return s.trips.GetTrip(), nil
}

// Snapshot returns the current trip record, or nil when none is active.
func (s *TripService) Snapshot() *domain.TripRecord {
	return s.trips.GetTrip()
}

// ReportMetrics applies locally-measured metric values.
func (s *TripService) ReportMetrics(ctx context.Context, u store.MetricsUpdate) (*domain.TripRecord, error) {
	return s.trips.UpdateMetrics(ctx, u, false)
}

// ReportLocation applies a locally-measured position sample.
func (s *TripService) ReportLocation(ctx context.Context, lat, lon float64) error {
	return s.trips.UpdateLocation(ctx, lat, lon, false)
}

// ChangeStatus advances the trip to the target status on behalf of the local
// UI. Entering completed hands off to the finish coordinator; entering
// cancelled triggers cleanup without billing finalization.
func (s *TripService) ChangeStatus(ctx context.Context, target domain.TripStatus) (*domain.TripRecord, error) {
	if !knownStatus(target) {
		return nil, ErrInvalidStatus
	}

	rec, err := s.transition(ctx, target, false)
	if err != nil {
		return nil, err
	}

	switch target {
	case domain.TripStatusCompleted:
		if _, err := s.finisher.Finish(ctx, rec, 0); err != nil {
			// Local state is retained; the caller retries via Finish.
			return rec, err
		}
	case domain.TripStatusCancelled:
		if err := s.finisher.Cancel(ctx, rec); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// Finish completes the trip with a rating and surfaces the invoice. If the
// trip already reached completed locally but the remote commit failed, the
// call retries just the commit.
func (s *TripService) Finish(ctx context.Context, rating float64) (*domain.Invoice, error) {
	rec := s.trips.GetTrip()
	if rec == nil {
		return nil, store.ErrNoActiveTrip
	}

	if rec.Status != domain.TripStatusCompleted {
		var err error
		rec, err = s.transition(ctx, domain.TripStatusCompleted, false)
		if err != nil {
			return nil, err
		}
	}

	return s.finisher.Finish(ctx, rec, rating)
}

// ApplyRemoteStatus feeds a status event from the reconciliation channel
// through the same transition gate. An event for a cleared trip is a no-op.
func (s *TripService) ApplyRemoteStatus(ctx context.Context, target domain.TripStatus) error {
	if !knownStatus(target) {
		return ErrInvalidStatus
	}
	rec, err := s.transition(ctx, target, true)
	if err != nil || rec == nil {
		return err
	}
	return nil
}

// FinalizeRemote clears local state after a remotely-terminated trip's grace
// period. The origin client already committed the remote row, so the local
// order is only mirrored, never re-queued.
func (s *TripService) FinalizeRemote(ctx context.Context, rec *domain.TripRecord, status domain.TripStatus) error {
	s.mirrorOrder(ctx, rec.OrderID, status, rec)
	if s.bridge != nil {
		_ = s.bridge.Notify(ctx, BridgeRouteTrackingStop, map[string]any{"trip_id": rec.TripID})
	}
	return s.trips.ClearTrip(ctx)
}

// transition applies the status change and its non-terminal side effects.
func (s *TripService) transition(ctx context.Context, target domain.TripStatus, fromRemote bool) (*domain.TripRecord, error) {
	rec, err := s.trips.ChangeStatus(ctx, target, fromRemote)
	if err != nil || rec == nil {
		return rec, err
	}

	if !fromRemote && !target.IsTerminal() {
		// Mirror the order optimistically and queue it for sync.
		if _, err := s.orders.UpdateOrder(ctx, rec.OrderID, map[string]any{
			"status": target,
		}); err != nil && !errors.Is(err, store.ErrOrderNotFound) {
			log.Printf("[TRIP] mirroring order %s: %v", rec.OrderID, err)
		}
	}
	if fromRemote && !target.IsTerminal() {
		s.mirrorOrder(ctx, rec.OrderID, target, rec)
	}

	if s.bridge != nil {
		_ = s.bridge.Notify(ctx, BridgeStatusChanged, map[string]any{
			"trip_id": rec.TripID,
			"status":  string(target),
		})
		switch target {
		case domain.TripStatusWaiting:
			_ = s.bridge.Notify(ctx, BridgeRouteTrackingPause, map[string]any{"trip_id": rec.TripID})
		case domain.TripStatusInProgress:
			_ = s.bridge.Notify(ctx, BridgeRouteTrackingStart, map[string]any{"trip_id": rec.TripID})
		}
	}
	return rec, nil
}

// mirrorOrder records an already-confirmed remote state locally without
// touching the sync queue.
func (s *TripService) mirrorOrder(ctx context.Context, orderID string, status domain.TripStatus, rec *domain.TripRecord) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		if !errors.Is(err, store.ErrOrderNotFound) {
			log.Printf("[TRIP] loading order %s: %v", orderID, err)
		}
		return
	}

	order.Status = status
	if status.IsTerminal() {
		order.Price = rec.Billing.TotalCost
		if order.CompletedAt.IsZero() {
			if !rec.CompletedAt.IsZero() {
				order.CompletedAt = rec.CompletedAt
			} else {
				order.CompletedAt = time.Now()
			}
		}
	}
	if err := s.orders.SaveOrder(ctx, order); err != nil {
		log.Printf("[TRIP] mirroring order %s: %v", orderID, err)
	}
}

func knownStatus(s domain.TripStatus) bool {
	switch s {
	case domain.TripStatusOnWay, domain.TripStatusWaiting, domain.TripStatusInProgress,
		domain.TripStatusCompleted, domain.TripStatusCancelled:
		return true
	}
	return false
}
