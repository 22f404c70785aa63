package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tripsync/internal/domain"
	"tripsync/internal/repository"
	"tripsync/internal/store"
)

// FinishCoordinator orchestrates the terminal transitions: the best-effort
// host-bridge notification, the durable remote commit of the final cost, and
// the local cleanup that must only happen after that commit succeeds.
type FinishCoordinator struct {
	trips  *store.TripStore
	orders *store.OrderStore
	repo   repository.OrderRepository
	bridge HostBridge
}

// NewFinishCoordinator creates a new FinishCoordinator.
func NewFinishCoordinator(
	trips *store.TripStore,
	orders *store.OrderStore,
	repo repository.OrderRepository,
	bridge HostBridge,
) *FinishCoordinator {
	return &FinishCoordinator{trips: trips, orders: orders, repo: repo, bridge: bridge}
}

// Finish commits a completed trip. The bridge notification is fire-and-forget;
// the remote commit is not: its failure propagates as ErrFinishFailed and the
// local trip is deliberately retained so the whole call can be retried.
func (c *FinishCoordinator) Finish(ctx context.Context, rec *domain.TripRecord, rating float64) (*domain.Invoice, error) {
	if c.bridge != nil {
		_ = c.bridge.Notify(ctx, BridgeTripCompleted, map[string]any{
			"trip_id":    rec.TripID,
			"order_id":   rec.OrderID,
			"total_cost": rec.Billing.TotalCost,
		})
		_ = c.bridge.Notify(ctx, BridgeRouteTrackingStop, map[string]any{"trip_id": rec.TripID})
	}

	if err := c.repo.CompleteTrip(ctx, rec.OrderID, rec.Billing.TotalCost, rating); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFinishFailed, err)
	}

	// The remote row already carries the final state; record it locally as
	// confirmed rather than re-queueing it for sync.
	c.settleOrder(ctx, rec.OrderID, domain.TripStatusCompleted, rec)

	if err := c.trips.ClearTrip(ctx); err != nil {
		return nil, err
	}

	return &domain.Invoice{
		TripID:      rec.TripID,
		OrderID:     rec.OrderID,
		Billing:     rec.Billing,
		Rating:      rating,
		CompletedAt: rec.CompletedAt,
	}, nil
}

// Cancel cleans up a cancelled trip. There is no billing finalization; the
// cancellation reaches the remote store through the sync queue.
func (c *FinishCoordinator) Cancel(ctx context.Context, rec *domain.TripRecord) error {
	if c.bridge != nil {
		_ = c.bridge.Notify(ctx, BridgeTripCancelled, map[string]any{
			"trip_id":  rec.TripID,
			"order_id": rec.OrderID,
		})
		_ = c.bridge.Notify(ctx, BridgeRouteTrackingStop, map[string]any{"trip_id": rec.TripID})
	}

	if _, err := c.orders.UpdateOrder(ctx, rec.OrderID, map[string]any{
		"status": domain.TripStatusCancelled,
	}); err != nil && !errors.Is(err, store.ErrOrderNotFound) {
		return err
	}

	return c.trips.ClearTrip(ctx)
}

// settleOrder writes the confirmed terminal state into the local cache.
func (c *FinishCoordinator) settleOrder(ctx context.Context, orderID string, status domain.TripStatus, rec *domain.TripRecord) {
	order, err := c.orders.GetOrder(ctx, orderID)
	if err != nil {
		if !errors.Is(err, store.ErrOrderNotFound) {
			log.Printf("[FINISH] loading order %s: %v", orderID, err)
		}
		return
	}

	order.Status = status
	order.Price = rec.Billing.TotalCost
	order.DistanceKm = rec.Metrics.TripDistanceKm
	order.DurationMin = rec.Metrics.TripDurationMin
	if order.CompletedAt.IsZero() {
		order.CompletedAt = rec.CompletedAt
	}
	order.SyncStatus = domain.SyncStatusSynced
	order.PendingUpdates = nil

	if err := c.orders.SaveOrder(ctx, order); err != nil {
		log.Printf("[FINISH] settling order %s: %v", orderID, err)
	}
}
