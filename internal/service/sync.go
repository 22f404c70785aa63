package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"tripsync/internal/domain"
	"tripsync/internal/repository"
	"tripsync/internal/store"
)

// SyncReport summarizes one sweep of the sync queue.
type SyncReport struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// SyncService replays locally-made order mutations against the remote store
// when connectivity allows. Failures are never dropped: a failed order stays
// queued with its pending updates intact until a later sweep succeeds.
type SyncService struct {
	orders   *store.OrderStore
	repo     repository.OrderRepository
	interval time.Duration
}

// NewSyncService creates a new SyncService. The interval drives the coarse
// background sweep; callers can additionally trigger SyncAll on
// connectivity-regained events.
func NewSyncService(orders *store.OrderStore, repo repository.OrderRepository, interval time.Duration) *SyncService {
	return &SyncService{orders: orders, repo: repo, interval: interval}
}

// SyncOne pushes one order's synchronizable fields to the remote store as a
// single update. On success the journal is cleared; on failure the order is
// marked failed and kept queued for retry.
func (s *SyncService) SyncOne(ctx context.Context, id string) error {
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			// Order deleted locally after being queued; drop the entry.
			return s.orders.MarkSynced(ctx, id)
		}
		return err
	}
	if order.SyncStatus == domain.SyncStatusSynced {
		return s.orders.MarkSynced(ctx, id)
	}

	fields := map[string]any{
		"status":       string(order.Status),
		"distance_km":  order.DistanceKm,
		"duration_min": order.DurationMin,
		"price":        order.Price,
	}
	if !order.CompletedAt.IsZero() {
		fields["completed_at"] = order.CompletedAt
	}

	if err := s.repo.WriteOrder(ctx, id, fields); err != nil {
		if markErr := s.orders.MarkFailed(ctx, id); markErr != nil {
			log.Printf("[SYNC] marking order %s failed: %v", id, markErr)
		}
		return fmt.Errorf("%w: order %s: %v", ErrSyncFailure, id, err)
	}

	return s.orders.MarkSynced(ctx, id)
}

// SyncAll sweeps the queue sequentially, best-effort. It is safe to invoke
// repeatedly and concurrently with new local mutations: queue membership is
// idempotent and each order is re-read under its own lock.
func (s *SyncService) SyncAll(ctx context.Context) (SyncReport, error) {
	ids, err := s.orders.PendingIDs(ctx)
	if err != nil {
		return SyncReport{}, err
	}

	var report SyncReport
	for _, id := range ids {
		if err := s.SyncOne(ctx, id); err != nil {
			report.Failed++
			log.Printf("[SYNC] %v", err)
			continue
		}
		report.Success++
	}
	return report, nil
}

// Run sweeps the queue on the configured interval until the context is
// cancelled.
func (s *SyncService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := s.SyncAll(ctx)
			if err != nil {
				log.Printf("[SYNC] sweep failed: %v", err)
				continue
			}
			if report.Success > 0 || report.Failed > 0 {
				log.Printf("[SYNC] sweep: %d synced, %d failed", report.Success, report.Failed)
			}
		}
	}
}
