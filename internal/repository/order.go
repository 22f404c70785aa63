package repository

import (
	"context"

	"tripsync/internal/domain"
)

// OrderRepository is the remote source of truth for orders. It may be stale
// relative to local state during a network partition; the sync queue and the
// reconciliation channel close that gap.
type OrderRepository interface {
	// ReadOrder retrieves the remote order row.
	ReadOrder(ctx context.Context, id string) (*domain.LocalOrder, error)

	// WriteOrder commits the given fields as a single update.
	WriteOrder(ctx context.Context, id string, fields map[string]any) error

	// ReadTripRow retrieves the authoritative trip view for reconciliation.
	ReadTripRow(ctx context.Context, orderID string) (*domain.TripRow, error)

	// CompleteTrip records the final cost and rating. It is idempotent under
	// retry: completing an already-terminal order succeeds without effect.
	CompleteTrip(ctx context.Context, orderID string, totalCost, rating float64) error
}
