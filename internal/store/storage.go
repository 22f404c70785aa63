package store

import (
	"context"
	"time"

	"tripsync/internal/domain"
)

// TripStorage is the durable backing for the single active trip. Loads
// return (nil, nil) when no trip is stored.
type TripStorage interface {
	LoadTrip(ctx context.Context) (*domain.TripRecord, error)
	SaveTrip(ctx context.Context, rec *domain.TripRecord) error
	DeleteTrip(ctx context.Context) error
}

// OrderStorage is the durable backing for the order cache, the active-order
// pointer and the sync queue. Queue membership has set semantics: enqueueing
// an id that is already queued does not duplicate it.
type OrderStorage interface {
	LoadOrder(ctx context.Context, id string) (*domain.LocalOrder, error)
	SaveOrder(ctx context.Context, order *domain.LocalOrder) error
	DeleteOrder(ctx context.Context, id string) error
	OrderIDs(ctx context.Context) ([]string, error)

	ActiveOrderID(ctx context.Context) (string, error)
	SetActiveOrderID(ctx context.Context, id string) error
	ClearActiveOrderID(ctx context.Context) error

	EnqueueSync(ctx context.Context, id string) error
	DequeueSync(ctx context.Context, id string) error
	SyncQueue(ctx context.Context) ([]string, error)

	AcquireOrderLock(ctx context.Context, id string, ttl time.Duration) (bool, error)
	ReleaseOrderLock(ctx context.Context, id string) error
}

// EventPublisher broadcasts a trip event to the counterpart client.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.SyncEvent) error
}
