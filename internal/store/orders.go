package store

import (
	"context"
	"log"
	"sort"
	"time"

	"tripsync/internal/domain"
)

const (
	orderLockTTL      = 5 * time.Second
	orderLockAttempts = 20
	orderLockBackoff  = 50 * time.Millisecond
)

// OrderStore is the durable cache of every order the client has touched,
// plus the queue of orders whose local mutations still await a remote
// commit. Concurrent updates to the same order are serialized by a per-order
// lock; updates to different orders do not block each other.
type OrderStore struct {
	storage OrderStorage
}

// NewOrderStore creates an OrderStore on the given backing storage.
func NewOrderStore(storage OrderStorage) *OrderStore {
	return &OrderStore{storage: storage}
}

// SaveOrder persists an order first fetched or placed. A freshly saved order
// is considered synced; a non-terminal order becomes the active order.
func (s *OrderStore) SaveOrder(ctx context.Context, order *domain.LocalOrder) error {
	o := *order
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.LastModified = now
	if o.SyncStatus == "" {
		o.SyncStatus = domain.SyncStatusSynced
	}

	if err := s.storage.SaveOrder(ctx, &o); err != nil {
		return err
	}
	if !o.Status.IsTerminal() {
		return s.storage.SetActiveOrderID(ctx, o.ID)
	}
	return nil
}

// UpdateOrder journals every changed field, applies the change locally
// (optimistic), marks the order pending and enqueues it for sync.
func (s *OrderStore) UpdateOrder(ctx context.Context, id string, fields map[string]any) (*domain.LocalOrder, error) {
	if err := s.lockOrder(ctx, id); err != nil {
		return nil, err
	}
	defer func() { _ = s.storage.ReleaseOrderLock(ctx, id) }()

	order, err := s.storage.LoadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	now := time.Now()
	for _, field := range sortedKeys(fields) {
		value := fields[field]
		order.PendingUpdates = append(order.PendingUpdates, domain.FieldUpdate{
			Field:     field,
			Value:     value,
			Timestamp: now,
		})
		applyOrderField(order, field, value)
	}
	order.SyncStatus = domain.SyncStatusPending
	order.LastModified = now

	if err := s.storage.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	if err := s.storage.EnqueueSync(ctx, id); err != nil {
		return nil, err
	}

	o := *order
	return &o, nil
}

// GetOrder retrieves an order from the local cache.
func (s *OrderStore) GetOrder(ctx context.Context, id string) (*domain.LocalOrder, error) {
	order, err := s.storage.LoadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetActiveOrder returns the order currently underway, or nil when there is
// none. A stored active order in a terminal state is stale (a finished order
// must not re-surface as in-progress after a restart): the pointer is
// cleared and nil is returned.
func (s *OrderStore) GetActiveOrder(ctx context.Context) (*domain.LocalOrder, error) {
	id, err := s.storage.ActiveOrderID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}

	order, err := s.storage.LoadOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil || order.Status.IsTerminal() {
		if order != nil {
			log.Printf("[ORDERS] stale active order %s (%s), clearing pointer", id, order.Status)
		}
		if err := s.storage.ClearActiveOrderID(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return order, nil
}

// ListOrders returns every cached order, newest first.
func (s *OrderStore) ListOrders(ctx context.Context) ([]*domain.LocalOrder, error) {
	ids, err := s.storage.OrderIDs(ctx)
	if err != nil {
		return nil, err
	}

	orders := make([]*domain.LocalOrder, 0, len(ids))
	for _, id := range ids {
		order, err := s.storage.LoadOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if order != nil {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].LastModified.After(orders[j].LastModified)
	})
	return orders, nil
}

// PendingIDs returns the ids queued for sync.
func (s *OrderStore) PendingIDs(ctx context.Context) ([]string, error) {
	return s.storage.SyncQueue(ctx)
}

// MarkSynced records a confirmed remote push: the journal is cleared and the
// queue entry removed.
func (s *OrderStore) MarkSynced(ctx context.Context, id string) error {
	if err := s.lockOrder(ctx, id); err != nil {
		return err
	}
	defer func() { _ = s.storage.ReleaseOrderLock(ctx, id) }()

	order, err := s.storage.LoadOrder(ctx, id)
	if err != nil {
		return err
	}
	if order == nil {
		// Order deleted while the push was in flight; drop the queue entry.
		return s.storage.DequeueSync(ctx, id)
	}

	order.SyncStatus = domain.SyncStatusSynced
	order.PendingUpdates = nil
	if err := s.storage.SaveOrder(ctx, order); err != nil {
		return err
	}
	return s.storage.DequeueSync(ctx, id)
}

// MarkFailed records a rejected or timed-out push. The journal and the queue
// entry stay intact so a later retry can pick the order up again.
func (s *OrderStore) MarkFailed(ctx context.Context, id string) error {
	if err := s.lockOrder(ctx, id); err != nil {
		return err
	}
	defer func() { _ = s.storage.ReleaseOrderLock(ctx, id) }()

	order, err := s.storage.LoadOrder(ctx, id)
	if err != nil {
		return err
	}
	if order == nil {
		return nil
	}
	order.SyncStatus = domain.SyncStatusFailed
	return s.storage.SaveOrder(ctx, order)
}

// DeleteOrder removes an order, its queue entry and, if it was the active
// order, the active pointer.
func (s *OrderStore) DeleteOrder(ctx context.Context, id string) error {
	if err := s.storage.DeleteOrder(ctx, id); err != nil {
		return err
	}
	if err := s.storage.DequeueSync(ctx, id); err != nil {
		return err
	}
	active, err := s.storage.ActiveOrderID(ctx)
	if err != nil {
		return err
	}
	if active == id {
		return s.storage.ClearActiveOrderID(ctx)
	}
	return nil
}

func (s *OrderStore) lockOrder(ctx context.Context, id string) error {
	for i := 0; i < orderLockAttempts; i++ {
		ok, err := s.storage.AcquireOrderLock(ctx, id, orderLockTTL)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(orderLockBackoff):
		}
	}
	return ErrOrderLocked
}

func applyOrderField(order *domain.LocalOrder, field string, value any) {
	switch field {
	case "status":
		switch v := value.(type) {
		case domain.TripStatus:
			order.Status = v
		case string:
			order.Status = domain.TripStatus(v)
		}
		if order.Status.IsTerminal() && order.CompletedAt.IsZero() {
			order.CompletedAt = time.Now()
		}
	case "distance_km":
		if v, ok := toFloat(value); ok {
			order.DistanceKm = v
		}
	case "duration_min":
		if v, ok := toFloat(value); ok {
			order.DurationMin = v
		}
	case "price":
		if v, ok := toFloat(value); ok {
			order.Price = v
		}
	default:
		if order.Payload == nil {
			order.Payload = make(map[string]any)
		}
		order.Payload[field] = value
	}
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
