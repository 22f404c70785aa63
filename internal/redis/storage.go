package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tripsync/internal/domain"
	"tripsync/internal/store"
)

// TripStorage persists the single active trip as a JSON value. Writes are
// synchronous: a mutation is durable in redis before the store call returns.
type TripStorage struct {
	client   *redis.Client
	clientID string
}

// NewTripStorage creates trip storage namespaced to one client.
func NewTripStorage(client *redis.Client, clientID string) *TripStorage {
	return &TripStorage{client: client, clientID: clientID}
}

func (s *TripStorage) tripKey() string {
	return fmt.Sprintf("client:%s:active_trip", s.clientID)
}

// LoadTrip reads the stored trip. Returns (nil, nil) when none is stored.
func (s *TripStorage) LoadTrip(ctx context.Context) (*domain.TripRecord, error) {
	data, err := s.client.Get(ctx, s.tripKey()).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var rec domain.TripRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveTrip writes the trip record. No TTL: the record lives until ClearTrip.
func (s *TripStorage) SaveTrip(ctx context.Context, rec *domain.TripRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.tripKey(), data, 0).Err()
}

// DeleteTrip removes the stored trip.
func (s *TripStorage) DeleteTrip(ctx context.Context) error {
	return s.client.Del(ctx, s.tripKey()).Err()
}

// OrderStorage persists the order cache, the active-order pointer and the
// sync queue. The queue is a redis set, so enqueueing an already-queued id
// is a no-op.
type OrderStorage struct {
	client   *redis.Client
	clientID string
}

// NewOrderStorage creates order storage namespaced to one client.
func NewOrderStorage(client *redis.Client, clientID string) *OrderStorage {
	return &OrderStorage{client: client, clientID: clientID}
}

func (s *OrderStorage) orderKey(id string) string {
	return fmt.Sprintf("client:%s:order:%s", s.clientID, id)
}

func (s *OrderStorage) indexKey() string {
	return fmt.Sprintf("client:%s:orders", s.clientID)
}

func (s *OrderStorage) activeKey() string {
	return fmt.Sprintf("client:%s:active_order", s.clientID)
}

func (s *OrderStorage) queueKey() string {
	return fmt.Sprintf("client:%s:sync_queue", s.clientID)
}

func (s *OrderStorage) lockKey(id string) string {
	return fmt.Sprintf("client:%s:lock:order:%s", s.clientID, id)
}

// LoadOrder reads an order. Returns (nil, nil) on a miss.
func (s *OrderStorage) LoadOrder(ctx context.Context, id string) (*domain.LocalOrder, error) {
	data, err := s.client.Get(ctx, s.orderKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var order domain.LocalOrder
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// SaveOrder writes an order and registers it in the order index.
func (s *OrderStorage) SaveOrder(ctx context.Context, order *domain.LocalOrder) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.orderKey(order.ID), data, 0).Err(); err != nil {
		return err
	}
	return s.client.SAdd(ctx, s.indexKey(), order.ID).Err()
}

// DeleteOrder removes an order and its index entry.
func (s *OrderStorage) DeleteOrder(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.orderKey(id)).Err(); err != nil {
		return err
	}
	return s.client.SRem(ctx, s.indexKey(), id).Err()
}

// OrderIDs returns every cached order id.
func (s *OrderStorage) OrderIDs(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.indexKey()).Result()
}

// ActiveOrderID returns the active order pointer, "" when unset.
func (s *OrderStorage) ActiveOrderID(ctx context.Context) (string, error) {
	id, err := s.client.Get(ctx, s.activeKey()).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return id, nil
}

// SetActiveOrderID sets the active order pointer.
func (s *OrderStorage) SetActiveOrderID(ctx context.Context, id string) error {
	return s.client.Set(ctx, s.activeKey(), id, 0).Err()
}

// ClearActiveOrderID unsets the active order pointer.
func (s *OrderStorage) ClearActiveOrderID(ctx context.Context) error {
	return s.client.Del(ctx, s.activeKey()).Err()
}

// EnqueueSync adds an order id to the sync queue set.
func (s *OrderStorage) EnqueueSync(ctx context.Context, id string) error {
	return s.client.SAdd(ctx, s.queueKey(), id).Err()
}

// DequeueSync removes an order id from the sync queue set.
func (s *OrderStorage) DequeueSync(ctx context.Context, id string) error {
	return s.client.SRem(ctx, s.queueKey(), id).Err()
}

// SyncQueue returns the queued order ids.
func (s *OrderStorage) SyncQueue(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.queueKey()).Result()
}

// AcquireOrderLock takes the per-order write lock with SETNX semantics.
func (s *OrderStorage) AcquireOrderLock(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.lockKey(id), "1", ttl).Result()
}

// ReleaseOrderLock releases the per-order write lock.
func (s *OrderStorage) ReleaseOrderLock(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.lockKey(id)).Err()
}

// Ensure concrete types implement the store interfaces.
var (
	_ store.TripStorage  = (*TripStorage)(nil)
	_ store.OrderStorage = (*OrderStorage)(nil)
)
