package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"tripsync/internal/domain"
	"tripsync/internal/store"
)

// Broker publishes and subscribes trip events on per-trip topics. Delivery
// is at-most-once with no ordering guarantee; correctness comes from the
// wholesale-replace event design and the transition gate on the consumer.
type Broker struct {
	client *redis.Client
}

// NewBroker creates a Broker on the given redis client.
func NewBroker(client *redis.Client) *Broker {
	return &Broker{client: client}
}

func topic(tripID string) string {
	return fmt.Sprintf("active_trip_%s", tripID)
}

// Publish broadcasts an event on the topic of the trip it concerns.
func (b *Broker) Publish(ctx context.Context, ev domain.SyncEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, topic(ev.TripID), data).Err()
}

// Subscription is a live subscription on one trip's topic.
type Subscription struct {
	ps     *redis.PubSub
	events chan domain.SyncEvent
}

// Events returns the decoded event stream. The channel closes when the
// subscription is closed.
func (s *Subscription) Events() <-chan domain.SyncEvent {
	return s.events
}

// Close tears down the subscription.
func (s *Subscription) Close() error {
	return s.ps.Close()
}

// Subscribe opens a subscription on the trip's topic. Malformed payloads are
// logged and dropped; they never crash the reconciliation loop.
func (b *Broker) Subscribe(ctx context.Context, tripID string) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, topic(tripID))

	// Force the SUBSCRIBE round-trip so a bad connection surfaces here.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	sub := &Subscription{
		ps:     ps,
		events: make(chan domain.SyncEvent, 32),
	}

	go func() {
		defer close(sub.events)
		for msg := range ps.Channel() {
			var ev domain.SyncEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[PUBSUB] dropping malformed payload on %s: %v", msg.Channel, err)
				continue
			}
			sub.events <- ev
		}
	}()

	return sub, nil
}

var _ store.EventPublisher = (*Broker)(nil)
