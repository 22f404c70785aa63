package postgres

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/lib/pq"
)

const (
	changeChannel        = "order_changes"
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// RowFeed surfaces the remote store's row-level change notifications
// (LISTEN/NOTIFY) as a stream of order ids. It is the redundant backup for
// the broadcast channel: both converge on the same reconciliation path.
type RowFeed struct {
	listener *pq.Listener
	ids      chan string
}

// NewRowFeed opens a listener on the order-changes channel.
func NewRowFeed(dsn string) (*RowFeed, error) {
	listener := pq.NewListener(dsn, listenerMinReconnect, listenerMaxReconnect,
		func(event pq.ListenerEventType, err error) {
			if err != nil {
				log.Printf("[ROWFEED] listener event %d: %v", event, err)
			}
		})

	if err := listener.Listen(changeChannel); err != nil {
		_ = listener.Close()
		return nil, err
	}

	return &RowFeed{
		listener: listener,
		ids:      make(chan string, 32),
	}, nil
}

// IDs returns the stream of changed order ids. The channel closes when Run
// returns.
func (f *RowFeed) IDs() <-chan string {
	return f.ids
}

// Run pumps notifications until the context is cancelled. A reconnect after
// a dropped connection emits a nil notification; that is forwarded as an
// empty id so the consumer can re-read the authoritative row (notifications
// may have been lost during the gap).
func (f *RowFeed) Run(ctx context.Context) {
	defer close(f.ids)
	defer func() { _ = f.listener.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-f.listener.Notify:
			if n == nil {
				f.ids <- ""
				continue
			}
			f.ids <- decodeOrderID(n.Extra)
		case <-time.After(listenerPingInterval):
			if err := f.listener.Ping(); err != nil {
				log.Printf("[ROWFEED] ping failed: %v", err)
			}
		}
	}
}

// decodeOrderID accepts either a JSON payload {"order_id": "..."} or the
// bare id string.
func decodeOrderID(payload string) string {
	var body struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal([]byte(payload), &body); err == nil && body.OrderID != "" {
		return body.OrderID
	}
	return payload
}
