package domain

import "time"

// SyncStatus tracks whether an order's local mutations have reached the
// remote store.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// FieldUpdate is one locally-made change awaiting a remote commit.
type FieldUpdate struct {
	Field     string    `json:"field"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// LocalOrder is the persisted request record underlying a trip. It outlives
// the trip's active phase and many may coexist on one client.
type LocalOrder struct {
	ID     string     `json:"id"`
	Status TripStatus `json:"status"`

	// Realized values pushed to the remote store on sync.
	DistanceKm  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`
	Price       float64 `json:"price"`

	// Route texts, notes and other trip-independent fields, carried opaquely.
	Payload map[string]any `json:"payload,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`

	SyncStatus     SyncStatus    `json:"sync_status"`
	LastModified   time.Time     `json:"last_modified"`
	PendingUpdates []FieldUpdate `json:"pending_updates,omitempty"`
}
