package domain

import "time"

// EventKind identifies a reconciliation event on a trip's broadcast topic.
type EventKind string

const (
	EventLocationUpdate EventKind = "location_update"
	EventStatusUpdate   EventKind = "status_update"
	EventMetricsUpdate  EventKind = "metrics_update"
	EventTripCompleted  EventKind = "trip_completed"
	EventTripCancelled  EventKind = "trip_cancelled"
	EventPresence       EventKind = "presence"
)

// SyncEvent is the envelope exchanged between the two clients of a trip.
// Every event carries the full new value for the fields it concerns, never a
// delta, so replay and duplicate delivery are idempotent.
type SyncEvent struct {
	ID     string    `json:"id"`
	TripID string    `json:"trip_id"`
	Kind   EventKind `json:"kind"`
	SentAt time.Time `json:"sent_at"`

	// Status events name the authoritative target state; it is fed through
	// the transition gate on the receiving side, never applied directly.
	OldStatus TripStatus `json:"old_status,omitempty"`
	NewStatus TripStatus `json:"new_status,omitempty"`

	// Metrics events replace all five metric fields wholesale.
	Metrics *TripMetrics `json:"metrics,omitempty"`

	Lat *float64 `json:"lat,omitempty"`
	Lon *float64 `json:"lon,omitempty"`
}
