package domain

import "time"

// TripStatus represents the current status of a trip. The string values are
// the wire values shared with the counterpart client and the remote store.
type TripStatus string

const (
	TripStatusOnWay      TripStatus = "on_way"
	TripStatusWaiting    TripStatus = "waiting"
	TripStatusInProgress TripStatus = "in_progress"
	TripStatusCompleted  TripStatus = "completed"
	TripStatusCancelled  TripStatus = "cancelled"
)

// IsTerminal reports whether the status ends a trip.
func (s TripStatus) IsTerminal() bool {
	return s == TripStatusCompleted || s == TripStatusCancelled
}

// NextStatus returns the single legal forward step from the given status.
// The second return value is false for terminal statuses.
func NextStatus(s TripStatus) (TripStatus, bool) {
	switch s {
	case TripStatusOnWay:
		return TripStatusWaiting, true
	case TripStatusWaiting:
		return TripStatusInProgress, true
	case TripStatusInProgress:
		return TripStatusCompleted, true
	default:
		return "", false
	}
}

// CanTransition reports whether moving from one status to another is legal.
// The chain is strictly forward; cancelled is reachable only while the
// captain is still on the way or waiting at the pickup point.
func CanTransition(from, to TripStatus) bool {
	if to == TripStatusCancelled {
		return from == TripStatusOnWay || from == TripStatusWaiting
	}
	next, ok := NextStatus(from)
	return ok && next == to
}

// Counterpart is the read-only snapshot of the other party on the trip,
// copied in at trip start and never mutated afterwards.
type Counterpart struct {
	Name     string  `json:"name"`
	Phone    string  `json:"phone"`
	PhotoURL string  `json:"photo_url"`
	Rating   float64 `json:"rating"`
}

// TripMetrics holds the accrued measurements of an active trip. Each field is
// monotonically non-decreasing while the trip is active.
type TripMetrics struct {
	OnWayDistanceKm    float64 `json:"on_way_distance_km"`
	OnWayDurationMin   float64 `json:"on_way_duration_min"`
	WaitingDurationMin float64 `json:"waiting_duration_min"`
	TripDistanceKm     float64 `json:"trip_distance_km"`
	TripDurationMin    float64 `json:"trip_duration_min"`
}

// TripBilling holds the cost breakdown derived from the metrics. It is always
// recomputed wholesale, never persisted independently of its inputs.
type TripBilling struct {
	BaseCost    float64 `json:"base_cost"`
	OnWayCost   float64 `json:"on_way_cost"`
	WaitingCost float64 `json:"waiting_cost"`
	TripCost    float64 `json:"trip_cost"`
	TotalCost   float64 `json:"total_cost"`
}

// TripRecord is the canonical shape of the single active trip on a client.
type TripRecord struct {
	TripID  string `json:"trip_id"`
	OrderID string `json:"order_id"`

	Counterpart Counterpart `json:"counterpart"`

	Status  TripStatus  `json:"status"`
	Metrics TripMetrics `json:"metrics"`
	Billing TripBilling `json:"billing"`

	// Free allowances are billing inputs fixed at trip start.
	FreeOnWayKm    float64 `json:"free_on_way_km"`
	FreeWaitingMin float64 `json:"free_waiting_min"`

	// Last known position sample, overwritten on every update.
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	AcceptedAt  time.Time `json:"accepted_at"`
	ArrivedAt   time.Time `json:"arrived_at,omitempty"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// TripRow is the authoritative remote view of a trip, re-read during
// reconciliation when the broadcast channel may have dropped messages.
type TripRow struct {
	OrderID   string
	Status    TripStatus
	Metrics   TripMetrics
	Lat       float64
	Lon       float64
	TotalCost float64
	UpdatedAt time.Time
}

// Invoice is the final billing surface handed to the caller after a trip
// completes and the cost is durably recorded.
type Invoice struct {
	TripID      string      `json:"trip_id"`
	OrderID     string      `json:"order_id"`
	Billing     TripBilling `json:"billing"`
	Rating      float64     `json:"rating"`
	CompletedAt time.Time   `json:"completed_at"`
}
