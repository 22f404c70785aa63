package store

import "errors"

var (
	// ErrInvalidTransition is returned when a requested status is not legal
	// from the current status. The record is never mutated on rejection.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNoActiveTrip is returned when an operation requires an active trip
	// and none is stored.
	ErrNoActiveTrip = errors.New("no active trip")

	// ErrTripAlreadyActive is returned when setting a trip while a different
	// trip is still active.
	ErrTripAlreadyActive = errors.New("another trip is already active")

	// ErrOrderNotFound is returned when the order cache has no such order.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderLocked is returned when the per-order write lock could not be
	// acquired after all retry attempts.
	ErrOrderLocked = errors.New("order is locked by another update")
)
