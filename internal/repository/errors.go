package repository

import "errors"

var (
	// ErrNotFound is returned when the remote store has no row for the
	// requested order.
	ErrNotFound = errors.New("order row not found")
)
