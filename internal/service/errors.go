package service

import "errors"

var (
	// ErrInvalidOrderID is returned when an order id is empty.
	ErrInvalidOrderID = errors.New("invalid order id")

	// ErrInvalidStatus is returned when a transition request names an
	// unknown status value.
	ErrInvalidStatus = errors.New("invalid status value")

	// ErrSyncFailure is returned when a remote push was rejected or timed
	// out. The order keeps its pending updates and stays queued for retry.
	ErrSyncFailure = errors.New("sync to remote store failed")

	// ErrFinishFailed is returned when the remote commit of a completed
	// trip's cost failed. Local state is retained so the call can be
	// retried; the billing record is never silently lost.
	ErrFinishFailed = errors.New("trip completion commit failed")
)
