package replaydb

import "errors"

var (
	// ErrNotFound is returned when a series or player is not found.
	ErrNotFound = errors.New("record not found")
	// ErrQueueEmpty is returned by Dequeue when no job is claimable.
	ErrQueueEmpty = errors.New("reconciliation queue is empty")
	// ErrClaimLost is returned when another worker claimed the job first on every attempt.
	ErrClaimLost = errors.New("queue claim lost to another worker")
)
