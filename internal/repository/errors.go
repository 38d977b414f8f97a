package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is a unique constraint violation.
	ErrConflict = errors.New("conflict")
	// ErrOverlap is an exclusion constraint violation (overlapping active shows).
	ErrOverlap = errors.New("overlapping time window")
	// ErrInUse is a foreign key violation: the row is still referenced.
	ErrInUse = errors.New("row is referenced")
	// ErrRetryable marks serialization failures and deadlocks; the whole transaction may be replayed.
	ErrRetryable = errors.New("transaction must be retried")
)
