package domain

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound is returned for operations against a session name
// that has no registered driver handle. It is a recoverable "not
// connected" condition, not an internal failure.
var ErrSessionNotFound = errors.New("session not found or not connected")

// ErrAlreadyRegistered is returned when registering a handle for a name
// that already has a live one.
var ErrAlreadyRegistered = errors.New("session already registered")

// DriverError wraps a failure reported by the automation driver.
// Creation and send failures are recoverable: the caller may retry.
type DriverError struct {
	Op      string
	Session string
	Err     error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("driver %s for session %q: %v", e.Op, e.Session, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// NewDriverError wraps err as a DriverError for the given operation.
func NewDriverError(op, session string, err error) *DriverError {
	return &DriverError{Op: op, Session: session, Err: err}
}

// StoreError wraps a persistence or media-store failure. The pipeline
// degrades gracefully on these instead of crashing the process.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err as a StoreError for the given operation.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}
