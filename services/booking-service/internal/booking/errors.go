package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAvailability: no slot fits on the requested day. A normal negative
	// outcome, not a system fault.
	ErrNoAvailability = errors.New("no slot available")

	// ErrNotFound: the appointment id does not exist (or was already cancelled).
	ErrNotFound = errors.New("appointment not found")

	// ErrConflict is returned by an AppointmentStore insert that lost the
	// conditional-write race: another booking for the same doctor claimed an
	// overlapping interval between our read and our write.
	ErrConflict = errors.New("appointment slot already taken")
)

// ValidationError rejects a malformed booking request before the store is
// touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StoreError wraps a persistence-layer failure so callers never see
// vendor-specific error shapes.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("appointment store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
