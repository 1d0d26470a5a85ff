package domain

import (
	"errors"
	"fmt"
)

// Fault sentinels. Every failure the core returns matches exactly one of
// these through errors.Is; none of them is fatal to the process.
var (
	// ErrConflict means an exclusivity invariant would be violated. Use
	// errors.As with *ConflictError or *AttendanceConflictError to recover
	// the record already holding the slot.
	ErrConflict = errors.New("conflict: an active record already exists")
	// ErrNotFound means a referenced record, task, or worker does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInactive means the referenced worker or task exists but is disabled.
	ErrInactive = errors.New("inactive")
	// ErrInvalidState means the transition is not permitted from the record's
	// current status.
	ErrInvalidState = errors.New("invalid state for transition")
	// ErrUnavailable means the underlying storage transaction could not be
	// completed. The core never retries; that decision belongs to the caller.
	ErrUnavailable = errors.New("storage unavailable")
)

// ErrAlreadyCompleted is the InvalidState case surfaced distinctly because it
// is the most common caller mistake (double-submit of complete).
var ErrAlreadyCompleted = fmt.Errorf("%w: record already completed", ErrInvalidState)

// ErrNotEligible reports a task that exists and is enabled but is not open to
// the requesting worker.
var ErrNotEligible = fmt.Errorf("%w: task is not available to this worker", ErrInactive)

// ConflictError carries the activity record that already occupies the
// worker's slot so callers can present it.
type ConflictError struct {
	Active *ActivityRecord
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("worker %s already has a %s record", e.Active.WorkerID, e.Active.Status)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// AttendanceConflictError carries the attendance window that is still open.
type AttendanceConflictError struct {
	Open *AttendanceRecord
}

func (e *AttendanceConflictError) Error() string {
	return fmt.Sprintf("worker %s already has an open attendance window", e.Open.WorkerID)
}

func (e *AttendanceConflictError) Unwrap() error { return ErrConflict }

// InvalidStateError reports which operation was attempted from which status.
type InvalidStateError struct {
	Op     string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s a record with status %s", e.Op, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

func invalidStatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

// Unavailable wraps a storage-layer failure so it surfaces in the fault
// taxonomy instead of leaking driver errors.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
