package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ActivityStore captures persistence operations for activity records. All
// write paths that could race on the per-worker exclusivity invariant are
// atomic inside the store; the state machine performs no separate pre-check
// that could go stale.
type ActivityStore interface {
	// FindActive returns the worker's record with an active status, or nil.
	FindActive(ctx context.Context, workerID uuid.UUID) (*ActivityRecord, error)
	// FindByID returns the record or nil when absent.
	FindByID(ctx context.Context, id uuid.UUID) (*ActivityRecord, error)
	// Create inserts the record. When the worker already holds an active
	// record the insert fails with a *ConflictError carrying that record;
	// the existence check and the insert are one atomic unit.
	Create(ctx context.Context, rec *ActivityRecord) error
	// Update replaces the record's mutable fields. Fails with ErrNotFound
	// when the id does not exist.
	Update(ctx context.Context, rec *ActivityRecord) error
	// Reactivate persists a transition back into an active status. It fails
	// with a *ConflictError when another active record (excluding this one)
	// exists for the worker at commit time.
	Reactivate(ctx context.Context, rec *ActivityRecord) error
	// ListByWorker returns the worker's history, newest first, with cursor
	// pagination.
	ListByWorker(ctx context.Context, workerID uuid.UUID, filter ActivityFilter, cursor *Cursor, limit int) ([]ActivityRecord, *Cursor, error)
	// ListActive returns every record currently holding a worker's slot.
	ListActive(ctx context.Context) ([]ActivityRecord, error)
}

// AttendanceStore captures persistence for attendance windows.
type AttendanceStore interface {
	FindOpen(ctx context.Context, workerID uuid.UUID) (*AttendanceRecord, error)
	FindByID(ctx context.Context, id uuid.UUID) (*AttendanceRecord, error)
	// Create inserts the window, failing with *AttendanceConflictError when
	// the worker already has an open one. Atomic like ActivityStore.Create.
	Create(ctx context.Context, rec *AttendanceRecord) error
	Update(ctx context.Context, rec *AttendanceRecord) error
	ListByWorker(ctx context.Context, workerID uuid.UUID, since time.Time) ([]AttendanceRecord, error)
	// CountOpenByLocation reports open windows grouped by location.
	CountOpenByLocation(ctx context.Context) (map[Location]int, error)
}

// WorkerDirectory exposes the reference data the core needs about workers.
type WorkerDirectory interface {
	Exists(ctx context.Context, workerID uuid.UUID) (bool, error)
	IsActive(ctx context.Context, workerID uuid.UUID) (bool, error)
}

// TaskDirectory exposes the reference data the core needs about tasks.
type TaskDirectory interface {
	Exists(ctx context.Context, taskID uuid.UUID) (bool, error)
	IsEnabled(ctx context.Context, taskID uuid.UUID) (bool, error)
	IsEligible(ctx context.Context, taskID, workerID uuid.UUID) (bool, error)
}

// Clock supplies the current instant. It is injected so tests control time
// deterministically; the core never reads the wall clock ad hoc.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

// Now returns the current UTC instant.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
