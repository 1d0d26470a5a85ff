package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service is the activity state machine. It validates preconditions, applies
// transitions, and writes through the store; the store alone closes the
// start/resume races.
type Service struct {
	store   ActivityStore
	workers WorkerDirectory
	tasks   TaskDirectory
	clock   Clock
}

// NewService constructs a Service.
func NewService(store ActivityStore, workers WorkerDirectory, tasks TaskDirectory, clock Clock) *Service {
	return &Service{store: store, workers: workers, tasks: tasks, clock: clock}
}

// StartInput captures the intent to begin a task or a break.
type StartInput struct {
	WorkerID uuid.UUID
	Kind     Kind
	// TaskID is required when Kind is KindTask and ignored for breaks.
	TaskID *uuid.UUID
	Notes  string
}

// Start creates a new active record for the worker. The store's atomic
// check-and-insert is the single source of truth for the exclusivity
// invariant; a conflict surfaces the record already holding the slot.
func (s *Service) Start(ctx context.Context, input StartInput) (*ActivityRecord, error) {
	if err := s.checkWorker(ctx, input.WorkerID); err != nil {
		return nil, err
	}

	rec := &ActivityRecord{
		ID:       uuid.New(),
		WorkerID: input.WorkerID,
		Kind:     input.Kind,
		Notes:    input.Notes,
	}

	switch input.Kind {
	case KindTask:
		if input.TaskID == nil {
			return nil, invalidStatef("starting a task requires a task id")
		}
		if err := s.checkTask(ctx, *input.TaskID, input.WorkerID); err != nil {
			return nil, err
		}
		taskID := *input.TaskID
		rec.TaskID = &taskID
		rec.Status = StatusInProgress
	case KindBreak:
		rec.Status = StatusOnBreak
	default:
		return nil, invalidStatef("unknown activity kind %q", input.Kind)
	}

	now := s.clock.Now()
	rec.StartTime = now
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Pause suspends an in-progress task. Reversible, unlike Stop.
func (s *Service) Pause(ctx context.Context, id uuid.UUID) (*ActivityRecord, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusInProgress {
		return nil, &InvalidStateError{Op: "pause", Status: rec.Status}
	}

	now := s.clock.Now()
	rec.PausedAt = &now
	rec.Status = StatusPaused
	rec.UpdatedAt = now

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Resume reverses a pause, folding the pause span into the record's total
// paused minutes. The store re-checks that no other record grabbed the
// worker's slot in the meantime.
func (s *Service) Resume(ctx context.Context, id uuid.UUID) (*ActivityRecord, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusPaused || rec.PausedAt == nil {
		return nil, &InvalidStateError{Op: "resume", Status: rec.Status}
	}

	now := s.clock.Now()
	paused := int(now.Sub(*rec.PausedAt).Minutes())
	if paused > 0 {
		rec.TotalPausedMinutes += paused
	}
	rec.PausedAt = nil
	rec.Status = StatusInProgress
	rec.UpdatedAt = now

	if err := s.store.Reactivate(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Stop interrupts a task or break without finishing it. The record keeps its
// end time and the worker is free to start something else; the record can
// still be completed later.
func (s *Service) Stop(ctx context.Context, id uuid.UUID) (*ActivityRecord, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != StatusInProgress && rec.Status != StatusOnBreak {
		return nil, &InvalidStateError{Op: "stop", Status: rec.Status}
	}

	now := s.clock.Now()
	rec.EndTime = &now
	rec.Status = StatusInterrupted
	rec.UpdatedAt = now

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Complete finishes a record. It is the only transition into the terminal
// state and is a one-time event: repeating it fails with ErrAlreadyCompleted
// so the duration snapshot never shifts.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, notes *string) (*ActivityRecord, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusCompleted {
		return nil, ErrAlreadyCompleted
	}

	now := s.clock.Now()
	if rec.EndTime == nil {
		rec.EndTime = &now
	}
	rec.PausedAt = nil
	rec.Status = StatusCompleted
	if notes != nil {
		rec.Notes = *notes
	}
	rec.UpdatedAt = now

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateNotes replaces the record's notes. Notes carry no invariant and stay
// mutable even after completion.
func (s *Service) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (*ActivityRecord, error) {
	rec, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Notes = notes
	rec.UpdatedAt = s.clock.Now()
	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FindActive returns the worker's current activity, or nil.
func (s *Service) FindActive(ctx context.Context, workerID uuid.UUID) (*ActivityRecord, error) {
	return s.store.FindActive(ctx, workerID)
}

// Get fetches a record by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ActivityRecord, error) {
	return s.get(ctx, id)
}

// ListByWorker returns a worker's history with cursor pagination.
func (s *Service) ListByWorker(ctx context.Context, workerID uuid.UUID, filter ActivityFilter, cursor *Cursor, limit int) ([]ActivityRecord, *Cursor, error) {
	return s.store.ListByWorker(ctx, workerID, filter, cursor, limit)
}

// ListActive returns every record currently holding a slot, for dashboards.
func (s *Service) ListActive(ctx context.Context) ([]ActivityRecord, error) {
	return s.store.ListActive(ctx)
}

// Now exposes the injected clock so callers derive elapsed minutes from the
// same time source as the transitions.
func (s *Service) Now() time.Time { return s.clock.Now() }

func (s *Service) get(ctx context.Context, id uuid.UUID) (*ActivityRecord, error) {
	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: activity record %s", ErrNotFound, id)
	}
	return rec, nil
}

func (s *Service) checkWorker(ctx context.Context, workerID uuid.UUID) error {
	exists, err := s.workers.Exists(ctx, workerID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: worker %s", ErrNotFound, workerID)
	}
	active, err := s.workers.IsActive(ctx, workerID)
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("%w: worker %s is disabled", ErrInactive, workerID)
	}
	return nil
}

func (s *Service) checkTask(ctx context.Context, taskID, workerID uuid.UUID) error {
	exists, err := s.tasks.Exists(ctx, taskID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	enabled, err := s.tasks.IsEnabled(ctx, taskID)
	if err != nil {
		return err
	}
	if !enabled {
		return fmt.Errorf("%w: task %s is disabled", ErrInactive, taskID)
	}
	eligible, err := s.tasks.IsEligible(ctx, taskID, workerID)
	if err != nil {
		return err
	}
	if !eligible {
		return ErrNotEligible
	}
	return nil
}
