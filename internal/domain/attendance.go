package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AttendanceService is the attendance gate: a two-transition state machine
// (check-in, check-out) with the same per-worker exclusivity pattern as the
// activity state machine. It is deliberately independent of activities — an
// open window is not a precondition for starting one.
type AttendanceService struct {
	store   AttendanceStore
	workers WorkerDirectory
	clock   Clock
}

// NewAttendanceService constructs an AttendanceService.
func NewAttendanceService(store AttendanceStore, workers WorkerDirectory, clock Clock) *AttendanceService {
	return &AttendanceService{store: store, workers: workers, clock: clock}
}

// CheckIn opens an attendance window for the worker. The store enforces the
// one-open-window invariant atomically; a conflict carries the open window.
func (s *AttendanceService) CheckIn(ctx context.Context, workerID uuid.UUID, location Location, notes string) (*AttendanceRecord, error) {
	exists, err := s.workers.Exists(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: worker %s", ErrNotFound, workerID)
	}
	active, err := s.workers.IsActive(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, fmt.Errorf("%w: worker %s is disabled", ErrInactive, workerID)
	}
	if !ValidLocation(location) {
		return nil, invalidStatef("unknown location %q", location)
	}

	now := s.clock.Now()
	rec := &AttendanceRecord{
		ID:        uuid.New(),
		WorkerID:  workerID,
		CheckIn:   now,
		Location:  location,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// CheckOut closes the window. Closing an already-closed window is an
// InvalidState fault.
func (s *AttendanceService) CheckOut(ctx context.Context, id uuid.UUID, notes *string) (*AttendanceRecord, error) {
	rec, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: attendance record %s", ErrNotFound, id)
	}
	if rec.CheckOut != nil {
		return nil, invalidStatef("attendance window already closed")
	}

	now := s.clock.Now()
	if now.Before(rec.CheckIn) {
		now = rec.CheckIn
	}
	rec.CheckOut = &now
	if notes != nil {
		rec.Notes = *notes
	}
	rec.UpdatedAt = now

	if err := s.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// FindOpenWindow returns the worker's open attendance window, or nil.
func (s *AttendanceService) FindOpenWindow(ctx context.Context, workerID uuid.UUID) (*AttendanceRecord, error) {
	return s.store.FindOpen(ctx, workerID)
}

// History returns the worker's windows from the last given number of days.
func (s *AttendanceService) History(ctx context.Context, workerID uuid.UUID, days int) ([]AttendanceRecord, error) {
	if days <= 0 {
		days = 7
	}
	since := s.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)
	return s.store.ListByWorker(ctx, workerID, since)
}

// OpenWindowStats reports how many windows are currently open per location.
func (s *AttendanceService) OpenWindowStats(ctx context.Context) (map[Location]int, error) {
	return s.store.CountOpenByLocation(ctx)
}

// Now exposes the injected clock for derived window durations.
func (s *AttendanceService) Now() time.Time { return s.clock.Now() }
