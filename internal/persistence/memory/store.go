// Package memory provides in-memory stores for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"example.com/timeclock/internal/domain"
)

// ActivityStore keeps activity records in memory. Writes that touch a
// worker's exclusivity slot serialize on a per-worker mutex, so operations on
// different workers proceed independently.
type ActivityStore struct {
	mu       sync.RWMutex
	records  map[uuid.UUID]domain.ActivityRecord
	byWorker map[uuid.UUID][]uuid.UUID

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// NewActivityStore constructs an empty ActivityStore.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{
		records:  make(map[uuid.UUID]domain.ActivityRecord),
		byWorker: make(map[uuid.UUID][]uuid.UUID),
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *ActivityStore) workerLock(workerID uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[workerID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[workerID] = lock
	}
	return lock
}

// findActiveLocked returns the worker's active record, optionally skipping
// one id. Callers hold at least a read lock on s.mu.
func (s *ActivityStore) findActiveLocked(workerID uuid.UUID, skip *uuid.UUID) *domain.ActivityRecord {
	for _, id := range s.byWorker[workerID] {
		if skip != nil && id == *skip {
			continue
		}
		rec := s.records[id]
		if rec.Status.Active() {
			copied := cloneActivity(rec)
			return &copied
		}
	}
	return nil
}

// FindActive implements domain.ActivityStore.
func (s *ActivityStore) FindActive(ctx context.Context, workerID uuid.UUID) (*domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findActiveLocked(workerID, nil), nil
}

// FindByID implements domain.ActivityStore.
func (s *ActivityStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	copied := cloneActivity(rec)
	return &copied, nil
}

// Create inserts the record after an exclusivity check; check and insert are
// one unit under the worker's lock.
func (s *ActivityStore) Create(ctx context.Context, rec *domain.ActivityRecord) error {
	lock := s.workerLock(rec.WorkerID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if active := s.findActiveLocked(rec.WorkerID, nil); active != nil {
		return &domain.ConflictError{Active: active}
	}

	s.records[rec.ID] = cloneActivity(*rec)
	s.byWorker[rec.WorkerID] = append(s.byWorker[rec.WorkerID], rec.ID)
	return nil
}

// Update implements domain.ActivityStore.
func (s *ActivityStore) Update(ctx context.Context, rec *domain.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; !ok {
		return domain.ErrNotFound
	}
	s.records[rec.ID] = cloneActivity(*rec)
	return nil
}

// Reactivate writes the record back into an active status, re-checking that
// no other record took the worker's slot.
func (s *ActivityStore) Reactivate(ctx context.Context, rec *domain.ActivityRecord) error {
	lock := s.workerLock(rec.WorkerID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; !ok {
		return domain.ErrNotFound
	}
	id := rec.ID
	if active := s.findActiveLocked(rec.WorkerID, &id); active != nil {
		return &domain.ConflictError{Active: active}
	}
	s.records[rec.ID] = cloneActivity(*rec)
	return nil
}

// ListByWorker implements domain.ActivityStore.
func (s *ActivityStore) ListByWorker(ctx context.Context, workerID uuid.UUID, filter domain.ActivityFilter, cursor *domain.Cursor, limit int) ([]domain.ActivityRecord, *domain.Cursor, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	matched := make([]domain.ActivityRecord, 0)
	for _, id := range s.byWorker[workerID] {
		rec := s.records[id]
		if !matchesFilter(rec, filter) {
			continue
		}
		matched = append(matched, cloneActivity(rec))
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].StartTime.Equal(matched[j].StartTime) {
			return matched[i].StartTime.After(matched[j].StartTime)
		}
		return matched[i].ID.String() > matched[j].ID.String()
	})

	if cursor != nil {
		trimmed := matched[:0]
		for _, rec := range matched {
			if rec.StartTime.Before(cursor.StartTime) ||
				(rec.StartTime.Equal(cursor.StartTime) && rec.ID.String() < cursor.ID.String()) {
				trimmed = append(trimmed, rec)
			}
		}
		matched = trimmed
	}

	if len(matched) > limit {
		matched = matched[:limit]
	}

	var next *domain.Cursor
	if len(matched) == limit {
		last := matched[len(matched)-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return matched, next, nil
}

// ListActive implements domain.ActivityStore.
func (s *ActivityStore) ListActive(ctx context.Context) ([]domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ActivityRecord, 0)
	for _, rec := range s.records {
		if rec.Status.Active() {
			out = append(out, cloneActivity(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func matchesFilter(rec domain.ActivityRecord, filter domain.ActivityFilter) bool {
	if filter.Status != nil && rec.Status != *filter.Status {
		return false
	}
	if filter.Kind != nil && rec.Kind != *filter.Kind {
		return false
	}
	if filter.From != nil && rec.StartTime.Before(*filter.From) {
		return false
	}
	if filter.To != nil && rec.StartTime.After(*filter.To) {
		return false
	}
	return true
}

func cloneActivity(rec domain.ActivityRecord) domain.ActivityRecord {
	if rec.TaskID != nil {
		taskID := *rec.TaskID
		rec.TaskID = &taskID
	}
	if rec.EndTime != nil {
		end := *rec.EndTime
		rec.EndTime = &end
	}
	if rec.PausedAt != nil {
		paused := *rec.PausedAt
		rec.PausedAt = &paused
	}
	return rec
}
