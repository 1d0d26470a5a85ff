package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"example.com/timeclock/internal/domain"
)

// AttendanceStore keeps attendance windows in memory with the same per-worker
// serialization as ActivityStore.
type AttendanceStore struct {
	mu       sync.RWMutex
	records  map[uuid.UUID]domain.AttendanceRecord
	byWorker map[uuid.UUID][]uuid.UUID

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// NewAttendanceStore constructs an empty AttendanceStore.
func NewAttendanceStore() *AttendanceStore {
	return &AttendanceStore{
		records:  make(map[uuid.UUID]domain.AttendanceRecord),
		byWorker: make(map[uuid.UUID][]uuid.UUID),
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *AttendanceStore) workerLock(workerID uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[workerID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[workerID] = lock
	}
	return lock
}

func (s *AttendanceStore) findOpenLocked(workerID uuid.UUID) *domain.AttendanceRecord {
	for _, id := range s.byWorker[workerID] {
		rec := s.records[id]
		if rec.Open() {
			copied := cloneAttendance(rec)
			return &copied
		}
	}
	return nil
}

// FindOpen implements domain.AttendanceStore.
func (s *AttendanceStore) FindOpen(ctx context.Context, workerID uuid.UUID) (*domain.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findOpenLocked(workerID), nil
}

// FindByID implements domain.AttendanceStore.
func (s *AttendanceStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	copied := cloneAttendance(rec)
	return &copied, nil
}

// Create inserts the window after the one-open-window check, atomically under
// the worker's lock.
func (s *AttendanceStore) Create(ctx context.Context, rec *domain.AttendanceRecord) error {
	lock := s.workerLock(rec.WorkerID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if open := s.findOpenLocked(rec.WorkerID); open != nil {
		return &domain.AttendanceConflictError{Open: open}
	}

	s.records[rec.ID] = cloneAttendance(*rec)
	s.byWorker[rec.WorkerID] = append(s.byWorker[rec.WorkerID], rec.ID)
	return nil
}

// Update implements domain.AttendanceStore.
func (s *AttendanceStore) Update(ctx context.Context, rec *domain.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; !ok {
		return domain.ErrNotFound
	}
	s.records[rec.ID] = cloneAttendance(*rec)
	return nil
}

// ListByWorker implements domain.AttendanceStore.
func (s *AttendanceStore) ListByWorker(ctx context.Context, workerID uuid.UUID, since time.Time) ([]domain.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AttendanceRecord, 0)
	for _, id := range s.byWorker[workerID] {
		rec := s.records[id]
		if rec.CheckIn.Before(since) {
			continue
		}
		out = append(out, cloneAttendance(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CheckIn.After(out[j].CheckIn)
	})
	return out, nil
}

// CountOpenByLocation implements domain.AttendanceStore.
func (s *AttendanceStore) CountOpenByLocation(ctx context.Context) (map[domain.Location]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[domain.Location]int)
	for _, rec := range s.records {
		if rec.Open() {
			out[rec.Location]++
		}
	}
	return out, nil
}

func cloneAttendance(rec domain.AttendanceRecord) domain.AttendanceRecord {
	if rec.CheckOut != nil {
		out := *rec.CheckOut
		rec.CheckOut = &out
	}
	return rec
}
