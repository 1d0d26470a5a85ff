package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/timeclock/internal/domain"
	"example.com/timeclock/internal/events"
)

const attendanceColumns = `id, worker_id, check_in, check_out, location, notes, created_at, updated_at`

// AttendanceStore persists attendance windows.
type AttendanceStore struct {
	pool *pgxpool.Pool
}

// NewAttendanceStore constructs an AttendanceStore.
func NewAttendanceStore(pool *pgxpool.Pool) *AttendanceStore {
	return &AttendanceStore{pool: pool}
}

// FindOpen implements domain.AttendanceStore.
func (s *AttendanceStore) FindOpen(ctx context.Context, workerID uuid.UUID) (*domain.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE worker_id=$1 AND check_out IS NULL LIMIT 1`, attendanceColumns)
	rec, err := scanAttendance(s.pool.QueryRow(ctx, query, workerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.Unavailable(err)
	}
	return rec, nil
}

// FindByID implements domain.AttendanceStore.
func (s *AttendanceStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE id=$1`, attendanceColumns)
	rec, err := scanAttendance(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.Unavailable(err)
	}
	return rec, nil
}

// Create inserts the window after the one-open-window check, all inside one
// transaction under the worker's attendance lock.
func (s *AttendanceStore) Create(ctx context.Context, rec *domain.AttendanceRecord) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Unavailable(err)
	}
	defer tx.Rollback(ctx)

	if err := lockWorker(ctx, tx, rec.WorkerID, lockSeedAttendance); err != nil {
		return domain.Unavailable(err)
	}

	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE worker_id=$1 AND check_out IS NULL LIMIT 1`, attendanceColumns)
	open, err := scanAttendance(tx.QueryRow(ctx, query, rec.WorkerID))
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.Unavailable(err)
	}
	if open != nil {
		return &domain.AttendanceConflictError{Open: open}
	}

	insert := fmt.Sprintf(`INSERT INTO attendance_records (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, attendanceColumns)
	_, err = tx.Exec(ctx, insert,
		rec.ID,
		rec.WorkerID,
		rec.CheckIn,
		rec.CheckOut,
		rec.Location,
		rec.Notes,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return s.conflictFromBackstop(ctx, rec.WorkerID)
		}
		return domain.Unavailable(err)
	}

	if err := insertOutbox(ctx, tx, "attendance", rec.ID.String(), rec.WorkerID.String(), "attendance.checked_in", events.AttendanceCheckedIn{
		AttendanceID: rec.ID.String(),
		WorkerID:     rec.WorkerID.String(),
		Location:     string(rec.Location),
		CheckedInAt:  rec.CheckIn,
	}, rec.UpdatedAt); err != nil {
		return domain.Unavailable(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Unavailable(err)
	}
	return nil
}

// Update replaces the window's mutable fields, emitting a checked-out event
// when the window closed.
func (s *AttendanceStore) Update(ctx context.Context, rec *domain.AttendanceRecord) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Unavailable(err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE attendance_records
        SET check_out=$2, notes=$3, updated_at=$4
        WHERE id=$1`,
		rec.ID,
		rec.CheckOut,
		rec.Notes,
		rec.UpdatedAt,
	)
	if err != nil {
		return domain.Unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: attendance record %s", domain.ErrNotFound, rec.ID)
	}

	if rec.CheckOut != nil {
		if err := insertOutbox(ctx, tx, "attendance", rec.ID.String(), rec.WorkerID.String(), "attendance.checked_out", events.AttendanceCheckedOut{
			AttendanceID:  rec.ID.String(),
			WorkerID:      rec.WorkerID.String(),
			CheckedOutAt:  *rec.CheckOut,
			WindowMinutes: domain.WindowMinutes(*rec, *rec.CheckOut),
		}, rec.UpdatedAt); err != nil {
			return domain.Unavailable(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Unavailable(err)
	}
	return nil
}

// ListByWorker implements domain.AttendanceStore.
func (s *AttendanceStore) ListByWorker(ctx context.Context, workerID uuid.UUID, since time.Time) ([]domain.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_records WHERE worker_id=$1 AND check_in >= $2 ORDER BY check_in DESC`, attendanceColumns)
	rows, err := s.pool.Query(ctx, query, workerID, since)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	defer rows.Close()

	results := make([]domain.AttendanceRecord, 0)
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, domain.Unavailable(err)
		}
		results = append(results, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable(err)
	}
	return results, nil
}

// CountOpenByLocation implements domain.AttendanceStore.
func (s *AttendanceStore) CountOpenByLocation(ctx context.Context) (map[domain.Location]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT location, COUNT(*) FROM attendance_records WHERE check_out IS NULL GROUP BY location`)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	defer rows.Close()

	out := make(map[domain.Location]int)
	for rows.Next() {
		var location domain.Location
		var count int
		if err := rows.Scan(&location, &count); err != nil {
			return nil, domain.Unavailable(err)
		}
		out[location] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable(err)
	}
	return out, nil
}

func (s *AttendanceStore) conflictFromBackstop(ctx context.Context, workerID uuid.UUID) error {
	open, err := s.FindOpen(ctx, workerID)
	if err != nil {
		return err
	}
	if open == nil {
		return domain.ErrConflict
	}
	return &domain.AttendanceConflictError{Open: open}
}

func scanAttendance(row pgx.Row) (*domain.AttendanceRecord, error) {
	var rec domain.AttendanceRecord
	err := row.Scan(
		&rec.ID,
		&rec.WorkerID,
		&rec.CheckIn,
		&rec.CheckOut,
		&rec.Location,
		&rec.Notes,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
