// Package postgres provides the Postgres-backed stores. Every write that can
// race on a worker's exclusivity slot takes a per-worker advisory lock inside
// its transaction, so the existence check and the write commit as one unit
// without blocking other workers.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/timeclock/internal/domain"
	"example.com/timeclock/internal/events"
	"example.com/timeclock/internal/observability"
)

const activityColumns = `id, worker_id, task_id, kind, status, start_time, end_time, paused_at, total_paused_minutes, notes, created_at, updated_at`

const uniqueViolation = "23505"

// ActivityStore persists activity records and their outbox events.
type ActivityStore struct {
	pool *pgxpool.Pool
}

// NewActivityStore constructs an ActivityStore.
func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

// lockWorker serializes slot-changing writes for one worker within the
// transaction. The seed separates activity locks from attendance locks.
func lockWorker(ctx context.Context, tx pgx.Tx, workerID uuid.UUID, seed int64) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, $2))`, workerID.String(), seed)
	return err
}

// FindActive implements domain.ActivityStore.
func (s *ActivityStore) FindActive(ctx context.Context, workerID uuid.UUID) (*domain.ActivityRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM activity_records WHERE worker_id=$1 AND status = ANY($2) LIMIT 1`, activityColumns)
	rec, err := scanActivity(s.pool.QueryRow(ctx, query, workerID, activeStatuses()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.Unavailable(err)
	}
	return rec, nil
}

// FindByID implements domain.ActivityStore.
func (s *ActivityStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.ActivityRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM activity_records WHERE id=$1`, activityColumns)
	rec, err := scanActivity(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.Unavailable(err)
	}
	return rec, nil
}

// Create inserts the record and its outbox events in one transaction. The
// advisory lock makes the active-record check and the insert atomic; the
// partial unique index in the schema is the backstop.
func (s *ActivityStore) Create(ctx context.Context, rec *domain.ActivityRecord) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Unavailable(err)
	}
	defer tx.Rollback(ctx)

	if err := lockWorker(ctx, tx, rec.WorkerID, lockSeedActivity); err != nil {
		return domain.Unavailable(err)
	}

	active, err := s.findActiveTx(ctx, tx, rec.WorkerID, uuid.Nil)
	if err != nil {
		return err
	}
	if active != nil {
		return &domain.ConflictError{Active: active}
	}

	insert := fmt.Sprintf(`INSERT INTO activity_records (%s) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`, activityColumns)
	_, err = tx.Exec(ctx, insert,
		rec.ID,
		rec.WorkerID,
		rec.TaskID,
		rec.Kind,
		rec.Status,
		rec.StartTime,
		rec.EndTime,
		rec.PausedAt,
		rec.TotalPausedMinutes,
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

	var taskID *string
	if rec.TaskID != nil {
		str := rec.TaskID.String()
		taskID = &str
	}
	if err := insertOutbox(ctx, tx, "activity", rec.ID.String(), rec.WorkerID.String(), "activity.started", events.ActivityStarted{
		ActivityID: rec.ID.String(),
		WorkerID:   rec.WorkerID.String(),
		TaskID:     taskID,
		Kind:       string(rec.Kind),
		StartedAt:  rec.StartTime,
	}, rec.UpdatedAt); err != nil {
		return domain.Unavailable(err)
	}
	if err := s.insertStateChanged(ctx, tx, rec); err != nil {
		return domain.Unavailable(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Unavailable(err)
	}
	observability.RecordTransition("start")
	return nil
}

// Update replaces the record's mutable fields and emits a state-changed
// event in the same transaction.
func (s *ActivityStore) Update(ctx context.Context, rec *domain.ActivityRecord) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Unavailable(err)
	}
	defer tx.Rollback(ctx)

	if err := s.updateTx(ctx, tx, rec); err != nil {
		return err
	}
	if err := s.insertStateChanged(ctx, tx, rec); err != nil {
		return domain.Unavailable(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Unavailable(err)
	}
	observability.RecordTransition(string(rec.Status))
	return nil
}

// Reactivate re-checks the exclusivity invariant before writing the record
// back into an active status, guarding resume against a racing start.
func (s *ActivityStore) Reactivate(ctx context.Context, rec *domain.ActivityRecord) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Unavailable(err)
	}
	defer tx.Rollback(ctx)

	if err := lockWorker(ctx, tx, rec.WorkerID, lockSeedActivity); err != nil {
		return domain.Unavailable(err)
	}

	active, err := s.findActiveTx(ctx, tx, rec.WorkerID, rec.ID)
	if err != nil {
		return err
	}
	if active != nil {
		return &domain.ConflictError{Active: active}
	}

	if err := s.updateTx(ctx, tx, rec); err != nil {
		return err
	}
	if err := s.insertStateChanged(ctx, tx, rec); err != nil {
		return domain.Unavailable(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Unavailable(err)
	}
	observability.RecordTransition(string(rec.Status))
	return nil
}

// ListByWorker implements domain.ActivityStore.
func (s *ActivityStore) ListByWorker(ctx context.Context, workerID uuid.UUID, filter domain.ActivityFilter, cursor *domain.Cursor, limit int) ([]domain.ActivityRecord, *domain.Cursor, error) {
	if limit <= 0 {
		limit = 20
	}

	query := fmt.Sprintf(`SELECT %s FROM activity_records WHERE worker_id=$1`, activityColumns)
	args := []any{workerID}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		query += fmt.Sprintf(` AND kind=$%d`, len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(` AND start_time >= $%d`, len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(` AND start_time <= $%d`, len(args))
	}
	if cursor != nil {
		args = append(args, cursor.StartTime, cursor.ID)
		query += fmt.Sprintf(` AND (start_time, id) < ($%d, $%d)`, len(args)-1, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY start_time DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, domain.Unavailable(err)
	}
	defer rows.Close()

	results, err := collectActivities(rows, limit)
	if err != nil {
		return nil, nil, domain.Unavailable(err)
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return results, next, nil
}

// ListActive implements domain.ActivityStore.
func (s *ActivityStore) ListActive(ctx context.Context) ([]domain.ActivityRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM activity_records WHERE status = ANY($1) ORDER BY start_time`, activityColumns)
	rows, err := s.pool.Query(ctx, query, activeStatuses())
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	defer rows.Close()

	results, err := collectActivities(rows, 0)
	if err != nil {
		return nil, domain.Unavailable(err)
	}
	return results, nil
}

func (s *ActivityStore) findActiveTx(ctx context.Context, tx pgx.Tx, workerID, exclude uuid.UUID) (*domain.ActivityRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM activity_records WHERE worker_id=$1 AND status = ANY($2) AND id <> $3 LIMIT 1`, activityColumns)
	rec, err := scanActivity(tx.QueryRow(ctx, query, workerID, activeStatuses(), exclude))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.Unavailable(err)
	}
	return rec, nil
}

func (s *ActivityStore) updateTx(ctx context.Context, tx pgx.Tx, rec *domain.ActivityRecord) error {
	tag, err := tx.Exec(ctx, `UPDATE activity_records
        SET status=$2, end_time=$3, paused_at=$4, total_paused_minutes=$5, notes=$6, updated_at=$7
        WHERE id=$1`,
		rec.ID,
		rec.Status,
		rec.EndTime,
		rec.PausedAt,
		rec.TotalPausedMinutes,
		rec.Notes,
		rec.UpdatedAt,
	)
	if err != nil {
		return domain.Unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: activity record %s", domain.ErrNotFound, rec.ID)
	}
	return nil
}

func (s *ActivityStore) insertStateChanged(ctx context.Context, tx pgx.Tx, rec *domain.ActivityRecord) error {
	return insertOutbox(ctx, tx, "activity", rec.ID.String(), rec.WorkerID.String(), "activity.state_changed", events.ActivityStateChanged{
		ActivityID: rec.ID.String(),
		WorkerID:   rec.WorkerID.String(),
		Status:     string(rec.Status),
		OccurredAt: rec.UpdatedAt,
	}, rec.UpdatedAt)
}

// conflictFromBackstop resolves the rare case where the partial unique index
// fired before the advisory-lock check could, and fetches the winner.
func (s *ActivityStore) conflictFromBackstop(ctx context.Context, workerID uuid.UUID) error {
	active, err := s.FindActive(ctx, workerID)
	if err != nil {
		return err
	}
	if active == nil {
		return domain.ErrConflict
	}
	return &domain.ConflictError{Active: active}
}

func activeStatuses() []string {
	out := make([]string, len(domain.ActiveStatuses))
	for i, st := range domain.ActiveStatuses {
		out[i] = string(st)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanActivity(row pgx.Row) (*domain.ActivityRecord, error) {
	var rec domain.ActivityRecord
	err := row.Scan(
		&rec.ID,
		&rec.WorkerID,
		&rec.TaskID,
		&rec.Kind,
		&rec.Status,
		&rec.StartTime,
		&rec.EndTime,
		&rec.PausedAt,
		&rec.TotalPausedMinutes,
		&rec.Notes,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func collectActivities(rows pgx.Rows, sizeHint int) ([]domain.ActivityRecord, error) {
	results := make([]domain.ActivityRecord, 0, sizeHint)
	for rows.Next() {
		rec, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
