//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/timeclock/internal/domain"
)

func setupDatabase(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("timeclock"),
		postgrescontainer.WithUsername("timeclock"),
		postgrescontainer.WithPassword("timeclock"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, waitForDatabase(ctx, connStr))
	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })
	return pool
}

func seedWorker(t *testing.T, ctx context.Context, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(ctx, `INSERT INTO workers (id, full_name, is_active) VALUES ($1, 'Integration Worker', TRUE)`, id)
	require.NoError(t, err)
	return id
}

func seedTask(t *testing.T, ctx context.Context, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(ctx, `INSERT INTO tasks (id, title, is_enabled, open_to_all) VALUES ($1, 'Integration Task', TRUE, TRUE)`, id)
	require.NoError(t, err)
	return id
}

func TestActivityStoreExclusivity(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)
	store := NewActivityStore(pool)

	worker := seedWorker(t, ctx, pool)
	task := seedTask(t, ctx, pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := &domain.ActivityRecord{
		ID:        uuid.New(),
		WorkerID:  worker,
		TaskID:    &task,
		Kind:      domain.KindTask,
		Status:    domain.StatusInProgress,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Create(ctx, first))

	second := &domain.ActivityRecord{
		ID:        uuid.New(),
		WorkerID:  worker,
		Kind:      domain.KindBreak,
		Status:    domain.StatusOnBreak,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := store.Create(ctx, second)
	var conflict *domain.ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, first.ID, conflict.Active.ID)

	// Interrupting the first record frees the slot.
	end := now.Add(10 * time.Minute)
	first.Status = domain.StatusInterrupted
	first.EndTime = &end
	first.UpdatedAt = end
	require.NoError(t, store.Update(ctx, first))
	require.NoError(t, store.Create(ctx, second))

	active, err := store.FindActive(ctx, worker)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, second.ID, active.ID)
}

func TestActivityStorePauseRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)
	store := NewActivityStore(pool)

	worker := seedWorker(t, ctx, pool)
	task := seedTask(t, ctx, pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	rec := &domain.ActivityRecord{
		ID:        uuid.New(),
		WorkerID:  worker,
		TaskID:    &task,
		Kind:      domain.KindTask,
		Status:    domain.StatusInProgress,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Create(ctx, rec))

	pausedAt := now.Add(30 * time.Minute)
	rec.Status = domain.StatusPaused
	rec.PausedAt = &pausedAt
	rec.UpdatedAt = pausedAt
	require.NoError(t, store.Update(ctx, rec))

	rec.Status = domain.StatusInProgress
	rec.PausedAt = nil
	rec.TotalPausedMinutes = 10
	rec.UpdatedAt = pausedAt.Add(10 * time.Minute)
	require.NoError(t, store.Reactivate(ctx, rec))

	stored, err := store.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, domain.StatusInProgress, stored.Status)
	require.Nil(t, stored.PausedAt)
	require.Equal(t, 10, stored.TotalPausedMinutes)
}

func TestActivityStoreWritesOutboxEvents(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)
	store := NewActivityStore(pool)

	worker := seedWorker(t, ctx, pool)
	task := seedTask(t, ctx, pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	rec := &domain.ActivityRecord{
		ID:        uuid.New(),
		WorkerID:  worker,
		TaskID:    &task,
		Kind:      domain.KindTask,
		Status:    domain.StatusInProgress,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Create(ctx, rec))

	var started, stateChanged int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE aggregate_id=$1 AND event_type='activity.started'`, rec.ID.String()).Scan(&started))
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox WHERE aggregate_id=$1 AND event_type='activity.state_changed'`, rec.ID.String()).Scan(&stateChanged))
	require.Equal(t, 1, started)
	require.Equal(t, 1, stateChanged)
}

func TestAttendanceStoreOpenWindowExclusive(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)
	store := NewAttendanceStore(pool)

	worker := seedWorker(t, ctx, pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := &domain.AttendanceRecord{
		ID:        uuid.New(),
		WorkerID:  worker,
		CheckIn:   now,
		Location:  domain.LocationOffice,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.Create(ctx, first))

	err := store.Create(ctx, &domain.AttendanceRecord{
		ID:        uuid.New(),
		WorkerID:  worker,
		CheckIn:   now.Add(time.Minute),
		Location:  domain.LocationHome,
		CreatedAt: now,
		UpdatedAt: now,
	})
	var conflict *domain.AttendanceConflictError
	require.True(t, errors.As(err, &conflict))
	require.Equal(t, first.ID, conflict.Open.ID)

	out := now.Add(8 * time.Hour)
	first.CheckOut = &out
	first.UpdatedAt = out
	require.NoError(t, store.Update(ctx, first))

	stats, err := store.CountOpenByLocation(ctx)
	require.NoError(t, err)
	require.Zero(t, stats[domain.LocationOffice])
}

func TestDirectoryEligibility(t *testing.T) {
	ctx := context.Background()
	pool := setupDatabase(t, ctx)
	tasks := NewTaskDirectory(pool)

	worker := seedWorker(t, ctx, pool)
	task := uuid.New()
	_, err := pool.Exec(ctx, `INSERT INTO tasks (id, title, is_enabled, open_to_all) VALUES ($1, 'Restricted Task', TRUE, FALSE)`, task)
	require.NoError(t, err)

	eligible, err := tasks.IsEligible(ctx, task, worker)
	require.NoError(t, err)
	require.False(t, eligible)

	_, err = pool.Exec(ctx, `INSERT INTO task_allowed_workers (task_id, worker_id) VALUES ($1, $2)`, task, worker)
	require.NoError(t, err)

	eligible, err = tasks.IsEligible(ctx, task, worker)
	require.NoError(t, err)
	require.True(t, eligible)
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	files := []string{
		"../../../db/postgres/migrations/0001_init.up.sql",
	}

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, rel := range files {
		path := resolvePath(t, rel)
		contents, readErr := os.ReadFile(path)
		require.NoError(t, readErr)

		_, execErr := pool.Exec(ctx, string(contents))
		require.NoError(t, execErr)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
