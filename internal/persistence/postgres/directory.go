package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/timeclock/internal/domain"
)

// WorkerDirectory answers worker reference queries from the workers table.
type WorkerDirectory struct {
	pool *pgxpool.Pool
}

// NewWorkerDirectory constructs a WorkerDirectory.
func NewWorkerDirectory(pool *pgxpool.Pool) *WorkerDirectory {
	return &WorkerDirectory{pool: pool}
}

// Exists implements domain.WorkerDirectory.
func (d *WorkerDirectory) Exists(ctx context.Context, workerID uuid.UUID) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM workers WHERE id=$1)`, workerID).Scan(&exists)
	if err != nil {
		return false, domain.Unavailable(err)
	}
	return exists, nil
}

// IsActive implements domain.WorkerDirectory.
func (d *WorkerDirectory) IsActive(ctx context.Context, workerID uuid.UUID) (bool, error) {
	var active bool
	err := d.pool.QueryRow(ctx, `SELECT COALESCE((SELECT is_active FROM workers WHERE id=$1), FALSE)`, workerID).Scan(&active)
	if err != nil {
		return false, domain.Unavailable(err)
	}
	return active, nil
}

// TaskDirectory answers task reference queries from the tasks table.
type TaskDirectory struct {
	pool *pgxpool.Pool
}

// NewTaskDirectory constructs a TaskDirectory.
func NewTaskDirectory(pool *pgxpool.Pool) *TaskDirectory {
	return &TaskDirectory{pool: pool}
}

// Exists implements domain.TaskDirectory.
func (d *TaskDirectory) Exists(ctx context.Context, taskID uuid.UUID) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tasks WHERE id=$1)`, taskID).Scan(&exists)
	if err != nil {
		return false, domain.Unavailable(err)
	}
	return exists, nil
}

// IsEnabled implements domain.TaskDirectory.
func (d *TaskDirectory) IsEnabled(ctx context.Context, taskID uuid.UUID) (bool, error) {
	var enabled bool
	err := d.pool.QueryRow(ctx, `SELECT COALESCE((SELECT is_enabled FROM tasks WHERE id=$1), FALSE)`, taskID).Scan(&enabled)
	if err != nil {
		return false, domain.Unavailable(err)
	}
	return enabled, nil
}

// IsEligible reports whether the task is open to everyone or allows the
// worker explicitly.
func (d *TaskDirectory) IsEligible(ctx context.Context, taskID, workerID uuid.UUID) (bool, error) {
	var eligible bool
	err := d.pool.QueryRow(ctx, `SELECT COALESCE(
            (SELECT open_to_all FROM tasks WHERE id=$1),
            FALSE
        ) OR EXISTS(
            SELECT 1 FROM task_allowed_workers WHERE task_id=$1 AND worker_id=$2
        )`, taskID, workerID).Scan(&eligible)
	if err != nil {
		return false, domain.Unavailable(err)
	}
	return eligible, nil
}
