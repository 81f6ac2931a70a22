package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TaskRecord is the history of one task instance within a run.
type TaskRecord struct {
	RunID      string    `json:"run_id"`
	TaskID     string    `json:"task_id"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// SaveTaskInstance saves or updates a task instance.
// The first save of a task fixes its position in ListTaskInstances.
func (s *SQLiteStore) SaveTaskInstance(ctx context.Context, task TaskRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM task_instances WHERE run_id = ?
	`, task.RunID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to allocate sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_instances (run_id, task_id, status, attempts, error, started_at, finished_at, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, task_id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`, task.RunID, task.TaskID, task.Status, task.Attempts, task.Error,
		toNanos(task.StartedAt), toNanos(task.FinishedAt), seq)
	if err != nil {
		return fmt.Errorf("failed to upsert task instance %s/%s: %w", task.RunID, task.TaskID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListTaskInstances returns the task instances of a run in the order they
// were first saved. Returns empty slice (not nil) for an unknown run.
func (s *SQLiteStore) ListTaskInstances(ctx context.Context, runID string) ([]TaskRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task_id, status, attempts, error, started_at, finished_at
		FROM task_instances
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query task instances: %w", err)
	}
	defer rows.Close()

	tasks := []TaskRecord{}
	for rows.Next() {
		var (
			task              TaskRecord
			started, finished int64
		)
		if err := rows.Scan(&task.RunID, &task.TaskID, &task.Status, &task.Attempts, &task.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan task instance: %w", err)
		}
		task.StartedAt = fromNanos(started)
		task.FinishedAt = fromNanos(finished)
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task instances: %w", err)
	}
	return tasks, nil
}
