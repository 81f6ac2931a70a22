package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a recorded run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one execution of a workflow.
type RunRecord struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// SaveRun inserts or replaces a run record.
func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, workflow_id, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workflow_id = excluded.workflow_id,
			status = excluded.status,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`, run.ID, run.WorkflowID, string(run.Status), run.Error, toNanos(run.StartedAt), toNanos(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun records the terminal status of a run.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status RunStatus, runErr string, finishedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?
	`, string(status), runErr, toNanos(finishedAt), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun retrieves a run record by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, status, error, started_at, finished_at
		FROM runs
		WHERE id = ?
	`, runID)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to query run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_id, status, error, started_at, finished_at
		FROM runs
		ORDER BY started_at DESC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var (
		run               RunRecord
		status            string
		started, finished   int64
	)
	if err := row.Scan(&run.ID, &run.WorkflowID, &status, &run.Error, &started, &finished); err != nil {
		return RunRecord{}, err
	}
	run.Status = RunStatus(status)
	run.StartedAt = fromNanos(started)
	run.FinishedAt = fromNanos(finished)
	return run, nil
}
