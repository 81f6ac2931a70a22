package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/etlrun/internal/exchange"
)

// Put upserts an exchange entry. A single statement keeps the replace atomic.
func (s *SQLiteStore) Put(ctx context.Context, entry exchange.Entry) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	value := entry.Value
	if value == nil {
		value = []byte{}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchange_entries (run_id, task_id, label, value, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, task_id, label) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, entry.Key.RunID, entry.Key.TaskID, entry.Key.Label, value, toNanos(entry.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert entry %s: %w", entry.Key, err)
	}
	return nil
}

// Get returns the entry for key or an error wrapping exchange.ErrAbsent.
func (s *SQLiteStore) Get(ctx context.Context, key exchange.Key) (exchange.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		value     []byte
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT value, updated_at
		FROM exchange_entries
		WHERE run_id = ? AND task_id = ? AND label = ?
	`, key.RunID, key.TaskID, key.Label).Scan(&value, &updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return exchange.Entry{}, exchange.Absent(key)
	}
	if err != nil {
		return exchange.Entry{}, fmt.Errorf("failed to query entry %s: %w", key, err)
	}

	return exchange.Entry{Key: key, Value: value, UpdatedAt: fromNanos(updatedAt)}, nil
}

// Labels lists labels published by taskID within runID, sorted.
// Returns empty slice (not nil) if nothing was published.
func (s *SQLiteStore) Labels(ctx context.Context, runID, taskID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT label
		FROM exchange_entries
		WHERE run_id = ? AND task_id = ?
		ORDER BY label ASC
	`, runID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query labels: %w", err)
	}
	defer rows.Close()

	labels := []string{}
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating labels: %w", err)
	}
	return labels, nil
}

// Producers lists the task IDs that published at least one entry in runID.
func (s *SQLiteStore) Producers(ctx context.Context, runID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT task_id
		FROM exchange_entries
		WHERE run_id = ?
		ORDER BY task_id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query producers: %w", err)
	}
	defer rows.Close()

	producers := []string{}
	for rows.Next() {
		var taskID string
		if err := rows.Scan(&taskID); err != nil {
			return nil, fmt.Errorf("failed to scan producer: %w", err)
		}
		producers = append(producers, taskID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating producers: %w", err)
	}
	return producers, nil
}

// DeleteRun removes every exchange entry of runID. Run history is kept.
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM exchange_entries WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete entries of run %s: %w", runID, err)
	}
	return nil
}
