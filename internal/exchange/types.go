package exchange

import (
	"context"
	"fmt"
	"time"
)

// Key addresses a single exchange entry.
type Key struct {
	RunID  string `json:"run_id"`
	TaskID string `json:"task_id"` // producing task
	Label  string `json:"label"`
}

// String renders the key as run/task/label.
func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s", k.RunID, k.TaskID, k.Label)
}

// Entry is a published value. Value holds the encoded payload.
type Entry struct {
	Key       Key       `json:"key"`
	Value     []byte    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the storage backend behind an Exchange.
//
// Put must be a single atomic insert-or-replace so that concurrent readers
// observe either the previous entry or the new one, never a partial write.
// Get returns an error wrapping ErrAbsent when the key does not exist.
type Store interface {
	Put(ctx context.Context, entry Entry) error
	Get(ctx context.Context, key Key) (Entry, error)
	// Labels returns the labels published by taskID in runID, sorted.
	Labels(ctx context.Context, runID, taskID string) ([]string, error)
	// DeleteRun removes every entry of runID.
	DeleteRun(ctx context.Context, runID string) error
}

// Absent builds the error a Store returns for a missing key.
func Absent(key Key) error {
	return fmt.Errorf("%w: %s", ErrAbsent, key)
}
