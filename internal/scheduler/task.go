package scheduler

import (
	"context"
	"time"

	"github.com/aristath/etlrun/internal/exchange"
)

// TaskStatus represents the current state of a task instance.
type TaskStatus int

const (
	TaskPending        TaskStatus = iota // Waiting for dependencies
	TaskEligible                         // All dependencies resolved, ready to run
	TaskRunning                          // Currently executing
	TaskCompleted                        // Finished successfully
	TaskFailed                           // Finished with error
	TaskSkipped                          // Intentionally not run
	TaskUpstreamFailed                   // Never ran because a hard dependency failed
)

var statusNames = map[TaskStatus]string{
	TaskPending:        "pending",
	TaskEligible:       "eligible",
	TaskRunning:        "running",
	TaskCompleted:      "completed",
	TaskFailed:         "failed",
	TaskSkipped:        "skipped",
	TaskUpstreamFailed: "upstream_failed",
}

func (s TaskStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the status by name in JSON output.
func (s TaskStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether the status is final for a run.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskSkipped, TaskUpstreamFailed:
		return true
	}
	return false
}

// FailureMode determines how a task's failure affects dependents.
type FailureMode int

const (
	FailHard FailureMode = iota // Block ALL dependents
	FailSoft                    // Dependents CAN still run
	FailSkip                    // Treat as success for dependency purposes
)

// Body is the work a task performs. It receives a handle bound to the
// current run and to the task's own identity.
type Body func(ctx context.Context, h *exchange.Handle) error

// Task represents a unit of work in the DAG.
type Task struct {
	ID          string        // Unique identifier, also the exchange producer identity
	Name        string        // Human-readable name
	DependsOn   []string      // Task IDs this task depends on
	FailureMode FailureMode
	Retries     uint64        // Extra attempts after the first failure
	Timeout     time.Duration // Per-attempt timeout, 0 means none
	Body        Body

	Status     TaskStatus
	Attempts   int
	Error      error
	StartedAt  time.Time
	FinishedAt time.Time
}
