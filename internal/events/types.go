package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	Topic() string
	RunID() string
}

// Topic constants
const (
	TopicRun      = "run"
	TopicTask     = "task"
	TopicExchange = "exchange"
)

// Event type constants
const (
	EventTypeRunStarted     = "run.started"
	EventTypeRunFinished    = "run.finished"
	EventTypeTaskStarted    = "task.started"
	EventTypeTaskCompleted  = "task.completed"
	EventTypeTaskFailed     = "task.failed"
	EventTypeTaskSkipped    = "task.skipped"
	EventTypeTaskRetrying   = "task.retrying"
	EventTypeEntryPublished = "exchange.published"
	EventTypeDAGProgress    = "run.progress"
)

// RunStartedEvent is published when an execution is created.
type RunStartedEvent struct {
	Run        string
	WorkflowID string
	Tasks      int
	Timestamp  time.Time
}

func (e RunStartedEvent) EventType() string { return EventTypeRunStarted }
func (e RunStartedEvent) Topic() string     { return TopicRun }
func (e RunStartedEvent) RunID() string     { return e.Run }

// RunFinishedEvent is published once every task reached a terminal state.
type RunFinishedEvent struct {
	Run       string
	Succeeded bool
	Duration  time.Duration
	Timestamp time.Time
}

func (e RunFinishedEvent) EventType() string { return EventTypeRunFinished }
func (e RunFinishedEvent) Topic() string     { return TopicRun }
func (e RunFinishedEvent) RunID() string     { return e.Run }

// TaskStartedEvent is published when a task instance begins execution.
type TaskStartedEvent struct {
	Run       string
	TaskID    string
	Name      string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) Topic() string     { return TopicTask }
func (e TaskStartedEvent) RunID() string     { return e.Run }

// TaskCompletedEvent is published when a task instance succeeds.
type TaskCompletedEvent struct {
	Run       string
	TaskID    string
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) Topic() string     { return TopicTask }
func (e TaskCompletedEvent) RunID() string     { return e.Run }

// TaskFailedEvent is published when a task instance fails for good.
type TaskFailedEvent struct {
	Run       string
	TaskID    string
	Err       error
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) Topic() string     { return TopicTask }
func (e TaskFailedEvent) RunID() string     { return e.Run }

// TaskRetryingEvent is published before a failed attempt is retried.
type TaskRetryingEvent struct {
	Run       string
	TaskID    string
	Attempt   int
	Err       error
	Wait      time.Duration
	Timestamp time.Time
}

func (e TaskRetryingEvent) EventType() string { return EventTypeTaskRetrying }
func (e TaskRetryingEvent) Topic() string     { return TopicTask }
func (e TaskRetryingEvent) RunID() string     { return e.Run }

// TaskSkippedEvent is published for tasks that can never run because an
// upstream task failed.
type TaskSkippedEvent struct {
	Run       string
	TaskID    string
	Reason    string
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) Topic() string     { return TopicTask }
func (e TaskSkippedEvent) RunID() string     { return e.Run }

// EntryPublishedEvent is published after an exchange entry was written.
type EntryPublishedEvent struct {
	Run       string
	TaskID    string
	Label     string
	Size      int
	Timestamp time.Time
}

func (e EntryPublishedEvent) EventType() string { return EventTypeEntryPublished }
func (e EntryPublishedEvent) Topic() string     { return TopicExchange }
func (e EntryPublishedEvent) RunID() string     { return e.Run }

// DAGProgressEvent is published when task counts of a run change.
type DAGProgressEvent struct {
	Run       string
	Total     int
	Completed int
	Running   int
	Failed    int
	Skipped   int
	Pending   int
	Timestamp time.Time
}

func (e DAGProgressEvent) EventType() string { return EventTypeDAGProgress }
func (e DAGProgressEvent) Topic() string     { return TopicRun }
func (e DAGProgressEvent) RunID() string     { return e.Run }
