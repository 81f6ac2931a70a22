package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/etlrun/internal/exchange"
)

// fastRetry keeps retry waits short in tests.
var fastRetry = RetryConfig{
	InitialInterval:     time.Millisecond,
	MaxInterval:         5 * time.Millisecond,
	Multiplier:          2.0,
	RandomizationFactor: 0,
}

// setupExecutor builds a single-task DAG and a handle for that task.
func setupExecutor(t *testing.T, task *Task) (*DAG, *Executor, *exchange.Handle) {
	t.Helper()

	dag := NewDAG()
	task.Status = TaskPending
	if err := dag.AddTask(task); err != nil {
		t.Fatalf("AddTask() error = %v", err)
	}
	if _, err := dag.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	x := exchange.New(exchange.NewMemoryStore())
	if err := x.BeginRun("run-1"); err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}
	h, err := x.Enter("run-1", task.ID)
	if err != nil {
		t.Fatalf("Enter() error = %v", err)
	}

	return dag, NewExecutor(dag, fastRetry), h
}

func TestExecutor_SuccessfulExecution(t *testing.T) {
	dag, exec, h := setupExecutor(t, &Task{
		ID: "task-1",
		Body: func(ctx context.Context, h *exchange.Handle) error {
			return h.Publish(ctx, "out", "value")
		},
	})

	if err := exec.ExecuteTask(context.Background(), "task-1", h); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	task, _ := dag.Get("task-1")
	if task.Status != TaskCompleted {
		t.Errorf("expected TaskCompleted, got %s", task.Status)
	}
	if task.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", task.Attempts)
	}
	if task.StartedAt.IsZero() || task.FinishedAt.IsZero() {
		t.Error("expected StartedAt and FinishedAt to be set")
	}

	var got string
	if err := h.Retrieve(context.Background(), "task-1", "out", &got); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if got != "value" {
		t.Errorf("Retrieve() = %q, want %q", got, "value")
	}
}

func TestExecutor_FailedExecution(t *testing.T) {
	boom := errors.New("boom")
	dag, exec, h := setupExecutor(t, &Task{
		ID: "task-1",
		Body: func(ctx context.Context, h *exchange.Handle) error {
			return boom
		},
	})

	err := exec.ExecuteTask(context.Background(), "task-1", h)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got: %v", err)
	}

	task, _ := dag.Get("task-1")
	if task.Status != TaskFailed {
		t.Errorf("expected TaskFailed, got %s", task.Status)
	}
	if !errors.Is(task.Error, boom) {
		t.Errorf("expected task error to wrap boom, got %v", task.Error)
	}
}

func TestExecutor_RetryThenSuccess(t *testing.T) {
	var calls atomic.Int32
	var retries []int

	dag, exec, h := setupExecutor(t, &Task{
		ID:      "task-1",
		Retries: 3,
		Body: func(ctx context.Context, h *exchange.Handle) error {
			if calls.Add(1) < 3 {
				return fmt.Errorf("transient failure")
			}
			return nil
		},
	})
	exec.OnRetry(func(task *Task, attempt int, err error, wait time.Duration) {
		retries = append(retries, attempt)
	})

	if err := exec.ExecuteTask(context.Background(), "task-1", h); err != nil {
		t.Fatalf("expected success after retries, got: %v", err)
	}

	task, _ := dag.Get("task-1")
	if task.Status != TaskCompleted {
		t.Errorf("expected TaskCompleted, got %s", task.Status)
	}
	if task.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", task.Attempts)
	}
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("expected retry callbacks for attempts [1 2], got %v", retries)
	}
}

func TestExecutor_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	dag, exec, h := setupExecutor(t, &Task{
		ID:      "task-1",
		Retries: 2,
		Body: func(ctx context.Context, h *exchange.Handle) error {
			calls.Add(1)
			return errors.New("always fails")
		},
	})

	if err := exec.ExecuteTask(context.Background(), "task-1", h); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls (1 + 2 retries), got %d", calls.Load())
	}

	task, _ := dag.Get("task-1")
	if task.Attempts != 3 {
		t.Errorf("expected 3 attempts recorded, got %d", task.Attempts)
	}
}

func TestExecutor_FatalNotRetried(t *testing.T) {
	var calls atomic.Int32
	sentinel := errors.New("bad input")
	_, exec, h := setupExecutor(t, &Task{
		ID:      "task-1",
		Retries: 5,
		Body: func(ctx context.Context, h *exchange.Handle) error {
			calls.Add(1)
			return Fatal(sentinel)
		},
	})

	err := exec.ExecuteTask(context.Background(), "task-1", h)
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("fatal error should not be retried, got %d calls", calls.Load())
	}
}

func TestExecutor_ExchangeContractErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	_, exec, h := setupExecutor(t, &Task{
		ID:      "task-1",
		Retries: 5,
		Body: func(ctx context.Context, h *exchange.Handle) error {
			calls.Add(1)
			return h.Publish(ctx, "", "no label")
		},
	})

	err := exec.ExecuteTask(context.Background(), "task-1", h)
	if !errors.Is(err, exchange.ErrEmptyLabel) {
		t.Fatalf("expected ErrEmptyLabel, got: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("contract error should not be retried, got %d calls", calls.Load())
	}
}

func TestExecutor_Timeout(t *testing.T) {
	_, exec, h := setupExecutor(t, &Task{
		ID:      "task-1",
		Timeout: 10 * time.Millisecond,
		Body: func(ctx context.Context, h *exchange.Handle) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	err := exec.ExecuteTask(context.Background(), "task-1", h)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got: %v", err)
	}
}

func TestExecutor_Panic(t *testing.T) {
	dag, exec, h := setupExecutor(t, &Task{
		ID:      "task-1",
		Retries: 3,
		Body: func(ctx context.Context, h *exchange.Handle) error {
			panic("kaboom")
		},
	})

	err := exec.ExecuteTask(context.Background(), "task-1", h)
	if err == nil || !IsFatal(err) {
		t.Fatalf("expected fatal panic error, got: %v", err)
	}

	task, _ := dag.Get("task-1")
	if task.Attempts != 1 {
		t.Errorf("panic should not be retried, got %d attempts", task.Attempts)
	}
}

func TestExecutor_NilBody(t *testing.T) {
	dag, exec, h := setupExecutor(t, &Task{ID: "task-1"})

	if err := exec.ExecuteTask(context.Background(), "task-1", h); err == nil {
		t.Fatal("expected error for task without body")
	}

	task, _ := dag.Get("task-1")
	if task.Status != TaskFailed {
		t.Errorf("expected TaskFailed, got %s", task.Status)
	}
}

func TestExecutor_NotEligible(t *testing.T) {
	dag := NewDAG()
	_ = dag.AddTask(&Task{ID: "task-1", Status: TaskPending, Body: noop})
	_ = dag.AddTask(&Task{ID: "task-2", DependsOn: []string{"task-1"}, Status: TaskPending, Body: noop})
	_, _ = dag.Validate()

	exec := NewExecutor(dag, fastRetry)

	if err := exec.ExecuteTask(context.Background(), "task-2", nil); err == nil {
		t.Fatal("expected error for task with unresolved dependencies")
	}
	task, _ := dag.Get("task-2")
	if task.Status != TaskPending {
		t.Errorf("task-2 should stay pending, got %s", task.Status)
	}

	_ = dag.MarkCompleted("task-1", 1)
	if err := exec.ExecuteTask(context.Background(), "task-1", nil); err == nil {
		t.Fatal("expected error for already completed task")
	}

	if err := exec.ExecuteTask(context.Background(), "missing", nil); err == nil {
		t.Fatal("expected error for unknown task")
	}
}

func TestExecutor_ContextCancellation(t *testing.T) {
	var calls atomic.Int32
	dag, exec, h := setupExecutor(t, &Task{
		ID: "task-1",
		Body: func(ctx context.Context, h *exchange.Handle) error {
			calls.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.ExecuteTask(ctx, "task-1", h)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("body should not run after cancellation, got %d calls", calls.Load())
	}

	task, _ := dag.Get("task-1")
	if task.Status != TaskFailed {
		t.Errorf("expected TaskFailed, got %s", task.Status)
	}
}

func TestExecutor_NextEligible(t *testing.T) {
	dag := NewDAG()
	_ = dag.AddTask(&Task{ID: "a", Status: TaskPending, Body: noop})
	_ = dag.AddTask(&Task{ID: "b", DependsOn: []string{"a"}, Status: TaskPending, Body: noop})
	_, _ = dag.Validate()

	exec := NewExecutor(dag, fastRetry)

	eligible := exec.NextEligible()
	if len(eligible) != 1 || eligible[0].ID != "a" {
		t.Fatalf("expected only a eligible, got %v", ids(eligible))
	}

	if err := exec.ExecuteTask(context.Background(), "a", nil); err != nil {
		t.Fatalf("ExecuteTask(a) error = %v", err)
	}

	eligible = exec.NextEligible()
	if len(eligible) != 1 || eligible[0].ID != "b" {
		t.Fatalf("expected only b eligible, got %v", ids(eligible))
	}
}

func noop(ctx context.Context, h *exchange.Handle) error { return nil }

func TestFatal(t *testing.T) {
	if Fatal(nil) != nil {
		t.Error("Fatal(nil) should be nil")
	}

	base := errors.New("base")
	wrapped := fmt.Errorf("outer: %w", Fatal(base))
	if !IsFatal(wrapped) {
		t.Error("IsFatal should see through wrapping")
	}
	if !errors.Is(wrapped, base) {
		t.Error("errors.Is should reach the wrapped error")
	}
	if IsFatal(base) {
		t.Error("plain error should not be fatal")
	}
}
