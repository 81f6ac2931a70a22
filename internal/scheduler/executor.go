package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aristath/etlrun/internal/exchange"
)

// RetryConfig configures exponential backoff between task attempts.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 100ms)
	MaxInterval         time.Duration // Maximum retry interval (default 10s)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// RetryFunc is called before a failed attempt is retried.
type RetryFunc func(task *Task, attempt int, err error, wait time.Duration)

// Executor runs a single task's body against the DAG: it checks
// eligibility, marks the task running, retries transient failures, and
// records the terminal status.
type Executor struct {
	dag     *DAG
	retry   RetryConfig
	onRetry RetryFunc
}

// NewExecutor creates a new Executor.
func NewExecutor(dag *DAG, retry RetryConfig) *Executor {
	return &Executor{dag: dag, retry: retry}
}

// OnRetry registers a callback invoked before each retry.
func (e *Executor) OnRetry(fn RetryFunc) {
	e.onRetry = fn
}

// ExecuteTask runs taskID with the given exchange handle.
// A task failure is recorded in the DAG and also returned, so callers can
// report it; infrastructure errors (unknown task, not eligible) return
// without touching the DAG.
func (e *Executor) ExecuteTask(ctx context.Context, taskID string, h *exchange.Handle) error {
	task, exists := e.dag.Get(taskID)
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}

	if task.Status != TaskPending && task.Status != TaskEligible {
		return fmt.Errorf("task %q is not eligible (status: %s)", taskID, task.Status)
	}
	if ok, _ := e.dag.Resolved(taskID); !ok {
		return fmt.Errorf("task %q has unresolved dependencies", taskID)
	}

	if err := e.dag.MarkRunning(taskID); err != nil {
		return err
	}

	if task.Body == nil {
		err := fmt.Errorf("task %q has no body", taskID)
		_ = e.dag.MarkFailed(taskID, 0, err)
		return err
	}

	// Check context before the first attempt
	if err := ctx.Err(); err != nil {
		markErr := fmt.Errorf("context cancelled before execution: %w", err)
		_ = e.dag.MarkFailed(taskID, 0, markErr)
		return markErr
	}

	attempts := 0
	operation := func() error {
		attempts++
		err := e.attempt(ctx, task, h)
		if err == nil {
			return nil
		}
		if IsFatal(err) || ctx.Err() != nil || isExchangeContractError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		if e.onRetry != nil {
			e.onRetry(task, attempts, err, wait)
		}
	}

	err := backoff.RetryNotify(operation, e.policy(ctx, task.Retries), notify)
	if err != nil {
		_ = e.dag.MarkFailed(taskID, attempts, err)
		return err
	}

	_ = e.dag.MarkCompleted(taskID, attempts)
	return nil
}

// attempt runs the body once under the task's timeout.
func (e *Executor) attempt(ctx context.Context, task *Task, h *exchange.Handle) (err error) {
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = Fatal(fmt.Errorf("task %q panicked: %v", task.ID, r))
		}
	}()

	return task.Body(ctx, h)
}

func (e *Executor) policy(ctx context.Context, retries uint64) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.retry.InitialInterval
	b.MaxInterval = e.retry.MaxInterval
	b.Multiplier = e.retry.Multiplier
	b.RandomizationFactor = e.retry.RandomizationFactor
	// Attempt count, not elapsed time, bounds task retries
	b.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}

// isExchangeContractError reports errors that a retry reproduces exactly.
func isExchangeContractError(err error) bool {
	return errors.Is(err, exchange.ErrIdentity) ||
		errors.Is(err, exchange.ErrUnknownRun) ||
		errors.Is(err, exchange.ErrEmptyLabel)
}

// NextEligible returns tasks that are ready to run.
func (e *Executor) NextEligible() []*Task {
	return e.dag.Eligible()
}
