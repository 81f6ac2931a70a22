package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/etlrun/internal/events"
	"github.com/aristath/etlrun/internal/exchange"
	"github.com/aristath/etlrun/internal/persistence"
	"github.com/aristath/etlrun/internal/scheduler"
	"github.com/aristath/etlrun/internal/tracing"
)

// TaskResult represents the outcome of a task instance.
type TaskResult struct {
	TaskID   string
	Status   scheduler.TaskStatus
	Attempts int
	Error    error
	Duration time.Duration
}

// RunResult is the outcome of one execution of a workflow.
type RunResult struct {
	RunID      string
	WorkflowID string
	Succeeded  bool
	Tasks      []TaskResult // In workflow declaration order
	StartedAt  time.Time
	FinishedAt time.Time
}

// Task returns the result of taskID.
func (r *RunResult) Task(taskID string) (TaskResult, bool) {
	for _, t := range r.Tasks {
		if t.TaskID == taskID {
			return t, true
		}
	}
	return TaskResult{}, false
}

// Err joins the errors of every failed task, or returns nil on success.
func (r *RunResult) Err() error {
	if r.Succeeded {
		return nil
	}
	var errs []error
	for _, t := range r.Tasks {
		switch {
		case t.Error != nil:
			errs = append(errs, fmt.Errorf("task %s: %w", t.TaskID, t.Error))
		case t.Status == scheduler.TaskUpstreamFailed:
			errs = append(errs, fmt.Errorf("task %s: upstream failed", t.TaskID))
		}
	}
	if len(errs) == 0 {
		return fmt.Errorf("run %s did not succeed", r.RunID)
	}
	return errors.Join(errs...)
}

// Config configures a Runner.
type Config struct {
	ConcurrencyLimit int                   // Max concurrent tasks per wave (default 4)
	Retry            scheduler.RetryConfig // Backoff between task attempts
	Exchange         *exchange.Exchange    // Required
	History          persistence.History   // Optional run history (nil disables)
	Events           *events.EventBus      // Optional event bus (nil disables)
	Logger           *zap.Logger
	NewRunID         func() string // Defaults to uuid.NewString
	Now              func() time.Time
}

// Runner executes workflows: one fresh DAG and one exchange run per call.
type Runner struct {
	cfg Config
}

// NewRunner creates a runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Exchange == nil {
		return nil, fmt.Errorf("runner requires an exchange")
	}
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 4
	}
	if cfg.Retry == (scheduler.RetryConfig{}) {
		cfg.Retry = scheduler.DefaultRetryConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = uuid.NewString
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{cfg: cfg}, nil
}

// Run executes wf to completion. Task failures are reported in the result;
// the returned error is reserved for invalid workflows, exchange failures
// and cancellation of ctx.
func (r *Runner) Run(ctx context.Context, wf *scheduler.Workflow) (*RunResult, error) {
	dag, err := wf.Build()
	if err != nil {
		return nil, err
	}

	runID := r.cfg.NewRunID()
	if err := r.cfg.Exchange.BeginRun(runID); err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}

	started := r.cfg.Now()
	logger := r.cfg.Logger.With(zap.String("run_id", runID), zap.String("workflow", wf.ID))

	ctx, span := tracing.Start(ctx, "run "+wf.ID,
		attribute.String("run.id", runID),
		attribute.String("workflow.id", wf.ID),
	)

	r.saveRun(ctx, logger, persistence.RunRecord{
		ID:         runID,
		WorkflowID: wf.ID,
		Status:     persistence.RunRunning,
		StartedAt:  started,
	})
	r.cfg.Events.Publish(events.RunStartedEvent{
		Run:        runID,
		WorkflowID: wf.ID,
		Tasks:      len(wf.Tasks),
		Timestamp:  started,
	})
	logger.Info("run started", zap.Int("tasks", len(wf.Tasks)))

	executor := scheduler.NewExecutor(dag, r.cfg.Retry)
	executor.OnRetry(func(task *scheduler.Task, attempt int, err error, wait time.Duration) {
		logger.Warn("task attempt failed, retrying",
			zap.String("task", task.ID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		r.cfg.Events.Publish(events.TaskRetryingEvent{
			Run:       runID,
			TaskID:    task.ID,
			Attempt:   attempt,
			Err:       err,
			Wait:      wait,
			Timestamp: r.cfg.Now(),
		})
	})

	runErr := r.loop(ctx, logger, runID, dag, executor)
	if runErr != nil {
		r.skipRemaining(ctx, logger, runID, dag, "run cancelled")
	}

	result := r.collect(runID, wf.ID, dag, started)
	if runErr != nil {
		result.Succeeded = false
	}

	status, statusErr := persistence.RunSucceeded, ""
	if !result.Succeeded {
		status = persistence.RunFailed
		if err := result.Err(); err != nil {
			statusErr = err.Error()
		} else if runErr != nil {
			statusErr = runErr.Error()
		}
	}

	// Bookkeeping must complete even when ctx was cancelled
	cleanupCtx := context.WithoutCancel(ctx)
	if r.cfg.History != nil {
		if err := r.cfg.History.FinishRun(cleanupCtx, runID, status, statusErr, result.FinishedAt); err != nil {
			logger.Error("failed to record run outcome", zap.Error(err))
		}
	}

	if err := r.cfg.Exchange.EndRun(cleanupCtx, runID); err != nil && runErr == nil {
		runErr = fmt.Errorf("ending run: %w", err)
	}

	r.cfg.Events.Publish(events.RunFinishedEvent{
		Run:       runID,
		Succeeded: result.Succeeded,
		Duration:  result.FinishedAt.Sub(started),
		Timestamp: result.FinishedAt,
	})

	if result.Succeeded {
		logger.Info("run succeeded", zap.Duration("duration", result.FinishedAt.Sub(started)))
	} else {
		logger.Error("run failed", zap.Duration("duration", result.FinishedAt.Sub(started)), zap.Error(result.Err()))
	}

	spanErr := runErr
	if spanErr == nil {
		spanErr = result.Err()
	}
	tracing.End(span, spanErr)

	return result, runErr
}

// loop runs waves of eligible tasks until nothing is left to schedule.
func (r *Runner) loop(ctx context.Context, logger *zap.Logger, runID string, dag *scheduler.DAG, executor *scheduler.Executor) error {
	for {
		// Check for context cancellation
		if err := ctx.Err(); err != nil {
			return err
		}

		eligible := executor.NextEligible()
		if len(eligible) == 0 {
			blocked := dag.Blocked()
			if len(blocked) == 0 {
				// Nothing eligible and nothing blocked - we're done
				return nil
			}
			for _, task := range blocked {
				r.markUpstreamFailed(ctx, logger, runID, dag, task)
			}
			r.publishProgress(runID, dag)
			continue
		}

		// Execute wave of tasks with bounded concurrency
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.ConcurrencyLimit)

		for _, task := range eligible {
			t := task
			g.Go(func() error {
				r.executeTask(gctx, logger, runID, dag, executor, t)
				return nil // Task errors are tracked in the DAG
			})
		}

		_ = g.Wait()
		r.publishProgress(runID, dag)
	}
}

// executeTask runs one task instance with a handle bound to its identity.
func (r *Runner) executeTask(ctx context.Context, logger *zap.Logger, runID string, dag *scheduler.DAG, executor *scheduler.Executor, task *scheduler.Task) {
	logger = logger.With(zap.String("task", task.ID))
	started := r.cfg.Now()

	ctx, span := tracing.Start(ctx, "task "+task.ID,
		attribute.String("run.id", runID),
		attribute.String("task.id", task.ID),
	)

	r.cfg.Events.Publish(events.TaskStartedEvent{
		Run:       runID,
		TaskID:    task.ID,
		Name:      task.Name,
		Timestamp: started,
	})
	r.saveTask(ctx, logger, persistence.TaskRecord{
		RunID:     runID,
		TaskID:    task.ID,
		Status:    scheduler.TaskRunning.String(),
		StartedAt: started,
	})
	logger.Info("task started")

	h, err := r.cfg.Exchange.Enter(runID, task.ID)
	if err == nil {
		err = executor.ExecuteTask(ctx, task.ID, h)
		r.cfg.Exchange.Leave(runID, task.ID)
	}

	final, _ := dag.Get(task.ID)
	if err != nil && final.Status != scheduler.TaskFailed {
		// Refused before the body ran; record it against the task
		_ = dag.MarkFailed(task.ID, final.Attempts, err)
		final, _ = dag.Get(task.ID)
	}

	finished := r.cfg.Now()
	duration := finished.Sub(started)

	record := persistence.TaskRecord{
		RunID:      runID,
		TaskID:     task.ID,
		Status:     final.Status.String(),
		Attempts:   final.Attempts,
		StartedAt:  started,
		FinishedAt: finished,
	}

	if err != nil {
		record.Error = err.Error()
		logger.Error("task failed", zap.Int("attempts", final.Attempts), zap.Duration("duration", duration), zap.Error(err))
		r.cfg.Events.Publish(events.TaskFailedEvent{
			Run:       runID,
			TaskID:    task.ID,
			Err:       err,
			Attempts:  final.Attempts,
			Duration:  duration,
			Timestamp: finished,
		})
	} else {
		logger.Info("task completed", zap.Int("attempts", final.Attempts), zap.Duration("duration", duration))
		r.cfg.Events.Publish(events.TaskCompletedEvent{
			Run:       runID,
			TaskID:    task.ID,
			Attempts:  final.Attempts,
			Duration:  duration,
			Timestamp: finished,
		})
	}

	r.saveTask(ctx, logger, record)
	tracing.End(span, err)
}

func (r *Runner) markUpstreamFailed(ctx context.Context, logger *zap.Logger, runID string, dag *scheduler.DAG, task *scheduler.Task) {
	_ = dag.MarkUpstreamFailed(task.ID)
	now := r.cfg.Now()

	logger.Warn("task skipped, upstream failed", zap.String("task", task.ID))
	r.cfg.Events.Publish(events.TaskSkippedEvent{
		Run:       runID,
		TaskID:    task.ID,
		Reason:    "upstream failed",
		Timestamp: now,
	})
	r.saveTask(ctx, logger, persistence.TaskRecord{
		RunID:      runID,
		TaskID:     task.ID,
		Status:     scheduler.TaskUpstreamFailed.String(),
		FinishedAt: now,
	})
}

// skipRemaining marks every pending task skipped after the run was aborted.
func (r *Runner) skipRemaining(ctx context.Context, logger *zap.Logger, runID string, dag *scheduler.DAG, reason string) {
	for _, task := range dag.Tasks() {
		if task.Status.Terminal() {
			continue
		}
		_ = dag.MarkSkipped(task.ID)
		now := r.cfg.Now()
		r.cfg.Events.Publish(events.TaskSkippedEvent{
			Run:       runID,
			TaskID:    task.ID,
			Reason:    reason,
			Timestamp: now,
		})
		r.saveTask(ctx, logger, persistence.TaskRecord{
			RunID:      runID,
			TaskID:     task.ID,
			Status:     scheduler.TaskSkipped.String(),
			FinishedAt: now,
		})
	}
}

func (r *Runner) collect(runID, workflowID string, dag *scheduler.DAG, started time.Time) *RunResult {
	result := &RunResult{
		RunID:      runID,
		WorkflowID: workflowID,
		Succeeded:  true,
		StartedAt:  started,
		FinishedAt: r.cfg.Now(),
	}

	for _, task := range dag.Tasks() {
		tr := TaskResult{
			TaskID:   task.ID,
			Status:   task.Status,
			Attempts: task.Attempts,
			Error:    task.Error,
		}
		if !task.StartedAt.IsZero() && !task.FinishedAt.IsZero() {
			tr.Duration = task.FinishedAt.Sub(task.StartedAt)
		}
		switch task.Status {
		case scheduler.TaskCompleted:
		case scheduler.TaskFailed:
			if task.FailureMode != scheduler.FailSkip {
				result.Succeeded = false
			}
		default:
			result.Succeeded = false
		}
		result.Tasks = append(result.Tasks, tr)
	}
	return result
}

func (r *Runner) publishProgress(runID string, dag *scheduler.DAG) {
	p := dag.Progress()
	r.cfg.Events.Publish(events.DAGProgressEvent{
		Run:       runID,
		Total:     p.Total,
		Completed: p.Completed,
		Running:   p.Running,
		Failed:    p.Failed,
		Skipped:   p.Skipped,
		Pending:   p.Pending,
		Timestamp: r.cfg.Now(),
	})
}

func (r *Runner) saveRun(ctx context.Context, logger *zap.Logger, run persistence.RunRecord) {
	if r.cfg.History == nil {
		return
	}
	if err := r.cfg.History.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Error("failed to record run", zap.Error(err))
	}
}

func (r *Runner) saveTask(ctx context.Context, logger *zap.Logger, task persistence.TaskRecord) {
	if r.cfg.History == nil {
		return
	}
	if err := r.cfg.History.SaveTaskInstance(context.WithoutCancel(ctx), task); err != nil {
		logger.Error("failed to record task instance", zap.Error(err))
	}
}
