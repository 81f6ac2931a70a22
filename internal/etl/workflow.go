package etl

import (
	"go.uber.org/zap"

	"github.com/aristath/etlrun/internal/config"
	"github.com/aristath/etlrun/internal/notify"
	"github.com/aristath/etlrun/internal/scheduler"
)

// Workflow returns the reference pipeline:
//
//	extract_task >> transform_task >> load_task >> send_email
//
// Data, retries and per-attempt timeout come from cfg.Workflow; the report
// is addressed to cfg.Mail.To.
func Workflow(cfg *config.Config, transport notify.Transport, logger *zap.Logger) *scheduler.Workflow {
	logger = orNop(logger)

	data := cfg.Workflow.Data
	if data == nil {
		data = DefaultData
	}
	retries := cfg.Workflow.Retries
	timeout := cfg.Workflow.TaskTimeout.Std()

	task := func(id string, body scheduler.Body) scheduler.TaskSpec {
		return scheduler.TaskSpec{
			ID:      id,
			Retries: retries,
			Timeout: timeout,
			Body:    body,
		}
	}

	return &scheduler.Workflow{
		ID:   WorkflowID,
		Tags: append([]string(nil), Tags...),
		Tasks: scheduler.Chain(
			task(ExtractTask, Extract(data, logger.Named(ExtractTask))),
			task(TransformTask, Transform(logger.Named(TransformTask))),
			task(LoadTask, Load(logger.Named(LoadTask))),
			task(NotifyTask, Notify(transport, cfg.Mail.To, logger.Named(NotifyTask))),
		),
	}
}
