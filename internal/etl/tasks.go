package etl

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aristath/etlrun/internal/exchange"
	"github.com/aristath/etlrun/internal/notify"
	"github.com/aristath/etlrun/internal/scheduler"
)

// pull retrieves a typed upstream value. A missing entry cannot appear on a
// retry, so it fails the task at once.
func pull[T any](ctx context.Context, h *exchange.Handle, fromTask, label string) (T, error) {
	v, err := exchange.Pull[T](ctx, h, fromTask, label)
	if errors.Is(err, exchange.ErrAbsent) {
		return v, scheduler.Fatal(fmt.Errorf("%s needs %s from %s: %w", h.TaskID(), label, fromTask, err))
	}
	return v, err
}

// Extract publishes data under raw_data.
func Extract(data []float64, logger *zap.Logger) scheduler.Body {
	data = append([]float64{}, data...)
	logger = orNop(logger)
	return func(ctx context.Context, h *exchange.Handle) error {
		logger.Info("extracted data", zap.Float64s("data", data))
		if err := h.Publish(ctx, LabelRawData, data); err != nil {
			return err
		}
		logger.Debug("raw data published", zap.String("run_id", h.RunID()))
		return nil
	}
}

// Transform summarizes extract's raw_data and publishes the result under
// transformed_data.
func Transform(logger *zap.Logger) scheduler.Body {
	logger = orNop(logger)
	return func(ctx context.Context, h *exchange.Handle) error {
		data, err := pull[[]float64](ctx, h, ExtractTask, LabelRawData)
		if err != nil {
			return err
		}
		logger.Info("pulled raw data", zap.Float64s("data", data))

		summary, err := Summarize(data)
		if err != nil {
			return scheduler.Fatal(err)
		}
		logger.Info("transformed data",
			zap.Float64("total", summary.Total),
			zap.Float64("average", summary.Average),
		)
		return h.Publish(ctx, LabelTransformedData, summary)
	}
}

// Load reports transform's summary and prepares the completion email.
func Load(logger *zap.Logger) scheduler.Body {
	logger = orNop(logger)
	return func(ctx context.Context, h *exchange.Handle) error {
		summary, err := pull[Summary](ctx, h, TransformTask, LabelTransformedData)
		if err != nil {
			return err
		}

		logger.Info(fmt.Sprintf("Loading complete. Total = %s, Average = %s",
			FormatTotal(summary.Total), FormatAverage(summary.Average)))

		if err := h.Publish(ctx, LabelEmailSubject, Subject); err != nil {
			return err
		}
		return h.Publish(ctx, LabelEmailBody, RenderBody(summary))
	}
}

// Notify sends load's subject and body to the recipient through transport.
func Notify(transport notify.Transport, to string, logger *zap.Logger) scheduler.Body {
	logger = orNop(logger)
	return func(ctx context.Context, h *exchange.Handle) error {
		subject, err := pull[string](ctx, h, LoadTask, LabelEmailSubject)
		if err != nil {
			return err
		}
		body, err := pull[string](ctx, h, LoadTask, LabelEmailBody)
		if err != nil {
			return err
		}

		msg := notify.Message{To: to, Subject: subject, HTMLBody: body}
		if err := transport.Send(ctx, msg); err != nil {
			if errors.Is(err, notify.ErrInvalidMessage) {
				return scheduler.Fatal(err)
			}
			return fmt.Errorf("sending report: %w", err)
		}
		logger.Info("report sent", zap.String("to", to), zap.String("subject", subject))
		return nil
	}
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
