package exchange

import (
	"context"
	"fmt"
)

// Handle is a task instance's view of the exchange, bound to one run and one
// producing identity. Task bodies receive it explicitly.
type Handle struct {
	x      *Exchange
	runID  string
	taskID string
}

// RunID returns the execution the handle belongs to.
func (h *Handle) RunID() string { return h.runID }

// TaskID returns the identity the handle publishes under.
func (h *Handle) TaskID() string { return h.taskID }

// Publish stores value under label for this task instance.
func (h *Handle) Publish(ctx context.Context, label string, value any) error {
	return h.x.Publish(ctx, h.runID, h.taskID, label, value)
}

// Retrieve decodes the value fromTask published under label into out.
// Returns an error wrapping ErrAbsent when nothing was published.
func (h *Handle) Retrieve(ctx context.Context, fromTask, label string, out any) error {
	data, err := h.x.Retrieve(ctx, h.runID, fromTask, label)
	if err != nil {
		return err
	}
	if err := Decode(data, out); err != nil {
		return fmt.Errorf("retrieving %s/%s/%s: %w", h.runID, fromTask, label, err)
	}
	return nil
}

// Labels lists what fromTask published in this run.
func (h *Handle) Labels(ctx context.Context, fromTask string) ([]string, error) {
	return h.x.Labels(ctx, h.runID, fromTask)
}

// Pull retrieves a typed value published by fromTask under label.
func Pull[T any](ctx context.Context, h *Handle, fromTask, label string) (T, error) {
	var v T
	err := h.Retrieve(ctx, fromTask, label, &v)
	return v, err
}
