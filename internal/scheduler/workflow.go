package scheduler

import (
	"fmt"
	"time"
)

// TaskSpec declares one task of a workflow.
type TaskSpec struct {
	ID          string
	Name        string
	DependsOn   []string
	FailureMode FailureMode
	Retries     uint64
	Timeout     time.Duration
	Body        Body
}

// Workflow is a reusable graph definition. Each run builds a fresh DAG from
// it so that task state never carries over between executions.
type Workflow struct {
	ID    string
	Tags  []string
	Tasks []TaskSpec
}

// Chain makes every spec depend on the one before it, in order, the way
// a >> b >> c declares a linear pipeline. Existing dependencies are kept.
func Chain(specs ...TaskSpec) []TaskSpec {
	chained := make([]TaskSpec, len(specs))
	for i, spec := range specs {
		spec.DependsOn = append([]string(nil), spec.DependsOn...)
		if i > 0 {
			prev := specs[i-1].ID
			if !contains(spec.DependsOn, prev) {
				spec.DependsOn = append(spec.DependsOn, prev)
			}
		}
		chained[i] = spec
	}
	return chained
}

// Build creates and validates a DAG for one execution of the workflow.
func (w *Workflow) Build() (*DAG, error) {
	if w.ID == "" {
		return nil, fmt.Errorf("workflow ID must not be empty")
	}
	if len(w.Tasks) == 0 {
		return nil, fmt.Errorf("workflow %q has no tasks", w.ID)
	}

	dag := NewDAG()
	for _, spec := range w.Tasks {
		task := &Task{
			ID:          spec.ID,
			Name:        spec.Name,
			DependsOn:   append([]string(nil), spec.DependsOn...),
			FailureMode: spec.FailureMode,
			Retries:     spec.Retries,
			Timeout:     spec.Timeout,
			Body:        spec.Body,
			Status:      TaskPending,
		}
		if task.Name == "" {
			task.Name = task.ID
		}
		if err := dag.AddTask(task); err != nil {
			return nil, fmt.Errorf("workflow %q: %w", w.ID, err)
		}
	}

	if _, err := dag.Validate(); err != nil {
		return nil, fmt.Errorf("workflow %q: %w", w.ID, err)
	}
	return dag, nil
}

// Spec returns the task spec with the given ID.
func (w *Workflow) Spec(taskID string) (TaskSpec, bool) {
	for _, spec := range w.Tasks {
		if spec.ID == taskID {
			return spec, true
		}
	}
	return TaskSpec{}, false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
