package scheduler

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/toposort"
)

// DAG represents a directed acyclic graph of task instances for one run.
type DAG struct {
	mu         sync.RWMutex
	tasks      map[string]*Task    // All tasks indexed by ID
	added      []string            // Task IDs in insertion order
	dependents map[string][]string // Maps taskID -> list of tasks that depend on it
	now        func() time.Time
}

// Progress summarises task counts of a DAG.
type Progress struct {
	Total     int
	Completed int
	Running   int
	Failed    int
	Skipped   int // skipped and upstream-failed
	Pending   int
}

// NewDAG creates an empty DAG.
func NewDAG() *DAG {
	return &DAG{
		tasks:      make(map[string]*Task),
		dependents: make(map[string][]string),
		now:        time.Now,
	}
}

// AddTask adds a task to the DAG. Returns error if task ID already exists.
func (d *DAG) AddTask(task *Task) error {
	if task.ID == "" {
		return fmt.Errorf("task ID must not be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}

	d.tasks[task.ID] = task
	d.added = append(d.added, task.ID)

	for _, depID := range task.DependsOn {
		d.dependents[depID] = append(d.dependents[depID], task.ID)
	}
	return nil
}

// Validate runs a topological sort using gammazero/toposort.
// Returns ordered task IDs, or an error if a dependency is missing or the
// graph has a cycle.
func (d *DAG) Validate() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, taskID := range d.added {
		for _, depID := range d.tasks[taskID].DependsOn {
			if _, exists := d.tasks[depID]; !exists {
				return nil, fmt.Errorf("task %q depends on non-existent task %q", taskID, depID)
			}
		}
	}

	var edges []toposort.Edge
	for _, taskID := range d.added {
		task := d.tasks[taskID]
		if len(task.DependsOn) == 0 {
			// Edge from nil keeps roots in the result
			edges = append(edges, toposort.Edge{nil, taskID})
			continue
		}
		for _, depID := range task.DependsOn {
			// Edge (depID, taskID) means depID must come before taskID
			edges = append(edges, toposort.Edge{depID, taskID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("DAG contains cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	// A cycle with no root never reaches toposort's error path
	if len(order) != len(d.tasks) {
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		var missing []string
		for _, taskID := range d.added {
			if !found[taskID] {
				missing = append(missing, taskID)
			}
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("DAG contains cycle through %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// Eligible returns pending tasks whose dependencies are all resolved, in
// insertion order.
func (d *DAG) Eligible() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	eligible := []*Task{}
	for _, taskID := range d.added {
		task := d.tasks[taskID]
		if task.Status != TaskPending {
			continue
		}
		if d.allResolved(task) {
			eligible = append(eligible, cloneTask(task))
		}
	}
	return eligible
}

// Blocked returns pending tasks that can never run because a dependency
// failed hard or was itself blocked.
func (d *DAG) Blocked() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	blocked := []*Task{}
	for _, taskID := range d.added {
		task := d.tasks[taskID]
		if task.Status != TaskPending {
			continue
		}
		for _, depID := range task.DependsOn {
			dep := d.tasks[depID]
			if dep == nil {
				continue
			}
			if dep.Status == TaskUpstreamFailed || (dep.Status == TaskFailed && dep.FailureMode == FailHard) {
				blocked = append(blocked, cloneTask(task))
				break
			}
		}
	}
	return blocked
}

// Resolved reports whether every dependency of taskID is resolved.
func (d *DAG) Resolved(taskID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return false, fmt.Errorf("task %q not found", taskID)
	}
	return d.allResolved(task), nil
}

func (d *DAG) allResolved(task *Task) bool {
	for _, depID := range task.DependsOn {
		dep, exists := d.tasks[depID]
		if !exists || !isDependencyResolved(dep) {
			return false
		}
	}
	return true
}

// isDependencyResolved checks if a dependency task is resolved based on its
// status and failure mode.
func isDependencyResolved(dep *Task) bool {
	switch dep.Status {
	case TaskCompleted, TaskSkipped:
		return true
	case TaskFailed:
		return dep.FailureMode == FailSoft || dep.FailureMode == FailSkip
	}
	return false
}

// MarkRunning sets task status to TaskRunning.
func (d *DAG) MarkRunning(taskID string) error {
	return d.update(taskID, func(task *Task) {
		task.Status = TaskRunning
		task.StartedAt = d.now()
	})
}

// MarkCompleted sets task status to TaskCompleted.
func (d *DAG) MarkCompleted(taskID string, attempts int) error {
	return d.update(taskID, func(task *Task) {
		task.Status = TaskCompleted
		task.Attempts = attempts
		task.Error = nil
		task.FinishedAt = d.now()
	})
}

// MarkFailed sets task status to TaskFailed and stores the error.
// Behavior for dependents depends on FailureMode:
// - FailHard: dependents become upstream-failed
// - FailSoft: dependents can become eligible
// - FailSkip: treat as completed for dependency resolution
func (d *DAG) MarkFailed(taskID string, attempts int, err error) error {
	return d.update(taskID, func(task *Task) {
		task.Status = TaskFailed
		task.Attempts = attempts
		task.Error = err
		task.FinishedAt = d.now()
	})
}

// MarkSkipped sets task status to TaskSkipped.
func (d *DAG) MarkSkipped(taskID string) error {
	return d.update(taskID, func(task *Task) {
		task.Status = TaskSkipped
		task.FinishedAt = d.now()
	})
}

// MarkUpstreamFailed records that taskID will never run.
func (d *DAG) MarkUpstreamFailed(taskID string) error {
	return d.update(taskID, func(task *Task) {
		task.Status = TaskUpstreamFailed
		task.FinishedAt = d.now()
	})
}

func (d *DAG) update(taskID string, fn func(task *Task)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q not found", taskID)
	}
	fn(task)
	return nil
}

// Get returns a copy of the task by ID.
func (d *DAG) Get(taskID string) (*Task, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	task, exists := d.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns copies of all tasks in insertion order.
func (d *DAG) Tasks() []*Task {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tasks := make([]*Task, 0, len(d.added))
	for _, taskID := range d.added {
		tasks = append(tasks, cloneTask(d.tasks[taskID]))
	}
	return tasks
}

// Dependents returns the IDs of tasks that directly depend on taskID.
func (d *DAG) Dependents(taskID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.dependents[taskID]...)
}

// Progress counts tasks by status.
func (d *DAG) Progress() Progress {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p := Progress{Total: len(d.tasks)}
	for _, task := range d.tasks {
		switch task.Status {
		case TaskCompleted:
			p.Completed++
		case TaskRunning:
			p.Running++
		case TaskFailed:
			p.Failed++
		case TaskSkipped, TaskUpstreamFailed:
			p.Skipped++
		default:
			p.Pending++
		}
	}
	return p
}

// Order returns topologically sorted task IDs (calls Validate).
func (d *DAG) Order() ([]string, error) {
	return d.Validate()
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.DependsOn != nil {
		cp.DependsOn = append([]string(nil), task.DependsOn...)
	}
	return &cp
}
