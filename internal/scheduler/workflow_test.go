package scheduler

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestChain(t *testing.T) {
	specs := Chain(
		TaskSpec{ID: "extract"},
		TaskSpec{ID: "transform"},
		TaskSpec{ID: "load", DependsOn: []string{"audit"}},
		TaskSpec{ID: "notify", DependsOn: []string{"load"}},
	)

	want := map[string][]string{
		"extract":   nil,
		"transform": {"extract"},
		"load":      {"audit", "transform"},
		"notify":    {"load"},
	}
	for _, spec := range specs {
		if !reflect.DeepEqual(spec.DependsOn, want[spec.ID]) {
			t.Errorf("%s DependsOn = %v, want %v", spec.ID, spec.DependsOn, want[spec.ID])
		}
	}
}

func TestChainDoesNotAliasInput(t *testing.T) {
	deps := []string{"x"}
	in := []TaskSpec{{ID: "a"}, {ID: "b", DependsOn: deps}}
	_ = Chain(in...)

	if len(in[1].DependsOn) != 1 || deps[0] != "x" {
		t.Errorf("Chain modified its input: %v", in[1].DependsOn)
	}
}

func TestWorkflowBuild(t *testing.T) {
	wf := &Workflow{
		ID:   "pipeline",
		Tags: []string{"etl"},
		Tasks: Chain(
			TaskSpec{ID: "extract", Body: noop, Retries: 2, Timeout: time.Second},
			TaskSpec{ID: "transform", Name: "Transform data", Body: noop},
		),
	}

	dag, err := wf.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	order, err := dag.Order()
	if err != nil {
		t.Fatalf("Order() error = %v", err)
	}
	if strings.Join(order, ",") != "extract,transform" {
		t.Errorf("Order() = %v, want [extract transform]", order)
	}

	extract, _ := dag.Get("extract")
	if extract.Name != "extract" {
		t.Errorf("Name should default to ID, got %q", extract.Name)
	}
	if extract.Retries != 2 || extract.Timeout != time.Second {
		t.Errorf("spec settings not carried over: retries=%d timeout=%s", extract.Retries, extract.Timeout)
	}
	if extract.Status != TaskPending {
		t.Errorf("expected pending, got %s", extract.Status)
	}

	transform, _ := dag.Get("transform")
	if transform.Name != "Transform data" {
		t.Errorf("Name = %q, want %q", transform.Name, "Transform data")
	}
}

func TestWorkflowBuildFreshDAG(t *testing.T) {
	wf := &Workflow{ID: "pipeline", Tasks: []TaskSpec{{ID: "a", Body: noop}}}

	first, err := wf.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	_ = first.MarkCompleted("a", 1)

	second, err := wf.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	task, _ := second.Get("a")
	if task.Status != TaskPending {
		t.Errorf("second build should start pending, got %s", task.Status)
	}
}

func TestWorkflowBuildErrors(t *testing.T) {
	tests := []struct {
		name        string
		wf          *Workflow
		errContains string
	}{
		{
			name:        "empty ID",
			wf:          &Workflow{Tasks: []TaskSpec{{ID: "a"}}},
			errContains: "ID must not be empty",
		},
		{
			name:        "no tasks",
			wf:          &Workflow{ID: "w"},
			errContains: "no tasks",
		},
		{
			name:        "duplicate task",
			wf:          &Workflow{ID: "w", Tasks: []TaskSpec{{ID: "a"}, {ID: "a"}}},
			errContains: "already exists",
		},
		{
			name:        "missing dependency",
			wf:          &Workflow{ID: "w", Tasks: []TaskSpec{{ID: "a", DependsOn: []string{"ghost"}}}},
			errContains: "non-existent",
		},
		{
			name: "cycle",
			wf: &Workflow{ID: "w", Tasks: []TaskSpec{
				{ID: "a", DependsOn: []string{"b"}},
				{ID: "b", DependsOn: []string{"a"}},
			}},
			errContains: "cycle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.wf.Build()
			if err == nil {
				t.Fatal("Build() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Build() error = %q, want it to contain %q", err, tt.errContains)
			}
		})
	}
}

func TestWorkflowSpec(t *testing.T) {
	wf := &Workflow{ID: "w", Tasks: []TaskSpec{{ID: "a"}, {ID: "b"}}}

	if spec, ok := wf.Spec("b"); !ok || spec.ID != "b" {
		t.Errorf("Spec(b) = %v, %v", spec, ok)
	}
	if _, ok := wf.Spec("z"); ok {
		t.Error("Spec(z) should not be found")
	}
}
