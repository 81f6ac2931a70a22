package exchange

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

// TestProperty_RoundTrip: for any run, task, label and value, retrieving
// right after publishing returns the published value.
func TestProperty_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		runID := rapid.StringMatching(`[a-z0-9-]{1,24}`).Draw(t, "runID")
		taskID := rapid.StringMatching(`[a-z][a-z_]{0,15}`).Draw(t, "taskID")
		label := rapid.StringMatching(`[a-z][a-z_]{0,15}`).Draw(t, "label")
		value := rapid.SliceOf(rapid.IntRange(-1_000_000, 1_000_000)).Draw(t, "value")

		ctx := context.Background()
		x := New(NewMemoryStore())
		if err := x.BeginRun(runID); err != nil {
			t.Fatalf("BeginRun: %v", err)
		}
		h, err := x.Enter(runID, taskID)
		if err != nil {
			t.Fatalf("Enter: %v", err)
		}

		if err := h.Publish(ctx, label, value); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		got, err := Pull[[]int](ctx, h, taskID, label)
		if err != nil {
			t.Fatalf("Pull: %v", err)
		}
		if fmt.Sprint(got) != fmt.Sprint(value) {
			t.Fatalf("got %v, want %v", got, value)
		}
	})
}

// TestProperty_LastWriteWins: after any sequence of publishes to one key,
// only the final value is visible.
func TestProperty_LastWriteWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		writes := rapid.SliceOfN(rapid.StringMatching(`[a-zA-Z0-9 ]{0,20}`), 1, 20).Draw(t, "writes")

		ctx := context.Background()
		x := New(NewMemoryStore())
		_ = x.BeginRun("e")
		h, _ := x.Enter("e", "t")

		for _, w := range writes {
			if err := h.Publish(ctx, "x", w); err != nil {
				t.Fatalf("Publish: %v", err)
			}
		}
		got, err := Pull[string](ctx, h, "t", "x")
		if err != nil {
			t.Fatalf("Pull: %v", err)
		}
		if want := writes[len(writes)-1]; got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
	})
}

// TestProperty_RunIsolation: entries of one run never leak into another,
// even when task and label coincide.
func TestProperty_RunIsolation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		runA := rapid.StringMatching(`a-[a-z0-9]{1,8}`).Draw(t, "runA")
		runB := rapid.StringMatching(`b-[a-z0-9]{1,8}`).Draw(t, "runB")
		label := rapid.StringMatching(`[a-z]{1,8}`).Draw(t, "label")

		ctx := context.Background()
		x := New(NewMemoryStore())
		_ = x.BeginRun(runA)
		_ = x.BeginRun(runB)
		h, _ := x.Enter(runA, "task")

		if err := h.Publish(ctx, label, 1); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if _, err := x.Retrieve(ctx, runB, "task", label); !errors.Is(err, ErrAbsent) {
			t.Fatalf("run %s sees entry of run %s: %v", runB, runA, err)
		}
	})
}
