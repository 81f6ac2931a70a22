// Package storetest holds the behavioural contract every exchange.Store
// implementation must satisfy.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/etlrun/internal/exchange"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) exchange.Store

// Run exercises store against the contract.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("round trip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := exchange.Key{RunID: "run-a", TaskID: "extract_task", Label: "raw_data"}

		put(t, s, key, `[10,20,30,40,50]`)

		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got.Value) != `[10,20,30,40,50]` {
			t.Errorf("value = %s, want [10,20,30,40,50]", got.Value)
		}
		if got.Key != key {
			t.Errorf("key = %v, want %v", got.Key, key)
		}
	})

	t.Run("last write wins", func(t *testing.T) {
		s := newStore(t)
		key := exchange.Key{RunID: "run-a", TaskID: "t", Label: "x"}

		put(t, s, key, `1`)
		put(t, s, key, `2`)

		got, err := s.Get(context.Background(), key)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got.Value) != `2` {
			t.Errorf("value = %s, want 2", got.Value)
		}

		labels, err := s.Labels(context.Background(), "run-a", "t")
		if err != nil {
			t.Fatalf("Labels: %v", err)
		}
		if len(labels) != 1 {
			t.Errorf("labels = %v, want exactly one", labels)
		}
	})

	t.Run("absent", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), exchange.Key{RunID: "run-a", TaskID: "nosuch", Label: "label"})
		if !errors.Is(err, exchange.ErrAbsent) {
			t.Fatalf("expected ErrAbsent, got %v", err)
		}
	})

	t.Run("run isolation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		keyA := exchange.Key{RunID: "run-a", TaskID: "t", Label: "x"}
		keyB := exchange.Key{RunID: "run-b", TaskID: "t", Label: "x"}

		put(t, s, keyA, `"a"`)

		if _, err := s.Get(ctx, keyB); !errors.Is(err, exchange.ErrAbsent) {
			t.Fatalf("run-b sees run-a entry: %v", err)
		}

		put(t, s, keyB, `"b"`)
		got, err := s.Get(ctx, keyA)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got.Value) != `"a"` {
			t.Errorf("run-a value = %s after run-b write", got.Value)
		}
	})

	t.Run("labels sorted and scoped", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		put(t, s, exchange.Key{RunID: "r", TaskID: "load_task", Label: "email_subject"}, `"s"`)
		put(t, s, exchange.Key{RunID: "r", TaskID: "load_task", Label: "email_body"}, `"b"`)
		put(t, s, exchange.Key{RunID: "r", TaskID: "other", Label: "aaa"}, `1`)
		put(t, s, exchange.Key{RunID: "r2", TaskID: "load_task", Label: "zzz"}, `1`)

		labels, err := s.Labels(ctx, "r", "load_task")
		if err != nil {
			t.Fatalf("Labels: %v", err)
		}
		want := []string{"email_body", "email_subject"}
		if len(labels) != len(want) {
			t.Fatalf("labels = %v, want %v", labels, want)
		}
		for i := range want {
			if labels[i] != want[i] {
				t.Errorf("labels[%d] = %q, want %q", i, labels[i], want[i])
			}
		}

		empty, err := s.Labels(ctx, "r", "nobody")
		if err != nil {
			t.Fatalf("Labels: %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("expected no labels, got %v", empty)
		}
	})

	t.Run("delete run", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		keep := exchange.Key{RunID: "keep", TaskID: "t", Label: "x"}
		drop := exchange.Key{RunID: "drop", TaskID: "t", Label: "x"}

		put(t, s, keep, `1`)
		put(t, s, drop, `1`)

		if err := s.DeleteRun(ctx, "drop"); err != nil {
			t.Fatalf("DeleteRun: %v", err)
		}
		if _, err := s.Get(ctx, drop); !errors.Is(err, exchange.ErrAbsent) {
			t.Errorf("deleted entry still visible: %v", err)
		}
		if _, err := s.Get(ctx, keep); err != nil {
			t.Errorf("unrelated run affected: %v", err)
		}
		if err := s.DeleteRun(ctx, "never-existed"); err != nil {
			t.Errorf("DeleteRun on unknown run: %v", err)
		}
	})
}

func put(t *testing.T, s exchange.Store, key exchange.Key, value string) {
	t.Helper()
	entry := exchange.Entry{Key: key, Value: []byte(value), UpdatedAt: time.Now().UTC()}
	if err := s.Put(context.Background(), entry); err != nil {
		t.Fatalf("Put %s: %v", key, err)
	}
}
