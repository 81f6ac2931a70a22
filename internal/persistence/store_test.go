package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aristath/etlrun/internal/exchange"
	"github.com/aristath/etlrun/internal/exchange/storetest"
)

// testStore creates an in-memory store for testing and registers cleanup.
func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewMemoryStore(context.Background())
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func TestMemoryStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) exchange.Store {
		return testStore(t)
	})
}

func TestFileStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) exchange.Store {
		path := filepath.Join(t.TempDir(), "nested", "etlrun.db")
		store, err := NewSQLiteStore(context.Background(), path)
		if err != nil {
			t.Fatalf("failed to create file store: %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestMemoryStoresAreIsolated(t *testing.T) {
	a := testStore(t)
	b := testStore(t)
	ctx := context.Background()
	key := exchange.Key{RunID: "r", TaskID: "t", Label: "x"}

	if err := a.Put(ctx, exchange.Entry{Key: key, Value: []byte(`1`)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := b.Get(ctx, key); !errors.Is(err, exchange.ErrAbsent) {
		t.Errorf("second memory store sees first store's entry: %v", err)
	}
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "etlrun.db")
	key := exchange.Key{RunID: "r", TaskID: "load_task", Label: "email_subject"}
	when := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)

	first, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Put(ctx, exchange.Entry{Key: key, Value: []byte(`"done"`), UpdatedAt: when}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	first.Close()

	second, err := NewSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	got, err := second.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got.Value) != `"done"` {
		t.Errorf("value = %s, want \"done\"", got.Value)
	}
	if !got.UpdatedAt.Equal(when) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, when)
	}
}

func TestConcurrentPuts(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := exchange.Key{RunID: "r", TaskID: "t", Label: string(rune('a' + i))}
			if err := store.Put(ctx, exchange.Entry{Key: key, Value: []byte(`1`)}); err != nil {
				t.Errorf("Put %s: %v", key, err)
			}
		}(i)
	}
	wg.Wait()

	labels, err := store.Labels(ctx, "r", "t")
	if err != nil {
		t.Fatalf("Labels: %v", err)
	}
	if len(labels) != 8 {
		t.Errorf("expected 8 labels, got %v", labels)
	}
}

func TestProducers(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for _, key := range []exchange.Key{
		{RunID: "r", TaskID: "transform_task", Label: "transformed_data"},
		{RunID: "r", TaskID: "extract_task", Label: "raw_data"},
		{RunID: "r", TaskID: "load_task", Label: "email_body"},
		{RunID: "r", TaskID: "load_task", Label: "email_subject"},
		{RunID: "other", TaskID: "ghost", Label: "x"},
	} {
		if err := store.Put(ctx, exchange.Entry{Key: key, Value: []byte(`1`)}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got, err := store.Producers(ctx, "r")
	if err != nil {
		t.Fatalf("Producers: %v", err)
	}
	want := []string{"extract_task", "load_task", "transform_task"}
	if len(got) != len(want) {
		t.Fatalf("Producers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Producers[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRunHistory(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	older := RunRecord{ID: "run-1", WorkflowID: "wf", Status: RunRunning, StartedAt: start}
	newer := RunRecord{ID: "run-2", WorkflowID: "wf", Status: RunRunning, StartedAt: start.Add(time.Minute)}
	for _, run := range []RunRecord{older, newer} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun(%s): %v", run.ID, err)
		}
	}

	finished := start.Add(2 * time.Minute)
	if err := store.FinishRun(ctx, "run-1", RunFailed, "transform_task failed", finished); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunFailed || got.Error != "transform_task failed" {
		t.Errorf("run-1 = %+v", got)
	}
	if !got.FinishedAt.Equal(finished) || !got.StartedAt.Equal(start) {
		t.Errorf("timestamps = %v / %v", got.StartedAt, got.FinishedAt)
	}

	runs, err := store.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" || runs[1].ID != "run-1" {
		t.Errorf("ListRuns order = %v", runs)
	}
	if !runs[0].FinishedAt.IsZero() {
		t.Errorf("unfinished run has FinishedAt %v", runs[0].FinishedAt)
	}

	limited, err := store.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("ListRuns(1): %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("ListRuns(1) returned %d runs", len(limited))
	}
}

func TestRunNotFound(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if _, err := store.GetRun(ctx, "nope"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun: expected ErrRunNotFound, got %v", err)
	}
	if err := store.FinishRun(ctx, "nope", RunSucceeded, "", time.Now()); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FinishRun: expected ErrRunNotFound, got %v", err)
	}
}

func TestTaskInstances(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.SaveRun(ctx, RunRecord{ID: "run-1", WorkflowID: "wf", Status: RunRunning, StartedAt: time.Now()}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	for _, id := range []string{"extract_task", "transform_task", "load_task"} {
		if err := store.SaveTaskInstance(ctx, TaskRecord{RunID: "run-1", TaskID: id, Status: "running"}); err != nil {
			t.Fatalf("SaveTaskInstance(%s): %v", id, err)
		}
	}

	// Updating an earlier task keeps its position
	update := TaskRecord{RunID: "run-1", TaskID: "extract_task", Status: "completed", Attempts: 2, FinishedAt: time.Now()}
	if err := store.SaveTaskInstance(ctx, update); err != nil {
		t.Fatalf("SaveTaskInstance update: %v", err)
	}

	tasks, err := store.ListTaskInstances(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListTaskInstances: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 task instances, got %d", len(tasks))
	}
	if tasks[0].TaskID != "extract_task" || tasks[0].Status != "completed" || tasks[0].Attempts != 2 {
		t.Errorf("first task = %+v", tasks[0])
	}
	if tasks[2].TaskID != "load_task" {
		t.Errorf("last task = %s, want load_task", tasks[2].TaskID)
	}

	empty, err := store.ListTaskInstances(ctx, "unknown")
	if err != nil {
		t.Fatalf("ListTaskInstances(unknown): %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", empty)
	}
}

func TestTaskInstanceRequiresRun(t *testing.T) {
	store := testStore(t)

	err := store.SaveTaskInstance(context.Background(), TaskRecord{RunID: "missing", TaskID: "t", Status: "running"})
	if err == nil {
		t.Error("expected foreign key violation for unknown run")
	}
}

func TestDeleteRunKeepsHistory(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.SaveRun(ctx, RunRecord{ID: "r", WorkflowID: "wf", Status: RunSucceeded, StartedAt: time.Now()}); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	key := exchange.Key{RunID: "r", TaskID: "t", Label: "x"}
	if err := store.Put(ctx, exchange.Entry{Key: key, Value: []byte(`1`)}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := store.DeleteRun(ctx, "r"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := store.GetRun(ctx, "r"); err != nil {
		t.Errorf("run history removed by DeleteRun: %v", err)
	}
}
