package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aristath/etlrun/internal/events"
)

// Option configures an Exchange.
type Option func(*Exchange)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(x *Exchange) {
		if logger != nil {
			x.logger = logger
		}
	}
}

// WithEventBus publishes an EntryPublishedEvent for every write.
func WithEventBus(bus *events.EventBus) Option {
	return func(x *Exchange) { x.bus = bus }
}

// WithRetention keeps a run's entries in the store after EndRun.
// Retained runs remain readable but accept no further publishes.
func WithRetention(retain bool) Option {
	return func(x *Exchange) { x.retain = retain }
}

// WithClock overrides the timestamp source (tests).
func WithClock(now func() time.Time) Option {
	return func(x *Exchange) { x.now = now }
}

// Exchange is the run-scoped key/value exchange. It guards a Store with the
// run and identity rules: only active runs accept writes, and a task may only
// publish under its own identity while it is executing.
type Exchange struct {
	store  Store
	logger *zap.Logger
	bus    *events.EventBus
	retain bool
	now    func() time.Time

	mu   sync.RWMutex
	runs map[string]map[string]struct{} // runID -> executing task IDs

	// Publish holds writes shared from the identity check through Put;
	// EndRun holds it exclusively across deactivation and purge.
	writes sync.RWMutex
}

// New creates an Exchange backed by store.
func New(store Store, opts ...Option) *Exchange {
	x := &Exchange{
		store:  store,
		logger: zap.NewNop(),
		now:    time.Now,
		runs:   make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Store returns the backing store.
func (x *Exchange) Store() Store {
	return x.store
}

// BeginRun marks runID as active. Beginning an active run is an error.
func (x *Exchange) BeginRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("run ID must not be empty")
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, exists := x.runs[runID]; exists {
		return fmt.Errorf("run %q already active", runID)
	}
	x.runs[runID] = make(map[string]struct{})
	return nil
}

// EndRun deactivates runID and, unless retention is enabled, purges its
// entries from the store.
func (x *Exchange) EndRun(ctx context.Context, runID string) error {
	x.writes.Lock()
	defer x.writes.Unlock()

	x.mu.Lock()
	_, exists := x.runs[runID]
	delete(x.runs, runID)
	x.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	if x.retain {
		return nil
	}
	if err := x.store.DeleteRun(ctx, runID); err != nil {
		return fmt.Errorf("purging run %s: %w", runID, err)
	}
	x.logger.Debug("run entries purged", zap.String("run_id", runID))
	return nil
}

// Active reports whether runID is active.
func (x *Exchange) Active(runID string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.runs[runID]
	return ok
}

// Enter records taskID as executing in runID and returns a handle bound to
// that identity.
func (x *Exchange) Enter(runID, taskID string) (*Handle, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID must not be empty")
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	running, exists := x.runs[runID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	running[taskID] = struct{}{}
	return &Handle{x: x, runID: runID, taskID: taskID}, nil
}

// Leave records that taskID stopped executing in runID. Handles for it can
// still read but no longer publish.
func (x *Exchange) Leave(runID, taskID string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if running, exists := x.runs[runID]; exists {
		delete(running, taskID)
	}
}

// Publish encodes value and stores it under (runID, producer, label),
// replacing any earlier value for that key.
func (x *Exchange) Publish(ctx context.Context, runID, producer, label string, value any) error {
	if label == "" {
		return ErrEmptyLabel
	}

	x.writes.RLock()
	defer x.writes.RUnlock()

	if err := x.checkProducer(runID, producer); err != nil {
		return err
	}

	data, err := Encode(value)
	if err != nil {
		return fmt.Errorf("publishing %s/%s/%s: %w", runID, producer, label, err)
	}

	key := Key{RunID: runID, TaskID: producer, Label: label}
	entry := Entry{Key: key, Value: data, UpdatedAt: x.now().UTC()}
	if err := x.store.Put(ctx, entry); err != nil {
		return fmt.Errorf("publishing %s: %w", key, err)
	}

	x.logger.Debug("entry published",
		zap.String("run_id", runID),
		zap.String("task_id", producer),
		zap.String("label", label),
		zap.Int("bytes", len(data)),
	)
	x.bus.Publish(events.EntryPublishedEvent{
		Run:       runID,
		TaskID:    producer,
		Label:     label,
		Size:      len(data),
		Timestamp: entry.UpdatedAt,
	})
	return nil
}

// Retrieve returns the encoded value most recently published under
// (runID, producer, label), or an error wrapping ErrAbsent.
func (x *Exchange) Retrieve(ctx context.Context, runID, producer, label string) ([]byte, error) {
	if label == "" {
		return nil, ErrEmptyLabel
	}
	entry, err := x.store.Get(ctx, Key{RunID: runID, TaskID: producer, Label: label})
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// Labels lists the labels producer published in runID.
func (x *Exchange) Labels(ctx context.Context, runID, producer string) ([]string, error) {
	return x.store.Labels(ctx, runID, producer)
}

func (x *Exchange) checkProducer(runID, producer string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	running, exists := x.runs[runID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	if _, ok := running[producer]; !ok {
		return fmt.Errorf("%w: %q is not executing in run %s", ErrIdentity, producer, runID)
	}
	return nil
}
