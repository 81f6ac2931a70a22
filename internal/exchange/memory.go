package exchange

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[Key]Entry),
	}
}

// Put inserts or replaces the entry under its key.
func (s *MemoryStore) Put(_ context.Context, entry Entry) error {
	entry.Value = cloneBytes(entry.Value)

	s.mu.Lock()
	s.entries[entry.Key] = entry
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the entry stored under key.
func (s *MemoryStore) Get(_ context.Context, key Key) (Entry, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return Entry{}, Absent(key)
	}
	entry.Value = cloneBytes(entry.Value)
	return entry, nil
}

// Labels returns the sorted labels published by taskID in runID.
func (s *MemoryStore) Labels(_ context.Context, runID, taskID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	labels := []string{}
	for key := range s.entries {
		if key.RunID == runID && key.TaskID == taskID {
			labels = append(labels, key.Label)
		}
	}
	sort.Strings(labels)
	return labels, nil
}

// DeleteRun removes all entries of runID.
func (s *MemoryStore) DeleteRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.entries {
		if key.RunID == runID {
			delete(s.entries, key)
		}
	}
	return nil
}

// Len returns the number of stored entries across all runs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
