package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps runs in memory. It backs CLI usage where no
// database is configured, and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]*Run)}
}

// Save persists a run.
func (s *MemoryStore) Save(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *run
	s.runs[run.ID] = &clone
	return nil
}

// Get retrieves a run by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, notFound(id)
	}
	clone := *run
	return &clone, nil
}

// List returns runs of the given kind, newest first.
func (s *MemoryStore) List(ctx context.Context, kind Kind, limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*Run
	for _, run := range s.runs {
		if kind != "" && run.Kind != kind {
			continue
		}
		clone := *run
		runs = append(runs, &clone)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Delete removes a run. Deleting a missing run is not an error.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.runs, id)
	return nil
}

// Close does nothing for an in-memory store.
func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
