// Package memory provides in-memory store implementations.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/artpar/amodule/domain/run"
	"github.com/artpar/amodule/ports"
)

// DefaultCapacity bounds a RunStore created with capacity <= 0.
const DefaultCapacity = 1000

// RunStore is an in-memory implementation of ports.RunStore.
// It keeps the most recent runs up to its capacity.
type RunStore struct {
	mu       sync.RWMutex
	runs     []run.Run // ring buffer
	next     int
	full     bool
	capacity int
}

// NewRunStore creates a new in-memory run store.
func NewRunStore(capacity int) *RunStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RunStore{
		runs:     make([]run.Run, capacity),
		capacity: capacity,
	}
}

// Save stores a run, evicting the oldest one when full.
func (s *RunStore) Save(ctx context.Context, r run.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[s.next] = r
	s.next = (s.next + 1) % s.capacity
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Get retrieves a run by ID.
func (s *RunStore) Get(ctx context.Context, id string) (run.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.ordered() {
		if r.ID == id {
			return r, nil
		}
	}
	return run.Run{}, ports.ErrNotFound
}

// Recent returns up to limit runs, newest first.
func (s *RunStore) Recent(ctx context.Context, limit int) ([]run.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.ordered()
	out := make([]run.Run, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

// Since returns runs started at or after t, oldest first.
func (s *RunStore) Since(ctx context.Context, t time.Time) ([]run.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []run.Run
	for _, r := range s.ordered() {
		if !r.StartedAt.Before(t) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Len returns the number of stored runs.
func (s *RunStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.full {
		return s.capacity
	}
	return s.next
}

// ordered returns the stored runs oldest first. Caller holds the lock.
func (s *RunStore) ordered() []run.Run {
	if !s.full {
		return s.runs[:s.next]
	}
	out := make([]run.Run, 0, s.capacity)
	out = append(out, s.runs[s.next:]...)
	return append(out, s.runs[:s.next]...)
}

var _ ports.RunStore = (*RunStore)(nil)
