// Package inmem provides an in-memory run.Store, suitable for tests and
// single-process deployments without a durable backing store.
package inmem

import (
	"context"
	"sync"

	"github.com/agentrt/runtime/run"
)

type store struct {
	mu      sync.RWMutex
	records map[string]run.Record
}

// New returns an in-memory run.Store.
func New() run.Store {
	return &store{records: make(map[string]run.Record)}
}

func (s *store) Upsert(_ context.Context, record run.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.RunID] = record
	return nil
}

func (s *store) Load(_ context.Context, runID string) (run.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[runID]
	if !ok {
		return run.Record{}, run.ErrNotFound
	}
	return rec, nil
}
