package eventstore

import (
	"context"
	"sort"
	"sync"

	"github.com/agentrt/runtime/events"
)

type record struct {
	event     events.Event
	processed bool
}

// inMemory is a process-local Store backed by a timestamp-sorted slice.
// Suitable for tests and single-process deployments; ReplayFromTimestamp
// performs a linear scan, acceptable at the footprint this runtime targets.
type inMemory struct {
	mu      sync.RWMutex
	records []record
}

// NewInMemory constructs an in-memory Store.
func NewInMemory() Store {
	return &inMemory{}
}

func (s *inMemory) AppendEvents(_ context.Context, evts []events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range evts {
		s.records = append(s.records, record{event: e})
	}
	sort.SliceStable(s.records, func(i, j int) bool {
		return s.records[i].event.Timestamp < s.records[j].event.Timestamp
	})
	return nil
}

func (s *inMemory) MarkProcessed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].event.ID == id {
			s.records[i].processed = true
		}
	}
	return nil
}

func (s *inMemory) ReplayFromTimestamp(_ context.Context, from int64, opts ReplayOptions) (BatchIterator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var window []events.Event
	for _, r := range s.records {
		if r.event.Timestamp < from {
			continue
		}
		if opts.To > 0 && r.event.Timestamp > opts.To {
			continue
		}
		if opts.OnlyUnprocessed && r.processed {
			continue
		}
		window = append(window, r.event)
	}
	return &sliceBatchIterator{events: window, batchSize: batchSizeOrDefault(opts.BatchSize)}, nil
}

type sliceBatchIterator struct {
	events    []events.Event
	batchSize int
	pos       int
}

func (it *sliceBatchIterator) Next(context.Context) ([]events.Event, bool, error) {
	if it.pos >= len(it.events) {
		return nil, false, nil
	}
	end := it.pos + it.batchSize
	if end > len(it.events) {
		end = len(it.events)
	}
	batch := it.events[it.pos:end]
	it.pos = end
	return batch, true, nil
}

func (it *sliceBatchIterator) Close() error { return nil }
