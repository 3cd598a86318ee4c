// Package eventstore implements the optional append-only ordered log keyed
// by timestamp. Ordering is monotonic; duplicates across restarts are
// permitted, so consumers dedupe by event id.
package eventstore

import (
	"context"

	"github.com/agentrt/runtime/events"
)

// ReplayOptions narrows a replay window and batch size.
type ReplayOptions struct {
	// To bounds the replay window; zero means unbounded (replay to the end
	// of the log as it stood when the replay started).
	To int64
	// OnlyUnprocessed restricts replay to events not yet marked processed
	// by MarkProcessed. Stores that do not track processed state ignore it.
	OnlyUnprocessed bool
	// BatchSize bounds how many events each yielded batch contains.
	BatchSize int
}

const defaultBatchSize = 100

// BatchIterator produces a finite, lazy sequence of event batches bounded
// by the replay window at the time ReplayFromTimestamp was called. It is
// not restartable: once exhausted, construct a new replay to see events
// appended after it began.
type BatchIterator interface {
	Next(ctx context.Context) (batch []events.Event, ok bool, err error)
	Close() error
}

// Store is the append-only ordered log contract.
type Store interface {
	// AppendEvents appends events to the log. Replay is ordered by the
	// Event.Timestamp field, not by the time of append; the in-memory
	// store keeps append order among events with equal timestamps.
	AppendEvents(ctx context.Context, evts []events.Event) error
	// ReplayFromTimestamp returns a BatchIterator over events with
	// Timestamp ≥ from, honoring opts.
	ReplayFromTimestamp(ctx context.Context, from int64, opts ReplayOptions) (BatchIterator, error)
	// MarkProcessed records that id has been consumed, for stores
	// supporting OnlyUnprocessed replay. A no-op for stores that don't.
	MarkProcessed(ctx context.Context, id string) error
}

func batchSizeOrDefault(n int) int {
	if n <= 0 {
		return defaultBatchSize
	}
	return n
}
