// Package redisstore implements eventstore.Store on top of Redis, using a
// sorted set keyed by event timestamp (ZADD/ZRANGEBYSCORE) for the durable
// ordered log and a set for processed-id tracking.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentrt/runtime/events"
	"github.com/agentrt/runtime/eventstore"
)

// Config configures the Redis-backed event store.
type Config struct {
	// KeyPrefix namespaces the sorted set and processed-set keys.
	// Default: "agentrt:eventstore".
	KeyPrefix string
	// OpTimeout bounds each Redis round trip. Default: 5s.
	OpTimeout time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{KeyPrefix: "agentrt:eventstore", OpTimeout: 5 * time.Second}
}

type store struct {
	client *redis.Client
	cfg    Config
}

// New constructs an eventstore.Store backed by Redis. client must already
// be connected.
func New(client *redis.Client, cfg Config) eventstore.Store {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "agentrt:eventstore"
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	return &store{client: client, cfg: cfg}
}

func (s *store) logKey() string       { return s.cfg.KeyPrefix + ":log" }
func (s *store) processedKey() string { return s.cfg.KeyPrefix + ":processed" }

func (s *store) AppendEvents(ctx context.Context, evts []events.Event) error {
	if len(evts) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	pipe := s.client.Pipeline()
	for _, e := range evts {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("redisstore: marshal event %s: %w", e.ID, err)
		}
		pipe.ZAdd(ctx, s.logKey(), redis.Z{
			Score:  float64(e.Timestamp),
			Member: b,
		})
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *store) MarkProcessed(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()
	return s.client.SAdd(ctx, s.processedKey(), id).Err()
}

func (s *store) ReplayFromTimestamp(ctx context.Context, from int64, opts eventstore.ReplayOptions) (eventstore.BatchIterator, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	max := "+inf"
	if opts.To > 0 {
		max = fmt.Sprintf("%d", opts.To)
	}
	members, err := s.client.ZRangeByScore(ctx, s.logKey(), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", from),
		Max: max,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: zrangebyscore: %w", err)
	}

	window := make([]events.Event, 0, len(members))
	for _, m := range members {
		var e events.Event
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			return nil, fmt.Errorf("redisstore: unmarshal event: %w", err)
		}
		window = append(window, e)
	}

	if opts.OnlyUnprocessed {
		window, err = s.filterUnprocessed(ctx, window)
		if err != nil {
			return nil, err
		}
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &batchIterator{events: window, batchSize: batchSize}, nil
}

func (s *store) filterUnprocessed(ctx context.Context, window []events.Event) ([]events.Event, error) {
	if len(window) == 0 {
		return window, nil
	}
	ids := make([]string, len(window))
	for i, e := range window {
		ids[i] = e.ID
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.BoolCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.SIsMember(ctx, s.processedKey(), id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redisstore: sismember pipeline: %w", err)
	}
	filtered := window[:0]
	for i, e := range window {
		if !cmds[i].Val() {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

type batchIterator struct {
	events    []events.Event
	batchSize int
	pos       int
}

func (it *batchIterator) Next(context.Context) ([]events.Event, bool, error) {
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

func (it *batchIterator) Close() error { return nil }
