// Package eventqueue implements the priority, size-aware,
// resource-backpressured queue that moves events between the tool
// pipeline, the agent core, and the dead-letter queue. It supports
// deduplication, optional persistence, an adaptive autoscaler, and a
// global concurrency semaphore.
package eventqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/agentrt/runtime/events"
	"github.com/agentrt/runtime/eventstore"
	"github.com/agentrt/runtime/internal/config"
	"github.com/agentrt/runtime/internal/telemetry"
	"github.com/agentrt/runtime/persistor"
	"github.com/agentrt/runtime/semaphore"
)

// HandlerFunc processes one dequeued Item.
type HandlerFunc func(ctx context.Context, item Item) error

// Option configures a Queue at construction time.
type Option func(*Queue)

// WithLogger attaches a structured logger.
func WithLogger(l telemetry.Logger) Option { return func(q *Queue) { q.logger = l } }

// WithMetrics attaches a metrics recorder.
func WithMetrics(m telemetry.Metrics) Option { return func(q *Queue) { q.metrics = m } }

// WithTracer attaches a tracer used to span processing chunks.
func WithTracer(t telemetry.Tracer) Option { return func(q *Queue) { q.tracer = t } }

// WithPersistor wires a Persistor for critical-event durability.
func WithPersistor(p persistor.Persistor) Option { return func(q *Queue) { q.persistor = p } }

// WithEventStore wires an event store for best-effort durable append.
func WithEventStore(s eventstore.Store) Option { return func(q *Queue) { q.store = s } }

// WithResourceMonitor overrides the default process/host ResourceMonitor,
// primarily for tests that need deterministic CPU/memory readings.
func WithResourceMonitor(rm *ResourceMonitor) Option { return func(q *Queue) { q.resource = rm } }

// Queue is the adaptive event queue described by the runtime's component
// design. Its internal slice and processed-set are mutated only under
// qmu; enqueue and processing never run concurrently on the same item by
// construction (deduplication plus mark-processed-only-on-success give
// at-least-once semantics).
type Queue struct {
	cfg config.QueueConfig

	qmu   sync.Mutex
	items []*Item
	queued map[string]struct{}

	processed *processedSet

	semResizer *semaphore.Resizer
	batchSize  atomic.Int64

	resource *ResourceMonitor

	// enqueueLimiter softly shapes enqueue bursts when cfg.MaxEnqueueRate
	// is configured; nil when rate limiting is disabled.
	enqueueLimiter *rate.Limiter

	persistor persistor.Persistor
	store     eventstore.Store

	logger  telemetry.Logger
	metrics telemetry.Metrics
	tracer  telemetry.Tracer

	processing atomic.Bool

	autoscaler *autoscaler
	closed     atomic.Bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// New constructs a Queue from cfg. Pass config.DefaultQueueConfig() or
// config.FastQueueConfig() for the two documented variants.
func New(cfg config.QueueConfig, opts ...Option) *Queue {
	q := &Queue{
		cfg:        cfg,
		queued:     make(map[string]struct{}),
		processed:  newProcessedSet(cfg.MaxProcessedEvents),
		semResizer: semaphore.NewResizer(semaphore.New(maxInt(cfg.MaxConcurrent, 1))),
		resource:   NewResourceMonitor(),
		logger:     telemetry.NewNoopLogger(),
		metrics:    telemetry.NewNoopMetrics(),
		tracer:     telemetry.NewNoopTracer(),
		stopCh:     make(chan struct{}),
	}
	q.batchSize.Store(int64(maxInt(cfg.BatchSize, 1)))
	if cfg.MaxEnqueueRate > 0 {
		q.enqueueLimiter = rate.NewLimiter(rate.Limit(cfg.MaxEnqueueRate), maxInt(cfg.EnqueueBurst, 1))
	}
	for _, opt := range opts {
		opt(q)
	}

	if cfg.EnableAutoScaling {
		q.autoscaler = newAutoscaler(q, cfg.AutoScalingInterval)
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.autoscaler.run(q.stopCh)
		}()
	}
	return q
}

// Enqueue inserts event at priority, applying deduplication, size
// classification, optional compression annotation, depth limits, and
// best-effort persistence, before inserting it keeping the queue's
// higher-priority-first / FIFO-within-priority invariant. It returns false
// if the event was rejected or deduplicated.
func (q *Queue) Enqueue(ctx context.Context, event events.Event, priority int) bool {
	if q.closed.Load() {
		return false
	}
	if q.enqueueLimiter != nil && !q.enqueueLimiter.Allow() {
		q.logger.Warn(ctx, "enqueue rate limit exceeded, rejected", "eventId", event.ID)
		return false
	}

	q.qmu.Lock()
	if q.processed.contains(event.ID) {
		q.qmu.Unlock()
		q.logger.Debug(ctx, "duplicate event dropped (already processed)", "eventId", event.ID)
		return false
	}
	if _, ok := q.queued[event.ID]; ok {
		q.qmu.Unlock()
		q.logger.Debug(ctx, "duplicate event dropped (already queued)", "eventId", event.ID)
		return false
	}
	q.qmu.Unlock()

	size, err := events.CanonicalSize(event)
	if err != nil {
		q.logger.Error(ctx, "failed to compute event size", "eventId", event.ID, "error", err.Error())
		return false
	}
	if q.cfg.MaxEventSize > 0 && size > q.cfg.MaxEventSize {
		q.logger.Warn(ctx, "event exceeds maxEventSize, rejected", "eventId", event.ID, "size", size)
		return false
	}

	item := &Item{Event: event, Priority: priority, EnqueuedAt: time.Now(), Size: size}

	if q.cfg.HugeEventThreshold > 0 && size >= q.cfg.HugeEventThreshold {
		item.IsHuge = true
		if q.cfg.DropHugeEvents {
			q.logger.Warn(ctx, "huge event dropped", "eventId", event.ID, "size", size)
			return false
		}
	}
	if q.cfg.LargeEventThreshold > 0 && size >= q.cfg.LargeEventThreshold {
		item.IsLarge = true
		if q.cfg.EnableCompression {
			// Metadata-only annotation: the payload (Data) is never
			// mutated; the queue-owned Item fields and the queued copy's
			// Metadata carry the marker.
			item.Compressed = true
			item.OriginalSize = size
			item.Event.Metadata.Compressed = true
			item.Event.Metadata.OriginalSize = size
		}
	}

	q.qmu.Lock()
	if q.cfg.MaxQueueDepth > 0 && len(q.items) >= q.cfg.MaxQueueDepth {
		q.qmu.Unlock()
		q.logger.Warn(ctx, "queue at maxQueueDepth, rejected", "eventId", event.ID)
		return false
	}
	q.qmu.Unlock()

	if q.shouldPersist(event) {
		snap := persistor.Snapshot{
			XCID:   event.ID,
			Hash:   events.ShortHash(event.ID, fmt.Sprintf("%d", event.Timestamp)),
			Ts:     time.Now().UnixMilli(),
			Events: []any{event},
			State:  map[string]any{"type": "queue-item"},
		}
		if err := q.persistor.Append(ctx, snap); err != nil {
			q.logger.Warn(ctx, "best-effort persistence failed", "eventId", event.ID, "error", err.Error())
		} else {
			item.Persistent = true
			item.PersistedAt = time.Now()
		}
	}

	if q.cfg.EnableEventStore && q.store != nil {
		if err := q.store.AppendEvents(ctx, []events.Event{event}); err != nil {
			q.logger.Warn(ctx, "best-effort event store append failed", "eventId", event.ID, "error", err.Error())
		}
	}

	q.qmu.Lock()
	q.insertLocked(item)
	q.queued[event.ID] = struct{}{}
	q.qmu.Unlock()

	q.metrics.IncCounter("eventqueue.enqueued", 1, "type", event.Type)
	return true
}

func (q *Queue) shouldPersist(event events.Event) bool {
	if !q.cfg.EnablePersistence || q.persistor == nil {
		return false
	}
	if q.cfg.PersistAllEvents {
		return true
	}
	if !q.cfg.PersistCriticalEvents {
		return false
	}
	for _, prefix := range q.cfg.CriticalEventPrefixes {
		if hasPrefix(event.Type, prefix) {
			return true
		}
	}
	return false
}

// insertLocked inserts item keeping "higher priority first, FIFO within
// equal priority". The insertion point is found by binary search
// (sort.Search) for the first item of strictly lower priority.
func (q *Queue) insertLocked(item *Item) {
	idx := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].Priority < item.Priority
	})
	q.items = append(q.items, nil)
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = item
}

// Dequeue removes and returns the head item, if any.
func (q *Queue) Dequeue() (Item, bool) {
	q.qmu.Lock()
	defer q.qmu.Unlock()
	if len(q.items) == 0 {
		return Item{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	delete(q.queued, item.Event.ID)
	return *item, true
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.qmu.Lock()
	defer q.qmu.Unlock()
	return len(q.items)
}

// IsFull reports whether resource-driven backpressure is currently active:
// memory or CPU usage over threshold, or depth at maxQueueDepth. This is
// advisory — producers may consult it to slow down, but Enqueue never
// drops on this basis alone.
func (q *Queue) IsFull() bool {
	if q.resource.MemoryUsage() > q.cfg.MaxMemoryUsage {
		return true
	}
	if q.resource.CPUUsage() > q.cfg.MaxCPUUsage {
		return true
	}
	if q.cfg.MaxQueueDepth > 0 && q.Len() >= q.cfg.MaxQueueDepth {
		return true
	}
	return false
}

// ProcessBatch dequeues up to the current batch size and runs handler over
// them, chunked by backpressure state. Concurrent callers observe a no-op
// (re-entrancy guard): ProcessBatch returns immediately with zero
// processed if another call is already in flight.
func (q *Queue) ProcessBatch(ctx context.Context, handler HandlerFunc) (processed int, err error) {
	if !q.processing.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer q.processing.Store(false)

	batch := q.drainBatch(int(q.batchSize.Load()))
	if len(batch) == 0 {
		return 0, nil
	}

	chunkSize := 5
	if q.IsFull() {
		chunkSize = 1
	}
	if chunkSize > len(batch) {
		chunkSize = len(batch)
	}

	for start := 0; start < len(batch); start += chunkSize {
		end := start + chunkSize
		if end > len(batch) {
			end = len(batch)
		}
		chunk := batch[start:end]
		q.processChunk(ctx, chunk, handler)
		processed += len(chunk)
		if end < len(batch) {
			time.Sleep(time.Millisecond)
		}
	}
	return processed, nil
}

// ProcessAll repeatedly calls ProcessBatch until the queue is drained or
// ctx is canceled.
func (q *Queue) ProcessAll(ctx context.Context, handler HandlerFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := q.ProcessBatch(ctx, handler)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func (q *Queue) drainBatch(max int) []Item {
	var batch []Item
	for len(batch) < max {
		item, ok := q.Dequeue()
		if !ok {
			break
		}
		batch = append(batch, item)
	}
	return batch
}

func (q *Queue) processChunk(ctx context.Context, chunk []Item, handler HandlerFunc) {
	var wg sync.WaitGroup
	for _, item := range chunk {
		item := item
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem := q.semResizer.Current()
			if q.cfg.EnableGlobalConcurrency {
				if err := sem.Acquire(ctx); err != nil {
					q.logger.Warn(ctx, "failed to acquire global concurrency permit", "eventId", item.Event.ID, "error", err.Error())
					return
				}
				defer sem.Release()
			}

			spanCtx, span := q.tracer.Start(ctx, "eventqueue.handle")
			defer span.End()

			start := time.Now()
			err := handler(spanCtx, item)
			q.metrics.RecordTimer("eventqueue.handle.duration", time.Since(start), "type", item.Event.Type)

			if err != nil {
				q.logger.Error(spanCtx, "event handler failed", "eventId", item.Event.ID, "type", item.Event.Type, "error", err.Error())
				q.metrics.IncCounter("eventqueue.handle.error", 1, "type", item.Event.Type)
				return
			}
			q.markProcessed(item.Event.ID)
			q.metrics.IncCounter("eventqueue.handle.success", 1, "type", item.Event.Type)
		}()
	}
	wg.Wait()
}

func (q *Queue) markProcessed(id string) {
	q.qmu.Lock()
	defer q.qmu.Unlock()
	q.processed.add(id)
}

// Destroy stops the autoscaler timer and clears all in-memory state:
// queue, processing history, and the processed-set.
func (q *Queue) Destroy() {
	if !q.closed.CompareAndSwap(false, true) {
		return
	}
	close(q.stopCh)
	q.wg.Wait()

	if q.autoscaler != nil {
		q.autoscaler.mu.Lock()
		q.autoscaler.history = nil
		q.autoscaler.mu.Unlock()
	}

	q.qmu.Lock()
	q.items = nil
	q.queued = make(map[string]struct{})
	q.processed.clear()
	q.qmu.Unlock()
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
