package dlq

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/agentrt/runtime/events"
	"github.com/agentrt/runtime/internal/config"
	"github.com/agentrt/runtime/internal/telemetry"
	"github.com/agentrt/runtime/persistor"
)

// ErrNotFound is returned by ReprocessFromDLQ when id is absent.
type ErrNotFound struct{ ID string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("dlq: item %q not found", e.ID) }

// ErrNotReprocessable is returned by ReprocessFromDLQ for a poisoned item.
type ErrNotReprocessable struct{ ID string }

func (e *ErrNotReprocessable) Error() string {
	return fmt.Sprintf("dlq: item %q is marked as poison and cannot be reprocessed", e.ID)
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithLogger attaches a structured logger.
func WithLogger(l telemetry.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithMetrics attaches a metrics recorder.
func WithMetrics(me telemetry.Metrics) Option { return func(m *Manager) { m.metrics = me } }

// WithPersistor wires the append-only Persistor used for durability.
func WithPersistor(p persistor.Persistor) Option { return func(m *Manager) { m.persistor = p } }

// Manager owns the in-memory DLQ map, which is the single source of
// truth: the Persistor is a best-effort durable log, never consulted for
// reads other than start-up rehydration.
type Manager struct {
	cfg config.DLQConfig

	mu    sync.Mutex
	items map[string]*Item
	order []string // insertion order, for reprocessByCriteria iteration

	persistor persistor.Persistor
	logger    telemetry.Logger
	metrics   telemetry.Metrics

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Manager and, if cfg.EnableAutoCleanup, starts the
// retention sweep loop.
func New(cfg config.DLQConfig, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg,
		items:   make(map[string]*Item),
		logger:  telemetry.NewNoopLogger(),
		metrics: telemetry.NewNoopMetrics(),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if cfg.EnableAutoCleanup {
		interval := cfg.CleanupInterval
		if interval <= 0 {
			interval = time.Hour
		}
		m.wg.Add(1)
		go m.cleanupLoop(interval)
	}
	return m
}

// LoadFromPersistor rehydrates the in-memory map from prior snapshots
// whose state.type == "dlq-item", in append order (later snapshots for
// the same id overwrite earlier ones, mirroring upsert-by-id semantics).
func (m *Manager) LoadFromPersistor(ctx context.Context, xcID string) error {
	if m.persistor == nil {
		return nil
	}
	it, err := m.persistor.Load(ctx, xcID)
	if err != nil {
		return err
	}
	defer it.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		snap, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if snap.State == nil || snap.State["type"] != "dlq-item" {
			continue
		}
		raw, ok := snap.State["dlqItem"]
		if !ok {
			continue
		}
		item, ok := raw.(*Item)
		if !ok {
			continue
		}
		if _, exists := m.items[item.ID]; !exists {
			m.order = append(m.order, item.ID)
		}
		m.items[item.ID] = item
	}
	return nil
}

// SendToDLQ upserts event's failure record by event.ID: enforces the
// configured max size by evicting the oldest item(s), appends the new
// error, derives tags, and — if enabled — best-effort persists the
// updated item. Returns a clone of the stored item.
func (m *Manager) SendToDLQ(ctx context.Context, event events.Event, cause error, attempts int, pctx ProcessingContext) *Item {
	now := time.Now().UnixMilli()
	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}

	m.mu.Lock()
	m.evictForCapacityLocked()

	item, existed := m.items[event.ID]
	if !existed {
		item = &Item{
			ID:               event.ID,
			Event:            event,
			FirstFailedAt:    now,
			OriginalPriority: 0,
			CanReprocess:     true,
			ProcessingContext: pctx,
		}
		m.items[event.ID] = item
		m.order = append(m.order, event.ID)
	}
	item.Errors = append(item.Errors, ErrorEntry{Message: errMsg, Timestamp: now, Attempt: attempts})
	item.Attempts = attempts
	item.LastFailedAt = now
	item.DLQTimestamp = now
	item.Tags = deriveTags(event, errMsg)
	size := len(m.items)
	snapshot := item.Clone()
	m.mu.Unlock()

	m.persistItem(ctx, snapshot)

	if m.cfg.AlertThreshold > 0 && size >= m.cfg.AlertThreshold {
		m.logger.Warn(ctx, "dlq size crossed alert threshold", "size", size, "alertThreshold", m.cfg.AlertThreshold)
	}
	m.metrics.IncCounter("dlq.sent", 1, "type", event.Type)
	return snapshot
}

// evictForCapacityLocked drops the oldest item(s) while at or over
// maxDLQSize. Caller holds m.mu.
func (m *Manager) evictForCapacityLocked() {
	if m.cfg.MaxDLQSize <= 0 {
		return
	}
	for len(m.order) >= m.cfg.MaxDLQSize {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.items, oldest)
	}
}

func (m *Manager) persistItem(ctx context.Context, item *Item) {
	if !m.cfg.EnablePersistence || m.persistor == nil {
		return
	}
	hash := events.ShortHash(item.ID, fmt.Sprintf("%d", item.DLQTimestamp), fmt.Sprintf("%d", item.Attempts))
	snap := persistor.Snapshot{
		XCID:   item.ID,
		Hash:   hash,
		Ts:     time.Now().UnixMilli(),
		Events: []any{item.Event},
		State:  map[string]any{"type": "dlq-item", "dlqItem": item},
	}
	if err := m.persistor.Append(ctx, snap); err != nil {
		m.logger.Warn(ctx, "dlq persistence failed", "eventId", item.ID, "error", err.Error())
	}
}

// ReprocessFromDLQ removes id from the DLQ and returns its event,
// provided the item exists and canReprocess is true. Persistence removal
// is not implemented; it is logged only, matching the append-only log.
func (m *Manager) ReprocessFromDLQ(ctx context.Context, id string) (events.Event, error) {
	m.mu.Lock()
	item, ok := m.items[id]
	if !ok {
		m.mu.Unlock()
		return events.Event{}, &ErrNotFound{ID: id}
	}
	if !item.CanReprocess {
		m.mu.Unlock()
		return events.Event{}, &ErrNotReprocessable{ID: id}
	}
	delete(m.items, id)
	m.order = removeID(m.order, id)
	m.mu.Unlock()

	m.logger.Info(ctx, "dlq item reprocessed; persisted log entry left in place (append-only)", "eventId", id)
	return item.Event, nil
}

// ReprocessByCriteria selects items matching every provided criterion,
// in insertion order, removes them from the DLQ, and returns their
// events. maxAge selects items at least that old.
func (m *Manager) ReprocessByCriteria(ctx context.Context, c Criteria) []events.Event {
	now := time.Now().UnixMilli()

	m.mu.Lock()
	var matched []string
	for _, id := range m.order {
		item := m.items[id]
		if c.EventType != "" && item.Event.Type != c.EventType {
			continue
		}
		if c.ErrorType != "" && !hasTag(item.Tags, "error:"+c.ErrorType) {
			continue
		}
		if c.Tag != "" && !hasTag(item.Tags, c.Tag) {
			continue
		}
		if c.MaxAge > 0 && now-item.DLQTimestamp < c.MaxAge {
			continue
		}
		matched = append(matched, id)
		if c.Limit > 0 && len(matched) >= c.Limit {
			break
		}
	}

	results := make([]events.Event, 0, len(matched))
	for _, id := range matched {
		results = append(results, m.items[id].Event)
		delete(m.items, id)
	}
	if len(matched) > 0 {
		m.order = removeIDs(m.order, matched)
	}
	m.mu.Unlock()

	m.logger.Info(ctx, "dlq reprocessByCriteria", "matched", len(results))
	return results
}

// MarkAsPoison sets canReprocess=false, appends a poison error entry
// (attempt=-1) and a "poison" tag. Idempotent: repeated calls with the
// same reason leave the item's state equivalent to after the first call
// (a poison entry is not appended again if the item is already poisoned
// with the same reason as its most recent error).
func (m *Manager) MarkAsPoison(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	item, ok := m.items[id]
	if !ok {
		m.mu.Unlock()
		return &ErrNotFound{ID: id}
	}
	alreadyPoison := !item.CanReprocess
	lastIsSameReason := len(item.Errors) > 0 && item.Errors[len(item.Errors)-1].Attempt == -1 && item.Errors[len(item.Errors)-1].Message == reason
	if alreadyPoison && lastIsSameReason {
		snapshot := item.Clone()
		m.mu.Unlock()
		m.persistItem(ctx, snapshot)
		return nil
	}

	item.CanReprocess = false
	now := time.Now().UnixMilli()
	item.Errors = append(item.Errors, ErrorEntry{Message: reason, Timestamp: now, Attempt: -1})
	item.LastFailedAt = now
	if !hasTag(item.Tags, "poison") {
		item.Tags = append(item.Tags, "poison")
	}
	snapshot := item.Clone()
	m.mu.Unlock()

	m.persistItem(ctx, snapshot)
	return nil
}

// GetDLQStats aggregates counts by event type and derived error type,
// the average attempts, the single oldest item, and up to ten most
// recent items sorted by dlqTimestamp descending.
func (m *Manager) GetDLQStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		ByEventType: make(map[string]int),
		ByErrorType: make(map[string]int),
	}
	totalAttempts := 0
	var all []*Item
	for _, id := range m.order {
		item := m.items[id]
		stats.Total++
		stats.ByEventType[item.Event.Type]++
		for _, tag := range item.Tags {
			if et, ok := cutPrefix(tag, "error:"); ok {
				stats.ByErrorType[et]++
			}
		}
		totalAttempts += item.Attempts
		if stats.Oldest == nil || item.DLQTimestamp < stats.Oldest.DLQTimestamp {
			stats.Oldest = item.Clone()
		}
		all = append(all, item)
	}
	if stats.Total > 0 {
		stats.AverageAttempts = float64(totalAttempts) / float64(stats.Total)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].DLQTimestamp > all[j].DLQTimestamp })
	n := len(all)
	if n > 10 {
		n = 10
	}
	stats.Recent = make([]*Item, 0, n)
	for i := 0; i < n; i++ {
		stats.Recent = append(stats.Recent, all[i].Clone())
	}
	return stats
}

// Get returns a clone of the stored item, if present.
func (m *Manager) Get(id string) (*Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// Len returns the current DLQ size.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

func (m *Manager) cleanupLoop(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.cleanupOldItems(context.Background())
		}
	}
}

// cleanupOldItems deletes items whose dlqTimestamp is older than
// maxRetentionDays.
func (m *Manager) cleanupOldItems(ctx context.Context) int {
	if m.cfg.MaxRetentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().UnixMilli() - int64(m.cfg.MaxRetentionDays)*86400*1000

	m.mu.Lock()
	var removed []string
	for _, id := range m.order {
		if m.items[id].DLQTimestamp < cutoff {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(m.items, id)
	}
	if len(removed) > 0 {
		m.order = removeIDs(m.order, removed)
	}
	m.mu.Unlock()

	if len(removed) > 0 {
		m.logger.Info(ctx, "dlq retention cleanup removed items", "count", len(removed))
	}
	return len(removed)
}

// Close stops the retention cleanup loop, if running.
func (m *Manager) Close() {
	select {
	case <-m.stopCh:
		return
	default:
		close(m.stopCh)
	}
	m.wg.Wait()
}

func removeID(ids []string, target string) []string {
	out := ids[:0:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func removeIDs(ids []string, targets []string) []string {
	skip := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		skip[t] = struct{}{}
	}
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):], true
	}
	return "", false
}
