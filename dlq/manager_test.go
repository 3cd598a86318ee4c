package dlq

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/runtime/events"
	"github.com/agentrt/runtime/internal/config"
)

func newTestManager(t *testing.T, mutate func(*config.DLQConfig)) *Manager {
	t.Helper()
	cfg := config.Default().DLQ
	cfg.EnableAutoCleanup = false
	if mutate != nil {
		mutate(&cfg)
	}
	m := New(cfg)
	t.Cleanup(m.Close)
	return m
}

func TestSendToDLQUpsertsAndAccumulatesErrors(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	e := events.New("tool.error", nil, events.Metadata{}, 1)

	m.SendToDLQ(ctx, e, errors.New("request timeout"), 1, ProcessingContext{})
	item := m.SendToDLQ(ctx, e, errors.New("request timeout again"), 2, ProcessingContext{})

	require.Equal(t, 2, item.Attempts)
	require.Len(t, item.Errors, 2)
	require.Equal(t, 1, m.Len(), "same event id upserts in place")
}

func TestReprocessByCriteriaMatchesByTag(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	a := events.New("tool.error", nil, events.Metadata{}, 1)
	a.ID = "a"
	b := events.New("agent.error", nil, events.Metadata{}, 2)
	b.ID = "b"

	m.SendToDLQ(ctx, a, errors.New("timeout while calling tool"), 1, ProcessingContext{})
	m.SendToDLQ(ctx, b, errors.New("auth failed"), 1, ProcessingContext{})

	got := m.ReprocessByCriteria(ctx, Criteria{Tag: "error:timeout"})
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].ID)
	require.Equal(t, 1, m.Len(), "only the matched item is removed")
}

func TestMarkAsPoisonPreventsReprocessAndIsIdempotent(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	e := events.New("tool.error", nil, events.Metadata{}, 1)
	m.SendToDLQ(ctx, e, errors.New("boom"), 1, ProcessingContext{})

	require.NoError(t, m.MarkAsPoison(ctx, e.ID, "manual review"))
	item, ok := m.Get(e.ID)
	require.True(t, ok)
	require.False(t, item.CanReprocess)
	errCountAfterFirst := len(item.Errors)

	require.NoError(t, m.MarkAsPoison(ctx, e.ID, "manual review"))
	item2, _ := m.Get(e.ID)
	require.Equal(t, errCountAfterFirst, len(item2.Errors), "repeating the same reason does not append another entry")

	_, err := m.ReprocessFromDLQ(ctx, e.ID)
	require.Error(t, err)
}

func TestMaxDLQSizeEvictsOldest(t *testing.T) {
	m := newTestManager(t, func(c *config.DLQConfig) { c.MaxDLQSize = 2 })
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		e := events.New("tool.error", nil, events.Metadata{}, 1)
		e.ID = id
		m.SendToDLQ(ctx, e, errors.New("fail"), 1, ProcessingContext{})
	}

	require.Equal(t, 2, m.Len())
	_, ok := m.Get("a")
	require.False(t, ok, "oldest item must be evicted once at capacity")
}

func TestGetDLQStatsAggregatesByTypeAndError(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	e1 := events.New("tool.error", nil, events.Metadata{}, 1)
	e1.ID = "a"
	e2 := events.New("tool.error", nil, events.Metadata{}, 2)
	e2.ID = "b"
	m.SendToDLQ(ctx, e1, errors.New("connection timeout"), 1, ProcessingContext{})
	m.SendToDLQ(ctx, e2, errors.New("validation failed"), 3, ProcessingContext{})

	stats := m.GetDLQStats()
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 2, stats.ByEventType["tool.error"])
	require.Equal(t, 1, stats.ByErrorType["timeout"])
	require.Equal(t, 1, stats.ByErrorType["validation"])
	require.InDelta(t, 2.0, stats.AverageAttempts, 0.001)
	require.NotNil(t, stats.Oldest)
}
