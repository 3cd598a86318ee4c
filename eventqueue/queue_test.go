package eventqueue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/runtime/events"
	"github.com/agentrt/runtime/internal/config"
)

func newTestQueue(t *testing.T, mutate func(*config.QueueConfig)) *Queue {
	t.Helper()
	cfg := config.DefaultQueueConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	q := New(cfg)
	t.Cleanup(q.Destroy)
	return q
}

func TestEnqueueDuplicateIsNoOp(t *testing.T) {
	q := newTestQueue(t, nil)
	e := events.New("agent.thought", map[string]any{"x": 1}, events.Metadata{}, 1)

	require.True(t, q.Enqueue(context.Background(), e, 0))
	require.Equal(t, 1, q.Len())
	require.False(t, q.Enqueue(context.Background(), e, 0), "second enqueue of the same id must be a no-op")
	require.Equal(t, 1, q.Len())
}

func TestDequeueOrderIsPriorityThenFIFO(t *testing.T) {
	q := newTestQueue(t, nil)
	ctx := context.Background()

	low1 := events.New("a", nil, events.Metadata{}, 1)
	high := events.New("a", nil, events.Metadata{}, 2)
	low2 := events.New("a", nil, events.Metadata{}, 3)

	require.True(t, q.Enqueue(ctx, low1, 0))
	require.True(t, q.Enqueue(ctx, high, 5))
	require.True(t, q.Enqueue(ctx, low2, 0))

	first, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, high.ID, first.Event.ID, "higher priority dequeues first")

	second, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, low1.ID, second.Event.ID, "equal priority preserves FIFO by enqueue time")

	third, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, low2.ID, third.Event.ID)
}

func TestMaxQueueDepthRejectsAtLimitThenAcceptsAfterDequeue(t *testing.T) {
	q := newTestQueue(t, func(c *config.QueueConfig) { c.MaxQueueDepth = 1 })
	ctx := context.Background()

	e1 := events.New("a", nil, events.Metadata{}, 1)
	e2 := events.New("a", nil, events.Metadata{}, 2)

	require.True(t, q.Enqueue(ctx, e1, 0))
	require.False(t, q.Enqueue(ctx, e2, 0), "enqueue at depth==limit must reject")

	_, ok := q.Dequeue()
	require.True(t, ok)

	require.True(t, q.Enqueue(ctx, e2, 0), "enqueue after dequeue below limit must succeed")
}

func TestHugeEventAtThresholdDroppedWhenConfigured(t *testing.T) {
	q := newTestQueue(t, func(c *config.QueueConfig) {
		c.HugeEventThreshold = 64
		c.DropHugeEvents = true
	})
	ctx := context.Background()

	big := events.New("a", map[string]any{"payload": make([]byte, 256)}, events.Metadata{}, 1)
	require.False(t, q.Enqueue(ctx, big, 0))
}

func TestCompressionAnnotationIsMetadataOnly(t *testing.T) {
	q := newTestQueue(t, func(c *config.QueueConfig) {
		c.LargeEventThreshold = 8
		c.EnableCompression = true
	})
	ctx := context.Background()

	payload := map[string]any{"data": "this payload is long enough to cross the threshold"}
	e := events.New("a", payload, events.Metadata{}, 1)
	require.True(t, q.Enqueue(ctx, e, 0))

	item, ok := q.Dequeue()
	require.True(t, ok)
	require.True(t, item.Compressed)
	require.Greater(t, item.OriginalSize, int64(0))
	require.Equal(t, payload, item.Event.Data, "payload bytes are never mutated by compression annotation")
}

func TestProcessBatchMarksProcessedOnlyOnSuccess(t *testing.T) {
	q := newTestQueue(t, nil)
	ctx := context.Background()

	ok1 := events.New("a", nil, events.Metadata{}, 1)
	fails := events.New("a", nil, events.Metadata{}, 2)
	q.Enqueue(ctx, ok1, 0)
	q.Enqueue(ctx, fails, 0)

	n, err := q.ProcessBatch(ctx, func(_ context.Context, item Item) error {
		if item.Event.ID == fails.ID {
			return errAlways
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	q.qmu.Lock()
	processedOK := q.processed.contains(ok1.ID)
	processedFail := q.processed.contains(fails.ID)
	q.qmu.Unlock()
	require.True(t, processedOK)
	require.False(t, processedFail, "failed handler must not mark the item processed")
}

func TestProcessBatchReentrancyGuardIsNoOp(t *testing.T) {
	q := newTestQueue(t, nil)
	ctx := context.Background()
	q.Enqueue(ctx, events.New("a", nil, events.Metadata{}, 1), 0)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		q.ProcessBatch(ctx, func(context.Context, Item) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	n, err := q.ProcessBatch(ctx, func(context.Context, Item) error { return nil })
	require.NoError(t, err)
	require.Equal(t, 0, n, "a concurrent ProcessBatch call observes a no-op")
	close(release)
}

var errAlways = &testError{"handler failure"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
