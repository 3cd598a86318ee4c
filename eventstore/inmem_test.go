package eventstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/runtime/events"
)

func TestReplayOrdersByTimestamp(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	e1 := events.New("agent.thought", nil, events.Metadata{}, 100)
	e2 := events.New("agent.action", nil, events.Metadata{}, 200)
	require.NoError(t, s.AppendEvents(ctx, []events.Event{e2, e1}))

	it, err := s.ReplayFromTimestamp(ctx, 0, ReplayOptions{})
	require.NoError(t, err)

	var got []events.Event
	for {
		batch, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, batch...)
	}
	require.Len(t, got, 2)
	require.Equal(t, e1.ID, got[0].ID)
	require.Equal(t, e2.ID, got[1].ID)
}

func TestReplayRespectsFromAndTo(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	require.NoError(t, s.AppendEvents(ctx, []events.Event{
		events.New("a", nil, events.Metadata{}, 100),
		events.New("a", nil, events.Metadata{}, 200),
		events.New("a", nil, events.Metadata{}, 300),
	}))

	it, err := s.ReplayFromTimestamp(ctx, 150, ReplayOptions{To: 250})
	require.NoError(t, err)
	batch, ok, err := it.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, batch, 1)
	require.Equal(t, int64(200), batch[0].Timestamp)

	_, ok, err = it.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReplayBatchesBySize(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	for i := int64(0); i < 5; i++ {
		require.NoError(t, s.AppendEvents(ctx, []events.Event{events.New("a", nil, events.Metadata{}, i)}))
	}
	it, err := s.ReplayFromTimestamp(ctx, 0, ReplayOptions{BatchSize: 2})
	require.NoError(t, err)

	var batches [][]events.Event
	for {
		b, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		batches = append(batches, b)
	}
	require.Len(t, batches, 3)
	require.Len(t, batches[0], 2)
	require.Len(t, batches[2], 1)
}

func TestOnlyUnprocessedFiltersMarked(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	e1 := events.New("a", nil, events.Metadata{}, 1)
	e2 := events.New("a", nil, events.Metadata{}, 2)
	require.NoError(t, s.AppendEvents(ctx, []events.Event{e1, e2}))
	require.NoError(t, s.MarkProcessed(ctx, e1.ID))

	it, err := s.ReplayFromTimestamp(ctx, 0, ReplayOptions{OnlyUnprocessed: true})
	require.NoError(t, err)
	batch, ok, err := it.Next(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, batch, 1)
	require.Equal(t, e2.ID, batch[0].ID)
}
