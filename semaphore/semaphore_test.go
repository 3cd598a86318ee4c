package semaphore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	require.NoError(t, s.Acquire(ctx))
	require.NoError(t, s.Acquire(ctx))
	require.Equal(t, 2, s.InFlight())

	require.False(t, s.TryAcquire())

	s.Release()
	require.Equal(t, 1, s.InFlight())
	require.True(t, s.TryAcquire())
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	s := New(1)
	ctx := context.Background()
	require.NoError(t, s.Acquire(ctx))

	acquired := make(chan struct{})
	go func() {
		require.NoError(t, s.Acquire(ctx))
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("acquire should have blocked")
	case <-time.After(20 * time.Millisecond):
	}

	s.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("acquire did not unblock after release")
	}
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	s := New(1)
	require.NoError(t, s.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestResizeDoesNotPreemptInFlight(t *testing.T) {
	r := NewResizer(New(1))
	original := r.Current()
	require.NoError(t, original.Acquire(context.Background()))

	resized := r.Resize(5)
	require.NotSame(t, original, resized)
	require.Same(t, resized, r.Current())

	// The old semaphore's held permit is unaffected by the resize.
	require.Equal(t, 1, original.InFlight())
	require.Equal(t, 0, resized.InFlight())
}

func TestNoPermitsLostUnderConcurrency(t *testing.T) {
	s := New(4)
	var wg sync.WaitGroup
	var mu sync.Mutex
	maxObserved := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, s.Acquire(context.Background()))
			defer s.Release()
			mu.Lock()
			if in := s.InFlight(); in > maxObserved {
				maxObserved = in
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, maxObserved, 4)
	require.Equal(t, 0, s.InFlight())
}
