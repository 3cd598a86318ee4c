// Package semaphore provides a fixed-capacity counting semaphore with FIFO
// waiters, used both for the event queue's global concurrency limit and for
// per-batch chunk fan-out inside the tool pipeline.
package semaphore

import (
	"context"
	"sync"
	"sync/atomic"
)

// Semaphore is a bounded counting permit. Acquire blocks until a permit is
// available or the context is canceled; Release hands the permit to the
// oldest waiter, preserving FIFO order, or returns it to the pool.
//
// There is no preemption and no built-in timeout — callers that need a
// deadline pass a context with one.
type Semaphore struct {
	ch        chan struct{}
	capacity  int32
	inFlight  int32
}

// New constructs a Semaphore with the given capacity. A capacity ≤ 0 is
// treated as 1 to avoid an unusable semaphore.
func New(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	return &Semaphore{
		ch:       make(chan struct{}, capacity),
		capacity: int32(capacity),
	}
}

// Acquire blocks until a permit is available or ctx is done. Callers on the
// same semaphore that call Acquire are served in the order the runtime
// schedules their channel sends — first come, first served.
func (s *Semaphore) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		atomic.AddInt32(&s.inFlight, 1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire attempts to acquire a permit without blocking, returning false
// if none is immediately available.
func (s *Semaphore) TryAcquire() bool {
	select {
	case s.ch <- struct{}{}:
		atomic.AddInt32(&s.inFlight, 1)
		return true
	default:
		return false
	}
}

// Release returns a permit to the semaphore.
func (s *Semaphore) Release() {
	select {
	case <-s.ch:
		atomic.AddInt32(&s.inFlight, -1)
	default:
		// Release without a matching Acquire is a caller bug; ignore rather
		// than panic so a double-release cannot crash the process.
	}
}

// Capacity returns the semaphore's configured permit count.
func (s *Semaphore) Capacity() int { return int(atomic.LoadInt32(&s.capacity)) }

// InFlight returns the number of permits currently held.
func (s *Semaphore) InFlight() int { return int(atomic.LoadInt32(&s.inFlight)) }

// Resizer swaps the active Semaphore for one with a new capacity. Resizing
// creates a fresh Semaphore; operations already holding a permit on the old
// one continue to run under it until they release — capacity changes are
// eventually consistent, never preempting in-flight work.
type Resizer struct {
	mu  sync.RWMutex
	sem *Semaphore
}

// NewResizer wraps an initial Semaphore for atomic swap-on-resize access.
func NewResizer(initial *Semaphore) *Resizer {
	return &Resizer{sem: initial}
}

// Current returns the active Semaphore.
func (r *Resizer) Current() *Semaphore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sem
}

// Resize swaps in a new Semaphore of the given capacity and returns it.
// Existing holders of the previous semaphore's permits are unaffected.
func (r *Resizer) Resize(capacity int) *Semaphore {
	next := New(capacity)
	r.mu.Lock()
	r.sem = next
	r.mu.Unlock()
	return next
}
