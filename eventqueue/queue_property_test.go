package eventqueue

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/agentrt/runtime/events"
	"github.com/agentrt/runtime/internal/config"
)

// TestDequeueOrderIsPriorityThenFIFOProperty verifies that for any sequence
// of enqueued priorities, Dequeue always returns items in non-increasing
// priority order, and preserves enqueue order among items sharing a
// priority.
func TestDequeueOrderIsPriorityThenFIFOProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("dequeue is priority-ordered with FIFO tiebreak", prop.ForAll(
		func(priorities []int) bool {
			q := New(config.DefaultQueueConfig())
			defer q.Destroy()

			ctx := context.Background()
			for i, p := range priorities {
				evt := events.New("property.test", i, events.Metadata{}, int64(i))
				evt.ID = fmt.Sprintf("evt-%d", i)
				if !q.Enqueue(ctx, evt, p) {
					return false
				}
			}

			var lastPriority int
			var lastSeq = -1
			first := true
			for {
				item, ok := q.Dequeue()
				if !ok {
					break
				}
				if !first {
					if item.Priority > lastPriority {
						return false
					}
					if item.Priority == lastPriority {
						seq := item.Event.Data.(int)
						if seq < lastSeq {
							return false
						}
						lastSeq = seq
					} else {
						lastSeq = item.Event.Data.(int)
					}
				} else {
					lastSeq = item.Event.Data.(int)
					first = false
				}
				lastPriority = item.Priority
			}
			return true
		},
		gen.SliceOfN(20, gen.IntRange(-5, 5)),
	))

	properties.TestingRun(t)
}

// TestEnqueueDeduplicatesByEventIDProperty verifies that re-enqueuing an
// event ID already present in the queue is always rejected, regardless of
// how many times it is attempted.
func TestEnqueueDeduplicatesByEventIDProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("duplicate ids enqueue at most once", prop.ForAll(
		func(attempts int) bool {
			if attempts < 1 {
				attempts = 1
			}
			q := New(config.DefaultQueueConfig())
			defer q.Destroy()

			ctx := context.Background()
			evt := events.New("property.dup", nil, events.Metadata{}, 0)
			evt.ID = "fixed-id"

			accepted := 0
			for i := 0; i < attempts; i++ {
				if q.Enqueue(ctx, evt, 0) {
					accepted++
				}
			}
			return accepted == 1 && q.Len() == 1
		},
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}
