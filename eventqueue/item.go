package eventqueue

import (
	"time"

	"github.com/agentrt/runtime/events"
)

// Item is a QueueItem: an event plus the queue-owned bookkeeping fields.
// An Item is owned exclusively by the Queue between Enqueue and a
// successful handler return; after that it is released for GC.
type Item struct {
	Event        events.Event
	Priority     int
	EnqueuedAt   time.Time
	RetryCount   int
	Size         int64
	IsLarge      bool
	IsHuge       bool
	Compressed   bool
	OriginalSize int64
	Persistent   bool
	PersistedAt  time.Time
}
