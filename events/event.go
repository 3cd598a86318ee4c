// Package events defines the Event type shared by the event queue, event
// store, and dead-letter queue.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Metadata is the canonical event metadata mapping. CorrelationID,
// TenantID, AgentID, and WorkflowID are recognized keys threaded through
// the queue, dead-letter queue, and event store; Compressed/OriginalSize
// are annotations the queue attaches on enqueue.
type Metadata struct {
	CorrelationID string `json:"correlationId,omitempty"`
	TenantID      string `json:"tenantId,omitempty"`
	AgentID       string `json:"agentId,omitempty"`
	WorkflowID    string `json:"workflowId,omitempty"`
	Compressed    bool   `json:"compressed,omitempty"`
	OriginalSize  int64  `json:"originalSize,omitempty"`
}

// Event is the unit of data moved between the queue, the store, and the
// dead-letter queue. Type is a lowercase dotted namespace, e.g.
// "agent.tool.error"; wildcards (where supported) match by prefix.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"` // ms since epoch
	Data      any            `json:"data"`
	Metadata  Metadata       `json:"metadata"`
}

// New constructs an Event with a generated id and the given timestamp.
func New(eventType string, data any, meta Metadata, timestampMs int64) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: timestampMs,
		Data:      data,
		Metadata:  meta,
	}
}

// CanonicalSize returns the byte length of the event's canonical JSON
// encoding, used by the queue to classify large/huge events.
func CanonicalSize(e Event) (int64, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("events: canonical encode: %w", err)
	}
	return int64(len(b)), nil
}

// ShortHash returns a stable, ≥16-hex-char short digest over the fields
// the persistor's snapshot hash is defined on: {id, dlqTimestamp, attempts}
// for dead-letter snapshots, or any caller-supplied key material.
func ShortHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:16]
}
