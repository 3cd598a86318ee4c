// Package dlq implements the dead-letter queue: a bounded, tagged,
// persistable holding area for events that exhausted their retry budget.
package dlq

import (
	"strings"

	"github.com/agentrt/runtime/events"
)

// ErrorEntry records one failure against a DLQItem.
type ErrorEntry struct {
	Message   string `json:"message"`
	Stack     string `json:"stack,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Attempt   int    `json:"attempt"`
}

// ProcessingContext carries the provenance of the failure that sent an
// event to the DLQ.
type ProcessingContext struct {
	HandlerName   string `json:"handlerName,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	TraceID       string `json:"traceId,omitempty"`
	AgentID       string `json:"agentId,omitempty"`
	WorkflowID    string `json:"workflowId,omitempty"`
}

// Item is a DLQItem: an event that failed processing, with its full
// failure history, derived tags, and a reprocess eligibility flag.
type Item struct {
	ID                string            `json:"id"`
	Event             events.Event      `json:"event"`
	Errors            []ErrorEntry      `json:"errors"`
	Attempts          int               `json:"attempts"`
	FirstFailedAt     int64             `json:"firstFailedAt"`
	LastFailedAt      int64             `json:"lastFailedAt"`
	DLQTimestamp      int64             `json:"dlqTimestamp"`
	OriginalPriority  int               `json:"originalPriority"`
	ProcessingContext ProcessingContext `json:"processingContext"`
	Tags              []string          `json:"tags"`
	CanReprocess      bool              `json:"canReprocess"`
}

// Clone returns a deep-enough copy of the item suitable for handing to
// external readers, so callers cannot mutate manager-owned state.
func (it *Item) Clone() *Item {
	cp := *it
	cp.Errors = append([]ErrorEntry(nil), it.Errors...)
	cp.Tags = append([]string(nil), it.Tags...)
	return &cp
}

// Criteria selects DLQItems for reprocessByCriteria. Zero-valued fields
// are not applied as filters.
type Criteria struct {
	EventType string
	ErrorType string
	Tag       string
	MaxAge    int64 // milliseconds; selects items at least this old
	Limit     int
}

// Stats aggregates DLQ composition for observability/alerting.
type Stats struct {
	Total           int
	ByEventType     map[string]int
	ByErrorType     map[string]int
	AverageAttempts float64
	Oldest          *Item
	Recent          []*Item // up to 10, newest first
}

var errorTypeOrder = []string{"timeout", "network", "auth", "validation", "notfound", "servererror"}

// classifyError returns one of the documented error-type buckets based on
// a substring match over the lowercased message, or "unknown".
func classifyError(message string) string {
	lower := strings.ToLower(message)
	for _, t := range errorTypeOrder {
		if strings.Contains(lower, t) {
			return t
		}
	}
	return "unknown"
}

// deriveTags computes the tag set for an event/error pair: a type-prefix
// tag, an error-classification tag, and agent/workflow tags when present
// in the event's metadata.
func deriveTags(event events.Event, errMessage string) []string {
	tags := make([]string, 0, 4)
	if head, _, ok := strings.Cut(event.Type, "."); ok {
		tags = append(tags, "type:"+head)
	} else if event.Type != "" {
		tags = append(tags, "type:"+event.Type)
	}
	tags = append(tags, "error:"+classifyError(errMessage))
	if event.Metadata.AgentID != "" {
		tags = append(tags, "agent:"+event.Metadata.AgentID)
	}
	if event.Metadata.WorkflowID != "" {
		tags = append(tags, "workflow:"+event.Metadata.WorkflowID)
	}
	return tags
}
