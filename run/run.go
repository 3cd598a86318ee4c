// Package run defines the identifiers and durable metadata record for a
// single agent execution (a "run" of the Think-Act-Observe loop).
package run

import (
	"context"
	"errors"
	"time"
)

// Context carries execution metadata for the current run invocation:
// identifiers, labels, and the caps active for this attempt.
type Context struct {
	RunID         string
	SessionID     string
	TurnID        string
	CorrelationID string
	Attempt       int
	Labels        map[string]string
	MaxDuration   time.Duration
}

// Record captures persistent metadata for a run, stored for
// observability and lifecycle tracking.
type Record struct {
	AgentID   string
	RunID     string
	SessionID string
	TurnID    string
	Status    Status
	Phase     Phase
	StartedAt time.Time
	UpdatedAt time.Time
	Labels    map[string]string
	Metadata  map[string]any
}

// Store persists run metadata for observability and lookup.
type Store interface {
	Upsert(ctx context.Context, record Record) error
	Load(ctx context.Context, runID string) (Record, error)
}

// ErrNotFound indicates no run record exists for the given id.
var ErrNotFound = errors.New("run: not found")

// Status is the coarse-grained lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
	StatusStagnated Status = "stagnated"
)

// Phase is the finer-grained lifecycle phase within a running run,
// intended for streaming/UX surfaces; it does not replace Status.
type Phase string

const (
	PhasePrompted       Phase = "prompted"
	PhaseThinking       Phase = "thinking"
	PhaseActing         Phase = "acting"
	PhaseObserving      Phase = "observing"
	PhaseSynthesizing   Phase = "synthesizing"
	PhaseCompleted      Phase = "completed"
	PhaseFailed         Phase = "failed"
	PhaseCanceled       Phase = "canceled"
)
