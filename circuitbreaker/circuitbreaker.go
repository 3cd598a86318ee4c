// Package circuitbreaker implements a three-state (CLOSED/OPEN/HALF_OPEN)
// guard around an operation with a timeout, protecting tool calls and other
// fallible operations from repeatedly hitting a failing dependency.
package circuitbreaker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/agentrt/runtime/internal/telemetry"
)

// State is one of CLOSED, OPEN, or HALF_OPEN.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config holds the breaker's thresholds and operation timeout.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// CLOSED → OPEN.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes in
	// HALF_OPEN required to close the circuit.
	SuccessThreshold int
	// RecoveryTimeout is how long the breaker stays OPEN before allowing
	// a probe call through (HALF_OPEN).
	RecoveryTimeout time.Duration
	// OperationTimeout bounds every wrapped call; a timeout counts as a
	// failure.
	OperationTimeout time.Duration
}

// Stats is the observable counter snapshot for a breaker.
type Stats struct {
	State           State
	FailureCount    int
	SuccessCount    int
	LastStateChange time.Time
	NextAttempt     time.Time
	Total           int64
	Successful      int64
	Failed          int64
	Rejected        int64
}

// Result describes the outcome of one Execute call.
type Result struct {
	Err      error
	State    State
	Executed bool
	Rejected bool
	Duration time.Duration
}

// StateChangeFunc is invoked whenever the breaker transitions between
// states. It must return quickly; it is called while not holding the
// breaker's lock.
type StateChangeFunc func(name string, from, to State)

// Option configures a Breaker at construction time.
type Option func(*Breaker)

// WithLogger attaches a structured logger.
func WithLogger(l telemetry.Logger) Option { return func(b *Breaker) { b.logger = l } }

// WithMetrics attaches a metrics recorder.
func WithMetrics(m telemetry.Metrics) Option { return func(b *Breaker) { b.metrics = m } }

// WithOnStateChange registers a callback fired on every state transition.
func WithOnStateChange(fn StateChangeFunc) Option {
	return func(b *Breaker) { b.onStateChange = fn }
}

// Breaker is a named circuit breaker instance. Its counters are updated
// only from within Execute; callers must not share a Breaker across
// contexts that expect independent failure accounting — construct one per
// protected dependency.
type Breaker struct {
	name   string
	config Config

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastStateChange time.Time
	nextAttempt     time.Time

	total      int64
	successful int64
	failed     int64
	rejected   int64

	logger        telemetry.Logger
	metrics       telemetry.Metrics
	onStateChange StateChangeFunc
}

// New constructs a Breaker named name with the given config.
func New(name string, config Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:            name,
		config:          config,
		state:           Closed,
		lastStateChange: time.Now(),
		logger:          telemetry.NewNoopLogger(),
		metrics:         telemetry.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs op under the breaker's protection. op is raced against
// config.OperationTimeout; a timeout counts as a failure. If the breaker is
// OPEN and the recovery timeout has not elapsed, Execute returns
// immediately with Rejected=true and does not invoke op.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) Result {
	start := time.Now()

	if rejected := b.shouldReject(); rejected {
		b.mu.Lock()
		b.rejected++
		st := b.state
		b.mu.Unlock()
		b.logger.Info(ctx, "circuit breaker rejected call", "breaker", b.name, "state", st.String())
		b.metrics.IncCounter("circuitbreaker.rejected", 1, "breaker", b.name)
		return Result{
			Err:      fmt.Errorf("circuit breaker is OPEN for %s", b.name),
			State:    st,
			Executed: false,
			Rejected: true,
			Duration: time.Since(start),
		}
	}

	opCtx := ctx
	var cancel context.CancelFunc
	if b.config.OperationTimeout > 0 {
		opCtx, cancel = context.WithTimeout(ctx, b.config.OperationTimeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("circuit breaker: panic in operation: %v\n%s", r, debug.Stack())
			}
		}()
		done <- op(opCtx)
	}()

	var opErr error
	select {
	case opErr = <-done:
	case <-opCtx.Done():
		opErr = fmt.Errorf("circuit breaker: operation timed out after %s: %w", b.config.OperationTimeout, opCtx.Err())
	}

	finalState := b.recordResult(opErr)
	duration := time.Since(start)

	b.metrics.RecordTimer("circuitbreaker.duration", duration, "breaker", b.name)
	if opErr != nil {
		b.logger.Warn(ctx, "circuit breaker call failed", "breaker", b.name, "error", opErr.Error())
	}

	return Result{
		Err:      opErr,
		State:    finalState,
		Executed: true,
		Rejected: false,
		Duration: duration,
	}
}

// shouldReject reports whether a call must be rejected without execution,
// transitioning OPEN → HALF_OPEN as a side effect when the recovery timeout
// has elapsed.
func (b *Breaker) shouldReject() bool {
	b.mu.Lock()
	b.total++
	switch b.state {
	case Closed, HalfOpen:
		b.mu.Unlock()
		return false
	case Open:
		if !time.Now().Before(b.nextAttempt) {
			from := b.state
			b.transitionLocked(HalfOpen)
			b.successCount = 0
			b.mu.Unlock()
			b.fireStateChange(from, HalfOpen)
			return false
		}
		b.mu.Unlock()
		return true
	default:
		b.mu.Unlock()
		return false
	}
}

// recordResult applies a completed call's outcome to the breaker's state
// machine and returns the resulting state.
func (b *Breaker) recordResult(err error) State {
	b.mu.Lock()
	from := b.state
	to := from
	transitioned := false

	if err == nil {
		b.successful++
		switch b.state {
		case Closed:
			b.failureCount = 0
		case HalfOpen:
			b.successCount++
			if b.successCount >= b.config.SuccessThreshold {
				b.transitionLocked(Closed)
				b.failureCount = 0
				b.successCount = 0
				to, transitioned = Closed, true
			}
		}
	} else {
		b.failed++
		switch b.state {
		case Closed:
			b.failureCount++
			if b.failureCount >= b.config.FailureThreshold {
				b.transitionLocked(Open)
				b.nextAttempt = time.Now().Add(b.config.RecoveryTimeout)
				to, transitioned = Open, true
			}
		case HalfOpen:
			b.transitionLocked(Open)
			b.nextAttempt = time.Now().Add(b.config.RecoveryTimeout)
			b.successCount = 0
			to, transitioned = Open, true
		}
	}

	final := b.state
	b.mu.Unlock()
	if transitioned {
		b.fireStateChange(from, to)
	}
	return final
}

// transitionLocked changes state. The caller must hold b.mu. It does not
// fire the state-change callback itself — callers invoke fireStateChange
// after releasing the lock so the callback never runs while the breaker is
// locked.
func (b *Breaker) transitionLocked(to State) {
	b.state = to
	b.lastStateChange = time.Now()
}

// fireStateChange invokes the registered callback, if any, synchronously
// and outside the breaker's lock.
func (b *Breaker) fireStateChange(from, to State) {
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}

// Stats returns a point-in-time snapshot of the breaker's counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		State:           b.state,
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		LastStateChange: b.lastStateChange,
		NextAttempt:     b.nextAttempt,
		Total:           b.total,
		Successful:      b.successful,
		Failed:          b.failed,
		Rejected:        b.rejected,
	}
}

// Name returns the breaker's identifying name.
func (b *Breaker) Name() string { return b.name }
