// Package toolpipeline dispatches a planner-produced AgentAction to one
// or more tool calls, behind the circuit breaker, using the strategy the
// action's variant implies: single, parallel, sequential, conditional,
// mixed/adaptive, or dependency-ordered. Every call emits best-effort
// lifecycle events (agent.action.start / agent.tool.completed /
// agent.tool.error) tagged with the action's correlation id.
package toolpipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentrt/runtime/circuitbreaker"
	"github.com/agentrt/runtime/internal/telemetry"
	"github.com/agentrt/runtime/internal/toolerrors"
	"github.com/agentrt/runtime/planner"
	"github.com/agentrt/runtime/semaphore"
	"github.com/agentrt/runtime/tools"
)

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

func WithLogger(l telemetry.Logger) Option   { return func(p *Pipeline) { p.logger = l } }
func WithMetrics(m telemetry.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }
func WithTracer(t telemetry.Tracer) Option   { return func(p *Pipeline) { p.tracer = t } }
func WithBus(b planner.Bus) Option           { return func(p *Pipeline) { p.bus = b } }
func WithValidator(v *tools.Validator) Option { return func(p *Pipeline) { p.validator = v } }

// WithDefaultTimeout sets the per-tool-call operation timeout used when
// an action does not specify its own.
func WithDefaultTimeout(d time.Duration) Option { return func(p *Pipeline) { p.defaultTimeout = d } }

// Pipeline executes AgentActions against an Executor collaborator,
// routing every individual tool call through a Breaker.
type Pipeline struct {
	executor  tools.Executor
	breaker   *circuitbreaker.Breaker
	validator *tools.Validator
	bus       planner.Bus

	logger         telemetry.Logger
	metrics        telemetry.Metrics
	tracer         telemetry.Tracer
	defaultTimeout time.Duration
}

// New constructs a Pipeline. executor and breaker are required; a nil
// bus/validator disables observability emission / argument validation
// respectively.
func New(executor tools.Executor, breaker *circuitbreaker.Breaker, opts ...Option) *Pipeline {
	p := &Pipeline{
		executor:       executor,
		breaker:        breaker,
		logger:         telemetry.NewNoopLogger(),
		metrics:        telemetry.NewNoopMetrics(),
		tracer:         telemetry.NewNoopTracer(),
		defaultTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Execute dispatches action and returns the ordered ActionResult, one
// Entry per tool invoked (or a single-shot ToolResult/FinalAnswer for
// non-multi-tool actions).
func (p *Pipeline) Execute(ctx context.Context, action planner.AgentAction, correlationID string) (planner.ActionResult, error) {
	switch action.Kind {
	case planner.ActionToolCall:
		entry := p.callOne(ctx, *action.ToolCall, correlationID)
		if entry.Err != nil {
			return planner.ActionResult{Kind: planner.ResultError, Error: &planner.ErrorPayload{Err: entry.Err}}, nil
		}
		return planner.ActionResult{
			Kind:       planner.ResultToolResult,
			ToolResult: &planner.ToolResultPayload{Content: entry.Result},
			Entries:    []planner.ToolEntry{entry},
		}, nil

	case planner.ActionFinalAnswer:
		return planner.ActionResult{Kind: planner.ResultFinalAnswer, FinalAnswer: &planner.FinalAnswerPayload{Content: action.FinalAnswer.Content}}, nil

	case planner.ActionNeedMoreInfo:
		return planner.ActionResult{Kind: planner.ResultFinalAnswer, FinalAnswer: &planner.FinalAnswerPayload{Content: action.NeedMoreInfo.Question}}, nil

	case planner.ActionParallelTools:
		entries := p.executeParallel(ctx, action.ParallelTools.Tools, action.ParallelTools.Concurrency, action.ParallelTools.FailFast, correlationID)
		return entriesResult(entries), nil

	case planner.ActionSequentialTools:
		entries := p.executeSequential(ctx, action.SequentialTools.Tools, action.SequentialTools.StopOnError, correlationID)
		return entriesResult(entries), nil

	case planner.ActionConditionalTools:
		entries := p.executeConditional(ctx, action.ConditionalTools.Tools, action.ConditionalTools.Conditions, correlationID)
		return entriesResult(entries), nil

	case planner.ActionMixedTools:
		entries := p.executeMixed(ctx, *action.MixedTools, correlationID)
		return entriesResult(entries), nil

	case planner.ActionDependencyTools:
		entries := p.executeDependency(ctx, action.DependencyTools.Tools, action.DependencyTools.Dependencies, action.DependencyTools.Config, correlationID)
		return entriesResult(entries), nil

	case planner.ActionExecutePlan, planner.ActionDelegateToAgent:
		return planner.ActionResult{}, fmt.Errorf("toolpipeline: %s is not dispatched by Execute", action.Kind)

	default:
		return planner.ActionResult{}, fmt.Errorf("toolpipeline: unknown action kind %q", action.Kind)
	}
}

func entriesResult(entries []planner.ToolEntry) planner.ActionResult {
	return planner.ActionResult{Kind: planner.ResultToolResult, Entries: entries}
}

// callOne routes a single tool call through the circuit breaker and
// emits the lifecycle event trio. On rejection or timeout it surfaces an
// error-typed entry without retrying locally — higher layers decide.
func (p *Pipeline) callOne(ctx context.Context, call planner.ToolCallAction, correlationID string) planner.ToolEntry {
	p.emit(ctx, "agent.action.start", map[string]any{"tool": string(call.ToolName)}, correlationID)

	if p.validator != nil {
		if err := p.validator.Validate(call.ToolName, call.Input); err != nil {
			wrapped := toolerrors.NewWithCause(fmt.Sprintf("invalid input for tool %s", call.ToolName), err)
			p.emit(ctx, "agent.tool.error", map[string]any{"tool": string(call.ToolName), "error": wrapped.Error()}, correlationID)
			return planner.ToolEntry{ToolName: call.ToolName, Err: wrapped}
		}
	}

	spanCtx, span := p.tracer.Start(ctx, "toolpipeline.call")
	defer span.End()

	start := time.Now()
	var result any
	res := p.breaker.Execute(spanCtx, func(opCtx context.Context) error {
		var err error
		result, err = p.executor.Execute(opCtx, call.ToolName, call.Input)
		return err
	})
	p.metrics.RecordTimer("toolpipeline.call.duration", time.Since(start), "tool", string(call.ToolName))

	if res.Err != nil {
		reason := "tool execution failed"
		if res.Rejected {
			reason = "tool call rejected by circuit breaker"
		}
		wrapped := toolerrors.NewWithCause(reason, res.Err)
		p.logger.Error(spanCtx, "tool call failed", "tool", string(call.ToolName), "error", wrapped.Error(), "rejected", res.Rejected)
		p.emit(spanCtx, "agent.tool.error", map[string]any{"tool": string(call.ToolName), "error": wrapped.Error(), "rejected": res.Rejected}, correlationID)
		return planner.ToolEntry{ToolName: call.ToolName, Err: wrapped}
	}

	p.emit(spanCtx, "agent.tool.completed", map[string]any{"tool": string(call.ToolName)}, correlationID)
	return planner.ToolEntry{ToolName: call.ToolName, Result: result}
}

func (p *Pipeline) emit(ctx context.Context, eventType string, data any, correlationID string) {
	if p.bus == nil {
		return
	}
	p.bus.Emit(ctx, eventType, data, correlationID)
}

// executeParallel fans calls out with concurrency permits, preserving
// input order in the result. failFast cancels pending siblings (via
// context cancellation) on first error; already-started calls still run
// to completion or their own operation timeout.
func (p *Pipeline) executeParallel(ctx context.Context, calls []planner.ToolCallAction, concurrency int, failFast bool, correlationID string) []planner.ToolEntry {
	if concurrency <= 0 {
		concurrency = len(calls)
	}
	if concurrency <= 0 {
		return nil
	}
	sem := semaphore.New(concurrency)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make([]planner.ToolEntry, len(calls))
	var wg sync.WaitGroup
	var failOnce sync.Once

	for i, call := range calls {
		i, call := i, call
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(runCtx); err != nil {
				entries[i] = planner.ToolEntry{ToolName: call.ToolName, Err: err}
				return
			}
			defer sem.Release()

			entry := p.callOne(runCtx, call, correlationID)
			entries[i] = entry
			if failFast && entry.Err != nil {
				failOnce.Do(cancel)
			}
		}()
	}
	wg.Wait()
	return entries
}

// executeSequential runs calls in array order; stopOnError short-
// circuits, leaving the remaining tools absent from the result.
func (p *Pipeline) executeSequential(ctx context.Context, calls []planner.ToolCallAction, stopOnError bool, correlationID string) []planner.ToolEntry {
	entries := make([]planner.ToolEntry, 0, len(calls))
	for _, call := range calls {
		entry := p.callOne(ctx, call, correlationID)
		entries = append(entries, entry)
		if stopOnError && entry.Err != nil {
			break
		}
	}
	return entries
}

// executeConditional evaluates conditions[toolName] against results
// accumulated so far; skipped tools appear with neither result nor error.
func (p *Pipeline) executeConditional(ctx context.Context, calls []planner.ToolCallAction, conditions map[tools.Ident]planner.Predicate, correlationID string) []planner.ToolEntry {
	entries := make([]planner.ActionResult, 0, len(calls))
	out := make([]planner.ToolEntry, 0, len(calls))
	for _, call := range calls {
		if pred, ok := conditions[call.ToolName]; ok && pred != nil {
			accumulated := make([]planner.ActionResult, len(entries))
			copy(accumulated, entries)
			if !pred(accumulated) {
				out = append(out, planner.ToolEntry{ToolName: call.ToolName, Skipped: true})
				continue
			}
		}
		entry := p.callOne(ctx, call, correlationID)
		out = append(out, entry)
		entries = append(entries, entriesResult([]planner.ToolEntry{entry}))
	}
	return out
}

// executeMixed resolves the 'adaptive' strategy to a concrete one based
// on tool count alone (a mixed action declares no dependencies), then
// delegates; an explicit
// strategy overrides adaptive selection.
func (p *Pipeline) executeMixed(ctx context.Context, action planner.MixedToolsAction, correlationID string) []planner.ToolEntry {
	strategy := action.Strategy
	if strategy == planner.StrategyAdaptive || strategy == "" {
		switch n := len(action.Tools); {
		case n == 1:
			return []planner.ToolEntry{p.callOne(ctx, action.Tools[0], correlationID)}
		case n >= 2 && n <= 3:
			strategy = planner.StrategyParallel
		default:
			strategy = planner.StrategySequential
		}
	}

	switch strategy {
	case planner.StrategyParallel:
		return p.executeParallel(ctx, action.Tools, action.Config.MaxConcurrency, action.Config.FailFast, correlationID)
	case planner.StrategySequential:
		return p.executeSequential(ctx, action.Tools, action.Config.FailFast, correlationID)
	case planner.StrategyConditional:
		return p.executeConditional(ctx, action.Tools, nil, correlationID)
	default:
		return p.executeSequential(ctx, action.Tools, action.Config.FailFast, correlationID)
	}
}
