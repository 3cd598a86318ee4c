// Package agentcore drives a single agent through the Think -> Act ->
// Observe control loop: it asks a Planner for a thought, dispatches the
// resulting action through the tool pipeline, feeds the outcome back to
// the planner for observation, and decides whether to continue,
// complete, stop, or declare stagnation.
package agentcore

import (
	"context"
	"fmt"
	"time"

	"github.com/agentrt/runtime/internal/config"
	"github.com/agentrt/runtime/internal/telemetry"
	"github.com/agentrt/runtime/planner"
	"github.com/agentrt/runtime/run"
	"github.com/agentrt/runtime/toolpipeline"
)

// State is the coarse per-run state of the control loop.
type State string

const (
	StateStarting  State = "starting"
	StateIteration State = "iteration"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
	StateStagnated State = "stagnated"
	StateErrored   State = "errored"
)

// apologyContent is the fixed user-facing fallback when no usable
// content can be extracted from the run's history.
const apologyContent = "I'm sorry, I was unable to complete this request."

// FinalResult is what Run returns once the loop terminates.
type FinalResult struct {
	State   State
	Content string
	History []planner.StepExecution
}

// Executor is the narrow collaborator the loop uses to dispatch a
// non-plan, non-delegate action. toolpipeline.Pipeline satisfies this.
type Executor interface {
	Execute(ctx context.Context, action planner.AgentAction, correlationID string) (planner.ActionResult, error)
}

// PlanExecutor dispatches an execute_plan action. Optional: if unset,
// execute_plan actions surface as an error ActionResult.
type PlanExecutor interface {
	ExecutePlan(ctx context.Context, lookup toolpipeline.PlanLookup, pctx planner.ExecutionContext, planID, correlationID string) planner.ActionResult
}

// Option configures a Core at construction time.
type Option func(*Core)

func WithLogger(l telemetry.Logger) Option   { return func(c *Core) { c.logger = l } }
func WithMetrics(m telemetry.Metrics) Option { return func(c *Core) { c.metrics = m } }
func WithTracer(t telemetry.Tracer) Option   { return func(c *Core) { c.tracer = t } }
func WithBus(b planner.Bus) Option           { return func(c *Core) { c.bus = b } }
func WithRunStore(s run.Store) Option        { return func(c *Core) { c.runStore = s } }
func WithPlanExecutor(pe PlanExecutor, lookup toolpipeline.PlanLookup) Option {
	return func(c *Core) { c.planExecutor = pe; c.planLookup = lookup }
}

// Core drives one agent's Think-Act-Observe loop.
type Core struct {
	plan     planner.Planner
	executor Executor
	registry planner.Registry
	cfg      config.AgentCoreConfig

	planExecutor PlanExecutor
	planLookup   toolpipeline.PlanLookup

	bus      planner.Bus
	runStore run.Store
	logger   telemetry.Logger
	metrics  telemetry.Metrics
	tracer   telemetry.Tracer
}

// New constructs a Core. p, executor, and registry are required
// collaborators; registry supplies the per-iteration tool snapshot.
func New(p planner.Planner, executor Executor, registry planner.Registry, cfg config.AgentCoreConfig, opts ...Option) *Core {
	c := &Core{
		plan:     p,
		executor: executor,
		registry: registry,
		cfg:      cfg,
		logger:   telemetry.NewNoopLogger(),
		metrics:  telemetry.NewNoopMetrics(),
		tracer:   telemetry.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run drives one agent through the full control loop for input, until a
// termination condition (completed/stopped/stagnated/errored/bounded
// iteration count) is reached.
func (c *Core) Run(ctx context.Context, rc run.Context, input string) (FinalResult, error) {
	rootCtx, span := c.tracer.Start(ctx, "agentcore.run")
	defer span.End()

	pctx := planner.ExecutionContext{
		Input:         input,
		MaxIterations: c.cfg.MaxThinkingIterations,
		PlannerMetadata: planner.PlannerMetadata{
			CorrelationID: rc.CorrelationID,
			Thread:        rc.TurnID,
			StartTime:     time.Now().UnixMilli(),
		},
	}
	c.emitRunState(rootCtx, rc, run.StatusRunning, run.PhasePrompted)

	eventsCumulative := 0
	for i := 1; i <= maxInt(c.cfg.MaxThinkingIterations, 1); i++ {
		pctx.Iterations = i
		pctx.AgentContext = c.snapshotAgentContext()

		if pctx.IsComplete {
			return c.finish(rootCtx, rc, pctx, StateCompleted)
		}

		step, eventsThisIteration, err := c.iteration(rootCtx, rc, &pctx, i)
		eventsCumulative += eventsThisIteration
		if err != nil {
			if i >= c.cfg.MaxThinkingIterations-1 {
				pctx.History = append(pctx.History, step)
				c.logger.Error(rootCtx, "agent core iteration failed terminally", "runId", rc.RunID, "iteration", i, "error", err.Error())
				return c.finish(rootCtx, rc, pctx, StateErrored)
			}
			pctx.History = append(pctx.History, step)
			continue
		}
		pctx.History = append(pctx.History, step)

		if term, state := c.checkTermination(pctx, eventsThisIteration, eventsCumulative); term {
			return c.finish(rootCtx, rc, pctx, state)
		}
	}

	return c.finish(rootCtx, rc, pctx, StateCompleted)
}

func (c *Core) snapshotAgentContext() planner.AgentContext {
	return &agentContext{
		registry: c.registry,
		logger:   c.logger,
		metrics:  c.metrics,
		tracer:   c.tracer,
		state:    newAgentState(),
	}
}

func (c *Core) emitRunState(ctx context.Context, rc run.Context, status run.Status, phase run.Phase) {
	if c.runStore != nil {
		_ = c.runStore.Upsert(ctx, run.Record{
			RunID: rc.RunID, SessionID: rc.SessionID, TurnID: rc.TurnID,
			Status: status, Phase: phase, UpdatedAt: time.Now(),
		})
	}
	if c.bus != nil {
		c.bus.Emit(ctx, fmt.Sprintf("agent.run.%s", phase), map[string]any{"runId": rc.RunID}, rc.CorrelationID)
	}
}

func (c *Core) finish(ctx context.Context, rc run.Context, pctx planner.ExecutionContext, state State) (FinalResult, error) {
	content := extractFinalContent(pctx.History)
	phase := run.PhaseCompleted
	status := run.StatusCompleted
	switch state {
	case StateErrored:
		phase, status = run.PhaseFailed, run.StatusFailed
	case StateStagnated:
		phase, status = run.PhaseFailed, run.StatusStagnated
	case StateStopped:
		phase, status = run.PhaseCompleted, run.StatusCompleted
	}
	c.emitRunState(ctx, rc, status, phase)
	c.metrics.IncCounter("agentcore.run.terminated", 1, "state", string(state))
	return FinalResult{State: state, Content: content, History: pctx.History}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
