package agentcore

import (
	"context"
	"fmt"
	"time"

	"github.com/agentrt/runtime/planner"
	"github.com/agentrt/runtime/run"
)

// iteration runs one Think -> Act -> Observe micro-state, atomic from
// the loop's perspective. It returns the StepExecution to append to
// history and the number of lifecycle events emitted this iteration
// (used for the kernel-event-growth termination check).
func (c *Core) iteration(ctx context.Context, rc run.Context, pctx *planner.ExecutionContext, iterationNum int) (planner.StepExecution, int, error) {
	start := time.Now()
	step := planner.StepExecution{
		StepID:    fmt.Sprintf("%s-iter-%d", rc.RunID, iterationNum),
		Iteration: iterationNum,
	}
	eventsEmitted := 0

	thinkCtx := ctx
	var cancel context.CancelFunc
	if c.cfg.ThinkingTimeout > 0 {
		thinkCtx, cancel = context.WithTimeout(ctx, c.cfg.ThinkingTimeout)
		defer cancel()
	}

	thinkSpanCtx, thinkSpan := c.tracer.Start(thinkCtx, "agentcore.think")
	thought, err := c.plan.Think(thinkSpanCtx, *pctx)
	thinkSpan.End()
	if err != nil {
		step.Status = "think_failed"
		step.Duration = time.Since(start).Milliseconds()
		return step, eventsEmitted, fmt.Errorf("agentcore: think: %w", err)
	}
	step.Thought = thought.Reasoning
	step.Action = thought.Action

	if c.bus != nil {
		c.bus.Emit(ctx, "agent.action.start", map[string]any{"kind": string(thought.Action.Kind)}, rc.CorrelationID)
		eventsEmitted++
	}

	actCtx := ctx
	if c.cfg.ToolTimeout > 0 {
		var actCancel context.CancelFunc
		actCtx, actCancel = context.WithTimeout(ctx, c.cfg.ToolTimeout)
		defer actCancel()
	}

	result, actErr := c.act(actCtx, rc, *pctx, thought.Action)
	if actErr != nil {
		result = planner.ActionResult{Kind: planner.ResultError, Error: &planner.ErrorPayload{Err: actErr}}
	}
	step.Result = &result

	observeCtx, observeSpan := c.tracer.Start(ctx, "agentcore.observe")
	observation, obsErr := c.plan.AnalyzeResult(observeCtx, result, *pctx)
	observeSpan.End()
	if obsErr != nil {
		step.Status = "observe_failed"
		step.Duration = time.Since(start).Milliseconds()
		return step, eventsEmitted, fmt.Errorf("agentcore: observe: %w", obsErr)
	}
	step.Observation = &observation
	step.Status = "completed"
	step.Duration = time.Since(start).Milliseconds()

	pctx.IsComplete = observation.IsComplete
	if observation.ReplanContext != nil {
		pctx.AgentContext.State().Set("replanContext", observation.ReplanContext)
	}

	return step, eventsEmitted, nil
}

// act dispatches thought.Action. execute_plan hands off to the
// configured PlanExecutor (if any); delegate_to_agent is out of scope
// for this module (multi-agent coordination is an external collaborator)
// and surfaces as an error result.
func (c *Core) act(ctx context.Context, rc run.Context, pctx planner.ExecutionContext, action planner.AgentAction) (planner.ActionResult, error) {
	switch action.Kind {
	case planner.ActionExecutePlan:
		if c.planExecutor == nil || c.planLookup == nil {
			return planner.ActionResult{}, fmt.Errorf("agentcore: no plan executor configured for execute_plan action")
		}
		return c.planExecutor.ExecutePlan(ctx, c.planLookup, pctx, action.ExecutePlan.PlanID, rc.CorrelationID), nil

	case planner.ActionDelegateToAgent:
		return planner.ActionResult{}, fmt.Errorf("agentcore: delegate_to_agent is handled by an external multi-agent coordinator")

	default:
		return c.executor.Execute(ctx, action, rc.CorrelationID)
	}
}
