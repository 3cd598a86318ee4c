package toolpipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentrt/runtime/planner"
	"github.com/agentrt/runtime/tools"
)

// Plan is a stored sequence of tool steps, retrieved by id for an
// execute_plan action. Plan storage is an external collaborator; this
// package only consumes the shape.
type Plan struct {
	ID    string
	Steps []PlanStep
}

// PlanStep is one step of a Plan. RawArgs may reference prior step
// outputs using the "$stepN.field" syntax resolved by ArgResolver.
type PlanStep struct {
	ID       string
	ToolName tools.Ident
	RawArgs  map[string]any
}

// PlanLookup resolves a plan by id for the current execution context.
// An external collaborator (the planner's own plan store) implements
// this.
type PlanLookup interface {
	Plan(ctx context.Context, pctx planner.ExecutionContext, planID string) (Plan, error)
}

// ArgResolver substitutes references to prior step outputs into a step's
// raw arguments. A non-empty missing list forces a replan rather than
// executing with null placeholders.
type ArgResolver struct {
	priorResults map[string]planner.ToolEntry // keyed by step id
}

// NewArgResolver builds a resolver from the plan steps executed so far,
// keyed by step id.
func NewArgResolver(priorSteps []PlanStep, priorResults []planner.ToolEntry) *ArgResolver {
	byStep := make(map[string]planner.ToolEntry, len(priorSteps))
	for i, step := range priorSteps {
		if i < len(priorResults) {
			byStep[step.ID] = priorResults[i]
		}
	}
	return &ArgResolver{priorResults: byStep}
}

// Resolve returns resolved args and the list of references that could
// not be satisfied (e.g. the referenced step has not run, or failed).
func (r *ArgResolver) Resolve(rawArgs map[string]any) (args map[string]any, missing []string) {
	args = make(map[string]any, len(rawArgs))
	for key, val := range rawArgs {
		ref, ok := val.(string)
		if !ok || !strings.HasPrefix(ref, "$") {
			args[key] = val
			continue
		}
		stepID, field, _ := strings.Cut(strings.TrimPrefix(ref, "$"), ".")
		entry, ok := r.priorResults[stepID]
		if !ok || entry.Err != nil {
			missing = append(missing, ref)
			continue
		}
		resolved, ok := extractField(entry.Result, field)
		if !ok {
			missing = append(missing, ref)
			continue
		}
		args[key] = resolved
	}
	return args, missing
}

func extractField(result any, field string) (any, bool) {
	if field == "" {
		return result, true
	}
	m, ok := result.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[field]
	return v, ok
}

// ExecutePlan retrieves the plan for the current context, resolves each
// step's args against prior step outputs, and dispatches each step
// through the single-tool path. On an unresolved reference it requests a
// replan rather than executing with nulls.
func (p *Pipeline) ExecutePlan(ctx context.Context, lookup PlanLookup, pctx planner.ExecutionContext, planID string, correlationID string) planner.ActionResult {
	plan, err := lookup.Plan(ctx, pctx, planID)
	if err != nil {
		return planner.ActionResult{Kind: planner.ResultError, Error: &planner.ErrorPayload{Err: fmt.Errorf("toolpipeline: loading plan %q: %w", planID, err)}}
	}

	var executedSteps []PlanStep
	var executedResults []planner.ToolEntry

	for _, step := range plan.Steps {
		resolver := NewArgResolver(executedSteps, executedResults)
		args, missing := resolver.Resolve(step.RawArgs)
		if len(missing) > 0 {
			return planner.ActionResult{
				Kind: planner.ResultNeedsReplan,
				NeedsReplan: &planner.NeedsReplanPayload{
					Feedback:      fmt.Sprintf("plan %q step %q has unresolved references: %v", planID, step.ID, missing),
					ReplanContext: map[string]any{"planId": planID, "failedStep": step.ID, "missing": missing},
				},
			}
		}

		entry := p.callOne(ctx, planner.ToolCallAction{ToolName: step.ToolName, Input: args}, correlationID)
		executedSteps = append(executedSteps, step)
		executedResults = append(executedResults, entry)
	}

	return entriesResult(executedResults)
}
