package agentcore

import "github.com/agentrt/runtime/planner"

const (
	stagnationWindow         = 3
	emergencyEventGrowth     = 100
	emergencyCumulativeCap   = 5000
)

// checkTermination evaluates the documented termination conditions in
// order, first match wins. eventsThisIteration/eventsCumulative feed the
// kernel-event-growth emergency stop.
func (c *Core) checkTermination(pctx planner.ExecutionContext, eventsThisIteration, eventsCumulative int) (bool, State) {
	if len(pctx.History) == 0 {
		return false, ""
	}
	last := pctx.History[len(pctx.History)-1]

	if last.Observation != nil && last.Observation.IsComplete {
		return true, StateCompleted
	}
	if last.Observation != nil && !last.Observation.ShouldContinue {
		return true, StateStopped
	}
	if isStagnated(pctx.History) {
		return true, StateStagnated
	}
	if eventsThisIteration > emergencyEventGrowth || eventsCumulative >= emergencyCumulativeCap {
		return true, StateStopped
	}
	if pctx.Iterations >= pctx.MaxIterations {
		return true, StateCompleted
	}
	return false, ""
}

// isStagnated detects the documented pattern over the last 3 iterations:
// either (a) all three actions share the same non-final_answer kind, or
// (b) at least 2 of the last 3 results are errors.
func isStagnated(history []planner.StepExecution) bool {
	if len(history) < stagnationWindow {
		return false
	}
	window := history[len(history)-stagnationWindow:]

	sameKind := true
	firstKind := window[0].Action.Kind
	if firstKind == planner.ActionFinalAnswer {
		sameKind = false
	}
	for _, step := range window {
		if step.Action.Kind != firstKind {
			sameKind = false
			break
		}
	}
	if sameKind {
		return true
	}

	errorCount := 0
	for _, step := range window {
		if step.Result != nil && step.Result.Kind == planner.ResultError {
			errorCount++
		}
	}
	return errorCount >= 2
}
