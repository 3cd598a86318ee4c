package agentcore

import "github.com/agentrt/runtime/planner"

// extractFinalContent implements the documented extraction order: if the
// last observation produced feedback and is complete, use that feedback.
// Otherwise walk history backwards for the most recent non-empty
// content. Otherwise fall back to the fixed apology string.
func extractFinalContent(history []planner.StepExecution) string {
	if len(history) > 0 {
		last := history[len(history)-1]
		if last.Observation != nil && last.Observation.IsComplete && last.Observation.Feedback != "" {
			return last.Observation.Feedback
		}
	}

	for i := len(history) - 1; i >= 0; i-- {
		if content := stepContent(history[i]); content != "" {
			return content
		}
	}

	return apologyContent
}

func stepContent(step planner.StepExecution) string {
	if step.Result == nil {
		return ""
	}
	switch step.Result.Kind {
	case planner.ResultFinalAnswer:
		if step.Result.FinalAnswer != nil {
			return step.Result.FinalAnswer.Content
		}
	case planner.ResultToolResult:
		if step.Result.ToolResult != nil {
			if s, ok := step.Result.ToolResult.Content.(string); ok {
				return s
			}
		}
	}
	if step.Observation != nil && step.Observation.Feedback != "" {
		return step.Observation.Feedback
	}
	return ""
}
