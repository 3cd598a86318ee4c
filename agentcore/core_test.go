package agentcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/runtime/internal/config"
	"github.com/agentrt/runtime/planner"
	"github.com/agentrt/runtime/run"
	"github.com/agentrt/runtime/tools"
)

type scriptedPlanner struct {
	thoughts []planner.Thought
	observations []planner.Observation
	i        int
}

func (s *scriptedPlanner) Think(_ context.Context, _ planner.ExecutionContext) (planner.Thought, error) {
	t := s.thoughts[s.i]
	return t, nil
}

func (s *scriptedPlanner) AnalyzeResult(_ context.Context, _ planner.ActionResult, _ planner.ExecutionContext) (planner.Observation, error) {
	o := s.observations[s.i]
	s.i++
	return o, nil
}

type fakeExecutor struct{}

func (fakeExecutor) Execute(_ context.Context, action planner.AgentAction, _ string) (planner.ActionResult, error) {
	return planner.ActionResult{Kind: planner.ResultToolResult, ToolResult: &planner.ToolResultPayload{Content: "ok"}}, nil
}

func TestRunCompletesOnIsComplete(t *testing.T) {
	p := &scriptedPlanner{
		thoughts: []planner.Thought{
			{Action: planner.AgentAction{Kind: planner.ActionToolCall, ToolCall: &planner.ToolCallAction{ToolName: "search"}}},
		},
		observations: []planner.Observation{
			{IsComplete: true, ShouldContinue: false, Feedback: "done"},
		},
	}
	core := New(p, fakeExecutor{}, nil, config.Default().AgentCore)
	result, err := core.Run(context.Background(), run.Context{RunID: "r1"}, "do it")
	require.NoError(t, err)
	require.Equal(t, StateCompleted, result.State)
	require.Equal(t, "done", result.Content)
}

func TestRunStopsWhenPlannerSaysDoNotContinue(t *testing.T) {
	p := &scriptedPlanner{
		thoughts: []planner.Thought{
			{Action: planner.AgentAction{Kind: planner.ActionToolCall, ToolCall: &planner.ToolCallAction{ToolName: "search"}}},
		},
		observations: []planner.Observation{
			{IsComplete: false, ShouldContinue: false},
		},
	}
	core := New(p, fakeExecutor{}, nil, config.Default().AgentCore)
	result, err := core.Run(context.Background(), run.Context{RunID: "r2"}, "do it")
	require.NoError(t, err)
	require.Equal(t, StateStopped, result.State)
}

func TestRunDetectsStagnationFromRepeatedActionKind(t *testing.T) {
	cfg := config.Default().AgentCore
	cfg.MaxThinkingIterations = 10
	thought := planner.Thought{Action: planner.AgentAction{Kind: planner.ActionToolCall, ToolCall: &planner.ToolCallAction{ToolName: "search"}}}
	obs := planner.Observation{IsComplete: false, ShouldContinue: true}
	p := &scriptedPlanner{
		thoughts:     []planner.Thought{thought, thought, thought, thought},
		observations: []planner.Observation{obs, obs, obs, obs},
	}
	core := New(p, fakeExecutor{}, nil, cfg)
	result, err := core.Run(context.Background(), run.Context{RunID: "r3"}, "do it")
	require.NoError(t, err)
	require.Equal(t, StateStagnated, result.State)
	require.LessOrEqual(t, len(result.History), 3, "stagnation must be detected within the 3-iteration window")
}

func TestRunBoundedByMaxIterations(t *testing.T) {
	cfg := config.Default().AgentCore
	cfg.MaxThinkingIterations = 3
	var thoughts []planner.Thought
	var obs []planner.Observation
	toolNames := []string{"search", "fetch", "summarize"}
	for i := 0; i < 3; i++ {
		thoughts = append(thoughts, planner.Thought{Action: planner.AgentAction{Kind: planner.ActionToolCall, ToolCall: &planner.ToolCallAction{ToolName: tools.Ident(toolNames[i])}}})
		obs = append(obs, planner.Observation{IsComplete: false, ShouldContinue: true})
	}
	p := &scriptedPlanner{thoughts: thoughts, observations: obs}
	core := New(p, fakeExecutor{}, nil, cfg)
	result, err := core.Run(context.Background(), run.Context{RunID: "r4"}, "do it")
	require.NoError(t, err)
	require.LessOrEqual(t, len(result.History), 3)
	require.Contains(t, []State{StateCompleted, StateStagnated}, result.State)
}
