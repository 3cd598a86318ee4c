package llmplanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/runtime/modelclient"
	"github.com/agentrt/runtime/planner"
	"github.com/agentrt/runtime/tools"
)

type fakeChatClient struct {
	resp modelclient.Response
	err  error
}

func (f *fakeChatClient) Complete(_ context.Context, _ modelclient.Request) (modelclient.Response, error) {
	return f.resp, f.err
}

func TestThinkWithNoToolCallsProducesFinalAnswer(t *testing.T) {
	client := &fakeChatClient{resp: modelclient.Response{
		Content: []modelclient.Message{{Role: modelclient.RoleAssistant, Parts: []modelclient.Part{modelclient.TextPart{Text: "all done"}}}},
	}}
	p := New(client)
	thought, err := p.Think(context.Background(), planner.ExecutionContext{Input: "do it"})
	require.NoError(t, err)
	require.Equal(t, planner.ActionFinalAnswer, thought.Action.Kind)
	require.Equal(t, "all done", thought.Action.FinalAnswer.Content)
}

func TestThinkWithOneToolCallProducesToolCall(t *testing.T) {
	client := &fakeChatClient{resp: modelclient.Response{
		ToolCalls: []modelclient.ToolCall{{ID: "c1", Name: tools.Ident("search"), Payload: map[string]any{"q": "go"}}},
	}}
	p := New(client)
	thought, err := p.Think(context.Background(), planner.ExecutionContext{Input: "find it"})
	require.NoError(t, err)
	require.Equal(t, planner.ActionToolCall, thought.Action.Kind)
	require.Equal(t, tools.Ident("search"), thought.Action.ToolCall.ToolName)
}

func TestThinkWithMultipleToolCallsProducesAdaptiveMixedTools(t *testing.T) {
	client := &fakeChatClient{resp: modelclient.Response{
		ToolCalls: []modelclient.ToolCall{
			{Name: tools.Ident("search")},
			{Name: tools.Ident("fetch")},
		},
	}}
	p := New(client)
	thought, err := p.Think(context.Background(), planner.ExecutionContext{Input: "find and fetch"})
	require.NoError(t, err)
	require.Equal(t, planner.ActionMixedTools, thought.Action.Kind)
	require.Equal(t, planner.StrategyAdaptive, thought.Action.MixedTools.Strategy)
	require.Len(t, thought.Action.MixedTools.Tools, 2)
}

func TestAnalyzeResultFinalAnswerCompletesRun(t *testing.T) {
	p := New(&fakeChatClient{})
	obs, err := p.AnalyzeResult(context.Background(), planner.ActionResult{
		Kind:        planner.ResultFinalAnswer,
		FinalAnswer: &planner.FinalAnswerPayload{Content: "done"},
	}, planner.ExecutionContext{})
	require.NoError(t, err)
	require.True(t, obs.IsComplete)
	require.False(t, obs.ShouldContinue)
	require.Equal(t, "done", obs.Feedback)
}

func TestAnalyzeResultNeedsReplanCarriesReplanContext(t *testing.T) {
	p := New(&fakeChatClient{})
	obs, err := p.AnalyzeResult(context.Background(), planner.ActionResult{
		Kind:        planner.ResultNeedsReplan,
		NeedsReplan: &planner.NeedsReplanPayload{Feedback: "missing ref", ReplanContext: map[string]any{"step": "s1"}},
	}, planner.ExecutionContext{})
	require.NoError(t, err)
	require.False(t, obs.IsComplete)
	require.True(t, obs.ShouldContinue)
	require.Equal(t, "s1", obs.ReplanContext["step"])
}
