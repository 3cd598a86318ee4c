package toolpipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentrt/runtime/circuitbreaker"
	"github.com/agentrt/runtime/planner"
	"github.com/agentrt/runtime/tools"
)

type fakeExecutor struct {
	fn func(ctx context.Context, name tools.Ident, args map[string]any) (any, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, name tools.Ident, args map[string]any) (any, error) {
	return f.fn(ctx, name, args)
}

func newTestPipeline(fn func(ctx context.Context, name tools.Ident, args map[string]any) (any, error)) *Pipeline {
	breaker := circuitbreaker.New("test", circuitbreaker.Config{
		FailureThreshold: 1000, SuccessThreshold: 1,
		RecoveryTimeout: 0, OperationTimeout: 0,
	})
	return New(&fakeExecutor{fn: fn}, breaker)
}

func TestSingleToolCallSuccess(t *testing.T) {
	p := newTestPipeline(func(_ context.Context, name tools.Ident, _ map[string]any) (any, error) {
		return map[string]any{"ok": true}, nil
	})
	result, err := p.Execute(context.Background(), planner.AgentAction{
		Kind: planner.ActionToolCall,
		ToolCall: &planner.ToolCallAction{ToolName: "search"},
	}, "corr-1")
	require.NoError(t, err)
	require.Equal(t, planner.ResultToolResult, result.Kind)
}

func TestParallelPreservesInputOrder(t *testing.T) {
	p := newTestPipeline(func(_ context.Context, name tools.Ident, _ map[string]any) (any, error) {
		return string(name), nil
	})
	calls := []planner.ToolCallAction{{ToolName: "a"}, {ToolName: "b"}, {ToolName: "c"}}
	result, err := p.Execute(context.Background(), planner.AgentAction{
		Kind:          planner.ActionParallelTools,
		ParallelTools: &planner.ParallelToolsAction{Tools: calls},
	}, "corr-2")
	require.NoError(t, err)
	require.Len(t, result.Entries, 3)
	require.Equal(t, tools.Ident("a"), result.Entries[0].ToolName)
	require.Equal(t, tools.Ident("b"), result.Entries[1].ToolName)
	require.Equal(t, tools.Ident("c"), result.Entries[2].ToolName)
}

func TestSequentialStopOnErrorDropsRemaining(t *testing.T) {
	var calls int32
	p := newTestPipeline(func(_ context.Context, name tools.Ident, _ map[string]any) (any, error) {
		atomic.AddInt32(&calls, 1)
		if name == "b" {
			return nil, errors.New("boom")
		}
		return "ok", nil
	})
	result, err := p.Execute(context.Background(), planner.AgentAction{
		Kind: planner.ActionSequentialTools,
		SequentialTools: &planner.SequentialToolsAction{
			Tools:       []planner.ToolCallAction{{ToolName: "a"}, {ToolName: "b"}, {ToolName: "c"}},
			StopOnError: true,
		},
	}, "corr-3")
	require.NoError(t, err)
	require.Len(t, result.Entries, 2, "the tool after the error is absent from the result set")
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestConditionalSkipsWhenPredicateFalse(t *testing.T) {
	p := newTestPipeline(func(_ context.Context, name tools.Ident, _ map[string]any) (any, error) {
		return "ok", nil
	})
	result, err := p.Execute(context.Background(), planner.AgentAction{
		Kind: planner.ActionConditionalTools,
		ConditionalTools: &planner.ConditionalToolsAction{
			Tools: []planner.ToolCallAction{{ToolName: "a"}, {ToolName: "b"}},
			Conditions: map[tools.Ident]planner.Predicate{
				"b": func(_ []planner.ActionResult) bool { return false },
			},
		},
	}, "corr-4")
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	require.True(t, result.Entries[1].Skipped)
	require.Nil(t, result.Entries[1].Result)
	require.Nil(t, result.Entries[1].Err)
}

func TestDependencyExecutesInTopologicalOrder(t *testing.T) {
	var order []tools.Ident
	var mu sync.Mutex
	p := newTestPipeline(func(_ context.Context, name tools.Ident, _ map[string]any) (any, error) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		return "ok", nil
	})
	result, err := p.Execute(context.Background(), planner.AgentAction{
		Kind: planner.ActionDependencyTools,
		DependencyTools: &planner.DependencyToolsAction{
			Tools:        []planner.ToolCallAction{{ToolName: "fetch"}, {ToolName: "parse"}, {ToolName: "summarize"}},
			Dependencies: []planner.Dependency{{From: "fetch", To: "parse"}, {From: "parse", To: "summarize"}},
		},
	}, "corr-5")
	require.NoError(t, err)
	require.Len(t, result.Entries, 3)

	pos := map[tools.Ident]int{}
	for i, name := range order {
		pos[name] = i
	}
	require.Less(t, pos["fetch"], pos["parse"])
	require.Less(t, pos["parse"], pos["summarize"])
}

func TestMixedAdaptivePicksParallelForTwoOrThreeTools(t *testing.T) {
	p := newTestPipeline(func(_ context.Context, name tools.Ident, _ map[string]any) (any, error) {
		return "ok", nil
	})
	result, err := p.Execute(context.Background(), planner.AgentAction{
		Kind: planner.ActionMixedTools,
		MixedTools: &planner.MixedToolsAction{
			Tools:    []planner.ToolCallAction{{ToolName: "a"}, {ToolName: "b"}},
			Strategy: planner.StrategyAdaptive,
		},
	}, "corr-6")
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
}
