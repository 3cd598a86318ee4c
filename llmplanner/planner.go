// Package llmplanner adapts a modelclient.ChatClient into a
// planner.Planner: it turns the accumulated execution history into a
// chat request, and turns the model's response into the next
// AgentAction. It is deliberately thin — prompt engineering, retries,
// and multi-turn summarization belong to the chat client or a more
// elaborate planner; this package only performs the translation the
// agent core needs to drive its control loop against a real LLM.
package llmplanner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentrt/runtime/modelclient"
	"github.com/agentrt/runtime/planner"
)

// defaultSystemPrompt is prepended to every request as a system message.
const defaultSystemPrompt = "You are an autonomous agent. Use the available tools to satisfy the user's request, then provide a final answer."

// Option configures a Planner at construction time.
type Option func(*Planner)

// WithSystemPrompt overrides the default system message.
func WithSystemPrompt(prompt string) Option {
	return func(p *Planner) { p.systemPrompt = prompt }
}

// Planner drives Think/AnalyzeResult off a single chat-completion
// round trip per iteration.
type Planner struct {
	client       modelclient.ChatClient
	systemPrompt string
}

// New builds a Planner backed by client.
func New(client modelclient.ChatClient, opts ...Option) *Planner {
	p := &Planner{client: client, systemPrompt: defaultSystemPrompt}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Think builds a request from the input and the execution history
// accumulated so far, and maps the model's response onto an
// AgentAction: zero tool calls becomes a final_answer, one becomes a
// tool_call, and more than one becomes an adaptive mixed_tools action
// so the tool pipeline picks the concrete execution strategy.
func (p *Planner) Think(ctx context.Context, pctx planner.ExecutionContext) (planner.Thought, error) {
	req := modelclient.Request{
		Messages: p.buildMessages(pctx),
		Tools:    toolDefinitions(pctx.AgentContext),
	}
	resp, err := p.client.Complete(ctx, req)
	if err != nil {
		return planner.Thought{}, fmt.Errorf("llmplanner: complete: %w", err)
	}

	reasoning := responseText(resp)
	switch len(resp.ToolCalls) {
	case 0:
		return planner.Thought{
			Reasoning: reasoning,
			Action: planner.AgentAction{
				Kind:        planner.ActionFinalAnswer,
				FinalAnswer: &planner.FinalAnswerAction{Content: reasoning},
			},
		}, nil
	case 1:
		call := resp.ToolCalls[0]
		return planner.Thought{
			Reasoning: reasoning,
			Action: planner.AgentAction{
				Kind:     planner.ActionToolCall,
				ToolCall: &planner.ToolCallAction{ToolName: call.Name, Input: call.Payload},
			},
		}, nil
	default:
		calls := make([]planner.ToolCallAction, len(resp.ToolCalls))
		for i, call := range resp.ToolCalls {
			calls[i] = planner.ToolCallAction{ToolName: call.Name, Input: call.Payload}
		}
		return planner.Thought{
			Reasoning: reasoning,
			Action: planner.AgentAction{
				Kind: planner.ActionMixedTools,
				MixedTools: &planner.MixedToolsAction{
					Tools:    calls,
					Strategy: planner.StrategyAdaptive,
				},
			},
		}, nil
	}
}

// AnalyzeResult maps an ActionResult onto an Observation. A
// final_answer result completes the run; a needs_replan result is
// folded into the next Think call via ReplanContext; anything else
// continues the loop with the result's content carried as feedback so
// the next Think sees it in history.
func (p *Planner) AnalyzeResult(_ context.Context, result planner.ActionResult, _ planner.ExecutionContext) (planner.Observation, error) {
	switch result.Kind {
	case planner.ResultFinalAnswer:
		content := ""
		if result.FinalAnswer != nil {
			content = result.FinalAnswer.Content
		}
		return planner.Observation{IsComplete: true, ShouldContinue: false, Feedback: content}, nil
	case planner.ResultNeedsReplan:
		feedback, replanCtx := "", map[string]any(nil)
		if result.NeedsReplan != nil {
			feedback, replanCtx = result.NeedsReplan.Feedback, result.NeedsReplan.ReplanContext
		}
		return planner.Observation{IsComplete: false, ShouldContinue: true, Feedback: feedback, ReplanContext: replanCtx}, nil
	case planner.ResultError:
		msg := ""
		if result.Error != nil && result.Error.Err != nil {
			msg = result.Error.Err.Error()
		}
		return planner.Observation{IsComplete: false, ShouldContinue: true, Feedback: "tool error: " + msg}, nil
	default:
		return planner.Observation{IsComplete: false, ShouldContinue: true, Feedback: summarizeToolResult(result)}, nil
	}
}

func (p *Planner) buildMessages(pctx planner.ExecutionContext) []modelclient.Message {
	msgs := []modelclient.Message{
		{Role: modelclient.RoleSystem, Parts: []modelclient.Part{modelclient.TextPart{Text: p.systemPrompt}}},
		{Role: modelclient.RoleUser, Parts: []modelclient.Part{modelclient.TextPart{Text: pctx.Input}}},
	}
	for _, step := range pctx.History {
		if step.Thought != "" {
			msgs = append(msgs, modelclient.Message{Role: modelclient.RoleAssistant, Parts: []modelclient.Part{modelclient.TextPart{Text: step.Thought}}})
		}
		if step.Observation != nil && step.Observation.Feedback != "" {
			msgs = append(msgs, modelclient.Message{Role: modelclient.RoleUser, Parts: []modelclient.Part{modelclient.TextPart{Text: step.Observation.Feedback}}})
		}
	}
	return msgs
}

func toolDefinitions(ac planner.AgentContext) []modelclient.ToolDefinition {
	if ac == nil {
		return nil
	}
	specs := ac.AvailableTools()
	defs := make([]modelclient.ToolDefinition, 0, len(specs))
	for _, s := range specs {
		defs = append(defs, modelclient.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: s.InputSchema,
		})
	}
	return defs
}

func responseText(resp modelclient.Response) string {
	var sb strings.Builder
	for _, m := range resp.Content {
		for _, p := range m.Parts {
			if tp, ok := p.(modelclient.TextPart); ok {
				sb.WriteString(tp.Text)
			}
		}
	}
	return sb.String()
}

func summarizeToolResult(result planner.ActionResult) string {
	if result.ToolResult != nil {
		if s, ok := result.ToolResult.Content.(string); ok {
			return s
		}
		if data, err := json.Marshal(result.ToolResult.Content); err == nil {
			return string(data)
		}
	}
	if len(result.Entries) > 0 {
		var sb strings.Builder
		for _, e := range result.Entries {
			fmt.Fprintf(&sb, "%s: ", e.ToolName)
			switch {
			case e.Skipped:
				sb.WriteString("skipped; ")
			case e.Err != nil:
				fmt.Fprintf(&sb, "error: %s; ", e.Err.Error())
			default:
				if data, err := json.Marshal(e.Result); err == nil {
					sb.Write(data)
				}
				sb.WriteString("; ")
			}
		}
		return sb.String()
	}
	return ""
}
