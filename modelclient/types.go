// Package modelclient provides thin chat-completion adapters over the
// Anthropic, OpenAI, and Bedrock SDKs. Each adapter performs a single
// request/response round trip and satisfies ChatClient, the narrow
// collaborator interface a Planner implementation uses to generate a
// plan and analyze a tool result. Planning strategy itself (prompt
// construction, history management, retry policy) lives with the
// caller; these adapters only translate requests and responses.
package modelclient

import (
	"context"
	"errors"

	"github.com/agentrt/runtime/tools"
)

// ErrRateLimited is returned (wrapped) when a provider rejects a
// request due to rate limiting, so callers can distinguish retryable
// failures from permanent ones.
var ErrRateLimited = errors.New("modelclient: rate limited")

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Part is a marker interface implemented by every message content
// block this package understands. The adapters only round-trip text
// and tool use/result content; richer modalities are out of scope for
// a thin chat-completion client.
type Part interface {
	isPart()
}

// TextPart is a plain text content block.
type TextPart struct {
	Text string
}

// ToolUsePart is an assistant-issued tool call.
type ToolUsePart struct {
	ID    string
	Name  tools.Ident
	Input map[string]any
}

// ToolResultPart carries the outcome of a prior tool call back to the
// model.
type ToolResultPart struct {
	ToolUseID string
	Content   any
	IsError   bool
}

func (TextPart) isPart()       {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}

// Message is one turn of a conversation.
type Message struct {
	Role  Role
	Parts []Part
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Name        tools.Ident
	Description string
	InputSchema any
}

// ToolChoiceMode constrains how a model selects a tool for a request.
type ToolChoiceMode string

const (
	ToolChoiceAuto ToolChoiceMode = "auto"
	ToolChoiceNone ToolChoiceMode = "none"
	ToolChoiceAny  ToolChoiceMode = "any"
	ToolChoiceName ToolChoiceMode = "tool"
)

// ToolChoice selects how the model must use the provided tools.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name tools.Ident
}

// Request is a single chat-completion round trip.
type Request struct {
	Messages    []Message
	Tools       []ToolDefinition
	ToolChoice  *ToolChoice
	Model       string
	MaxTokens   int
	Temperature float64
}

// ToolCall is a tool invocation the model produced.
type ToolCall struct {
	ID      string
	Name    tools.Ident
	Payload map[string]any
}

// TokenUsage reports token accounting for a completed request.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response is the result of a chat-completion round trip.
type Response struct {
	Content    []Message
	ToolCalls  []ToolCall
	Usage      TokenUsage
	StopReason string
}

// ChatClient is the narrow collaborator a Planner uses to turn a
// conversation into either a final answer or a set of tool calls. It
// is the out-of-scope "LLM adapter" external collaborator: planning
// strategy (when to call it, how to fold the result into an
// AgentAction) is the caller's responsibility.
type ChatClient interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
