package modelclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentrt/runtime/tools"
)

// MessagesClient is the subset of the Anthropic SDK used by
// AnthropicClient. It is satisfied by *sdk.MessageService, so callers
// can substitute a fake in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicOptions configures AnthropicClient.
type AnthropicOptions struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// AnthropicClient implements ChatClient on top of Anthropic's Messages
// API.
type AnthropicClient struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
	temperature  float64
}

// NewAnthropicClient builds a ChatClient from an existing Anthropic
// messages client.
func NewAnthropicClient(msg MessagesClient, opts AnthropicOptions) (*AnthropicClient, error) {
	if msg == nil {
		return nil, errors.New("modelclient: anthropic messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("modelclient: anthropic default model is required")
	}
	return &AnthropicClient{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
	}, nil
}

// NewAnthropicClientFromAPIKey constructs a client using the SDK's
// default HTTP transport, authenticated with apiKey.
func NewAnthropicClientFromAPIKey(apiKey, defaultModel string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("modelclient: anthropic api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicClient(&c.Messages, AnthropicOptions{DefaultModel: defaultModel})
}

// Complete issues a single Messages.New request and translates the
// response back into a Response.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	params, err := c.encodeRequest(req)
	if err != nil {
		return Response{}, err
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		if isAnthropicRateLimit(err) {
			return Response{}, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return Response{}, fmt.Errorf("modelclient: anthropic messages.new: %w", err)
	}
	return decodeAnthropicResponse(msg)
}

func (c *AnthropicClient) encodeRequest(req Request) (sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return sdk.MessageNewParams{}, errors.New("modelclient: anthropic request requires at least one message")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens <= 0 {
		return sdk.MessageNewParams{}, errors.New("modelclient: anthropic max_tokens must be positive")
	}

	var system []sdk.TextBlockParam
	conversation := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			for _, p := range m.Parts {
				if v, ok := p.(TextPart); ok && v.Text != "" {
					system = append(system, sdk.TextBlockParam{Text: v.Text})
				}
			}
			continue
		}
		blocks, err := encodeAnthropicParts(m.Parts)
		if err != nil {
			return sdk.MessageNewParams{}, err
		}
		if len(blocks) == 0 {
			continue
		}
		switch m.Role {
		case RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		case RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			return sdk.MessageNewParams{}, fmt.Errorf("modelclient: anthropic unsupported role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return sdk.MessageNewParams{}, errors.New("modelclient: anthropic request requires a user or assistant message")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
	}
	if len(system) > 0 {
		params.System = system
	}
	temp := req.Temperature
	if temp == 0 {
		temp = c.temperature
	}
	if temp > 0 {
		params.Temperature = sdk.Float(temp)
	}
	if toolParams, err := encodeAnthropicTools(req.Tools); err != nil {
		return sdk.MessageNewParams{}, err
	} else if len(toolParams) > 0 {
		params.Tools = toolParams
	}
	return params, nil
}

func encodeAnthropicParts(parts []Part) ([]sdk.ContentBlockParamUnion, error) {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(parts))
	for _, part := range parts {
		switch v := part.(type) {
		case TextPart:
			if v.Text != "" {
				blocks = append(blocks, sdk.NewTextBlock(v.Text))
			}
		case ToolUsePart:
			blocks = append(blocks, sdk.NewToolUseBlock(v.ID, v.Input, string(v.Name)))
		case ToolResultPart:
			blocks = append(blocks, encodeAnthropicToolResult(v))
		default:
			return nil, fmt.Errorf("modelclient: anthropic unsupported part %T", part)
		}
	}
	return blocks, nil
}

func encodeAnthropicToolResult(v ToolResultPart) sdk.ContentBlockParamUnion {
	var content string
	switch c := v.Content.(type) {
	case nil:
		content = ""
	case string:
		content = c
	default:
		if data, err := json.Marshal(c); err == nil {
			content = string(data)
		}
	}
	return sdk.NewToolResultBlock(v.ToolUseID, content, v.IsError)
}

func encodeAnthropicTools(defs []ToolDefinition) ([]sdk.ToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema, err := anthropicSchema(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("modelclient: anthropic tool %q schema: %w", def.Name, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, string(def.Name))
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func anthropicSchema(schema any) (sdk.ToolInputSchemaParam, error) {
	if schema == nil {
		return sdk.ToolInputSchemaParam{}, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func decodeAnthropicResponse(msg *sdk.Message) (Response, error) {
	if msg == nil {
		return Response{}, errors.New("modelclient: anthropic response is nil")
	}
	var resp Response
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text == "" {
				continue
			}
			resp.Content = append(resp.Content, Message{Role: RoleAssistant, Parts: []Part{TextPart{Text: block.Text}}})
		case "tool_use":
			var input map[string]any
			if len(block.Input) > 0 {
				_ = json.Unmarshal(block.Input, &input)
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: block.ID, Name: tools.Ident(block.Name), Payload: input})
		}
	}
	u := msg.Usage
	resp.Usage = TokenUsage{
		InputTokens:  int(u.InputTokens),
		OutputTokens: int(u.OutputTokens),
		TotalTokens:  int(u.InputTokens + u.OutputTokens),
	}
	resp.StopReason = string(msg.StopReason)
	return resp, nil
}

func isAnthropicRateLimit(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
