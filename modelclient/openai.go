package modelclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/agentrt/runtime/tools"
)

// CompletionsClient is the subset of the OpenAI SDK used by
// OpenAIClient. It is satisfied by the client's Chat.Completions
// service, so callers can substitute a fake in tests.
type CompletionsClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAIOptions configures OpenAIClient.
type OpenAIOptions struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float64
}

// OpenAIClient implements ChatClient on top of the OpenAI chat
// completions API.
type OpenAIClient struct {
	completions  CompletionsClient
	defaultModel string
	maxTokens    int
	temperature  float64
}

// NewOpenAIClient builds a ChatClient from an existing completions
// client.
func NewOpenAIClient(completions CompletionsClient, opts OpenAIOptions) (*OpenAIClient, error) {
	if completions == nil {
		return nil, errors.New("modelclient: openai completions client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("modelclient: openai default model is required")
	}
	return &OpenAIClient{
		completions:  completions,
		defaultModel: opts.DefaultModel,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
	}, nil
}

// NewOpenAIClientFromAPIKey constructs a client using the SDK's default
// HTTP transport, authenticated with apiKey.
func NewOpenAIClientFromAPIKey(apiKey, defaultModel string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("modelclient: openai api key is required")
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return NewOpenAIClient(&c.Chat.Completions, OpenAIOptions{DefaultModel: defaultModel})
}

// Complete issues a single chat completion request and translates the
// response back into a Response.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	params, err := c.encodeRequest(req)
	if err != nil {
		return Response{}, err
	}
	completion, err := c.completions.New(ctx, params)
	if err != nil {
		if isOpenAIRateLimit(err) {
			return Response{}, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return Response{}, fmt.Errorf("modelclient: openai chat.completions.new: %w", err)
	}
	return decodeOpenAIResponse(completion)
}

func (c *OpenAIClient) encodeRequest(req Request) (openai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return openai.ChatCompletionNewParams{}, errors.New("modelclient: openai request requires at least one message")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		text := textOf(m.Parts)
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(text))
		case RoleUser:
			msgs = append(msgs, openai.UserMessage(text))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(text))
		default:
			return openai.ChatCompletionNewParams{}, fmt.Errorf("modelclient: openai unsupported role %q", m.Role)
		}
		for _, p := range m.Parts {
			if tr, ok := p.(ToolResultPart); ok {
				content := toolResultText(tr)
				msgs = append(msgs, openai.ToolMessage(content, tr.ToolUseID))
			}
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    modelID,
		Messages: msgs,
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}
	temp := req.Temperature
	if temp == 0 {
		temp = c.temperature
	}
	if temp > 0 {
		params.Temperature = openai.Float(temp)
	}
	if toolParams := encodeOpenAITools(req.Tools); len(toolParams) > 0 {
		params.Tools = toolParams
	}
	return params, nil
}

func textOf(parts []Part) string {
	for _, p := range parts {
		if tp, ok := p.(TextPart); ok {
			return tp.Text
		}
	}
	return ""
}

func toolResultText(tr ToolResultPart) string {
	switch c := tr.Content.(type) {
	case string:
		return c
	default:
		data, err := json.Marshal(c)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

func encodeOpenAITools(defs []ToolDefinition) []openai.ChatCompletionToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(defs))
	var params shared.FunctionParameters
	for _, def := range defs {
		if def.InputSchema != nil {
			data, err := json.Marshal(def.InputSchema)
			if err == nil {
				var m map[string]any
				if json.Unmarshal(data, &m) == nil {
					params = shared.FunctionParameters(m)
				}
			}
		}
		out = append(out, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        string(def.Name),
			Description: openai.String(def.Description),
			Parameters:  params,
		}))
	}
	return out
}

func decodeOpenAIResponse(completion *openai.ChatCompletion) (Response, error) {
	if completion == nil || len(completion.Choices) == 0 {
		return Response{}, errors.New("modelclient: openai response has no choices")
	}
	choice := completion.Choices[0]
	var resp Response
	if content := choice.Message.Content; content != "" {
		resp.Content = append(resp.Content, Message{Role: RoleAssistant, Parts: []Part{TextPart{Text: content}}})
	}
	for _, call := range choice.Message.ToolCalls {
		var input map[string]any
		if call.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(call.Function.Arguments), &input)
		}
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: call.ID, Name: tools.Ident(call.Function.Name), Payload: input})
	}
	resp.Usage = TokenUsage{
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:  int(completion.Usage.TotalTokens),
	}
	resp.StopReason = string(choice.FinishReason)
	return resp, nil
}

func isOpenAIRateLimit(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}
