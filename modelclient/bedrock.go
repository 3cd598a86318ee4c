package modelclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/agentrt/runtime/tools"
)

// RuntimeClient is the subset of the Bedrock runtime SDK used by
// BedrockClient. It is satisfied by *bedrockruntime.Client, so callers
// can substitute a fake in tests.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockOptions configures BedrockClient.
type BedrockOptions struct {
	DefaultModel string
	MaxTokens    int
	Temperature  float32
}

// BedrockClient implements ChatClient on top of the AWS Bedrock
// Converse API.
type BedrockClient struct {
	runtime      RuntimeClient
	defaultModel string
	maxTokens    int
	temperature  float32
}

// NewBedrockClient builds a ChatClient from an existing Bedrock
// runtime client.
func NewBedrockClient(runtime RuntimeClient, opts BedrockOptions) (*BedrockClient, error) {
	if runtime == nil {
		return nil, errors.New("modelclient: bedrock runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("modelclient: bedrock default model is required")
	}
	return &BedrockClient{
		runtime:      runtime,
		defaultModel: opts.DefaultModel,
		maxTokens:    opts.MaxTokens,
		temperature:  opts.Temperature,
	}, nil
}

// Complete issues a single Converse request and translates the
// response back into a Response.
func (c *BedrockClient) Complete(ctx context.Context, req Request) (Response, error) {
	input, err := c.encodeRequest(req)
	if err != nil {
		return Response{}, err
	}
	out, err := c.runtime.Converse(ctx, input)
	if err != nil {
		if isBedrockThrottled(err) {
			return Response{}, fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		return Response{}, fmt.Errorf("modelclient: bedrock converse: %w", err)
	}
	return decodeBedrockResponse(out)
}

func (c *BedrockClient) encodeRequest(req Request) (*bedrockruntime.ConverseInput, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("modelclient: bedrock request requires at least one message")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	var system []brtypes.SystemContentBlock
	conversation := make([]brtypes.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			for _, p := range m.Parts {
				if v, ok := p.(TextPart); ok && v.Text != "" {
					system = append(system, &brtypes.SystemContentBlockMemberText{Value: v.Text})
				}
			}
			continue
		}
		blocks, err := encodeBedrockParts(m.Parts)
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			continue
		}
		role := brtypes.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = brtypes.ConversationRoleAssistant
		}
		conversation = append(conversation, brtypes.Message{Role: role, Content: blocks})
	}
	if len(conversation) == 0 {
		return nil, errors.New("modelclient: bedrock request requires a user or assistant message")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  &modelID,
		Messages: conversation,
	}
	if len(system) > 0 {
		input.System = system
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temp := req.Temperature
	if temp == 0 {
		temp = float64(c.temperature)
	}
	if maxTokens > 0 || temp > 0 {
		cfg := &brtypes.InferenceConfiguration{}
		if maxTokens > 0 {
			mt := int32(maxTokens)
			cfg.MaxTokens = &mt
		}
		if temp > 0 {
			t := float32(temp)
			cfg.Temperature = &t
		}
		input.InferenceConfig = cfg
	}
	if toolCfg := encodeBedrockTools(req.Tools); toolCfg != nil {
		input.ToolConfig = toolCfg
	}
	return input, nil
}

func encodeBedrockParts(parts []Part) ([]brtypes.ContentBlock, error) {
	blocks := make([]brtypes.ContentBlock, 0, len(parts))
	for _, part := range parts {
		switch v := part.(type) {
		case TextPart:
			if v.Text != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: v.Text})
			}
		case ToolUsePart:
			blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
				Value: brtypes.ToolUseBlock{
					ToolUseId: &v.ID,
					Name:      (*string)(&v.Name),
					Input:     document.NewLazyDocument(v.Input),
				},
			})
		case ToolResultPart:
			content := []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: toolResultText(v)}}
			status := brtypes.ToolResultStatusSuccess
			if v.IsError {
				status = brtypes.ToolResultStatusError
			}
			blocks = append(blocks, &brtypes.ContentBlockMemberToolResult{
				Value: brtypes.ToolResultBlock{
					ToolUseId: &v.ToolUseID,
					Content:   content,
					Status:    status,
				},
			})
		default:
			return nil, fmt.Errorf("modelclient: bedrock unsupported part %T", part)
		}
	}
	return blocks, nil
}

func encodeBedrockTools(defs []ToolDefinition) *brtypes.ToolConfiguration {
	if len(defs) == 0 {
		return nil
	}
	specs := make([]brtypes.Tool, 0, len(defs))
	for _, def := range defs {
		name := string(def.Name)
		desc := def.Description
		var schemaDoc document.Interface
		if def.InputSchema != nil {
			data, err := json.Marshal(def.InputSchema)
			if err == nil {
				var m map[string]any
				if json.Unmarshal(data, &m) == nil {
					schemaDoc = document.NewLazyDocument(m)
				}
			}
		}
		specs = append(specs, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpec{
				Name:        &name,
				Description: &desc,
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: schemaDoc},
			},
		})
	}
	return &brtypes.ToolConfiguration{Tools: specs}
}

func decodeBedrockResponse(out *bedrockruntime.ConverseOutput) (Response, error) {
	if out == nil || out.Output == nil {
		return Response{}, errors.New("modelclient: bedrock response has no output")
	}
	msgOutput, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return Response{}, errors.New("modelclient: bedrock response output is not a message")
	}

	var resp Response
	for _, block := range msgOutput.Value.Content {
		switch v := block.(type) {
		case *brtypes.ContentBlockMemberText:
			if v.Value != "" {
				resp.Content = append(resp.Content, Message{Role: RoleAssistant, Parts: []Part{TextPart{Text: v.Value}}})
			}
		case *brtypes.ContentBlockMemberToolUse:
			var input map[string]any
			if v.Value.Input != nil {
				_ = v.Value.Input.UnmarshalSmithyDocument(&input)
			}
			var id, name string
			if v.Value.ToolUseId != nil {
				id = *v.Value.ToolUseId
			}
			if v.Value.Name != nil {
				name = *v.Value.Name
			}
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: id, Name: tools.Ident(name), Payload: input})
		}
	}
	if u := out.Usage; u != nil {
		resp.Usage = TokenUsage{
			InputTokens:  int(derefInt32(u.InputTokens)),
			OutputTokens: int(derefInt32(u.OutputTokens)),
			TotalTokens:  int(derefInt32(u.TotalTokens)),
		}
	}
	resp.StopReason = string(out.StopReason)
	return resp, nil
}

func derefInt32(p *int32) int32 {
	if p == nil {
		return 0
	}
	return *p
}

func isBedrockThrottled(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "ThrottlingException"
	}
	return false
}
