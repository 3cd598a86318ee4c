package modelclient

import (
	"context"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/require"
)

type stubCompletionsClient struct {
	lastParams openai.ChatCompletionNewParams
	resp       *openai.ChatCompletion
	err        error
}

func (s *stubCompletionsClient) New(_ context.Context, body openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestOpenAICompleteEncodesAndDecodesTextOnly(t *testing.T) {
	stub := &stubCompletionsClient{
		resp: &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{
					Message:      openai.ChatCompletionMessage{Content: "hi there"},
					FinishReason: "stop",
				},
			},
			Usage: openai.CompletionUsage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14},
		},
	}
	c, err := NewOpenAIClient(stub, OpenAIOptions{DefaultModel: "gpt-x"})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Parts: []Part{TextPart{Text: "hello"}}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	require.Equal(t, "hi there", resp.Content[0].Parts[0].(TextPart).Text)
	require.Equal(t, 14, resp.Usage.TotalTokens)
	require.Equal(t, "gpt-x", stub.lastParams.Model)
}

func TestOpenAICompleteDecodesToolCalls(t *testing.T) {
	stub := &stubCompletionsClient{
		resp: &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{
					Message: openai.ChatCompletionMessage{
						ToolCalls: []openai.ChatCompletionMessageToolCall{
							{ID: "call-1", Function: openai.ChatCompletionMessageToolCallFunction{Name: "search", Arguments: `{"query":"go"}`}},
						},
					},
				},
			},
		},
	}
	c, err := NewOpenAIClient(stub, OpenAIOptions{DefaultModel: "gpt-x"})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Parts: []Part{TextPart{Text: "find it"}}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "search", string(resp.ToolCalls[0].Name))
	require.Equal(t, "go", resp.ToolCalls[0].Payload["query"])
}

func TestOpenAICompleteRejectsEmptyMessages(t *testing.T) {
	c, err := NewOpenAIClient(&stubCompletionsClient{}, OpenAIOptions{DefaultModel: "gpt-x"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), Request{})
	require.Error(t, err)
}
