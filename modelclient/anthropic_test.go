package modelclient

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestAnthropicCompleteEncodesAndDecodesTextOnly(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{{Type: "text", Text: "hi there"}},
			Usage:   sdk.Usage{InputTokens: 10, OutputTokens: 4},
		},
	}
	c, err := NewAnthropicClient(stub, AnthropicOptions{DefaultModel: "claude-x", MaxTokens: 128})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Parts: []Part{TextPart{Text: "hello"}}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	require.Equal(t, "hi there", resp.Content[0].Parts[0].(TextPart).Text)
	require.Equal(t, 14, resp.Usage.TotalTokens)
	require.Equal(t, "claude-x", string(stub.lastParams.Model))
}

func TestAnthropicCompleteDecodesToolUse(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{{Type: "tool_use", ID: "call-1", Name: "search", Input: []byte(`{"query":"go"}`)}},
		},
	}
	c, err := NewAnthropicClient(stub, AnthropicOptions{DefaultModel: "claude-x", MaxTokens: 128})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Parts: []Part{TextPart{Text: "find it"}}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	require.Equal(t, "search", string(resp.ToolCalls[0].Name))
	require.Equal(t, "go", resp.ToolCalls[0].Payload["query"])
}

func TestAnthropicCompleteRejectsEmptyMessages(t *testing.T) {
	c, err := NewAnthropicClient(&stubMessagesClient{}, AnthropicOptions{DefaultModel: "claude-x", MaxTokens: 128})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), Request{})
	require.Error(t, err)
}
