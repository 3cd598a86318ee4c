package modelclient

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/require"
)

type stubRuntimeClient struct {
	lastInput *bedrockruntime.ConverseInput
	output    *bedrockruntime.ConverseOutput
	err       error
}

func (s *stubRuntimeClient) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.lastInput = params
	return s.output, s.err
}

func int32Ptr(v int32) *int32 { return &v }

func TestBedrockCompleteEncodesAndDecodesTextOnly(t *testing.T) {
	stub := &stubRuntimeClient{
		output: &bedrockruntime.ConverseOutput{
			Output: &brtypes.ConverseOutputMemberMessage{
				Value: brtypes.Message{
					Role:    brtypes.ConversationRoleAssistant,
					Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "hi there"}},
				},
			},
			Usage: &brtypes.TokenUsage{InputTokens: int32Ptr(10), OutputTokens: int32Ptr(4), TotalTokens: int32Ptr(14)},
		},
	}
	c, err := NewBedrockClient(stub, BedrockOptions{DefaultModel: "amazon.titan"})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Parts: []Part{TextPart{Text: "hello"}}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	require.Equal(t, "hi there", resp.Content[0].Parts[0].(TextPart).Text)
	require.Equal(t, 14, resp.Usage.TotalTokens)
	require.NotNil(t, stub.lastInput)
	require.Equal(t, "amazon.titan", *stub.lastInput.ModelId)
}

func TestBedrockCompleteRejectsEmptyMessages(t *testing.T) {
	c, err := NewBedrockClient(&stubRuntimeClient{}, BedrockOptions{DefaultModel: "amazon.titan"})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), Request{})
	require.Error(t, err)
}
