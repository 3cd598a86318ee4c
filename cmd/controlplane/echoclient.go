package main

import (
	"context"

	"github.com/agentrt/runtime/modelclient"
)

// echoChatClient is a zero-dependency modelclient.ChatClient used when no
// provider credentials are configured, so the control plane can be
// exercised locally without an external LLM account. It always answers
// with the most recent user message, never calling a tool.
type echoChatClient struct{}

func (echoChatClient) Complete(_ context.Context, req modelclient.Request) (modelclient.Response, error) {
	var last string
	for _, m := range req.Messages {
		if m.Role != modelclient.RoleUser {
			continue
		}
		for _, p := range m.Parts {
			if tp, ok := p.(modelclient.TextPart); ok {
				last = tp.Text
			}
		}
	}
	return modelclient.Response{
		Content: []modelclient.Message{{Role: modelclient.RoleAssistant, Parts: []modelclient.Part{modelclient.TextPart{Text: "echo: " + last}}}},
	}, nil
}
