package main

import (
	"context"
	"time"

	"github.com/agentrt/runtime/tools"
)

// demoRegistry is a tiny static planner.Registry used to exercise the
// control plane end to end without an external tool provider. It
// implements both tools.Executor and tools.Snapshot.
type demoRegistry struct {
	specs []tools.Spec
}

func newDemoRegistry() *demoRegistry {
	return &demoRegistry{
		specs: []tools.Spec{
			{Name: "demo.echo", Description: "Echoes back the provided text.", InputSchema: []byte(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`)},
			{Name: "demo.time", Description: "Returns the current server time in RFC3339.", InputSchema: []byte(`{"type":"object"}`)},
		},
	}
}

func (r *demoRegistry) Tools() []tools.Spec { return r.specs }

func (r *demoRegistry) Lookup(name tools.Ident) (tools.Spec, bool) {
	for _, s := range r.specs {
		if s.Name == name {
			return s, true
		}
	}
	return tools.Spec{}, false
}

func (r *demoRegistry) Snapshot() []tools.Spec { return r.Tools() }

func (r *demoRegistry) Execute(_ context.Context, name tools.Ident, args map[string]any) (any, error) {
	switch name {
	case "demo.echo":
		return args["text"], nil
	case "demo.time":
		return time.Now().UTC().Format(time.RFC3339), nil
	default:
		return nil, &tools.ErrUnknownTool{Name: name}
	}
}
