package agentcore

import (
	"sync"

	"github.com/agentrt/runtime/internal/telemetry"
	"github.com/agentrt/runtime/planner"
	"github.com/agentrt/runtime/tools"
)

// agentContext implements planner.AgentContext. availableTools is
// derived fresh from the registry snapshot every iteration; the agent
// core never mutates it out-of-band.
type agentContext struct {
	registry planner.Registry
	logger   telemetry.Logger
	metrics  telemetry.Metrics
	tracer   telemetry.Tracer
	state    planner.AgentState
}

func (a *agentContext) AvailableTools() []tools.Spec {
	if a.registry == nil {
		return nil
	}
	return a.registry.Snapshot()
}

func (a *agentContext) Logger() telemetry.Logger   { return a.logger }
func (a *agentContext) Metrics() telemetry.Metrics { return a.metrics }
func (a *agentContext) Tracer() telemetry.Tracer   { return a.tracer }
func (a *agentContext) State() planner.AgentState  { return a.state }

// agentState is a simple mutex-guarded map implementing
// planner.AgentState, scoped to a single run.
type agentState struct {
	mu     sync.RWMutex
	values map[string]any
}

func newAgentState() *agentState {
	return &agentState{values: make(map[string]any)}
}

func (s *agentState) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *agentState) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *agentState) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}
