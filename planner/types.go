// Package planner defines the contract between the agent core and the
// reasoning component that decides what an agent does next. Planner
// implementations are external collaborators (typically LLM-backed);
// this package only fixes the shapes they exchange with the runtime:
// actions, results, tool requests, and the read-only context a planner
// is given.
package planner

import (
	"context"

	"github.com/agentrt/runtime/internal/telemetry"
	"github.com/agentrt/runtime/tools"
)

// ActionKind discriminates the variant held by an AgentAction.
type ActionKind string

const (
	ActionToolCall         ActionKind = "tool_call"
	ActionFinalAnswer      ActionKind = "final_answer"
	ActionNeedMoreInfo     ActionKind = "need_more_info"
	ActionDelegateToAgent  ActionKind = "delegate_to_agent"
	ActionExecutePlan      ActionKind = "execute_plan"
	ActionParallelTools    ActionKind = "parallel_tools"
	ActionSequentialTools  ActionKind = "sequential_tools"
	ActionConditionalTools ActionKind = "conditional_tools"
	ActionMixedTools       ActionKind = "mixed_tools"
	ActionDependencyTools  ActionKind = "dependency_tools"
)

// MixedStrategy names the strategy an adaptive/mixed action should use.
type MixedStrategy string

const (
	StrategyParallel    MixedStrategy = "parallel"
	StrategySequential  MixedStrategy = "sequential"
	StrategyConditional MixedStrategy = "conditional"
	StrategyAdaptive    MixedStrategy = "adaptive"
)

// AgentAction is the tagged union the planner emits from Think. Exactly
// one of the pointer fields matching Kind is populated; the Act phase
// switches on Kind and never inspects the others.
type AgentAction struct {
	Kind ActionKind

	ToolCall        *ToolCallAction
	FinalAnswer     *FinalAnswerAction
	NeedMoreInfo    *NeedMoreInfoAction
	DelegateToAgent *DelegateToAgentAction
	ExecutePlan     *ExecutePlanAction
	ParallelTools   *ParallelToolsAction
	SequentialTools *SequentialToolsAction
	ConditionalTools *ConditionalToolsAction
	MixedTools      *MixedToolsAction
	DependencyTools *DependencyToolsAction
}

type ToolCallAction struct {
	ToolName tools.Ident
	Input    map[string]any
}

type FinalAnswerAction struct{ Content string }

type NeedMoreInfoAction struct{ Question string }

type DelegateToAgentAction struct {
	AgentName string
	Input     map[string]any
}

type ExecutePlanAction struct{ PlanID string }

type ParallelToolsAction struct {
	Tools       []ToolCallAction
	Concurrency int  // 0 means min(len(Tools), available)
	TimeoutMS   int64
	FailFast    bool
}

type SequentialToolsAction struct {
	Tools       []ToolCallAction
	StopOnError bool
}

type ConditionalToolsAction struct {
	Tools      []ToolCallAction
	Conditions map[tools.Ident]Predicate
}

// Predicate evaluates whether a conditional tool should run, given the
// results accumulated so far in the same action's execution.
type Predicate func(accumulated []ActionResult) bool

type MixedToolsAction struct {
	Tools    []ToolCallAction
	Strategy MixedStrategy
	Config   DependencyConfig
}

type DependencyToolsAction struct {
	Tools        []ToolCallAction
	Dependencies []Dependency
	Config       DependencyConfig
}

// Dependency declares an edge From -> To, meaning To depends on From
// (To cannot run until From has completed).
type Dependency struct{ From, To tools.Ident }

type DependencyConfig struct {
	MaxConcurrency int
	FailFast       bool
}

// ResultKind discriminates the variant held by an ActionResult.
type ResultKind string

const (
	ResultToolResult  ResultKind = "tool_result"
	ResultFinalAnswer ResultKind = "final_answer"
	ResultError       ResultKind = "error"
	ResultNeedsReplan ResultKind = "needs_replan"
)

// ActionResult is the tagged union Act produces and Observe consumes.
type ActionResult struct {
	Kind ResultKind

	ToolResult  *ToolResultPayload
	FinalAnswer *FinalAnswerPayload
	Error       *ErrorPayload
	NeedsReplan *NeedsReplanPayload

	// Entries holds the ordered per-tool results for any multi-tool
	// action (parallel/sequential/conditional/mixed/dependency/plan).
	// Single tool_call actions populate ToolResult and also hold their
	// one entry here.
	Entries []ToolEntry
}

// ToolEntry is one {toolName, result|error} slot in a multi-tool result
// array. A conditional skip leaves both Result and Err nil with
// Skipped=true.
type ToolEntry struct {
	ToolName tools.Ident
	Result   any
	Err      error
	Skipped  bool
}

type ToolResultPayload struct {
	Content  any
	Metadata map[string]any
}

type FinalAnswerPayload struct{ Content string }

type ErrorPayload struct {
	Err            error
	ReplanContext  map[string]any
	Metadata       map[string]any
}

type NeedsReplanPayload struct {
	Feedback      string
	ReplanContext map[string]any
}

// Thought is what Think returns: the planner's reasoning text plus the
// action it decided on.
type Thought struct {
	Reasoning string
	Action    AgentAction
}

// Observation is what AnalyzeResult returns.
type Observation struct {
	IsComplete     bool
	ShouldContinue bool
	Feedback       string
	ReplanContext  map[string]any
}

// Planner is the decision-making contract the agent core calls into
// once per iteration.
type Planner interface {
	// Think produces a reasoning trace and the next action given the
	// current execution context.
	Think(ctx context.Context, pctx ExecutionContext) (Thought, error)

	// AnalyzeResult integrates an action's result into the planner's
	// reasoning and reports whether/how the run should continue.
	AnalyzeResult(ctx context.Context, result ActionResult, pctx ExecutionContext) (Observation, error)
}

// StepExecution is appended once per iteration to the run's execution
// history. History is append-only within a single run.
type StepExecution struct {
	StepID      string
	Iteration   int
	Thought     string
	Action      AgentAction
	Status      string
	Result      *ActionResult
	Observation *Observation
	Duration    int64 // milliseconds
}

// PlannerMetadata carries identifiers attached to a run for correlation.
type PlannerMetadata struct {
	AgentName     string
	CorrelationID string
	TenantID      string
	Thread        string
	StartTime     int64
}

// ExecutionContext is rebuilt from history once per iteration and handed
// to the planner; it is never shared between agents and never mutated
// out-of-band by the agent core (available tools are derived fresh from
// the tool registry snapshot on every iteration).
type ExecutionContext struct {
	Input           string
	History         []StepExecution
	Iterations      int
	MaxIterations   int
	PlannerMetadata PlannerMetadata
	AgentContext    AgentContext
	IsComplete      bool
}

// AgentContext exposes the read-only services a planner may use:
// available tools (refreshed every iteration from the registry
// snapshot), logging, metrics, tracing, and per-run mutable state.
type AgentContext interface {
	AvailableTools() []tools.Spec
	Logger() telemetry.Logger
	Metrics() telemetry.Metrics
	Tracer() telemetry.Tracer
	State() AgentState
}

// AgentState exposes mutable per-run planner state, cleared when the run
// completes.
type AgentState interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Keys() []string
}

// Registry is the narrow external-collaborator interface the agent core
// needs from the concrete tool registry/executor: a snapshot of
// available tools and dispatch by name.
type Registry interface {
	tools.Executor
	Snapshot() []tools.Spec
}

// Bus is the optional observability/event fan-out collaborator. An
// implementation lives in this module (see package bus) but the agent
// core and tool pipeline depend only on this interface.
type Bus interface {
	Emit(ctx context.Context, eventType string, data any, correlationID string)
}
