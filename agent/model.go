package agent

import (
	"fmt"
	"time"

	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/flow"
	"github.com/backline-ai/backline/model"
	"github.com/backline-ai/backline/tool"
)

// Defaults applied by NewModelAgent.
const (
	DefaultMaxHistoryMessages = 20
	DefaultModelTimeout       = 60 * time.Second
	DefaultToolTimeout        = 15 * time.Second
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	// Description is the human-readable purpose of the agent.
	Description string
	// Instruction is the system prompt source, static text or a provider.
	Instruction Instruction
	// Registry holds the agent's tools. When nil a private registry with its
	// own approval ledger is created.
	Registry *tool.Registry
	// Tools are registered at construction; duplicate names panic, the same
	// as MustRegister, since static wiring errors are programmer errors.
	Tools []tool.Tool
	// EnableStreaming turns on partial response events.
	EnableStreaming bool
	// OutputKey, when set, stores the final reply text under this session
	// state key.
	OutputKey string
	// MaxHistoryMessages bounds the conversation window sent to the model.
	MaxHistoryMessages int
	// ModelTimeout bounds each model call. Zero disables the bound.
	ModelTimeout time.Duration
	// ToolTimeout bounds each tool call. Zero disables the bound.
	ToolTimeout time.Duration
	// MaxParallelTools bounds concurrent tool executions within one batch.
	// Zero means one goroutine per requested call.
	MaxParallelTools int
}

// ModelAgent integrates a language model with a tool registry to process one
// conversation turn at a time. It supports tool calling with draft/commit
// gating (enforced by the registry), streaming responses, template-based
// instructions and per-call timeouts.
//
// ModelAgent embeds BaseAgent for the standard lifecycle and implements
// flow.FlowAgent so the model flow can drive it.
type ModelAgent struct {
	BaseAgent
	llm                model.Model
	instruction        Instruction
	registry           *tool.Registry
	flow               *flow.ModelFlow
	streaming          bool
	outputKey          string
	maxHistoryMessages int
	modelTimeout       time.Duration
	toolTimeout        time.Duration
}

var (
	_ core.Agent     = (*ModelAgent)(nil)
	_ flow.FlowAgent = (*ModelAgent)(nil)
)

// NewModelAgent creates a model-backed agent with sensible defaults: a
// 20-message history window, a 60s model call timeout and a 15s tool call
// timeout. Streaming is off by default.
func NewModelAgent(name string, llm model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		Instruction:        NewInstructionFromText(fmt.Sprintf("You are %s, a helpful assistant.", name)),
		MaxHistoryMessages: DefaultMaxHistoryMessages,
		ModelTimeout:       DefaultModelTimeout,
		ToolTimeout:        DefaultToolTimeout,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	registry := opts.Registry
	if registry == nil {
		registry = tool.NewRegistry()
	}

	a := &ModelAgent{
		BaseAgent:          NewBaseAgent(name),
		llm:                llm,
		instruction:        opts.Instruction,
		registry:           registry,
		streaming:          opts.EnableStreaming,
		outputKey:          opts.OutputKey,
		maxHistoryMessages: opts.MaxHistoryMessages,
		modelTimeout:       opts.ModelTimeout,
		toolTimeout:        opts.ToolTimeout,
	}
	if opts.Description != "" {
		a.SetDescription(opts.Description)
	}
	for _, t := range opts.Tools {
		registry.MustRegister(t)
	}

	a.flow = flow.NewModelFlow(a, func(o *flow.ModelFlowOptions) {
		o.MaxParallelTools = opts.MaxParallelTools
	})
	a.flow.AddRequestProcessor(flow.NewInstructionsProcessor())
	a.flow.AddRequestProcessor(flow.NewContentsProcessor())

	return a
}

// RegisterTool adds a tool to the agent's registry.
func (a *ModelAgent) RegisterTool(t tool.Tool) error { return a.registry.Register(t) }

// RegisterTools adds multiple tools, stopping at the first failure.
func (a *ModelAgent) RegisterTools(tools ...tool.Tool) error {
	for _, t := range tools {
		if err := a.registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// HasTool reports whether a tool is registered under name.
func (a *ModelAgent) HasTool(name string) bool {
	_, err := a.registry.Resolve(name)
	return err == nil
}

// ListTools returns the registered tool names in registration order.
func (a *ModelAgent) ListTools() []string { return a.registry.Names() }

// GetName returns the agent's display name.
func (a *ModelAgent) GetName() string { return a.Name() }

// GetModel returns the language model instance.
func (a *ModelAgent) GetModel() model.Model { return a.llm }

// GetRegistry returns the agent's tool registry.
func (a *ModelAgent) GetRegistry() *tool.Registry { return a.registry }

// IsStreamingEnabled reports whether partial response events are emitted.
func (a *ModelAgent) IsStreamingEnabled() bool { return a.streaming }

// GetOutputKey returns the session state key for saving final replies.
func (a *ModelAgent) GetOutputKey() string { return a.outputKey }

// MaxHistoryMessages returns the conversation window bound.
func (a *ModelAgent) MaxHistoryMessages() int { return a.maxHistoryMessages }

// ModelTimeout returns the per-model-call deadline.
func (a *ModelAgent) ModelTimeout() time.Duration { return a.modelTimeout }

// ToolTimeout returns the per-tool-call deadline.
func (a *ModelAgent) ToolTimeout() time.Duration { return a.toolTimeout }

// ResolveInstructions produces the system prompt by resolving the static or
// dynamic instruction source.
func (a *ModelAgent) ResolveInstructions(rc *core.RunContext) (string, error) {
	return a.instruction.Resolve(rc)
}

// Run implements core.Agent: it drives the model flow for one user turn,
// emitting events through the run context until the turn completes or the
// run is cancelled.
func (a *ModelAgent) Run(rc *core.RunContext) error {
	rc.LogDebug("agent.run.start", "agent", a.Name(), "run", rc.RunID)

	if err := a.flow.Execute(rc); err != nil {
		rc.LogError("agent.run.error", "agent", a.Name(), "error", err.Error())
		return fmt.Errorf("agent %s: %w", a.Name(), err)
	}

	rc.LogDebug("agent.run.complete", "agent", a.Name())
	return nil
}
