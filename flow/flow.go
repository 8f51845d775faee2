// Package flow provides execution flow management for Backline agents.
//
// Flows orchestrate the execution pipeline of agents, allowing for modular
// and configurable processing of requests and responses. This design enables
// clean separation of concerns and easy extensibility.
package flow

import (
	"time"

	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/model"
	"github.com/backline-ai/backline/tool"
)

// Flow defines the interface for agent execution flows.
//
// A flow drives the complete execution pipeline of an agent turn, from
// assembling the model request to executing requested tools, emitting events
// through the run context as it goes. Execute returns once the turn reached a
// final response, the run budget was exhausted (surfaced as a degraded final
// reply) or the run context was cancelled.
type Flow interface {
	// Execute runs the flow until the turn completes. Events are emitted via
	// the run context; a non-nil error means the run was aborted (typically
	// by cancellation) rather than finished.
	Execute(runCtx *core.RunContext) error
}

// FlowAgent defines the interface that agents must implement to work with flows.
//
// This interface provides flows with access to agent capabilities without
// exposing the full agent implementation details.
type FlowAgent interface {
	// GetName returns the agent's display name.
	GetName() string

	// GetModel returns the language model instance.
	GetModel() model.Model

	// ResolveInstructions produces the system instructions for this run.
	ResolveInstructions(runCtx *core.RunContext) (string, error)

	// GetRegistry returns the agent's tool registry.
	GetRegistry() *tool.Registry

	// IsStreamingEnabled returns whether streaming responses are enabled.
	IsStreamingEnabled() bool

	// GetOutputKey returns the session state key for saving responses.
	GetOutputKey() string

	// MaxHistoryMessages returns the maximum number of conversation history messages to keep.
	MaxHistoryMessages() int

	// ModelTimeout bounds a single model call.
	ModelTimeout() time.Duration

	// ToolTimeout bounds a single tool call.
	ToolTimeout() time.Duration
}

// RequestProcessor processes the request before sending it to the LLM.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the chat request before LLM execution.
	ProcessRequest(runCtx *core.RunContext, req *model.Request, agent FlowAgent) error
}

// ResponseProcessor processes the response after receiving it from the LLM.
type ResponseProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessResponse handles the LLM response before it is emitted as an event.
	ProcessResponse(runCtx *core.RunContext, resp *model.Response, agent FlowAgent) error
}
