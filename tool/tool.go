// Package tool implements the function / tool calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, side-effects) with schema
// validated arguments, consistent error handling and rich metadata for LLM guidance.
//
// The Registry is the single entry point for tool execution: it resolves names,
// validates arguments, enforces draft/approval gating and converts every
// failure (including handler panics) into a function response the agent loop
// can feed back to the model.
package tool

import (
	"fmt"

	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/internal/util"
)

// Error codes attached to ToolError and surfaced in failure responses.
const (
	// CodeValidation indicates the supplied arguments did not match the
	// tool's schema.
	CodeValidation = "VALIDATION_ERROR"
	// CodeExecution indicates the tool handler returned an error or panicked.
	CodeExecution = "EXECUTION_ERROR"
	// CodeNotFound indicates the requested tool name is not registered.
	CodeNotFound = "TOOL_NOT_FOUND"
	// CodeApproval indicates a commit operation had no matching approved draft.
	CodeApproval = "APPROVAL_REQUIRED"
	// CodeTimeout indicates the tool gave up because its call deadline expired.
	CodeTimeout = "TIMEOUT"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools can be registered with agents to enable function calling, allowing
// agents to perform actions beyond text generation such as API calls, calculations,
// database queries, or any other programmatic operations.
//
// All tools have access to ToolContext for session state, memory and scoped
// resource cleanup. Argument validation and error normalization happen in the
// Registry, so implementations can assume their schema has been enforced.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be thread-safe if used concurrently
//   - Follow consistent naming conventions
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should be descriptive and follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// This schema is used for parameter validation and LLM function calling.
	Parameters() map[string]interface{}

	// Call executes the tool with structured arguments and ToolContext.
	// This method provides tools with access to session state, memory and
	// cleanup registration. Arguments have been validated against the tool's
	// schema by the Registry before Call is invoked.
	Call(toolCtx *core.ToolContext, args map[string]interface{}) (interface{}, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string      `json:"tool"`              // Name of the tool that failed
	Message string      `json:"message"`           // Error message
	Code    string      `json:"code"`              // Error code for categorization
	Details interface{} `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// NotFoundError reports resolution of a tool name that was never registered.
type NotFoundError struct {
	Tool string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.Tool)
}

// DuplicateError reports an attempt to register a second tool under a name
// already taken. The registry is left unchanged by the rejected registration.
type DuplicateError struct {
	Tool string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Tool)
}
