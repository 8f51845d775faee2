package tool

import (
	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a Backline tool.
//
// Responsibilities:
//   - Holds a lightweight JSON-Schema-like parameter specification (parameters)
//   - Invokes the wrapped function with a *core.ToolContext giving access to
//     session state, memory, call IDs and cleanup registration
//   - Optionally declares draft/commit semantics so the Registry can enforce
//     approval gating uniformly (WithDraftKind, WithCommitKind)
//
// Argument validation and error normalization happen in Registry.Invoke; a
// FunctionTool called through the registry receives schema-conforming args
// and may return plain errors.
//
// Concurrency:
//
//	A FunctionTool has no internal mutable state after construction and is safe for
//	concurrent use by multiple goroutines.
//
// Parameter Schema Expectations:
//
//	The parameters map should follow a minimal JSON Schema shape used elsewhere in the
//	project. Only the subset actually validated by util.ValidateParameters needs to be
//	supplied (type, properties, required, etc.).
//
// Returned result:
//
//	The returned value can be any Go type that is JSON-serializable by the higher layer.
//	Draft operations return a map containing a "draft_id" (and optionally a
//	"summary") so the registry can record the pending draft.
type FunctionTool struct {
	// Tool identifier (snake_case recommended)
	name string
	// Human-readable description shown to models
	description string
	// JSON schema describing accepted arguments
	parameters map[string]any
	// User supplied implementation
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error)

	draftKind   string
	commitKind  string
	commitIDArg string
}

// FunctionToolOption customises draft/commit semantics of a FunctionTool.
type FunctionToolOption func(t *FunctionTool)

// WithDraftKind marks the tool as a draft operation producing drafts of the
// given kind (e.g. "email", "invoice", "post").
func WithDraftKind(kind string) FunctionToolOption {
	return func(t *FunctionTool) { t.draftKind = kind }
}

// WithCommitKind marks the tool as a commit operation consuming drafts of the
// given kind. idArg names the argument carrying the draft id.
func WithCommitKind(kind, idArg string) FunctionToolOption {
	return func(t *FunctionTool) {
		t.commitKind = kind
		t.commitIDArg = idArg
	}
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Arguments:
//
//	name        - unique tool name (avoid collisions; snake_case suggested)
//	description - concise, imperative description ("Calculate the …")
//	parameters  - minimal JSON-Schema-like map describing the accepted arguments
//	fn          - implementation receiving a ToolContext plus already-validated args
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    a := args["a"].(float64)
//	    b := args["b"].(float64)
//	    return a + b, nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...FunctionToolOption,
) *FunctionTool {
	t := &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
	for _, optFn := range optFns {
		optFn(t)
	}
	return t
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using reflection.
// It is a convenience for simple argument containers and produces a schema equivalent
// to util.CreateSchema(structType).
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sumTool := NewFunctionToolFromStruct(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  SumArgs{},
//	  func(tc *core.ToolContext, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
	optFns ...FunctionToolOption,
) *FunctionTool {
	schema := util.CreateSchema(structType)
	return NewFunctionTool(name, description, schema, fn, optFns...)
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the (minimal) JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// DraftKind reports the draft kind produced by this tool; empty when the tool
// is not a draft operation. Satisfies DraftOp when set.
func (t *FunctionTool) DraftKind() string { return t.draftKind }

// CommitKind reports the draft kind consumed by this tool and the argument
// holding the draft id; empty kind when the tool is not a commit operation.
// Satisfies CommitOp when set.
func (t *FunctionTool) CommitKind() (string, string) { return t.commitKind, t.commitIDArg }

// Call invokes the underlying function. The registry has already validated
// args against the declared schema and will normalize any returned error.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	return t.fn(toolCtx, args)
}
