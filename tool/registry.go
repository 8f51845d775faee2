package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/internal/util"
	"github.com/backline-ai/backline/model"
)

// DraftOp marks tools whose successful result records a pending draft in the
// approval ledger. Draft operations are pure preparation: they are always
// allowed and never gated.
type DraftOp interface {
	// DraftKind returns the draft kind this tool produces (e.g. "email").
	DraftKind() string
}

// CommitOp marks tools that perform an outward-facing action and therefore
// require a prior matching draft in the same session.
type CommitOp interface {
	// CommitKind returns the draft kind consumed by this tool and the name
	// of the argument carrying the draft id.
	CommitKind() (kind, idArg string)
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// Approvals is the draft ledger used for commit gating. Registries of
	// agents in the same engine share one ledger; when nil a private ledger
	// is created.
	Approvals *Approvals
}

// Registry holds an agent's tools and executes every function call the model
// requests. Execution is a fixed pipeline: resolve, parse and validate
// arguments, enforce draft gating, run the handler with panic recovery, and
// release scoped resources. Any failure along the way becomes a failure
// response; Invoke never returns an error and never lets a handler crash the
// agent loop.
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	order     []string
	approvals *Approvals
}

// NewRegistry creates an empty tool registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Approvals == nil {
		opts.Approvals = NewApprovals()
	}
	return &Registry{
		tools:     map[string]Tool{},
		approvals: opts.Approvals,
	}
}

// WithApprovals shares an existing approval ledger with the registry.
func WithApprovals(a *Approvals) func(o *RegistryOptions) {
	return func(o *RegistryOptions) { o.Approvals = a }
}

// Register adds a tool under its name. Registering a second tool with the
// same name fails with *DuplicateError and leaves the registry unchanged.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return &DuplicateError{Tool: name}
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// MustRegister is Register for static wiring; it panics on duplicate names.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Resolve returns the tool registered under name, or *NotFoundError.
func (r *Registry) Resolve(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, &NotFoundError{Tool: name}
	}
	return t, nil
}

// Tools returns the registered tools in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Specs returns the model-facing definitions of all registered tools in
// registration order, ready to attach to a model request.
func (r *Registry) Specs() []model.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]model.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Approvals exposes the draft ledger backing commit gating.
func (r *Registry) Approvals() *Approvals {
	return r.approvals
}

// Invoke runs one function call through the full pipeline and returns the
// response to feed back to the model. Scoped resources registered via
// ToolContext.Cleanup are released before Invoke returns, whether the handler
// succeeded, failed or panicked.
func (r *Registry) Invoke(tc *core.ToolContext, call core.FunctionCall) core.FunctionResponse {
	resp := core.FunctionResponse{ID: call.ID, Name: call.Name}
	defer tc.InternalRunCleanups()

	t, err := r.Resolve(call.Name)
	if err != nil {
		tc.LogWarn("tool.call.unknown", "tool", call.Name, "call_id", call.ID)
		resp.Error = NewToolError(call.Name, err.Error(), CodeNotFound).Error()
		return resp
	}

	args, err := parseArguments(call.Arguments)
	if err != nil {
		tc.LogWarn("tool.call.bad_arguments", "tool", call.Name, "error", err.Error())
		resp.Error = NewToolError(call.Name, fmt.Sprintf("malformed arguments: %v", err), CodeValidation).Error()
		return resp
	}

	if err := util.ValidateParameters(args, t.Parameters()); err != nil {
		tc.LogWarn("tool.call.validation_failed", "tool", call.Name, "error", err.Error())
		resp.Error = (&ToolError{
			Tool:    call.Name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}).Error()
		return resp
	}

	var claimed *Draft
	if commit, ok := t.(CommitOp); ok {
		if kind, idArg := commit.CommitKind(); kind != "" {
			claimed, resp.Error = r.claimDraft(tc, call.Name, kind, idArg, args)
			if resp.Error != "" {
				return resp
			}
		}
	}

	tc.LogDebug("tool.call.start", "tool", call.Name, "call_id", tc.CallID())
	start := time.Now()

	result, err := r.execute(tc, t, args)
	if err != nil {
		if claimed != nil {
			r.approvals.Restore(*claimed)
		}
		toolErr := normalizeError(call.Name, err)
		tc.LogError("tool.call.error", "tool", call.Name, "code", toolErr.Code, "error", toolErr.Message)
		resp.Error = toolErr.Error()
		return resp
	}

	if draft, ok := t.(DraftOp); ok {
		if kind := draft.DraftKind(); kind != "" {
			r.recordDraft(tc, kind, result)
		}
	}

	tc.LogInfo("tool.call.success", "tool", call.Name, "duration_ms", time.Since(start).Milliseconds())
	resp.Response = result
	return resp
}

// claimDraft enforces commit gating: the call must reference the session's
// current draft of the required kind. On success the draft is removed from
// the ledger and its payload is merged into args without overriding caller
// supplied values.
func (r *Registry) claimDraft(tc *core.ToolContext, toolName, kind, idArg string, args map[string]any) (*Draft, string) {
	id, _ := args[idArg].(string)
	if id == "" {
		return nil, NewToolError(toolName, fmt.Sprintf("%s requires an approved %s draft; call the draft tool first", toolName, kind), CodeApproval).Error()
	}
	d, err := r.approvals.Take(tc.SessionID(), kind, id)
	if err != nil {
		tc.LogWarn("tool.call.approval_missing", "tool", toolName, "draft_id", id)
		return nil, NewToolError(toolName, err.Error(), CodeApproval).Error()
	}
	for k, v := range d.Payload {
		if _, exists := args[k]; !exists {
			args[k] = v
		}
	}
	return &d, ""
}

// execute invokes the handler, converting panics into execution errors so a
// misbehaving tool cannot take down the agent loop.
func (r *Registry) execute(tc *core.ToolContext, t Tool, args map[string]any) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			tc.LogError("tool.call.panic", "tool", t.Name(), "panic", fmt.Sprintf("%v", rec), "stack", string(debug.Stack()))
			result = nil
			err = &ToolError{Tool: t.Name(), Message: fmt.Sprintf("panic: %v", rec), Code: CodeExecution}
		}
	}()
	return t.Call(tc, args)
}

// recordDraft registers the draft produced by a successful draft operation.
// Handlers signal the draft via a "draft_id" key in their result map.
func (r *Registry) recordDraft(tc *core.ToolContext, kind string, result any) {
	m, ok := result.(map[string]any)
	if !ok {
		return
	}
	id, _ := m["draft_id"].(string)
	if id == "" {
		tc.LogWarn("tool.call.draft_missing_id", "kind", kind)
		return
	}
	summary, _ := m["summary"].(string)
	r.approvals.Put(Draft{
		ID:        id,
		Kind:      kind,
		SessionID: tc.SessionID(),
		Summary:   summary,
		Payload:   m,
		Created:   time.Now(),
	})
}

func normalizeError(tool string, err error) *ToolError {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ToolError{Tool: tool, Message: "tool call deadline exceeded", Code: CodeTimeout}
	}
	return &ToolError{Tool: tool, Message: err.Error(), Code: CodeExecution}
}

func parseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
