package engine

import (
	"context"

	"github.com/backline-ai/backline/logging"
)

// HookType identifies a routing milestone hooks can attach to.
//
// Hooks run synchronously inside Invoke and may veto the turn by returning an
// error, which surfaces as Invoke's immediate error. Use them for audit
// logging, rate limiting, or rejecting messages before any agent runs.
type HookType string

const (
	// HookBeforeRoute fires before the router sees the message. The hook
	// context carries the session ID and message text; Agent is still empty.
	HookBeforeRoute HookType = "before_route"

	// HookAfterRoute fires once an agent has been selected, before the turn
	// starts. The hook context's Agent field names the selection.
	HookAfterRoute HookType = "after_route"

	// HookNoMatch fires when routing found no agent, before the engine
	// answers with its clarification reply.
	HookNoMatch HookType = "no_match"
)

// HookContext carries the routing facts available at the hook's milestone.
type HookContext struct {
	// SessionID identifies the conversation being routed.
	SessionID string

	// Message is the plain text of the user's input.
	Message string

	// Agent names the selected agent. Empty before routing and on no-match.
	Agent string
}

// Hook is a synchronous observer of routing decisions. Implementations must
// be safe for concurrent use; the same hook may fire for overlapping sessions.
type Hook interface {
	// Type returns the milestone this hook attaches to.
	Type() HookType

	// Execute runs the hook. A non-nil error aborts the turn before any
	// agent executes.
	Execute(ctx context.Context, hc *HookContext) error
}

// FunctionHook wraps a plain function as a Hook, for hooks with no state.
type FunctionHook struct {
	hookType HookType
	fn       func(ctx context.Context, hc *HookContext) error
}

// NewFunctionHook creates a hook from a function.
func NewFunctionHook(ht HookType, fn func(ctx context.Context, hc *HookContext) error) *FunctionHook {
	return &FunctionHook{hookType: ht, fn: fn}
}

// Type returns the milestone this hook attaches to.
func (h *FunctionHook) Type() HookType { return h.hookType }

// Execute calls the wrapped function.
func (h *FunctionHook) Execute(ctx context.Context, hc *HookContext) error {
	return h.fn(ctx, hc)
}

// LoggingHook records routing decisions on a structured logger. It never
// vetoes a turn.
type LoggingHook struct {
	hookType HookType
	logger   logging.Logger
}

// NewLoggingHook creates a hook that logs its milestone at info level.
func NewLoggingHook(ht HookType, logger logging.Logger) *LoggingHook {
	return &LoggingHook{hookType: ht, logger: logger}
}

// Type returns the milestone this hook attaches to.
func (h *LoggingHook) Type() HookType { return h.hookType }

// Execute logs the routing facts and returns nil.
func (h *LoggingHook) Execute(_ context.Context, hc *HookContext) error {
	if h.logger == nil {
		return nil
	}
	h.logger.Info("engine.hook",
		"milestone", string(h.hookType),
		"session_id", hc.SessionID,
		"agent", hc.Agent,
	)
	return nil
}

// RegisterHook attaches a hook to its milestone. Hooks fire in registration
// order; the first error stops the chain.
func (e *Engine) RegisterHook(h Hook) {
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()
	e.hooks[h.Type()] = append(e.hooks[h.Type()], h)
}

// fire runs every hook registered for the milestone.
func (e *Engine) fire(ctx context.Context, ht HookType, hc *HookContext) error {
	e.hooksMu.RLock()
	hooks := e.hooks[ht]
	e.hooksMu.RUnlock()

	for _, h := range hooks {
		if err := h.Execute(ctx, hc); err != nil {
			return err
		}
	}
	return nil
}
