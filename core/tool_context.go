package core

import (
	"context"
	"fmt"
	"sync"
)

// ToolContext provides a constrained, auditable surface for tool handlers.
// It embeds the call-scoped context (carrying the per-call timeout), so a
// handler can pass it directly to stores and other context-aware APIs.
//
// Handlers acquire per-call resources through Cleanup: registered functions
// run after the handler returns or panics, in LIFO order, guaranteeing
// release. State mutations accumulate as EventActions and are attached to
// the tool result event rather than applied directly.
type ToolContext struct {
	context.Context

	runCtx       *RunContext
	callID       string
	agentInfo    AgentInfo
	eventActions EventActions

	mu       sync.Mutex
	cleanups []func()
	valid    bool

	*loggerAdapter
}

// NewToolContext constructs a tool context for one function call. ctx is the
// call-scoped context, typically derived from the run context with the tool
// timeout applied.
func NewToolContext(ctx context.Context, runCtx *RunContext, callID string) *ToolContext {
	return &ToolContext{
		Context:       ctx,
		runCtx:        runCtx,
		callID:        callID,
		agentInfo:     runCtx.Agent,
		eventActions:  EventActions{},
		valid:         true,
		loggerAdapter: runCtx.loggerAdapter,
	}
}

// SessionID returns the session the tool invocation belongs to.
func (tc *ToolContext) SessionID() string { return tc.runCtx.SessionID }

// RunID returns the run the tool invocation belongs to.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

// CallID returns the id of the function call being executed.
func (tc *ToolContext) CallID() string { return tc.callID }

// AgentName returns the name of the agent that requested the call.
func (tc *ToolContext) AgentName() string { return tc.agentInfo.Name }

// GetState retrieves the state value associated with the given key.
func (tc *ToolContext) GetState(k string) (any, bool) {
	return tc.runCtx.GetState(k)
}

// SetState records a state mutation both on the run context (for immediate
// visibility to later calls in the same run) and in the local EventActions
// delta attached to the tool result event.
func (tc *ToolContext) SetState(k string, v any) {
	if !tc.valid {
		return
	}
	tc.runCtx.SetState(k, v)
	if tc.eventActions.StateDelta == nil {
		tc.eventActions.StateDelta = map[string]any{}
	}
	tc.eventActions.StateDelta[k] = v
}

// Cleanup registers a release function for a resource acquired during the
// call. Cleanups run after the handler returns or panics, last registered
// first.
func (tc *ToolContext) Cleanup(f func()) {
	if f == nil {
		return
	}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.cleanups = append(tc.cleanups, f)
}

// Memory returns the memory store, or nil when none is configured. Handlers
// that search a named scope (such as the voice sample scope) use this
// directly.
func (tc *ToolContext) Memory() MemoryStore { return tc.runCtx.Memory }

// SearchMemory performs a recall query within the session's memory scope.
func (tc *ToolContext) SearchMemory(q string, limit int) ([]SearchResult, error) {
	if tc.runCtx.Memory == nil {
		return nil, fmt.Errorf("memory store not configured")
	}
	return tc.runCtx.Memory.Search(tc, tc.SessionID(), q, limit)
}

// StoreMemory appends new content to the session's memory scope.
func (tc *ToolContext) StoreMemory(content string, md map[string]any) (string, error) {
	if tc.runCtx.Memory == nil {
		return "", fmt.Errorf("memory store not configured")
	}
	return tc.runCtx.Memory.Store(tc, tc.SessionID(), content, md)
}

// IsValid reports whether the context is still bound to a live invocation.
// Contexts are invalidated after the call completes so handlers cannot stash
// and reuse them.
func (tc *ToolContext) IsValid() bool {
	return tc.valid && tc.runCtx != nil && tc.runCtx.SessionID != "" && tc.callID != ""
}

// InternalRunCleanups runs registered cleanups in LIFO order and invalidates
// the context. The registry calls this exactly once per invocation, whether
// the handler returned or panicked.
func (tc *ToolContext) InternalRunCleanups() {
	tc.mu.Lock()
	cleanups := tc.cleanups
	tc.cleanups = nil
	tc.valid = false
	tc.mu.Unlock()
	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

// InternalApplyActions merges accumulated EventActions into the provided
// event. The executor calls this when finalizing tool result events.
func (tc *ToolContext) InternalApplyActions(ev *Event) {
	if len(tc.eventActions.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		for k, v := range tc.eventActions.StateDelta {
			ev.Actions.StateDelta[k] = v
		}
	}
}
