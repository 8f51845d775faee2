package core

import (
	"context"
	"fmt"
	"maps"

	"github.com/backline-ai/backline/logging"
)

// RunContext carries execution state & helpers for one agent run (one user
// turn). It embeds the ambient cancellation Context so it can be passed
// directly to stores and model calls, and aggregates:
//   - Identifiers (SessionID, RunID, Agent info, Branch)
//   - The triggering user Content
//   - Emission / resumption coordination channels
//   - Backing services (session store, memory store)
//   - The model call budget for this run
//   - A working Session snapshot and pending StateDelta to commit
//
// State mutations performed via SetState accumulate in StateDelta until
// EmitEvent attaches them to the next event or CommitStateDelta applies them
// directly.
type RunContext struct {
	context.Context

	SessionID   string
	RunID       string
	Agent       AgentInfo
	Branch      string
	UserContent Content
	Budget      *RunBudget
	Emit        chan<- Event
	Resume      <-chan struct{}
	Sessions    SessionStore
	Memory      MemoryStore
	Session     *Session
	StateDelta  map[string]any

	*loggerAdapter
}

// RunContextConfig bundles the dependencies for NewRunContext.
type RunContextConfig struct {
	SessionID   string
	RunID       string
	Agent       AgentInfo
	Branch      string
	UserContent Content
	Budget      *RunBudget
	Emit        chan<- Event
	Resume      <-chan struct{}
	Sessions    SessionStore
	Memory      MemoryStore
	Session     *Session
	Logger      logging.Logger
}

// NewRunContext constructs a RunContext with an empty state delta. A nil
// Budget gets the default allowance.
func NewRunContext(ctx context.Context, cfg RunContextConfig) *RunContext {
	budget := cfg.Budget
	if budget == nil {
		budget = NewRunBudget(DefaultMaxRounds)
	}
	return &RunContext{
		Context:       ctx,
		SessionID:     cfg.SessionID,
		RunID:         cfg.RunID,
		Agent:         cfg.Agent,
		Branch:        cfg.Branch,
		UserContent:   cfg.UserContent,
		Budget:        budget,
		Emit:          cfg.Emit,
		Resume:        cfg.Resume,
		Sessions:      cfg.Sessions,
		Memory:        cfg.Memory,
		Session:       cfg.Session,
		StateDelta:    map[string]any{},
		loggerAdapter: newLoggerAdapter(cfg.Logger),
	}
}

// GetState returns a staged (delta) value if present, else the persisted
// session value.
func (rc *RunContext) GetState(k string) (any, bool) {
	if v, ok := rc.StateDelta[k]; ok {
		return v, true
	}
	if rc.Session != nil {
		return rc.Session.GetState(k)
	}
	return nil, false
}

// SetState stages a state mutation in the in-memory delta buffer.
func (rc *RunContext) SetState(k string, v any) { rc.StateDelta[k] = v }

// ApplyStateDelta merges all pairs from d into the staged StateDelta.
func (rc *RunContext) ApplyStateDelta(d map[string]any) {
	maps.Copy(rc.StateDelta, d)
}

// SearchMemory queries the MemoryStore within this session's scope.
func (rc *RunContext) SearchMemory(q string, limit int) ([]SearchResult, error) {
	if rc.Memory == nil {
		return []SearchResult{}, nil
	}
	return rc.Memory.Search(rc, rc.SessionID, q, limit)
}

// StoreMemory appends content plus metadata to this session's memory scope.
func (rc *RunContext) StoreMemory(content string, md map[string]any) (string, error) {
	if rc.Memory == nil {
		return "", fmt.Errorf("memory store not configured")
	}
	return rc.Memory.Store(rc, rc.SessionID, content, md)
}

// RefreshSession reloads the session snapshot from the session store.
func (rc *RunContext) RefreshSession() error {
	if rc.Sessions == nil {
		return fmt.Errorf("session store not configured")
	}
	s, err := rc.Sessions.Get(rc, rc.SessionID)
	if err != nil {
		return err
	}
	rc.Session = s
	return nil
}

// CommitStateDelta persists the accumulated StateDelta then clears the buffer.
func (rc *RunContext) CommitStateDelta() error {
	if len(rc.StateDelta) == 0 {
		return nil
	}
	if rc.Sessions == nil {
		return fmt.Errorf("session store not configured")
	}
	if err := rc.Sessions.ApplyDelta(rc, rc.SessionID, rc.StateDelta); err != nil {
		return err
	}
	rc.StateDelta = map[string]any{}
	return nil
}

// EmitEvent stamps the event with the run's identifiers, merges any pending
// StateDelta into its actions and sends it on the Emit channel. Delivery is
// preferred over cancellation while the runner is still draining, so events
// that settle a cancelled run (synthetic tool results, interruption markers)
// reach the session log; emission fails only when the channel is full and the
// run context is done.
func (rc *RunContext) EmitEvent(ev Event) error {
	if ev.RunID == "" {
		ev.RunID = rc.RunID
	}
	if ev.Branch == "" {
		ev.Branch = rc.Branch
	}
	if len(rc.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		maps.Copy(ev.Actions.StateDelta, rc.StateDelta)
	}

	select {
	case rc.Emit <- ev:
	default:
		select {
		case rc.Emit <- ev:
		case <-rc.Done():
			return rc.Err()
		}
	}

	rc.StateDelta = map[string]any{}
	return nil
}

// WaitForResume blocks until the runner signals that the previously emitted
// event has been persisted, or until cancellation.
func (rc *RunContext) WaitForResume() error {
	if rc.Resume == nil {
		return nil
	}
	select {
	case <-rc.Resume:
		return nil
	case <-rc.Done():
		return rc.Err()
	}
}
