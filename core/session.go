package core

import (
	"context"
	"sync"
	"time"
)

// StateKeyActiveAgent is the session state key holding the name of the agent
// the orchestrator last routed to. Routing stickiness reads and writes it.
const StateKeyActiveAgent = "active_agent"

// Session represents a conversational container tracking mutable key/value
// state plus an ordered, append-only event history. It is safe for concurrent
// access.
//
// Contract:
//   - State mutations update the Updated timestamp
//   - GetEvents returns a defensive copy to avoid external mutation
//   - History filters events to user/assistant/tool roles, excludes partial
//     streaming fragments, and narrows to one agent's branch
//   - Clone performs deep copies of maps/slices for safe divergence.
type Session struct {
	ID       string                 `json:"id"`
	State    map[string]interface{} `json:"state"`
	Events   []Event                `json:"events"`
	Created  time.Time              `json:"created"`
	Updated  time.Time              `json:"updated"`
	Metadata map[string]string      `json:"metadata"`
	mu       sync.RWMutex
}

// NewSession creates a new session with the given ID.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{ID: id, State: map[string]interface{}{}, Events: []Event{}, Created: now, Updated: now, Metadata: map[string]string{}}
}

// GetState returns the value and existence flag for a state key.
func (s *Session) GetState(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.State[key]
	return v, ok
}

// SetState sets a key/value pair in session state updating the Updated timestamp.
func (s *Session) SetState(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State[key] = value
	s.Updated = time.Now()
}

// ApplyStateDelta merges the provided key/value pairs into State.
func (s *Session) ApplyStateDelta(delta map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range delta {
		s.State[k] = v
	}
	s.Updated = time.Now()
}

// ActiveAgent returns the name of the agent currently bound to this session,
// or the empty string when no routing decision has been recorded yet.
func (s *Session) ActiveAgent() string {
	v, ok := s.GetState(StateKeyActiveAgent)
	if !ok {
		return ""
	}
	name, _ := v.(string)
	return name
}

// AddEvent appends an event to the history updating the Updated timestamp.
// History is append-only; events are never rewritten or removed.
func (s *Session) AddEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	s.Updated = time.Now()
}

// GetEvents returns a defensive copy of the full event slice.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// History returns the conversational contents for one agent's branch,
// suitable for providing context to models: user/assistant/tool roles only,
// partial streaming fragments excluded. An empty branch selects the whole
// session log.
func (s *Session) History(branch string) []Content {
	s.mu.RLock()
	defer s.mu.RUnlock()
	allowed := map[string]bool{RoleUser: true, RoleAssistant: true, RoleTool: true}
	res := make([]Content, 0, len(s.Events))
	for _, ev := range s.Events {
		if branch != "" && ev.Branch != branch {
			continue
		}
		if ev.Content == nil || !allowed[ev.Content.Role] {
			continue
		}
		if ev.IsPartial() {
			continue
		}
		res = append(res, *ev.Content)
	}
	return res
}

// PendingToolCalls returns the function calls on the branch that have no
// recorded response yet, in their original request order. A well-formed
// history returns an empty slice before every user turn.
func (s *Session) PendingToolCalls(branch string) []FunctionCall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answered := make(map[string]bool)
	var calls []FunctionCall
	for _, ev := range s.Events {
		if branch != "" && ev.Branch != branch {
			continue
		}
		for _, resp := range ev.GetFunctionResponses() {
			answered[resp.ID] = true
		}
		calls = append(calls, ev.GetFunctionCalls()...)
	}
	var pending []FunctionCall
	for _, c := range calls {
		if !answered[c.ID] {
			pending = append(pending, c)
		}
	}
	return pending
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{ID: s.ID, State: make(map[string]interface{}, len(s.State)), Events: make([]Event, len(s.Events)), Created: s.Created, Updated: s.Updated, Metadata: make(map[string]string, len(s.Metadata))}
	for k, v := range s.State {
		clone.State[k] = v
	}
	copy(clone.Events, s.Events)
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// SessionStore persists sessions and their evolving state / event history.
// Get creates the session when it does not exist yet, so callers can use
// caller-chosen session identifiers without a prior Create.
type SessionStore interface {
	Create(ctx context.Context, id string) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	AppendEvent(ctx context.Context, sessionID string, event Event) error
	ApplyDelta(ctx context.Context, sessionID string, delta map[string]interface{}) error
}
