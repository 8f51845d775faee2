package tool

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Draft records a prepared outward-facing action (an email, an invoice, a
// social post) awaiting explicit user approval. Drafts are scoped to the
// session that produced them and keyed by kind; preparing a new draft of the
// same kind replaces the previous one.
type Draft struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	SessionID string         `json:"session_id"`
	Summary   string         `json:"summary,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Created   time.Time      `json:"created"`
}

// Approvals is the in-memory ledger gating commit operations on prior drafts.
// A single ledger is shared by every agent registry in an engine so pending
// drafts can be inspected across agents. Safe for concurrent use.
type Approvals struct {
	mu     sync.Mutex
	drafts map[string]map[string]Draft // sessionID -> kind -> draft
}

// NewApprovals creates an empty approval ledger.
func NewApprovals() *Approvals {
	return &Approvals{drafts: map[string]map[string]Draft{}}
}

// Put records a draft, replacing any existing draft of the same kind in the
// same session. The newest draft is the only one a commit can claim.
func (a *Approvals) Put(d Draft) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d.Created.IsZero() {
		d.Created = time.Now()
	}
	byKind, ok := a.drafts[d.SessionID]
	if !ok {
		byKind = map[string]Draft{}
		a.drafts[d.SessionID] = byKind
	}
	byKind[d.Kind] = d
}

// Take claims the draft for a commit, removing it from the ledger. It fails
// when no draft of that kind exists in the session or when the supplied id
// does not match the current draft (for example after a newer draft replaced
// it).
func (a *Approvals) Take(sessionID, kind, id string) (Draft, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	byKind := a.drafts[sessionID]
	d, ok := byKind[kind]
	if !ok {
		return Draft{}, fmt.Errorf("no pending %s draft in this session", kind)
	}
	if d.ID != id {
		return Draft{}, fmt.Errorf("draft %q not found; the current %s draft is %q", id, kind, d.ID)
	}
	delete(byKind, kind)
	return d, nil
}

// Restore returns a claimed draft to the ledger after a failed commit, unless
// a newer draft of the same kind has been recorded in the meantime.
func (a *Approvals) Restore(d Draft) {
	a.mu.Lock()
	defer a.mu.Unlock()
	byKind, ok := a.drafts[d.SessionID]
	if !ok {
		byKind = map[string]Draft{}
		a.drafts[d.SessionID] = byKind
	}
	if cur, ok := byKind[d.Kind]; ok && cur.Created.After(d.Created) {
		return
	}
	byKind[d.Kind] = d
}

// Pending lists the session's outstanding drafts ordered by creation time.
func (a *Approvals) Pending(sessionID string) []Draft {
	a.mu.Lock()
	defer a.mu.Unlock()
	byKind := a.drafts[sessionID]
	out := make([]Draft, 0, len(byKind))
	for _, d := range byKind {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Clear drops every draft belonging to the session.
func (a *Approvals) Clear(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.drafts, sessionID)
}
