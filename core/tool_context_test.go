package core

import (
	"context"
	"testing"
)

func newTestToolContext(mem MemoryStore) (*ToolContext, *RunContext) {
	rc := newTestRunContext(nil, nil, mem)
	tc := NewToolContext(context.Background(), rc, "call-1")
	return tc, rc
}

func TestToolContext_Accessors(t *testing.T) {
	tc, _ := newTestToolContext(nil)
	if tc.SessionID() != "sess-1" {
		t.Fatalf("SessionID = %q", tc.SessionID())
	}
	if tc.RunID() != "run-1" {
		t.Fatalf("RunID = %q", tc.RunID())
	}
	if tc.CallID() != "call-1" {
		t.Fatalf("CallID = %q", tc.CallID())
	}
	if tc.AgentName() != "calendar" {
		t.Fatalf("AgentName = %q", tc.AgentName())
	}
	if !tc.IsValid() {
		t.Fatal("Fresh tool context must be valid")
	}
}

func TestToolContext_SetStateRecordsTwice(t *testing.T) {
	tc, rc := newTestToolContext(nil)
	tc.SetState("draft_count", 3)

	if v, ok := rc.GetState("draft_count"); !ok || v != 3 {
		t.Fatalf("Mutation must be visible on the run context, got %v (%v)", v, ok)
	}

	ev := NewEvent("run-1", "calendar")
	tc.InternalApplyActions(&ev)
	if ev.Actions.StateDelta["draft_count"] != 3 {
		t.Fatalf("Mutation must land in the result event actions: %+v", ev.Actions)
	}
}

func TestToolContext_GetStateReadsRunState(t *testing.T) {
	tc, rc := newTestToolContext(nil)
	rc.Session.SetState("tz", "America/New_York")
	rc.SetState("pending", true)

	if v, ok := tc.GetState("tz"); !ok || v != "America/New_York" {
		t.Fatalf("Session state not visible: %v", v)
	}
	if v, ok := tc.GetState("pending"); !ok || v != true {
		t.Fatalf("Staged run state not visible: %v", v)
	}
}

func TestToolContext_CleanupLIFO(t *testing.T) {
	tc, _ := newTestToolContext(nil)

	var order []int
	tc.Cleanup(func() { order = append(order, 1) })
	tc.Cleanup(func() { order = append(order, 2) })
	tc.Cleanup(func() { order = append(order, 3) })
	tc.Cleanup(nil)

	tc.InternalRunCleanups()
	if len(order) != 3 || order[0] != 3 || order[1] != 2 || order[2] != 1 {
		t.Fatalf("Cleanups must run last registered first, got %v", order)
	}
	if tc.IsValid() {
		t.Fatal("Context must be invalidated after cleanups")
	}

	tc.InternalRunCleanups()
	if len(order) != 3 {
		t.Fatalf("Second cleanup pass must be a no-op, got %v", order)
	}
}

func TestToolContext_SetStateIgnoredAfterInvalidation(t *testing.T) {
	tc, rc := newTestToolContext(nil)
	tc.InternalRunCleanups()

	tc.SetState("stale", "write")
	if _, ok := rc.GetState("stale"); ok {
		t.Fatal("Invalidated context must not mutate run state")
	}

	ev := NewEvent("run-1", "calendar")
	tc.InternalApplyActions(&ev)
	if len(ev.Actions.StateDelta) != 0 {
		t.Fatalf("No actions expected after invalidation: %+v", ev.Actions)
	}
}

func TestToolContext_IsValidRequiresIdentifiers(t *testing.T) {
	rc := newTestRunContext(nil, nil, nil)
	tc := NewToolContext(context.Background(), rc, "")
	if tc.IsValid() {
		t.Fatal("Context without a call id must not be valid")
	}
}

func TestToolContext_MemoryAccess(t *testing.T) {
	tc, _ := newTestToolContext(nil)
	if tc.Memory() != nil {
		t.Fatal("Expected nil memory store")
	}
	if _, err := tc.SearchMemory("q", 3); err == nil {
		t.Fatal("Expected error searching without a memory store")
	}
	if _, err := tc.StoreMemory("note", nil); err == nil {
		t.Fatal("Expected error storing without a memory store")
	}

	mem := &stubMemoryStore{results: []SearchResult{{ID: "1", Content: "sample"}}}
	tc2, _ := newTestToolContext(mem)
	if tc2.Memory() == nil {
		t.Fatal("Expected the configured memory store")
	}

	res, err := tc2.SearchMemory("voice", 5)
	if err != nil || len(res) != 1 {
		t.Fatalf("SearchMemory: %v / %v", res, err)
	}
	if mem.scopes[0] != "sess-1" {
		t.Fatalf("Search must use the session scope, got %q", mem.scopes[0])
	}

	id, err := tc2.StoreMemory("remember this", map[string]any{"source": "test"})
	if err != nil || id == "" {
		t.Fatalf("StoreMemory: %q / %v", id, err)
	}
}

func TestToolContext_InternalApplyActionsMerges(t *testing.T) {
	tc, _ := newTestToolContext(nil)
	tc.SetState("a", 1)

	ev := NewEvent("run-1", "calendar")
	ev.Actions.StateDelta = map[string]any{"existing": true}
	tc.InternalApplyActions(&ev)

	if ev.Actions.StateDelta["existing"] != true || ev.Actions.StateDelta["a"] != 1 {
		t.Fatalf("Actions must merge, not replace: %+v", ev.Actions.StateDelta)
	}
}
