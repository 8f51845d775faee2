package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/internal/util"
	"github.com/backline-ai/backline/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	// Properties present
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	// Required only includes non-pointer, non-omitempty exported fields
	req, _ := schema["required"].([]string)
	if req == nil { // reflection may produce []any
		ifaceReq, _ := schema["required"].([]any)
		for _, v := range ifaceReq {
			req = append(req, v.(string))
		}
	}
	assert.ElementsMatch(t, []string{"a"}, req)
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		// Use []any to mirror possible JSON decoded schema shape
		"required": []any{"x"},
	}

	// Success
	err := util.ValidateParameters(map[string]any{"x": 5}, schema)
	assert.NoError(t, err)

	// Missing required
	err = util.ValidateParameters(map[string]any{}, schema)
	assert.Error(t, err)
	if vErr, ok := err.(*ValidationError); ok {
		assert.Equal(t, "x", vErr.Field)
	} else {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	// Wrong type
	err = util.ValidateParameters(map[string]any{"x": "not-int"}, schema)
	assert.Error(t, err)
	if vErr, ok := err.(*ValidationError); ok {
		assert.Contains(t, vErr.Message, "expected type integer")
	} else {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	// Required as []string (schemas built in Go) is enforced the same way
	schema["required"] = []string{"x"}
	err = util.ValidateParameters(map[string]any{}, schema)
	assert.Error(t, err)
}

// -------------------- Test Fixtures --------------------

type memSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]*core.Session{}}
}

func (s *memSessionStore) Create(_ context.Context, id string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	newSess := core.NewSession(id)
	s.sessions[id] = newSess
	return newSess.Clone(), nil
}

func (s *memSessionStore) Get(ctx context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return s.Create(ctx, id)
	}
	return sess.Clone(), nil
}

func (s *memSessionStore) AppendEvent(_ context.Context, id string, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		s.sessions[id] = core.NewSession(id)
	}
	s.sessions[id].AddEvent(ev)
	return nil
}

func (s *memSessionStore) ApplyDelta(_ context.Context, id string, delta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		s.sessions[id] = core.NewSession(id)
	}
	s.sessions[id].ApplyStateDelta(delta)
	return nil
}

func newTestRunContext() *core.RunContext {
	store := newMemSessionStore()
	sess, _ := store.Create(context.Background(), "sess-1")
	emit := make(chan core.Event, 10)
	resume := make(chan struct{}, 1)
	return core.NewRunContext(context.Background(), core.RunContextConfig{
		SessionID: "sess-1",
		RunID:     "run-1",
		Agent:     core.AgentInfo{Name: "Agent", Type: "test"},
		Branch:    "Agent",
		Emit:      emit,
		Resume:    resume,
		Sessions:  store,
		Session:   sess,
		Logger:    logging.NoOpLogger{},
	})
}

func newTestToolContext(callID string) *core.ToolContext {
	return core.NewToolContext(context.Background(), newTestRunContext(), callID)
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		a := args["a"].(float64)
		b := args["b"].(float64)
		return a + b, nil
	})

	tc := newTestToolContext("fc1")
	result, err := sumTool.Call(tc, map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_DraftCommitMarkers(t *testing.T) {
	plain := NewFunctionTool("plain", "No gating", map[string]any{"type": "object"}, nil)
	assert.Empty(t, plain.DraftKind())
	kind, idArg := plain.CommitKind()
	assert.Empty(t, kind)
	assert.Empty(t, idArg)

	draft := NewFunctionTool("draft", "Draft op", map[string]any{"type": "object"}, nil, WithDraftKind("email"))
	assert.Equal(t, "email", draft.DraftKind())

	commit := NewFunctionTool("commit", "Commit op", map[string]any{"type": "object"}, nil, WithCommitKind("email", "draft_id"))
	kind, idArg = commit.CommitKind()
	assert.Equal(t, "email", kind)
	assert.Equal(t, "draft_id", idArg)
}

// -------------------- Registry Tests --------------------

func echoTool(name string) Tool {
	return NewFunctionTool(name, "Echo input", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"msg": map[string]any{"type": "string"},
		},
		"required": []any{"msg"},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["msg"], nil
	})
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	first := echoTool("echo")
	require.NoError(t, reg.Register(first))

	err := reg.Register(echoTool("echo"))
	require.Error(t, err)
	var dup *DuplicateError
	assert.True(t, errors.As(err, &dup))
	assert.Equal(t, "echo", dup.Tool)

	// Rejected registration leaves the registry unchanged
	assert.Equal(t, 1, reg.Len())
	got, err := reg.Resolve("echo")
	require.NoError(t, err)
	assert.Same(t, first, got.(*FunctionTool))
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Resolve("missing")
	require.Error(t, err)
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.Equal(t, "missing", nf.Tool)
}

func TestRegistry_NamesPreserveOrder(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("first")))
	require.NoError(t, reg.Register(echoTool("second")))
	require.NoError(t, reg.Register(echoTool("third")))
	assert.Equal(t, []string{"first", "second", "third"}, reg.Names())
}

func TestRegistry_SpecsMatchTools(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("echo")))
	require.NoError(t, reg.Register(echoTool("relay")))

	specs := reg.Specs()
	require.Len(t, specs, 2)
	assert.Equal(t, "function", specs[0].Type)
	assert.Equal(t, "echo", specs[0].Function.Name)
	assert.Equal(t, "relay", specs[1].Function.Name)
	assert.NotEmpty(t, specs[0].Function.Parameters)
}

func TestRegistry_InvokeSuccess(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("echo")))

	tc := newTestToolContext("fc-ok")
	resp := reg.Invoke(tc, core.FunctionCall{ID: "fc-ok", Name: "echo", Arguments: `{"msg":"hi"}`})
	assert.False(t, resp.Failed())
	assert.Equal(t, "hi", resp.Response)
	assert.Equal(t, "fc-ok", resp.ID)
	assert.Equal(t, "echo", resp.Name)
}

func TestRegistry_InvokeUnknownTool(t *testing.T) {
	reg := NewRegistry()
	tc := newTestToolContext("fc-unk")
	resp := reg.Invoke(tc, core.FunctionCall{ID: "fc-unk", Name: "ghost", Arguments: "{}"})
	assert.True(t, resp.Failed())
	assert.Contains(t, resp.Error, CodeNotFound)
	assert.Contains(t, resp.Error, "ghost")
}

func TestRegistry_InvokeValidationFailure(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("echo")))

	// Missing required argument
	tc := newTestToolContext("fc-val")
	resp := reg.Invoke(tc, core.FunctionCall{ID: "fc-val", Name: "echo", Arguments: "{}"})
	assert.True(t, resp.Failed())
	assert.Contains(t, resp.Error, CodeValidation)

	// Malformed JSON arguments
	tc = newTestToolContext("fc-json")
	resp = reg.Invoke(tc, core.FunctionCall{ID: "fc-json", Name: "echo", Arguments: `{"msg":`})
	assert.True(t, resp.Failed())
	assert.Contains(t, resp.Error, CodeValidation)
}

func TestRegistry_InvokeHandlerError(t *testing.T) {
	reg := NewRegistry()
	failing := NewFunctionTool("fail", "Always fails", map[string]any{"type": "object"}, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, reg.Register(failing))

	tc := newTestToolContext("fc-err")
	resp := reg.Invoke(tc, core.FunctionCall{ID: "fc-err", Name: "fail", Arguments: "{}"})
	assert.True(t, resp.Failed())
	assert.Contains(t, resp.Error, CodeExecution)
	assert.Contains(t, resp.Error, "boom")
}

func TestRegistry_InvokeHandlerPanic(t *testing.T) {
	reg := NewRegistry()
	var released []string
	panicking := NewFunctionTool("explode", "Panics", map[string]any{"type": "object"}, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		tc.Cleanup(func() { released = append(released, "handle") })
		panic("kaboom")
	})
	require.NoError(t, reg.Register(panicking))

	tc := newTestToolContext("fc-panic")
	resp := reg.Invoke(tc, core.FunctionCall{ID: "fc-panic", Name: "explode", Arguments: "{}"})
	assert.True(t, resp.Failed())
	assert.Contains(t, resp.Error, CodeExecution)
	assert.Contains(t, resp.Error, "kaboom")
	// Scoped resources are released even when the handler panics
	assert.Equal(t, []string{"handle"}, released)
}

func TestRegistry_CleanupOrderLIFO(t *testing.T) {
	reg := NewRegistry()
	var released []string
	acquiring := NewFunctionTool("acquire", "Registers cleanups", map[string]any{"type": "object"}, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		tc.Cleanup(func() { released = append(released, "first") })
		tc.Cleanup(func() { released = append(released, "second") })
		return "ok", nil
	})
	require.NoError(t, reg.Register(acquiring))

	tc := newTestToolContext("fc-clean")
	resp := reg.Invoke(tc, core.FunctionCall{ID: "fc-clean", Name: "acquire", Arguments: "{}"})
	assert.False(t, resp.Failed())
	assert.Equal(t, []string{"second", "first"}, released)
}

func TestRegistry_InvokeTimeout(t *testing.T) {
	reg := NewRegistry()
	slow := NewFunctionTool("slow", "Respects ctx", map[string]any{"type": "object"}, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		<-tc.Done()
		return nil, tc.Err()
	})
	require.NoError(t, reg.Register(slow))

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	tc := core.NewToolContext(ctx, newTestRunContext(), "fc-slow")
	resp := reg.Invoke(tc, core.FunctionCall{ID: "fc-slow", Name: "slow", Arguments: "{}"})
	assert.True(t, resp.Failed())
	assert.Contains(t, resp.Error, CodeTimeout)
}

// -------------------- Draft / Approval Tests --------------------

func draftEmailTool() Tool {
	return NewFunctionTool("create_email_draft", "Prepare an email draft", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to":   map[string]any{"type": "string"},
			"body": map[string]any{"type": "string"},
		},
		"required": []any{"to", "body"},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return map[string]any{
			"draft_id": "draft-1",
			"summary":  "Email to " + args["to"].(string),
			"to":       args["to"],
			"body":     args["body"],
		}, nil
	}, WithDraftKind("email"))
}

func sendEmailTool(sent *[]map[string]any, fail *bool) Tool {
	return NewFunctionTool("send_email", "Send an approved draft", map[string]any{
		"type": "object",
		"properties": map[string]any{
			"draft_id": map[string]any{"type": "string"},
		},
		"required": []any{"draft_id"},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		if fail != nil && *fail {
			return nil, errors.New("smtp unavailable")
		}
		*sent = append(*sent, args)
		return map[string]any{"status": "sent"}, nil
	}, WithCommitKind("email", "draft_id"))
}

func TestRegistry_DraftThenCommit(t *testing.T) {
	appr := NewApprovals()
	reg := NewRegistry(WithApprovals(appr))
	var sent []map[string]any
	require.NoError(t, reg.Register(draftEmailTool()))
	require.NoError(t, reg.Register(sendEmailTool(&sent, nil)))

	// Draft records a pending approval
	tc := newTestToolContext("fc-d1")
	resp := reg.Invoke(tc, core.FunctionCall{ID: "fc-d1", Name: "create_email_draft", Arguments: `{"to":"venue@club.com","body":"Hello"}`})
	require.False(t, resp.Failed())
	pending := appr.Pending("sess-1")
	require.Len(t, pending, 1)
	assert.Equal(t, "draft-1", pending[0].ID)
	assert.Equal(t, "email", pending[0].Kind)
	assert.Contains(t, pending[0].Summary, "venue@club.com")

	// Commit with the matching id succeeds and consumes the draft
	tc = newTestToolContext("fc-s1")
	resp = reg.Invoke(tc, core.FunctionCall{ID: "fc-s1", Name: "send_email", Arguments: `{"draft_id":"draft-1"}`})
	require.False(t, resp.Failed())
	assert.Empty(t, appr.Pending("sess-1"))

	// Draft payload is merged into the commit handler's args
	require.Len(t, sent, 1)
	assert.Equal(t, "venue@club.com", sent[0]["to"])
	assert.Equal(t, "Hello", sent[0]["body"])

	// Second commit of the same id fails: the draft is consumed
	tc = newTestToolContext("fc-s2")
	resp = reg.Invoke(tc, core.FunctionCall{ID: "fc-s2", Name: "send_email", Arguments: `{"draft_id":"draft-1"}`})
	assert.True(t, resp.Failed())
	assert.Contains(t, resp.Error, CodeApproval)
}

func TestRegistry_CommitWithoutDraft(t *testing.T) {
	reg := NewRegistry()
	var sent []map[string]any
	require.NoError(t, reg.Register(sendEmailTool(&sent, nil)))

	tc := newTestToolContext("fc-nodr")
	resp := reg.Invoke(tc, core.FunctionCall{ID: "fc-nodr", Name: "send_email", Arguments: `{"draft_id":"draft-9"}`})
	assert.True(t, resp.Failed())
	assert.Contains(t, resp.Error, CodeApproval)
	assert.Empty(t, sent)
}

func TestRegistry_NewerDraftReplacesOlder(t *testing.T) {
	appr := NewApprovals()
	reg := NewRegistry(WithApprovals(appr))
	var sent []map[string]any
	counter := 0
	drafting := NewFunctionTool("draft_post", "Prepare a post", map[string]any{"type": "object"}, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		counter++
		return map[string]any{"draft_id": fmt.Sprintf("post-%d", counter)}, nil
	}, WithDraftKind("post"))
	committing := NewFunctionTool("publish_post", "Publish an approved post", map[string]any{
		"type":       "object",
		"properties": map[string]any{"draft_id": map[string]any{"type": "string"}},
		"required":   []any{"draft_id"},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		sent = append(sent, args)
		return "published", nil
	}, WithCommitKind("post", "draft_id"))
	require.NoError(t, reg.Register(drafting))
	require.NoError(t, reg.Register(committing))

	reg.Invoke(newTestToolContext("d1"), core.FunctionCall{ID: "d1", Name: "draft_post", Arguments: "{}"})
	reg.Invoke(newTestToolContext("d2"), core.FunctionCall{ID: "d2", Name: "draft_post", Arguments: "{}"})

	// Only the newest draft is claimable
	require.Len(t, appr.Pending("sess-1"), 1)
	resp := reg.Invoke(newTestToolContext("c1"), core.FunctionCall{ID: "c1", Name: "publish_post", Arguments: `{"draft_id":"post-1"}`})
	assert.True(t, resp.Failed())
	assert.Contains(t, resp.Error, CodeApproval)

	resp = reg.Invoke(newTestToolContext("c2"), core.FunctionCall{ID: "c2", Name: "publish_post", Arguments: `{"draft_id":"post-2"}`})
	assert.False(t, resp.Failed())
}

func TestRegistry_FailedCommitRestoresDraft(t *testing.T) {
	appr := NewApprovals()
	reg := NewRegistry(WithApprovals(appr))
	var sent []map[string]any
	fail := true
	require.NoError(t, reg.Register(draftEmailTool()))
	require.NoError(t, reg.Register(sendEmailTool(&sent, &fail)))

	reg.Invoke(newTestToolContext("d1"), core.FunctionCall{ID: "d1", Name: "create_email_draft", Arguments: `{"to":"a@b.c","body":"x"}`})

	resp := reg.Invoke(newTestToolContext("s1"), core.FunctionCall{ID: "s1", Name: "send_email", Arguments: `{"draft_id":"draft-1"}`})
	assert.True(t, resp.Failed())
	assert.Contains(t, resp.Error, CodeExecution)

	// The draft survives the failed send and can be retried
	require.Len(t, appr.Pending("sess-1"), 1)
	fail = false
	resp = reg.Invoke(newTestToolContext("s2"), core.FunctionCall{ID: "s2", Name: "send_email", Arguments: `{"draft_id":"draft-1"}`})
	assert.False(t, resp.Failed())
	assert.Empty(t, appr.Pending("sess-1"))
}

// -------------------- Approvals Ledger Tests --------------------

func TestApprovals_SessionsAreIndependent(t *testing.T) {
	appr := NewApprovals()
	appr.Put(Draft{ID: "d1", Kind: "email", SessionID: "s1"})
	appr.Put(Draft{ID: "d2", Kind: "email", SessionID: "s2"})

	_, err := appr.Take("s1", "email", "d2")
	assert.Error(t, err)

	d, err := appr.Take("s1", "email", "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", d.ID)
	assert.Len(t, appr.Pending("s2"), 1)
}

func TestApprovals_RestoreKeepsNewerDraft(t *testing.T) {
	appr := NewApprovals()
	base := time.Now()
	appr.Put(Draft{ID: "old", Kind: "invoice", SessionID: "s1", Created: base})
	claimed, err := appr.Take("s1", "invoice", "old")
	require.NoError(t, err)

	// A newer draft lands while the commit is in flight and fails
	appr.Put(Draft{ID: "new", Kind: "invoice", SessionID: "s1", Created: base.Add(time.Second)})
	appr.Restore(claimed)

	pending := appr.Pending("s1")
	require.Len(t, pending, 1)
	assert.Equal(t, "new", pending[0].ID)
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")

	plain := &ToolError{Tool: "demo", Message: "no code"}
	assert.False(t, strings.Contains(plain.Error(), "["))
}
