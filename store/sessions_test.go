package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backline-ai/backline/core"
)

// -------------------- SessionStore Tests --------------------

func TestSessionStore_GetCreatesLazily(t *testing.T) {
	ctx := context.Background()
	sessions := newTestStore(t).Sessions()

	sess, err := sessions.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess.ID)
	assert.Empty(t, sess.Events)
	assert.Empty(t, sess.State)
}

func TestSessionStore_AppendEvent(t *testing.T) {
	ctx := context.Background()
	sessions := newTestStore(t).Sessions()

	user := core.NewUserMessageEvent("run-1", "book a rehearsal")
	user.Branch = "calendar"
	require.NoError(t, sessions.AppendEvent(ctx, "sess-1", user))

	reply := core.NewMessageEvent("run-1", "calendar", "Done, Thursday at 7pm.")
	reply.Branch = "calendar"
	require.NoError(t, sessions.AppendEvent(ctx, "sess-1", reply))

	sess, err := sessions.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, sess.Events, 2)
	assert.Equal(t, "book a rehearsal", sess.Events[0].Text())
	assert.Equal(t, core.RoleUser, sess.Events[0].Content.Role)
	assert.Equal(t, "calendar", sess.Events[1].Author)
}

func TestSessionStore_FunctionCallsSurviveReload(t *testing.T) {
	ctx := context.Background()
	sessions := newTestStore(t).Sessions()

	request := core.NewEvent("run-1", "calendar")
	request.Branch = "calendar"
	request.Content = &core.Content{
		Role: core.RoleAssistant,
		Parts: []core.Part{
			core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        "call-1",
				Name:      "create_event",
				Arguments: `{"title":"Rehearsal"}`,
			}},
		},
	}
	require.NoError(t, sessions.AppendEvent(ctx, "sess-1", request))

	result := core.NewFunctionResponseEvent("run-1", "calendar", core.FunctionResponse{
		ID:       "call-1",
		Name:     "create_event",
		Response: map[string]any{"id": "ev-1"},
	})
	result.Branch = "calendar"
	require.NoError(t, sessions.AppendEvent(ctx, "sess-1", result))

	sess, err := sessions.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, sess.Events, 2)

	calls := sess.Events[0].GetFunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "call-1", calls[0].ID)
	assert.Equal(t, "create_event", calls[0].Name)
	assert.JSONEq(t, `{"title":"Rehearsal"}`, calls[0].Arguments)

	responses := sess.Events[1].GetFunctionResponses()
	require.Len(t, responses, 1)
	assert.Equal(t, "call-1", responses[0].ID)
	assert.False(t, responses[0].Failed())
}

func TestSessionStore_ApplyDelta(t *testing.T) {
	ctx := context.Background()
	sessions := newTestStore(t).Sessions()

	require.NoError(t, sessions.ApplyDelta(ctx, "sess-1", map[string]interface{}{
		core.StateKeyActiveAgent: "calendar",
		"rounds":                 float64(3),
	}))
	require.NoError(t, sessions.ApplyDelta(ctx, "sess-1", map[string]interface{}{
		core.StateKeyActiveAgent: "social",
	}))
	require.NoError(t, sessions.ApplyDelta(ctx, "sess-1", nil))

	sess, err := sessions.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "social", sess.ActiveAgent())
	assert.Equal(t, float64(3), sess.State["rounds"])
}

func TestSessionStore_CreateResets(t *testing.T) {
	ctx := context.Background()
	sessions := newTestStore(t).Sessions()

	require.NoError(t, sessions.AppendEvent(ctx, "sess-1",
		core.NewUserMessageEvent("run-1", "hello")))
	require.NoError(t, sessions.ApplyDelta(ctx, "sess-1",
		map[string]interface{}{core.StateKeyActiveAgent: "email"}))

	fresh, err := sessions.Create(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, fresh.Events)

	sess, err := sessions.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, sess.Events)
	assert.Empty(t, sess.ActiveAgent())
}

func TestSessionStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "backline.db")

	s, err := Open(path)
	require.NoError(t, err)
	sessions := s.Sessions()
	require.NoError(t, sessions.AppendEvent(ctx, "sess-1",
		core.NewUserMessageEvent("run-1", "first")))
	require.NoError(t, sessions.AppendEvent(ctx, "sess-1",
		core.NewMessageEvent("run-1", "email", "second")))
	require.NoError(t, sessions.ApplyDelta(ctx, "sess-1",
		map[string]interface{}{core.StateKeyActiveAgent: "email"}))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	sess, err := reopened.Sessions().Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, sess.Events, 2)
	assert.Equal(t, "first", sess.Events[0].Text())
	assert.Equal(t, "second", sess.Events[1].Text())
	assert.Equal(t, "email", sess.ActiveAgent())
}
