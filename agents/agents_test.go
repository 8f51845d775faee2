package agents

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backline-ai/backline/agent"
	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/logging"
	"github.com/backline-ai/backline/memory"
	"github.com/backline-ai/backline/model"
	"github.com/backline-ai/backline/session"
	"github.com/backline-ai/backline/store"
	"github.com/backline-ai/backline/tool"
)

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	st, err := store.Open(store.InMemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return Deps{
		Store:     st,
		Voice:     memory.NewInMemoryStore(),
		Approvals: tool.NewApprovals(),
	}
}

func seededDeps(t *testing.T) Deps {
	t.Helper()
	deps := newTestDeps(t)
	require.NoError(t, deps.Store.Seed(context.Background()))
	for _, sample := range store.SeedVoiceSamples() {
		_, err := deps.Voice.Store(context.Background(), core.VoiceScope,
			sample.Text, map[string]any{"category": sample.Category})
		require.NoError(t, err)
	}
	return deps
}

func newRunContext(sessionID, agentName, userText string) *core.RunContext {
	sessions := session.NewInMemoryStore()
	sess, _ := sessions.Create(context.Background(), sessionID)
	emit := make(chan core.Event, 16)
	resume := make(chan struct{}, 1)
	return core.NewRunContext(context.Background(), core.RunContextConfig{
		SessionID:   sessionID,
		RunID:       "run-1",
		Agent:       core.AgentInfo{Name: agentName, Type: "model"},
		Branch:      agentName,
		UserContent: core.Content{Role: core.RoleUser, Parts: []core.Part{core.TextPart{Text: userText}}},
		Emit:        emit,
		Resume:      resume,
		Sessions:    sessions,
		Session:     sess,
		Logger:      logging.NoOpLogger{},
	})
}

// invoke runs one tool call through the agent's registry, the same path the
// flow takes, so validation and draft gating apply.
func invoke(t *testing.T, a *agent.ModelAgent, sessionID, name string, args map[string]any) core.FunctionResponse {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	tc := core.NewToolContext(context.Background(), newRunContext(sessionID, a.Name(), "hello"), "fc-1")
	return a.GetRegistry().Invoke(tc, core.FunctionCall{ID: "fc-1", Name: name, Arguments: string(raw)})
}

func responseMap(t *testing.T, resp core.FunctionResponse) map[string]any {
	t.Helper()
	require.False(t, resp.Failed(), "tool failed: %s", resp.Error)
	m, ok := resp.Response.(map[string]any)
	require.True(t, ok, "response is %T, want map", resp.Response)
	return m
}

func testLLM() *model.MockModel {
	return model.NewMockModel("test-model", "mock")
}

// -------------------- Construction Tests --------------------

func TestAll_BuildsFiveAgents(t *testing.T) {
	bindings := All(testLLM(), newTestDeps(t))
	require.Len(t, bindings, 5)

	names := make([]string, 0, len(bindings))
	for _, b := range bindings {
		names = append(names, b.Descriptor.Name)
		assert.Equal(t, b.Descriptor.Name, b.Agent.Name())
		assert.NotEmpty(t, b.Descriptor.Description)
		assert.NotEmpty(t, b.Descriptor.Keywords)
	}
	assert.Equal(t, []string{"calendar", "email", "invoice", "social", "crm"}, names)

	// Priorities follow the fixed tie-break order.
	for i := 1; i < len(bindings); i++ {
		assert.Greater(t, bindings[i].Descriptor.Priority, bindings[i-1].Descriptor.Priority)
	}
}

func TestAgents_ShareApprovalLedger(t *testing.T) {
	deps := newTestDeps(t)
	bindings := All(testLLM(), deps)
	for _, b := range bindings {
		assert.Same(t, deps.Approvals, b.Agent.GetRegistry().Approvals())
	}
}

func TestAgentOptions_ApplyLast(t *testing.T) {
	deps := newTestDeps(t)
	b := NewCalendar(testLLM(), deps, func(o *agent.ModelAgentOptions) {
		o.MaxHistoryMessages = 7
	})
	assert.Equal(t, 7, b.Agent.MaxHistoryMessages())
	assert.True(t, b.Agent.HasTool("create_event"))
}

// -------------------- Argument Helper Tests --------------------

func TestCentsArg(t *testing.T) {
	cents, ok := centsArg(map[string]any{"pay": 400.50}, "pay")
	require.True(t, ok)
	assert.Equal(t, int64(40050), cents)

	cents, ok = centsArg(map[string]any{"pay": float64(75)}, "pay")
	require.True(t, ok)
	assert.Equal(t, int64(7500), cents)

	_, ok = centsArg(map[string]any{}, "pay")
	assert.False(t, ok)
}

func TestTimeArg(t *testing.T) {
	ts, ok, err := timeArg(map[string]any{"start": "2026-03-22T20:00:00Z"}, "start")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 20, ts.UTC().Hour())

	// Naive timestamps and bare dates are accepted as UTC.
	_, ok, err = timeArg(map[string]any{"start": "2026-03-22T20:00:00"}, "start")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = timeArg(map[string]any{"start": "2026-03-22"}, "start")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = timeArg(map[string]any{}, "start")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = timeArg(map[string]any{"start": "next thursday"}, "start")
	assert.ErrorContains(t, err, "not an ISO 8601")
}

func TestStringsArg(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, stringsArg(map[string]any{"to": []any{"a", "b"}}, "to"))
	assert.Equal(t, []string{"a"}, stringsArg(map[string]any{"to": []string{"a"}}, "to"))
	assert.Nil(t, stringsArg(map[string]any{}, "to"))
}
