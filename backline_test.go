package backline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/memory"
	"github.com/backline-ai/backline/model"
	"github.com/backline-ai/backline/router"
	"github.com/backline-ai/backline/store"
)

// -------------------- Backline Facade Tests --------------------

func TestBackline_RequiresModel(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestBackline_ChatRoutesAndReplies(t *testing.T) {
	llm := model.NewMockModel("test-model", "mock")
	llm.EnqueueText("Friday is wide open, no gigs booked.")

	b, err := New(llm)
	require.NoError(t, err)
	defer b.Close()

	reply, err := b.Chat(context.Background(), "s1", "what gigs do I have this week")
	require.NoError(t, err)
	assert.Equal(t, "calendar", reply.Agent)
	assert.Equal(t, "Friday is wide open, no gigs booked.", reply.Text)
	assert.NotEmpty(t, reply.RunID)
	assert.Empty(t, reply.Drafts)

	sess, err := b.Session(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "calendar", sess.ActiveAgent())
}

func TestBackline_ScheduleRehearsalCreatesEvent(t *testing.T) {
	llm := model.NewMockModel("test-model", "mock")
	llm.EnqueueToolCalls(core.FunctionCall{
		Name: "create_event",
		Arguments: `{"title":"Band rehearsal","event_type":"rehearsal",` +
			`"start_time":"2026-03-27T15:00:00Z","end_time":"2026-03-27T17:00:00Z"}`,
	})
	llm.EnqueueText("Booked: Band rehearsal, Friday 3-5pm.")

	st, err := store.Open(store.InMemoryPath)
	require.NoError(t, err)
	defer st.Close()

	b, err := New(llm, func(o *Options) { o.Store = st })
	require.NoError(t, err)
	defer b.Close()

	reply, err := b.Chat(context.Background(), "s1", "schedule a rehearsal friday 3-5pm")
	require.NoError(t, err)
	assert.Equal(t, "calendar", reply.Agent)
	assert.Contains(t, reply.Text, "rehearsal")

	// The turn made exactly one tool call and the event landed in the store.
	sess, err := b.Session(context.Background(), "s1")
	require.NoError(t, err)
	calls := 0
	for _, ev := range sess.Events {
		calls += len(ev.GetFunctionCalls())
	}
	assert.Equal(t, 1, calls)

	day := time.Date(2026, 3, 27, 0, 0, 0, 0, time.UTC)
	events, err := st.ListEvents(context.Background(), day, day.Add(24*time.Hour), "")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Band rehearsal", events[0].Title)
	assert.Equal(t, store.EventRehearsal, events[0].Type)
}

func TestBackline_DraftSurfacesInReply(t *testing.T) {
	llm := model.NewMockModel("test-model", "mock")
	llm.EnqueueToolCalls(core.FunctionCall{
		Name:      "create_email_draft",
		Arguments: `{"to":["sarah@theearlatlanta.com"],"subject":"Re: March 22","body":"We're in. Confirming $400 + 15% of door."}`,
	})
	llm.EnqueueText("Drafted a reply to Sarah. Want me to send it?")

	b, err := New(llm)
	require.NoError(t, err)
	defer b.Close()

	reply, err := b.Chat(context.Background(), "s1", "reply to the email from the earl")
	require.NoError(t, err)
	assert.Equal(t, "email", reply.Agent)
	assert.Equal(t, "Drafted a reply to Sarah. Want me to send it?", reply.Text)

	require.Len(t, reply.Drafts, 1)
	assert.Equal(t, "email", reply.Drafts[0].Kind)
	assert.Equal(t, "s1", reply.Drafts[0].SessionID)
	assert.Contains(t, reply.Drafts[0].Summary, "sarah@theearlatlanta.com")
	assert.Equal(t, reply.Drafts, b.PendingDrafts("s1"))

	// Drafts are per session.
	assert.Empty(t, b.PendingDrafts("s2"))
}

func TestBackline_UnroutedMessageAsksForClarification(t *testing.T) {
	b, err := New(model.NewMockModel("test-model", "mock"))
	require.NoError(t, err)
	defer b.Close()

	reply, err := b.Chat(context.Background(), "s1", "tell me a joke")
	require.NoError(t, err)
	assert.Equal(t, "backline", reply.Agent)
	assert.Equal(t, router.ClarificationReply, reply.Text)
}

func TestBackline_AgentsListsRoutingOrder(t *testing.T) {
	b, err := New(model.NewMockModel("test-model", "mock"))
	require.NoError(t, err)
	defer b.Close()

	ds := b.Agents()
	names := make([]string, 0, len(ds))
	for _, d := range ds {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"calendar", "email", "invoice", "social", "crm"}, names)
}

func TestBackline_SeedIsIdempotent(t *testing.T) {
	st, err := store.Open(store.InMemoryPath)
	require.NoError(t, err)
	defer st.Close()
	voice := memory.NewInMemoryStore()

	b, err := New(model.NewMockModel("test-model", "mock"), func(o *Options) {
		o.Store = st
		o.Voice = voice
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Seed(ctx))
	require.NoError(t, b.Seed(ctx))

	emails, err := st.ListEmails(ctx, store.EmailInbox, false, 0)
	require.NoError(t, err)
	assert.Len(t, emails, 3)

	hits, err := voice.Search(ctx, core.VoiceScope, "ATLANTA", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1, "voice samples must not be re-seeded")

	// The store was supplied by the caller, so Close must leave it usable.
	require.NoError(t, b.Close())
	_, err = st.ListEmails(ctx, store.EmailInbox, false, 0)
	require.NoError(t, err)
}

func TestBackline_PersistSessionsSharesStore(t *testing.T) {
	st, err := store.Open(store.InMemoryPath)
	require.NoError(t, err)
	defer st.Close()

	llm := model.NewMockModel("test-model", "mock")
	llm.EnqueueText("Nothing on the calendar today.")

	b, err := New(llm, func(o *Options) {
		o.Store = st
		o.PersistSessions = true
	})
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Chat(context.Background(), "s1", "am i free tonight")
	require.NoError(t, err)

	// The turn landed in the SQLite-backed session store.
	sess, err := st.Sessions().Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, sess.Events, 2)
	assert.Equal(t, "am i free tonight", sess.Events[0].Text())
	assert.Equal(t, "Nothing on the calendar today.", sess.Events[1].Text())
}
