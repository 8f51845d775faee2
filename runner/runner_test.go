package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backline-ai/backline/core"
)

type fakeAgent struct {
	name string
	run  func(rc *core.RunContext) error
}

func (f *fakeAgent) Name() string                   { return f.name }
func (f *fakeAgent) Description() string            { return "test agent" }
func (f *fakeAgent) Start(_ *core.RunContext) error { return nil }
func (f *fakeAgent) Stop(_ *core.RunContext) error  { return nil }
func (f *fakeAgent) Run(rc *core.RunContext) error  { return f.run(rc) }

func replyAgent(name, text string) *fakeAgent {
	return &fakeAgent{name: name, run: func(rc *core.RunContext) error {
		return emitFinal(rc, name, text)
	}}
}

func emitFinal(rc *core.RunContext, author, text string) error {
	ev := core.NewMessageEvent(rc.RunID, author, text)
	complete := true
	ev.TurnComplete = &complete
	if err := rc.EmitEvent(ev); err != nil {
		return err
	}
	return rc.WaitForResume()
}

func userText(text string) core.Content {
	return core.Content{Role: core.RoleUser, Parts: []core.Part{core.TextPart{Text: text}}}
}

// drain collects all delivered events until both channels close, failing the
// test on any surfaced error.
func drain(t *testing.T, events <-chan core.Event, errs <-chan error) []core.Event {
	t.Helper()
	var out []core.Event
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			out = append(out, ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out draining run")
		}
	}
	return out
}

func waitSignal(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

// -------------------- Runner Tests --------------------

func TestRunner_DeliversAndPersists(t *testing.T) {
	r := New()

	_, events, errs, err := r.Run(context.Background(), "s1",
		replyAgent("calendar", "booked it"), userText("book a gig"))
	require.NoError(t, err)

	got := drain(t, events, errs)
	require.Len(t, got, 1)
	assert.Equal(t, "booked it", got[0].Text())
	assert.Equal(t, "calendar", got[0].Author)
	assert.Equal(t, "calendar", got[0].Branch)

	sess, err := r.Sessions().Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, sess.Events, 2)
	assert.Equal(t, core.RoleUser, sess.Events[0].Author)
	assert.Equal(t, "calendar", sess.Events[0].Branch)
	assert.Equal(t, "book a gig", sess.Events[0].Text())
	assert.Equal(t, "booked it", sess.Events[1].Text())
}

func TestRunner_RejectsBadInput(t *testing.T) {
	r := New()

	_, _, _, err := r.Run(context.Background(), "s1", nil, userText("hi"))
	require.Error(t, err)

	_, _, _, err = r.Run(context.Background(), "", replyAgent("a", "x"), userText("hi"))
	require.Error(t, err)
}

func TestRunner_SameSessionTurnsSerialize(t *testing.T) {
	r := New()
	started := make(chan struct{})
	release := make(chan struct{})

	first := &fakeAgent{name: "calendar", run: func(rc *core.RunContext) error {
		close(started)
		<-release
		return emitFinal(rc, "calendar", "first done")
	}}

	_, ev1, er1, err := r.Run(context.Background(), "s1", first, userText("turn one"))
	require.NoError(t, err)
	waitSignal(t, started, "first turn never started")

	// Issued while the first turn is mid-flight; must queue behind it.
	_, ev2, er2, err := r.Run(context.Background(), "s1",
		replyAgent("calendar", "second done"), userText("turn two"))
	require.NoError(t, err)

	close(release)
	drain(t, ev1, er1)
	drain(t, ev2, er2)

	sess, err := r.Sessions().Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, sess.Events, 4)
	texts := make([]string, 0, 4)
	for _, ev := range sess.Events {
		texts = append(texts, ev.Text())
	}
	assert.Equal(t, []string{"turn one", "first done", "turn two", "second done"}, texts)
}

func TestRunner_ConcurrencyBound(t *testing.T) {
	r := New(func(o *Options) { o.MaxConcurrentRuns = 1 })

	var active, maxActive atomic.Int32
	started := make(chan string, 2)
	release := make(chan struct{})

	gated := func(name string) *fakeAgent {
		return &fakeAgent{name: name, run: func(rc *core.RunContext) error {
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			started <- name
			<-release
			active.Add(-1)
			return emitFinal(rc, name, "done")
		}}
	}

	_, ev1, er1, err := r.Run(context.Background(), "s1", gated("a"), userText("one"))
	require.NoError(t, err)
	_, ev2, er2, err := r.Run(context.Background(), "s2", gated("b"), userText("two"))
	require.NoError(t, err)

	var firstStarted string
	select {
	case firstStarted = <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("no run acquired the slot")
	}
	close(release)
	select {
	case second := <-started:
		assert.NotEqual(t, firstStarted, second)
	case <-time.After(2 * time.Second):
		t.Fatal("queued run never started")
	}

	drain(t, ev1, er1)
	drain(t, ev2, er2)
	assert.Equal(t, int32(1), maxActive.Load(), "runs overlapped past the bound")
}

func TestRunner_CancelProducesInterruptedFinal(t *testing.T) {
	r := New()
	started := make(chan struct{})

	blocking := &fakeAgent{name: "email", run: func(rc *core.RunContext) error {
		close(started)
		<-rc.Done()
		return rc.Err()
	}}

	runID, events, errs, err := r.Run(context.Background(), "s1", blocking, userText("draft something"))
	require.NoError(t, err)
	waitSignal(t, started, "agent never started")
	require.NoError(t, r.Cancel(runID))

	got := drain(t, events, errs)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	assert.True(t, last.IsInterrupted())
	require.NotNil(t, last.ErrorCode)
	assert.Equal(t, core.ErrorCodeCancelled, *last.ErrorCode)

	// History survives the interruption.
	sess, err := r.Sessions().Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, sess.Events, 2)
	assert.Equal(t, "draft something", sess.Events[0].Text())
	assert.True(t, sess.Events[1].IsInterrupted())

	// The run is gone once its channels close.
	assert.Error(t, r.Cancel(runID))
}

func TestRunner_CancelUnknownRun(t *testing.T) {
	r := New()
	err := r.Cancel("no-such-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRunner_AgentErrorSurfaces(t *testing.T) {
	r := New()
	failing := &fakeAgent{name: "x", run: func(_ *core.RunContext) error {
		return errors.New("model exploded")
	}}

	_, events, errs, err := r.Run(context.Background(), "s1", failing, userText("hi"))
	require.NoError(t, err)

	var got error
	for e := range errs {
		got = e
	}
	require.Error(t, got)
	assert.Contains(t, got.Error(), "agent execution failed")
	assert.Contains(t, got.Error(), "model exploded")
	for range events {
	}
}

func TestRunner_StateDeltaApplied(t *testing.T) {
	r := New()
	switching := &fakeAgent{name: "social", run: func(rc *core.RunContext) error {
		rc.SetState(core.StateKeyActiveAgent, "social")
		return emitFinal(rc, "social", "posted")
	}}

	_, events, errs, err := r.Run(context.Background(), "s1", switching, userText("post it"))
	require.NoError(t, err)
	drain(t, events, errs)

	sess, err := r.Sessions().Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "social", sess.ActiveAgent())
}

func TestRunner_PartialsForwardedNotPersisted(t *testing.T) {
	r := New()
	streaming := &fakeAgent{name: "social", run: func(rc *core.RunContext) error {
		partial := core.NewMessageEvent(rc.RunID, "social", "typing")
		p := true
		partial.Partial = &p
		if err := rc.EmitEvent(partial); err != nil {
			return err
		}
		return emitFinal(rc, "social", "typed it all out")
	}}

	_, events, errs, err := r.Run(context.Background(), "s1", streaming, userText("caption this"))
	require.NoError(t, err)

	got := drain(t, events, errs)
	require.Len(t, got, 2)
	assert.True(t, got[0].IsPartial())
	assert.False(t, got[1].IsPartial())

	sess, err := r.Sessions().Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, sess.Events, 2)
	assert.Equal(t, "caption this", sess.Events[0].Text())
	assert.Equal(t, "typed it all out", sess.Events[1].Text())
}
