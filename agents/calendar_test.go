package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backline-ai/backline/store"
	"github.com/backline-ai/backline/tool"
)

func mustSeedEvent(t *testing.T, deps Deps, title string, start, end time.Time) store.Event {
	t.Helper()
	ev, err := deps.Store.CreateEvent(context.Background(), store.Event{
		Title: title,
		Type:  store.EventGig,
		Start: start,
		End:   end,
	})
	require.NoError(t, err)
	return ev
}

// -------------------- Calendar Agent Tests --------------------

func TestCalendar_CreateEvent(t *testing.T) {
	deps := newTestDeps(t)
	b := NewCalendar(testLLM(), deps)

	resp := invoke(t, b.Agent, "s1", "create_event", map[string]any{
		"title":      "Live at The Earl",
		"event_type": "gig",
		"venue":      "The Earl",
		"start_time": "2026-03-22T21:30:00Z",
		"end_time":   "2026-03-23T01:00:00Z",
		"set_time":   "2026-03-22T21:30:00Z",
		"pay":        400.0,
	})

	m := responseMap(t, resp)
	assert.Equal(t, true, m["created"])
	ev, ok := m["event"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Live at The Earl", ev["title"])
	assert.Equal(t, "gig", ev["type"])
	assert.Equal(t, "$400.00", ev["pay"])

	stored, err := deps.Store.GetEvent(context.Background(), ev["id"].(string))
	require.NoError(t, err)
	assert.Equal(t, int64(40000), stored.PayCents)
	require.NotNil(t, stored.SetTime)
	assert.Equal(t, 21, stored.SetTime.UTC().Hour())
}

func TestCalendar_CreateEventRefusesConflict(t *testing.T) {
	deps := newTestDeps(t)
	b := NewCalendar(testLLM(), deps)
	day := time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC)
	mustSeedEvent(t, deps, "Studio session", day.Add(14*time.Hour), day.Add(18*time.Hour))

	resp := invoke(t, b.Agent, "s1", "create_event", map[string]any{
		"title":      "Wedding gig",
		"start_time": "2026-03-22T16:00:00Z",
		"end_time":   "2026-03-22T20:00:00Z",
	})

	m := responseMap(t, resp)
	assert.Equal(t, false, m["created"])
	conflicts, ok := m["conflicts"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "Studio session", conflicts[0]["title"])
	assert.Contains(t, m["hint"], "allow_conflict")

	// Nothing was written.
	events, err := deps.Store.ListEvents(context.Background(), day, day.Add(48*time.Hour), "")
	require.NoError(t, err)
	assert.Len(t, events, 1)

	// The user chose to double-book.
	resp = invoke(t, b.Agent, "s1", "create_event", map[string]any{
		"title":          "Wedding gig",
		"start_time":     "2026-03-22T16:00:00Z",
		"end_time":       "2026-03-22T20:00:00Z",
		"allow_conflict": true,
	})
	m = responseMap(t, resp)
	assert.Equal(t, true, m["created"])
	assert.Contains(t, m, "conflicts")

	events, err = deps.Store.ListEvents(context.Background(), day, day.Add(48*time.Hour), "")
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestCalendar_CreateEventMissingRequired(t *testing.T) {
	deps := newTestDeps(t)
	b := NewCalendar(testLLM(), deps)

	resp := invoke(t, b.Agent, "s1", "create_event", map[string]any{
		"title": "Rehearsal",
	})
	require.True(t, resp.Failed())
	assert.Contains(t, resp.Error, tool.CodeValidation)
	assert.Contains(t, resp.Error, "start_time")
}

func TestCalendar_CreateEventBadTimestamp(t *testing.T) {
	deps := newTestDeps(t)
	b := NewCalendar(testLLM(), deps)

	resp := invoke(t, b.Agent, "s1", "create_event", map[string]any{
		"title":      "Rehearsal",
		"start_time": "next thursday",
		"end_time":   "2026-03-22T20:00:00Z",
	})
	require.True(t, resp.Failed())
	assert.Contains(t, resp.Error, tool.CodeExecution)
	assert.Contains(t, resp.Error, "not an ISO 8601")
}

func TestCalendar_ListEvents(t *testing.T) {
	deps := newTestDeps(t)
	b := NewCalendar(testLLM(), deps)
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	mustSeedEvent(t, deps, "First", day.Add(10*time.Hour), day.Add(12*time.Hour))
	mustSeedEvent(t, deps, "Second", day.Add(20*time.Hour), day.Add(23*time.Hour))

	resp := invoke(t, b.Agent, "s1", "list_events", map[string]any{
		"from": "2026-03-10",
		"to":   "2026-03-11",
	})
	m := responseMap(t, resp)
	assert.Equal(t, 2, m["count"])
	events, ok := m["events"].([]map[string]any)
	require.True(t, ok)
	assert.Equal(t, "First", events[0]["title"])
	assert.Equal(t, "Second", events[1]["title"])
}

func TestCalendar_FindAvailability(t *testing.T) {
	deps := newTestDeps(t)
	b := NewCalendar(testLLM(), deps)
	day := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	mustSeedEvent(t, deps, "Morning lesson", day.Add(11*time.Hour), day.Add(13*time.Hour))
	mustSeedEvent(t, deps, "Afternoon session", day.Add(15*time.Hour), day.Add(17*time.Hour))

	resp := invoke(t, b.Agent, "s1", "find_availability", map[string]any{
		"from":             "2026-03-12T09:00:00Z",
		"to":               "2026-03-12T22:00:00Z",
		"duration_minutes": 180,
	})
	m := responseMap(t, resp)
	assert.Equal(t, 1, m["count"])
	slots, ok := m["slots"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, slots, 1)
	assert.Equal(t, "2026-03-12T17:00:00Z", slots[0]["start"])
	assert.Equal(t, "2026-03-12T22:00:00Z", slots[0]["end"])
}

func TestCalendar_UpdateEvent(t *testing.T) {
	deps := newTestDeps(t)
	b := NewCalendar(testLLM(), deps)
	day := time.Date(2026, 3, 13, 0, 0, 0, 0, time.UTC)
	ev := mustSeedEvent(t, deps, "Club date", day.Add(18*time.Hour), day.Add(21*time.Hour))

	resp := invoke(t, b.Agent, "s1", "update_event", map[string]any{
		"event_id": ev.ID,
		"venue":    "The Blue Room",
		"pay":      250.0,
		"status":   "tentative",
	})
	m := responseMap(t, resp)
	updated, ok := m["event"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Club date", updated["title"])
	assert.Equal(t, "The Blue Room", updated["venue"])
	assert.Equal(t, "$250.00", updated["pay"])
	assert.Equal(t, "tentative", updated["status"])

	stored, err := deps.Store.GetEvent(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), stored.PayCents)
	assert.True(t, stored.Start.Equal(day.Add(18*time.Hour)))
}

func TestCalendar_UpdateEventUnknownID(t *testing.T) {
	deps := newTestDeps(t)
	b := NewCalendar(testLLM(), deps)

	resp := invoke(t, b.Agent, "s1", "update_event", map[string]any{
		"event_id": "ev-missing",
		"venue":    "Nowhere",
	})
	require.True(t, resp.Failed())
	assert.Contains(t, resp.Error, "not found")
}

func TestCalendar_CancelEvent(t *testing.T) {
	deps := newTestDeps(t)
	b := NewCalendar(testLLM(), deps)
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	ev := mustSeedEvent(t, deps, "Maybe gig", day.Add(20*time.Hour), day.Add(23*time.Hour))

	resp := invoke(t, b.Agent, "s1", "cancel_event", map[string]any{"event_id": ev.ID})
	m := responseMap(t, resp)
	cancelled, ok := m["event"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "cancelled", cancelled["status"])

	// A cancelled event stops blocking the slot.
	busy, err := deps.Store.Conflicts(context.Background(), day.Add(20*time.Hour), day.Add(23*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, busy)
}
