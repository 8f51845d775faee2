package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCreateEvent(t *testing.T, s *Store, ev Event) Event {
	t.Helper()
	created, err := s.CreateEvent(context.Background(), ev)
	require.NoError(t, err)
	return created
}

func utc(day, hour int) time.Time {
	return time.Date(2026, 3, day, hour, 0, 0, 0, time.UTC)
}

// -------------------- CreateEvent Tests --------------------

func TestCreateEvent_Defaults(t *testing.T) {
	s := newTestStore(t)

	ev := mustCreateEvent(t, s, Event{
		Title: "Rehearsal with the band",
		Start: utc(20, 18),
		End:   utc(20, 21),
	})

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, EventOther, ev.Type)
	assert.Equal(t, EventConfirmed, ev.Status)
	assert.False(t, ev.Created.IsZero())
}

func TestCreateEvent_GigFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	loadIn := utc(22, 17)
	soundcheck := utc(22, 18)
	setTime := utc(22, 21)
	created := mustCreateEvent(t, s, Event{
		Title:       "The Earl - Saturday Night",
		Type:        EventGig,
		Venue:       "The Earl",
		Start:       utc(22, 20),
		End:         utc(22, 23),
		LoadIn:      &loadIn,
		Soundcheck:  &soundcheck,
		SetTime:     &setTime,
		PayCents:    40000,
		ContactName: "Sarah Chen",
	})

	got, err := s.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, EventGig, got.Type)
	require.NotNil(t, got.LoadIn)
	assert.True(t, got.LoadIn.Equal(loadIn))
	require.NotNil(t, got.SetTime)
	assert.True(t, got.SetTime.Equal(setTime))
	assert.Equal(t, int64(40000), got.PayCents)
}

func TestCreateEvent_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateEvent(ctx, Event{Start: utc(20, 18), End: utc(20, 21)})
	assert.ErrorContains(t, err, "no title")

	_, err = s.CreateEvent(ctx, Event{Title: "Backwards", Start: utc(20, 21), End: utc(20, 18)})
	assert.ErrorContains(t, err, "ends before it starts")
}

// -------------------- Get & List Tests --------------------

func TestGetEvent_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetEvent(context.Background(), "missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "event", nf.Kind)
	assert.Equal(t, "missing", nf.ID)
}

func TestListEvents_RangeAndType(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mustCreateEvent(t, s, Event{Title: "Gig", Type: EventGig, Start: utc(22, 20), End: utc(22, 23)})
	mustCreateEvent(t, s, Event{Title: "Session", Type: EventSession, Start: utc(23, 10), End: utc(23, 14)})
	mustCreateEvent(t, s, Event{Title: "Next month", Type: EventGig, Start: time.Date(2026, 4, 5, 20, 0, 0, 0, time.UTC), End: time.Date(2026, 4, 5, 23, 0, 0, 0, time.UTC)})

	march, err := s.ListEvents(ctx, utc(1, 0), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)
	require.Len(t, march, 2)
	assert.Equal(t, "Gig", march[0].Title)
	assert.Equal(t, "Session", march[1].Title)

	gigs, err := s.ListEvents(ctx, utc(1, 0), time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), EventGig)
	require.NoError(t, err)
	require.Len(t, gigs, 2)
}

// -------------------- Update & Cancel Tests --------------------

func TestUpdateEvent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ev := mustCreateEvent(t, s, Event{Title: "Gig", Start: utc(22, 20), End: utc(22, 23)})

	title := "Gig at The Earl"
	pay := int64(45000)
	got, err := s.UpdateEvent(ctx, ev.ID, EventUpdate{Title: &title, PayCents: &pay})
	require.NoError(t, err)
	assert.Equal(t, "Gig at The Earl", got.Title)
	assert.Equal(t, int64(45000), got.PayCents)

	_, err = s.UpdateEvent(ctx, ev.ID, EventUpdate{})
	assert.ErrorContains(t, err, "no fields")

	_, err = s.UpdateEvent(ctx, "missing", EventUpdate{Title: &title})
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestCancelEvent_KeepsRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ev := mustCreateEvent(t, s, Event{Title: "Gig", Start: utc(22, 20), End: utc(22, 23)})

	cancelled, err := s.CancelEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, EventCancelled, cancelled.Status)

	// The schedule still shows the cancelled event.
	events, err := s.ListEvents(ctx, utc(22, 0), utc(23, 0), "")
	require.NoError(t, err)
	require.Len(t, events, 1)

	// Conflict checks no longer see it.
	busy, err := s.Conflicts(ctx, utc(22, 20), utc(22, 23))
	require.NoError(t, err)
	assert.Empty(t, busy)
}

// -------------------- Conflict Tests --------------------

func TestConflicts_OverlapEdges(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mustCreateEvent(t, s, Event{Title: "Session", Start: utc(22, 11), End: utc(22, 13)})

	busy, err := s.Conflicts(ctx, utc(22, 12), utc(22, 14))
	require.NoError(t, err)
	require.Len(t, busy, 1)
	assert.Equal(t, "Session", busy[0].Title)

	// Back-to-back bookings do not conflict.
	busy, err = s.Conflicts(ctx, utc(22, 13), utc(22, 15))
	require.NoError(t, err)
	assert.Empty(t, busy)

	busy, err = s.Conflicts(ctx, utc(22, 9), utc(22, 11))
	require.NoError(t, err)
	assert.Empty(t, busy)
}

// -------------------- Availability Tests --------------------

func TestFindAvailability(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	mustCreateEvent(t, s, Event{Title: "Lesson block", Start: utc(22, 11), End: utc(22, 13)})
	afternoon := mustCreateEvent(t, s, Event{Title: "Session", Start: utc(22, 15), End: utc(22, 17)})

	slots, err := s.FindAvailability(ctx, utc(22, 0), utc(23, 0), 0)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.True(t, slots[0].Start.Equal(utc(22, 9)))
	assert.True(t, slots[0].End.Equal(utc(22, 11)))
	assert.True(t, slots[1].Start.Equal(utc(22, 13)))
	assert.True(t, slots[1].End.Equal(utc(22, 15)))
	assert.True(t, slots[2].Start.Equal(utc(22, 17)))
	assert.True(t, slots[2].End.Equal(utc(22, 22)))

	// A three hour ask only fits the evening.
	slots, err = s.FindAvailability(ctx, utc(22, 0), utc(23, 0), 3*time.Hour)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].Start.Equal(utc(22, 17)))

	// Cancelling the afternoon session merges the gaps around it.
	_, err = s.CancelEvent(ctx, afternoon.ID)
	require.NoError(t, err)
	slots, err = s.FindAvailability(ctx, utc(22, 0), utc(23, 0), 0)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.True(t, slots[1].Start.Equal(utc(22, 13)))
	assert.True(t, slots[1].End.Equal(utc(22, 22)))
}

func TestFindAvailability_BadWindow(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FindAvailability(context.Background(), utc(23, 0), utc(22, 0), 0)
	assert.ErrorContains(t, err, "ends before it starts")
}
