package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/backline-ai/backline/core"
)

// EventType classifies a calendar entry the way a musician thinks about it.
type EventType string

const (
	EventGig       EventType = "gig"
	EventSession   EventType = "session"
	EventRehearsal EventType = "rehearsal"
	EventLesson    EventType = "lesson"
	EventMeeting   EventType = "meeting"
	EventOther     EventType = "other"
)

// EventStatus tracks confirmation state. Cancelled events keep their row.
type EventStatus string

const (
	EventConfirmed EventStatus = "confirmed"
	EventTentative EventStatus = "tentative"
	EventCancelled EventStatus = "cancelled"
)

// Working hours bound the availability scan: slots are only offered
// between 09:00 and 22:00 local time.
const (
	workdayStartHour = 9
	workdayEndHour   = 22
)

// Event is a calendar entry: gig, session, rehearsal, lesson, or meeting.
// Gigs additionally carry load-in, soundcheck, and set times.
type Event struct {
	ID          string
	Title       string
	Type        EventType
	Venue       string
	Address     string
	Start       time.Time
	End         time.Time
	LoadIn      *time.Time
	Soundcheck  *time.Time
	SetTime     *time.Time
	PayCents    int64
	PayNotes    string
	ContactName string
	ContactInfo string
	GearNotes   string
	Status      EventStatus
	Notes       string
	Created     time.Time
	Updated     time.Time
}

// EventUpdate names the fields UpdateEvent may change; nil means keep.
type EventUpdate struct {
	Title       *string
	Venue       *string
	Address     *string
	Start       *time.Time
	End         *time.Time
	PayCents    *int64
	PayNotes    *string
	ContactName *string
	ContactInfo *string
	GearNotes   *string
	Status      *EventStatus
	Notes       *string
}

// Slot is a free window returned by FindAvailability.
type Slot struct {
	Start time.Time
	End   time.Time
}

const eventColumns = `id, title, event_type, venue, address, start_time, end_time,
	load_in_time, soundcheck_time, set_time, pay_cents, pay_notes,
	contact_name, contact_info, gear_notes, status, notes, created_at, updated_at`

// CreateEvent inserts a new calendar event. Missing ID, type, and status
// get defaults. Returns the stored event.
func (s *Store) CreateEvent(ctx context.Context, ev Event) (Event, error) {
	if ev.Title == "" {
		return Event{}, fmt.Errorf("event has no title")
	}
	if !ev.End.After(ev.Start) {
		return Event{}, fmt.Errorf("event %q ends before it starts", ev.Title)
	}
	if ev.ID == "" {
		ev.ID = core.NewID()
	}
	if ev.Type == "" {
		ev.Type = EventOther
	}
	if ev.Status == "" {
		ev.Status = EventConfirmed
	}
	now := time.Now().UTC()
	ev.Created = now
	ev.Updated = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Title, string(ev.Type), ev.Venue, ev.Address,
		formatTime(ev.Start), formatTime(ev.End),
		formatNullableTime(ev.LoadIn), formatNullableTime(ev.Soundcheck), formatNullableTime(ev.SetTime),
		ev.PayCents, ev.PayNotes, ev.ContactName, ev.ContactInfo, ev.GearNotes,
		string(ev.Status), ev.Notes, formatTime(ev.Created), formatTime(ev.Updated),
	)
	if err != nil {
		return Event{}, fmt.Errorf("insert event: %w", err)
	}
	return ev, nil
}

// GetEvent returns a single event by id.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, eventID)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "event", ID: eventID}
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// ListEvents returns events whose start falls inside [from, to), newest
// last. eventType filters when non-empty. Cancelled events are included so
// the schedule shows what changed.
func (s *Store) ListEvents(ctx context.Context, from, to time.Time, eventType EventType) ([]Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE start_time >= ? AND start_time < ?`
	args := []interface{}{formatTime(from), formatTime(to)}
	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY start_time`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// UpdateEvent applies the non-nil fields of upd and returns the updated
// event.
func (s *Store) UpdateEvent(ctx context.Context, eventID string, upd EventUpdate) (*Event, error) {
	var sets []string
	var args []interface{}
	add := func(col string, val interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.Venue != nil {
		add("venue", *upd.Venue)
	}
	if upd.Address != nil {
		add("address", *upd.Address)
	}
	if upd.Start != nil {
		add("start_time", formatTime(*upd.Start))
	}
	if upd.End != nil {
		add("end_time", formatTime(*upd.End))
	}
	if upd.PayCents != nil {
		add("pay_cents", *upd.PayCents)
	}
	if upd.PayNotes != nil {
		add("pay_notes", *upd.PayNotes)
	}
	if upd.ContactName != nil {
		add("contact_name", *upd.ContactName)
	}
	if upd.ContactInfo != nil {
		add("contact_info", *upd.ContactInfo)
	}
	if upd.GearNotes != nil {
		add("gear_notes", *upd.GearNotes)
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.Notes != nil {
		add("notes", *upd.Notes)
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("no fields to update on event %s", eventID)
	}
	add("updated_at", formatTime(time.Now()))
	args = append(args, eventID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &NotFoundError{Kind: "event", ID: eventID}
	}
	return s.GetEvent(ctx, eventID)
}

// CancelEvent flips the event status to cancelled. The row stays; cancelled
// events drop out of conflict checks and availability scans.
func (s *Store) CancelEvent(ctx context.Context, eventID string) (*Event, error) {
	status := EventCancelled
	return s.UpdateEvent(ctx, eventID, EventUpdate{Status: &status})
}

// Conflicts returns non-cancelled events overlapping [start, end), ordered
// by start time.
func (s *Store) Conflicts(ctx context.Context, start, end time.Time) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE status != ? AND start_time < ? AND end_time > ?
		ORDER BY start_time`,
		string(EventCancelled), formatTime(end), formatTime(start))
	if err != nil {
		return nil, fmt.Errorf("query conflicts: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conflicts: %w", err)
	}
	return events, nil
}

// FindAvailability walks each day in [from, to) and returns the free gaps
// of at least minDur between non-cancelled events, clamped to working
// hours. minDur defaults to two hours. Day boundaries follow the location
// of from.
func (s *Store) FindAvailability(ctx context.Context, from, to time.Time, minDur time.Duration) ([]Slot, error) {
	if minDur <= 0 {
		minDur = 2 * time.Hour
	}
	if !to.After(from) {
		return nil, fmt.Errorf("availability window ends before it starts")
	}

	busy, err := s.Conflicts(ctx, from, to)
	if err != nil {
		return nil, err
	}

	loc := from.Location()
	var slots []Slot
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	for ; day.Before(to); day = day.AddDate(0, 0, 1) {
		windowStart := time.Date(day.Year(), day.Month(), day.Day(), workdayStartHour, 0, 0, 0, loc)
		windowEnd := time.Date(day.Year(), day.Month(), day.Day(), workdayEndHour, 0, 0, 0, loc)
		if windowStart.Before(from) {
			windowStart = from
		}
		if windowEnd.After(to) {
			windowEnd = to
		}
		if !windowEnd.After(windowStart) {
			continue
		}

		cursor := windowStart
		for _, ev := range busy {
			if !ev.End.After(windowStart) || !ev.Start.Before(windowEnd) {
				continue
			}
			if ev.Start.Sub(cursor) >= minDur {
				slots = append(slots, Slot{Start: cursor, End: ev.Start})
			}
			if ev.End.After(cursor) {
				cursor = ev.End
			}
		}
		if windowEnd.Sub(cursor) >= minDur {
			slots = append(slots, Slot{Start: cursor, End: windowEnd})
		}
	}
	return slots, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var ev Event
	var evType, status, start, end, created, updated string
	var loadIn, soundcheck, setTime sql.NullString

	err := row.Scan(
		&ev.ID, &ev.Title, &evType, &ev.Venue, &ev.Address, &start, &end,
		&loadIn, &soundcheck, &setTime, &ev.PayCents, &ev.PayNotes,
		&ev.ContactName, &ev.ContactInfo, &ev.GearNotes, &status, &ev.Notes,
		&created, &updated,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan event row: %w", err)
	}

	ev.Type = EventType(evType)
	ev.Status = EventStatus(status)
	if ev.Start, err = parseTime(start); err != nil {
		return nil, err
	}
	if ev.End, err = parseTime(end); err != nil {
		return nil, err
	}
	if ev.LoadIn, err = parseNullableTime(loadIn); err != nil {
		return nil, err
	}
	if ev.Soundcheck, err = parseNullableTime(soundcheck); err != nil {
		return nil, err
	}
	if ev.SetTime, err = parseNullableTime(setTime); err != nil {
		return nil, err
	}
	if ev.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if ev.Updated, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &ev, nil
}
