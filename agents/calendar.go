package agents

import (
	"time"

	"github.com/backline-ai/backline/agent"
	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/model"
	"github.com/backline-ai/backline/router"
	"github.com/backline-ai/backline/store"
	"github.com/backline-ai/backline/tool"
)

const calendarPrompt = `Your job is the artist's schedule: creating events, surfacing conflicts, finding open time, and keeping the calendar organized.

You know the difference between a gig, a recording session, a rehearsal, a lesson, and a meeting:
- Gigs have load-in, soundcheck, and set times. Load-in is typically 2-4 hours before the set. Always ask about pay.
- Sessions are booked in blocks, usually 4-8 hours. Ask about the studio and the rate.
- Rehearsals are usually 2-3 hours. Lessons are usually weekly.

Rules:
1. create_event refuses when the slot overlaps an existing booking and reports the conflicts. Present them clearly and offer options; only retry with allow_conflict after the user chooses to double-book.
2. When the user gives partial info, fill in reasonable defaults and confirm: a gig without an end runs 4 hours after the set time, a session block is 4 hours, a rehearsal 2.5.
3. After creating an event, show a clean one-line summary.
4. When listing events, order them chronologically and group by day.
5. If the user mentions pay, always capture it. It feeds the invoices later.`

// NewCalendar builds the scheduling agent over the events table.
func NewCalendar(llm model.Model, deps Deps, optFns ...func(o *agent.ModelAgentOptions)) Binding {
	d := router.Descriptor{
		Name:        "calendar",
		Description: "Manages the artist's schedule: gigs, sessions, rehearsals, lessons, conflicts, and open time.",
		Keywords: []string{
			"calendar", "schedule", "gig", "rehearsal", "session", "soundcheck",
			"load-in", "availability", "available", "free time", "booking",
			"book", "reschedule", "conflict", "am i free",
		},
		Priority: 1,
	}
	tools := []tool.Tool{
		createEventTool(deps.Store),
		listEventsTool(deps.Store),
		findAvailabilityTool(deps.Store),
		updateEventTool(deps.Store),
		cancelEventTool(deps.Store),
	}
	return newAgent(d, staticPrompt("Calendar Agent", calendarPrompt), llm, deps, tools, optFns)
}

func createEventTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("create_event",
		"Create a calendar event. Refuses and reports conflicts when the slot overlaps an existing booking unless allow_conflict is true.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":           map[string]any{"type": "string", "description": "Event title, e.g. 'Live at The Earl'"},
				"event_type":      map[string]any{"type": "string", "description": "gig, session, rehearsal, lesson, meeting, or other"},
				"venue":           map[string]any{"type": "string", "description": "Venue or studio name"},
				"address":         map[string]any{"type": "string"},
				"start_time":      map[string]any{"type": "string", "description": "ISO 8601 start"},
				"end_time":        map[string]any{"type": "string", "description": "ISO 8601 end"},
				"load_in_time":    map[string]any{"type": "string", "description": "Gigs only"},
				"soundcheck_time": map[string]any{"type": "string", "description": "Gigs only"},
				"set_time":        map[string]any{"type": "string", "description": "Gigs only"},
				"pay":             map[string]any{"type": "number", "description": "Pay in dollars"},
				"pay_notes":       map[string]any{"type": "string", "description": "e.g. '$400 guarantee + 15% of door'"},
				"contact_name":    map[string]any{"type": "string"},
				"contact_info":    map[string]any{"type": "string"},
				"gear_notes":      map[string]any{"type": "string", "description": "Backline, what to bring"},
				"notes":           map[string]any{"type": "string"},
				"allow_conflict":  map[string]any{"type": "boolean", "description": "Book even though the slot overlaps an existing event"},
			},
			"required": []any{"title", "start_time", "end_time"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			start, _, err := timeArg(args, "start_time")
			if err != nil {
				return nil, err
			}
			end, _, err := timeArg(args, "end_time")
			if err != nil {
				return nil, err
			}

			busy, err := st.Conflicts(tc, start, end)
			if err != nil {
				return nil, err
			}
			if len(busy) > 0 && !boolArg(args, "allow_conflict") {
				return map[string]any{
					"created":   false,
					"conflicts": eventPayloads(busy),
					"hint":      "the slot overlaps the events above; ask the user, then retry with allow_conflict true to double-book",
				}, nil
			}

			ev := store.Event{
				Title:       stringArg(args, "title"),
				Type:        store.EventType(stringArg(args, "event_type")),
				Venue:       stringArg(args, "venue"),
				Address:     stringArg(args, "address"),
				Start:       start,
				End:         end,
				PayNotes:    stringArg(args, "pay_notes"),
				ContactName: stringArg(args, "contact_name"),
				ContactInfo: stringArg(args, "contact_info"),
				GearNotes:   stringArg(args, "gear_notes"),
				Notes:       stringArg(args, "notes"),
			}
			if cents, ok := centsArg(args, "pay"); ok {
				ev.PayCents = cents
			}
			for key, dst := range map[string]**time.Time{
				"load_in_time":    &ev.LoadIn,
				"soundcheck_time": &ev.Soundcheck,
				"set_time":        &ev.SetTime,
			} {
				t, ok, err := timeArg(args, key)
				if err != nil {
					return nil, err
				}
				if ok {
					*dst = &t
				}
			}

			created, err := st.CreateEvent(tc, ev)
			if err != nil {
				return nil, err
			}
			result := map[string]any{"created": true, "event": eventPayload(created)}
			if len(busy) > 0 {
				result["conflicts"] = eventPayloads(busy)
			}
			return result, nil
		})
}

func listEventsTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("list_events",
		"List calendar events starting inside a date range, oldest first. Includes cancelled events so the schedule shows what changed.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"from":       map[string]any{"type": "string", "description": "ISO 8601 range start (inclusive)"},
				"to":         map[string]any{"type": "string", "description": "ISO 8601 range end (exclusive)"},
				"event_type": map[string]any{"type": "string", "description": "Filter: gig, session, rehearsal, lesson, meeting, other"},
			},
			"required": []any{"from", "to"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			from, _, err := timeArg(args, "from")
			if err != nil {
				return nil, err
			}
			to, _, err := timeArg(args, "to")
			if err != nil {
				return nil, err
			}
			events, err := st.ListEvents(tc, from, to, store.EventType(stringArg(args, "event_type")))
			if err != nil {
				return nil, err
			}
			return map[string]any{"events": eventPayloads(events), "count": len(events)}, nil
		})
}

func findAvailabilityTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("find_availability",
		"Find free gaps between bookings within working hours (9am-10pm). Returns slots of at least the requested duration.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"from":             map[string]any{"type": "string", "description": "ISO 8601 window start"},
				"to":               map[string]any{"type": "string", "description": "ISO 8601 window end"},
				"duration_minutes": map[string]any{"type": "integer", "description": "Minimum slot length, default 120"},
			},
			"required": []any{"from", "to"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			from, _, err := timeArg(args, "from")
			if err != nil {
				return nil, err
			}
			to, _, err := timeArg(args, "to")
			if err != nil {
				return nil, err
			}
			minDur := time.Duration(intArg(args, "duration_minutes", 0)) * time.Minute
			slots, err := st.FindAvailability(tc, from, to, minDur)
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, 0, len(slots))
			for _, slot := range slots {
				out = append(out, map[string]any{
					"start": slot.Start.Format(time.RFC3339),
					"end":   slot.End.Format(time.RFC3339),
				})
			}
			return map[string]any{"slots": out, "count": len(out)}, nil
		})
}

func updateEventTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("update_event",
		"Update fields of an existing event. Only the provided fields change.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"event_id":     map[string]any{"type": "string"},
				"title":        map[string]any{"type": "string"},
				"venue":        map[string]any{"type": "string"},
				"address":      map[string]any{"type": "string"},
				"start_time":   map[string]any{"type": "string", "description": "ISO 8601"},
				"end_time":     map[string]any{"type": "string", "description": "ISO 8601"},
				"pay":          map[string]any{"type": "number", "description": "Pay in dollars"},
				"pay_notes":    map[string]any{"type": "string"},
				"contact_name": map[string]any{"type": "string"},
				"contact_info": map[string]any{"type": "string"},
				"gear_notes":   map[string]any{"type": "string"},
				"status":       map[string]any{"type": "string", "description": "confirmed, tentative, or cancelled"},
				"notes":        map[string]any{"type": "string"},
			},
			"required": []any{"event_id"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			upd := store.EventUpdate{}
			setString := func(key string, dst **string) {
				if v, ok := args[key].(string); ok {
					*dst = &v
				}
			}
			setString("title", &upd.Title)
			setString("venue", &upd.Venue)
			setString("address", &upd.Address)
			setString("pay_notes", &upd.PayNotes)
			setString("contact_name", &upd.ContactName)
			setString("contact_info", &upd.ContactInfo)
			setString("gear_notes", &upd.GearNotes)
			setString("notes", &upd.Notes)
			if v, ok := args["status"].(string); ok {
				status := store.EventStatus(v)
				upd.Status = &status
			}
			if start, ok, err := timeArg(args, "start_time"); err != nil {
				return nil, err
			} else if ok {
				upd.Start = &start
			}
			if end, ok, err := timeArg(args, "end_time"); err != nil {
				return nil, err
			} else if ok {
				upd.End = &end
			}
			if cents, ok := centsArg(args, "pay"); ok {
				upd.PayCents = &cents
			}

			ev, err := st.UpdateEvent(tc, stringArg(args, "event_id"), upd)
			if err != nil {
				return nil, err
			}
			return map[string]any{"event": eventPayload(*ev)}, nil
		})
}

func cancelEventTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("cancel_event",
		"Cancel an event. The entry stays on the calendar marked cancelled and stops blocking the slot.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"event_id": map[string]any{"type": "string"},
			},
			"required": []any{"event_id"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			ev, err := st.CancelEvent(tc, stringArg(args, "event_id"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"event": eventPayload(*ev)}, nil
		})
}

// eventPayload renders an event for the model: ISO timestamps, dollar pay,
// and only the gig fields that are set.
func eventPayload(ev store.Event) map[string]any {
	p := map[string]any{
		"id":     ev.ID,
		"title":  ev.Title,
		"type":   string(ev.Type),
		"start":  ev.Start.Format(time.RFC3339),
		"end":    ev.End.Format(time.RFC3339),
		"status": string(ev.Status),
	}
	if ev.Venue != "" {
		p["venue"] = ev.Venue
	}
	if ev.Address != "" {
		p["address"] = ev.Address
	}
	if ev.LoadIn != nil {
		p["load_in"] = ev.LoadIn.Format(time.RFC3339)
	}
	if ev.Soundcheck != nil {
		p["soundcheck"] = ev.Soundcheck.Format(time.RFC3339)
	}
	if ev.SetTime != nil {
		p["set_time"] = ev.SetTime.Format(time.RFC3339)
	}
	if ev.PayCents != 0 {
		p["pay"] = store.FormatCents(ev.PayCents)
	}
	if ev.PayNotes != "" {
		p["pay_notes"] = ev.PayNotes
	}
	if ev.ContactName != "" {
		p["contact"] = ev.ContactName
	}
	if ev.ContactInfo != "" {
		p["contact_info"] = ev.ContactInfo
	}
	if ev.GearNotes != "" {
		p["gear_notes"] = ev.GearNotes
	}
	if ev.Notes != "" {
		p["notes"] = ev.Notes
	}
	return p
}

func eventPayloads(events []store.Event) []map[string]any {
	out := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		out = append(out, eventPayload(ev))
	}
	return out
}
