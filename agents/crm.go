package agents

import (
	"github.com/backline-ai/backline/agent"
	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/model"
	"github.com/backline-ai/backline/router"
	"github.com/backline-ai/backline/store"
	"github.com/backline-ai/backline/tool"
)

const crmPrompt = `Your job is the artist's working relationships: venues, studios, promoters, labels, and collaborators, and the history with each of them.

A good contact record earns money later: it holds the negotiated rate, the payment terms, and who to actually talk to. Interactions are the memory between gigs: what was discussed, what was promised, and when to follow up.

Rules:
1. When the user mentions a new venue, studio, or promoter, offer to save it with the rate and terms while they remember.
2. Log interactions after meaningful touchpoints and set a follow-up date when something was left open.
3. find_contact with one match returns the recent history too; lead with any follow-up that is due.
4. Keep notes factual and short. They are for the artist's future self.`

// NewCRM builds the contacts agent over the contacts and interactions
// tables.
func NewCRM(llm model.Model, deps Deps, optFns ...func(o *agent.ModelAgentOptions)) Binding {
	d := router.Descriptor{
		Name:        "crm",
		Description: "Keeps the artist's contacts: venues, studios, promoters, rates, terms, and interaction history.",
		Keywords: []string{
			"contact", "promoter", "venue", "studio", "follow up",
			"reach out", "who do i know", "relationship",
		},
		Priority: 5,
	}
	tools := []tool.Tool{
		addContactTool(deps.Store),
		findContactTool(deps.Store),
		listContactsTool(deps.Store),
		logInteractionTool(deps.Store),
	}
	return newAgent(d, staticPrompt("Contacts Agent", crmPrompt), llm, deps, tools, optFns)
}

func addContactTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("add_contact",
		"Save a person or organization the artist works with.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"organization": map[string]any{"type": "string", "description": "Venue, studio, or company name"},
				"person":       map[string]any{"type": "string", "description": "Who to talk to"},
				"email":        map[string]any{"type": "string"},
				"phone":        map[string]any{"type": "string"},
				"role":         map[string]any{"type": "string", "description": "venue, studio, promoter, label, collaborator, or other"},
				"tags":         map[string]any{"type": "array", "description": "Free tags, e.g. ['atlanta', 'recurring']"},
				"notes":        map[string]any{"type": "string"},
				"rate":         map[string]any{"type": "string", "description": "Negotiated rate as agreed, e.g. '$400 guarantee + 15% door'"},
				"terms":        map[string]any{"type": "string", "description": "Payment terms, e.g. 'Net 15'"},
			},
			"required": []any{"organization"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			saved, err := st.AddContact(tc, store.Contact{
				Organization: stringArg(args, "organization"),
				Person:       stringArg(args, "person"),
				Email:        stringArg(args, "email"),
				Phone:        stringArg(args, "phone"),
				Role:         stringArg(args, "role"),
				Tags:         stringsArg(args, "tags"),
				Notes:        stringArg(args, "notes"),
				Rate:         stringArg(args, "rate"),
				Terms:        stringArg(args, "terms"),
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"contact": contactPayload(saved)}, nil
		})
}

func findContactTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("find_contact",
		"Find contacts by name, organization, or address fragment. A single match includes its recent interaction history.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"role":  map[string]any{"type": "string", "description": "Filter: venue, studio, promoter, label, collaborator, other"},
			},
			"required": []any{"query"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			contacts, err := st.FindContacts(tc, stringArg(args, "query"), stringArg(args, "role"))
			if err != nil {
				return nil, err
			}
			result := map[string]any{"contacts": contactPayloads(contacts), "count": len(contacts)}
			if len(contacts) == 1 {
				interactions, err := st.ListInteractions(tc, contacts[0].ID, 0)
				if err != nil {
					return nil, err
				}
				result["interactions"] = interactionPayloads(interactions)
			}
			return result, nil
		})
}

func listContactsTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("list_contacts",
		"List every contact, most recently contacted first.",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			contacts, err := st.ListContacts(tc)
			if err != nil {
				return nil, err
			}
			return map[string]any{"contacts": contactPayloads(contacts), "count": len(contacts)}, nil
		})
}

func logInteractionTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("log_interaction",
		"Record a touchpoint with a contact: a call, an email exchange, a session debrief. Moves their last-contact date forward.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"contact_id": map[string]any{"type": "string"},
				"kind":       map[string]any{"type": "string", "description": "call, email_note, session_note, or general"},
				"content":    map[string]any{"type": "string", "description": "What happened, factual and short"},
				"date":       map[string]any{"type": "string", "description": "YYYY-MM-DD, default today"},
				"follow_up":  map[string]any{"type": "string", "description": "YYYY-MM-DD to circle back, if something was left open"},
			},
			"required": []any{"contact_id", "content"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			logged, err := st.LogInteraction(tc, store.Interaction{
				ContactID: stringArg(args, "contact_id"),
				Kind:      stringArg(args, "kind"),
				Content:   stringArg(args, "content"),
				Date:      stringArg(args, "date"),
				FollowUp:  stringArg(args, "follow_up"),
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{"interaction": interactionPayload(logged)}, nil
		})
}

func contactPayload(c store.Contact) map[string]any {
	p := map[string]any{
		"id":           c.ID,
		"organization": c.Organization,
		"role":         c.Role,
		"last_contact": c.LastContact,
	}
	if c.Person != "" {
		p["person"] = c.Person
	}
	if c.Email != "" {
		p["email"] = c.Email
	}
	if c.Phone != "" {
		p["phone"] = c.Phone
	}
	if len(c.Tags) > 0 {
		p["tags"] = c.Tags
	}
	if c.Notes != "" {
		p["notes"] = c.Notes
	}
	if c.Rate != "" {
		p["rate"] = c.Rate
	}
	if c.Terms != "" {
		p["terms"] = c.Terms
	}
	return p
}

func contactPayloads(contacts []store.Contact) []map[string]any {
	out := make([]map[string]any, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, contactPayload(c))
	}
	return out
}

func interactionPayload(in store.Interaction) map[string]any {
	p := map[string]any{
		"id":      in.ID,
		"kind":    in.Kind,
		"date":    in.Date,
		"content": in.Content,
	}
	if in.FollowUp != "" {
		p["follow_up"] = in.FollowUp
	}
	return p
}

func interactionPayloads(interactions []store.Interaction) []map[string]any {
	out := make([]map[string]any, 0, len(interactions))
	for _, in := range interactions {
		out = append(out, interactionPayload(in))
	}
	return out
}
