package agents

import (
	"fmt"
	"strings"
	"time"

	"github.com/backline-ai/backline/agent"
	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/model"
	"github.com/backline-ai/backline/router"
	"github.com/backline-ai/backline/store"
	"github.com/backline-ai/backline/tool"
)

const emailPrompt = `Your job is the artist's inbox: triaging booking inquiries, drafting replies, and keeping correspondence moving without losing a gig.

You understand the business side: a booking inquiry names a date, a venue, and money terms (guarantee, door split, session rate). Surface those when summarizing a message. Use search_contacts to resolve a name to an address before drafting.

Rules:
1. Never send anything yourself. create_email_draft prepares the message; the user approves it; only then call send_email with the approved draft id.
2. When drafting replies, match the sender's register but keep the artist's interests first: confirm money terms in writing, don't commit to holds without checking the calendar.
3. When listing the inbox, lead with unread booking inquiries.
4. Archive what is handled so the inbox stays short.`

// NewEmail builds the inbox agent. Contact lookups resolve against the crm
// contacts table.
func NewEmail(llm model.Model, deps Deps, optFns ...func(o *agent.ModelAgentOptions)) Binding {
	d := router.Descriptor{
		Name:        "email",
		Description: "Reads and triages the inbox, drafts replies, and sends mail after the user approves a draft.",
		Keywords: []string{
			"email", "inbox", "reply", "unread", "archive", "sender",
			"write back", "mail",
		},
		Priority: 2,
	}
	tools := []tool.Tool{
		listEmailsTool(deps.Store),
		readEmailTool(deps.Store),
		searchEmailsTool(deps.Store),
		searchContactsTool(deps.Store),
		createEmailDraftTool(deps.Store),
		sendEmailTool(deps.Store),
		archiveEmailTool(deps.Store),
	}
	return newAgent(d, staticPrompt("Email Agent", emailPrompt), llm, deps, tools, optFns)
}

func listEmailsTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("list_emails",
		"List messages in a folder, newest first, with snippets. Use read_email for the full body.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status":      map[string]any{"type": "string", "description": "inbox (default), archived, or sent"},
				"unread_only": map[string]any{"type": "boolean"},
				"limit":       map[string]any{"type": "integer", "description": "Default 20"},
			},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			emails, err := st.ListEmails(tc,
				store.EmailStatus(stringArg(args, "status")),
				boolArg(args, "unread_only"),
				intArg(args, "limit", 0))
			if err != nil {
				return nil, err
			}
			return map[string]any{"emails": emailPayloads(emails), "count": len(emails)}, nil
		})
}

func readEmailTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("read_email",
		"Read a message's full body and mark it read.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"email_id": map[string]any{"type": "string"},
			},
			"required": []any{"email_id"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			id := stringArg(args, "email_id")
			em, err := st.GetEmail(tc, id)
			if err != nil {
				return nil, err
			}
			if em.Unread {
				if err := st.MarkEmailRead(tc, id); err != nil {
					return nil, err
				}
			}
			p := emailPayload(*em)
			p["body"] = em.Body
			p["to"] = em.To
			if len(em.Cc) > 0 {
				p["cc"] = em.Cc
			}
			return map[string]any{"email": p}, nil
		})
}

func searchEmailsTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("search_emails",
		"Search subject, sender, and body across every folder.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string"},
				"limit": map[string]any{"type": "integer", "description": "Default 10"},
			},
			"required": []any{"query"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			emails, err := st.SearchEmails(tc, stringArg(args, "query"), intArg(args, "limit", 0))
			if err != nil {
				return nil, err
			}
			return map[string]any{"emails": emailPayloads(emails), "count": len(emails)}, nil
		})
}

func searchContactsTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("search_contacts",
		"Look up people the artist works with to resolve a name to an email address.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Name, organization, or address fragment"},
				"role":  map[string]any{"type": "string", "description": "Filter: venue, studio, promoter, label, collaborator, other"},
			},
			"required": []any{"query"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			contacts, err := st.FindContacts(tc, stringArg(args, "query"), stringArg(args, "role"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"contacts": contactPayloads(contacts), "count": len(contacts)}, nil
		})
}

func createEmailDraftTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("create_email_draft",
		"Prepare an email for the user to approve. Nothing is sent until the user approves and send_email is called with the draft id.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"to":                map[string]any{"type": "array", "description": "Recipient addresses"},
				"subject":           map[string]any{"type": "string"},
				"body":              map[string]any{"type": "string"},
				"cc":                map[string]any{"type": "array"},
				"reply_to_email_id": map[string]any{"type": "string", "description": "Id of the message being answered, keeps the thread"},
			},
			"required": []any{"to", "subject", "body"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			to := stringsArg(args, "to")
			if len(to) == 0 {
				return nil, fmt.Errorf("draft has no recipients")
			}
			subject := stringArg(args, "subject")

			threadID := ""
			if replyTo := stringArg(args, "reply_to_email_id"); replyTo != "" {
				orig, err := st.GetEmail(tc, replyTo)
				if err != nil {
					return nil, err
				}
				threadID = orig.ThreadID
				if subject == "" {
					subject = "Re: " + strings.TrimPrefix(orig.Subject, "Re: ")
				}
			}

			return map[string]any{
				"draft_id":  core.NewID(),
				"summary":   fmt.Sprintf("Email to %s: %q", strings.Join(to, ", "), subject),
				"to":        to,
				"cc":        stringsArg(args, "cc"),
				"subject":   subject,
				"body":      stringArg(args, "body"),
				"thread_id": threadID,
			}, nil
		},
		tool.WithDraftKind("email"))
}

func sendEmailTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("send_email",
		"Send a previously approved email draft. Requires the draft id from create_email_draft.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"draft_id": map[string]any{"type": "string"},
			},
			"required": []any{"draft_id"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			sent, err := st.SaveEmail(tc, store.Email{
				ThreadID: stringArg(args, "thread_id"),
				Subject:  stringArg(args, "subject"),
				Sender:   "me",
				To:       stringsArg(args, "to"),
				Cc:       stringsArg(args, "cc"),
				Body:     stringArg(args, "body"),
				Status:   store.EmailSent,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"sent":     true,
				"email_id": sent.ID,
				"to":       sent.To,
				"subject":  sent.Subject,
			}, nil
		},
		tool.WithCommitKind("email", "draft_id"))
}

func archiveEmailTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("archive_email",
		"Move a handled message out of the inbox. The message stays searchable.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"email_id": map[string]any{"type": "string"},
			},
			"required": []any{"email_id"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			em, err := st.ArchiveEmail(tc, stringArg(args, "email_id"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"email": emailPayload(*em)}, nil
		})
}

func emailPayload(em store.Email) map[string]any {
	return map[string]any{
		"id":      em.ID,
		"from":    em.Sender,
		"subject": em.Subject,
		"date":    em.Date.Format(time.RFC3339),
		"snippet": em.Snippet,
		"unread":  em.Unread,
		"status":  string(em.Status),
	}
}

func emailPayloads(emails []store.Email) []map[string]any {
	out := make([]map[string]any, 0, len(emails))
	for _, em := range emails {
		out = append(out, emailPayload(em))
	}
	return out
}
