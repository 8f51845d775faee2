package agents

import (
	"fmt"
	"time"

	"github.com/backline-ai/backline/agent"
	"github.com/backline-ai/backline/core"
	"github.com/backline-ai/backline/model"
	"github.com/backline-ai/backline/router"
	"github.com/backline-ai/backline/store"
	"github.com/backline-ai/backline/tool"
)

const invoicePrompt = `Your job is the artist's money paperwork: drafting invoices, tracking who has paid, and summarizing income.

Invoice numbers run INV-YYYY-NNN, sequential within the year. Amounts are dollars; line items name the work (a gig, a session block) with its date and venue. Default terms are "Due upon receipt" unless the client has negotiated terms on file.

Rules:
1. Never send an invoice yourself. create_invoice_draft prepares it; the user approves; only then call send_invoice with the approved draft id.
2. Pull line item amounts from what the user actually agreed: the gig's pay, the session rate times hours. Ask when an amount is missing rather than guessing.
3. When the user says a client paid, record it with mark_invoice_paid including how they paid.
4. income_summary answers "how am I doing": paid vs outstanding, and what is overdue.`

// NewInvoice builds the invoicing agent over the invoices tables.
func NewInvoice(llm model.Model, deps Deps, optFns ...func(o *agent.ModelAgentOptions)) Binding {
	d := router.Descriptor{
		Name:        "invoice",
		Description: "Drafts and sends invoices, records payments, and summarizes income for the year.",
		Keywords: []string{
			"invoice", "bill", "payment", "paid", "income", "owe", "owes",
			"overdue", "how much did i make",
		},
		Priority: 3,
	}
	tools := []tool.Tool{
		createInvoiceDraftTool(deps.Store),
		sendInvoiceTool(deps.Store),
		listInvoicesTool(deps.Store),
		markInvoicePaidTool(deps.Store),
		incomeSummaryTool(deps.Store),
	}
	return newAgent(d, staticPrompt("Invoice Agent", invoicePrompt), llm, deps, tools, optFns)
}

func createInvoiceDraftTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("create_invoice_draft",
		"Prepare an invoice for the user to approve. Nothing is issued until the user approves and send_invoice is called with the draft id.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"client_name":  map[string]any{"type": "string"},
				"client_email": map[string]any{"type": "string"},
				"items": map[string]any{
					"type":        "array",
					"description": "Line items: objects with description, amount (dollars), and optional event_date (YYYY-MM-DD), event_type, venue",
				},
				"due_on": map[string]any{"type": "string", "description": "YYYY-MM-DD"},
				"terms":  map[string]any{"type": "string", "description": "e.g. 'Net 15'"},
				"notes":  map[string]any{"type": "string"},
			},
			"required": []any{"client_name", "items"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			items, total, err := parseLineItems(args["items"])
			if err != nil {
				return nil, err
			}
			if _, _, err := dateArg(args, "due_on"); err != nil {
				return nil, err
			}

			// Preview only; the definitive number is assigned when the
			// approved draft is sent.
			number, err := st.NextInvoiceNumber(tc, time.Now().UTC().Year())
			if err != nil {
				return nil, err
			}

			client := stringArg(args, "client_name")
			return map[string]any{
				"draft_id":       core.NewID(),
				"summary":        fmt.Sprintf("Invoice %s to %s for %s", number, client, store.FormatCents(total)),
				"number_preview": number,
				"client_name":    client,
				"client_email":   stringArg(args, "client_email"),
				"items":          items,
				"due_on":         stringArg(args, "due_on"),
				"terms":          stringArg(args, "terms"),
				"notes":          stringArg(args, "notes"),
				"total":          store.FormatCents(total),
			}, nil
		},
		tool.WithDraftKind("invoice"))
}

func sendInvoiceTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("send_invoice",
		"Issue a previously approved invoice draft. Requires the draft id from create_invoice_draft.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"draft_id": map[string]any{"type": "string"},
			},
			"required": []any{"draft_id"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			items, _, err := parseLineItems(args["items"])
			if err != nil {
				return nil, err
			}
			lineItems := make([]store.LineItem, 0, len(items))
			for _, item := range items {
				cents, _ := item["amount_cents"].(int64)
				lineItems = append(lineItems, store.LineItem{
					Description: item["description"].(string),
					AmountCents: cents,
					EventDate:   stringArg(item, "event_date"),
					EventType:   stringArg(item, "event_type"),
					Venue:       stringArg(item, "venue"),
				})
			}

			inv := store.Invoice{
				ClientName:  stringArg(args, "client_name"),
				ClientEmail: stringArg(args, "client_email"),
				Terms:       stringArg(args, "terms"),
				Notes:       stringArg(args, "notes"),
				Items:       lineItems,
			}
			if due, ok, err := dateArg(args, "due_on"); err != nil {
				return nil, err
			} else if ok {
				inv.DueOn = &due
			}

			created, err := st.CreateInvoice(tc, inv)
			if err != nil {
				return nil, err
			}
			return map[string]any{"sent": true, "invoice": invoicePayload(created)}, nil
		},
		tool.WithCommitKind("invoice", "draft_id"))
}

func listInvoicesTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("list_invoices",
		"List invoices, newest first, with totals and payment state.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"year":   map[string]any{"type": "integer", "description": "Filter by issue year"},
				"status": map[string]any{"type": "string", "description": "sent or paid"},
			},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			invoices, err := st.ListInvoices(tc, intArg(args, "year", 0),
				store.InvoiceStatus(stringArg(args, "status")))
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, 0, len(invoices))
			for _, inv := range invoices {
				out = append(out, invoicePayload(inv))
			}
			return map[string]any{"invoices": out, "count": len(out)}, nil
		})
}

func markInvoicePaidTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("mark_invoice_paid",
		"Record that an invoice was paid.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"invoice_id":    map[string]any{"type": "string"},
				"paid_on":       map[string]any{"type": "string", "description": "YYYY-MM-DD, default today"},
				"payment_notes": map[string]any{"type": "string", "description": "How they paid, e.g. 'Venmo'"},
			},
			"required": []any{"invoice_id"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			paidOn, _, err := dateArg(args, "paid_on")
			if err != nil {
				return nil, err
			}
			inv, err := st.MarkInvoicePaid(tc, stringArg(args, "invoice_id"),
				paidOn, stringArg(args, "payment_notes"))
			if err != nil {
				return nil, err
			}
			return map[string]any{"invoice": invoicePayload(*inv)}, nil
		})
}

func incomeSummaryTool(st *store.Store) tool.Tool {
	return tool.NewFunctionTool("income_summary",
		"Summarize invoiced income: paid vs outstanding totals and what is overdue.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"year": map[string]any{"type": "integer", "description": "Limit to one year; omit for all time"},
			},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			sum, err := st.Income(tc, intArg(args, "year", 0))
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"invoiced":          store.FormatCents(sum.InvoicedCents),
				"paid":              store.FormatCents(sum.PaidCents),
				"outstanding":       store.FormatCents(sum.OutstandingCents),
				"overdue":           store.FormatCents(sum.OverdueCents),
				"invoice_count":     sum.InvoiceCount,
				"paid_count":        sum.PaidCount,
				"outstanding_count": sum.OutstandingCount,
				"overdue_count":     sum.OverdueCount,
			}, nil
		})
}

// parseLineItems normalizes the items argument into maps carrying
// amount_cents, accepting both the JSON-decoded form from the model and the
// already-normalized form out of a draft payload.
func parseLineItems(raw any) ([]map[string]any, int64, error) {
	var entries []map[string]any
	switch v := raw.(type) {
	case []map[string]any:
		entries = v
	case []any:
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, 0, fmt.Errorf("line item %v is not an object", item)
			}
			entries = append(entries, m)
		}
	default:
		return nil, 0, fmt.Errorf("items must be an array of line item objects")
	}
	if len(entries) == 0 {
		return nil, 0, fmt.Errorf("invoice needs at least one line item")
	}

	items := make([]map[string]any, 0, len(entries))
	var total int64
	for i, m := range entries {
		desc, _ := m["description"].(string)
		if desc == "" {
			return nil, 0, fmt.Errorf("line item %d has no description", i+1)
		}
		cents, ok := m["amount_cents"].(int64)
		if !ok {
			cents, ok = centsArg(m, "amount")
			if !ok {
				return nil, 0, fmt.Errorf("line item %q has no amount", desc)
			}
		}
		if cents <= 0 {
			return nil, 0, fmt.Errorf("line item %q has a non-positive amount", desc)
		}
		total += cents
		items = append(items, map[string]any{
			"description":  desc,
			"amount_cents": cents,
			"amount":       store.FormatCents(cents),
			"event_date":   stringArg(m, "event_date"),
			"event_type":   stringArg(m, "event_type"),
			"venue":        stringArg(m, "venue"),
		})
	}
	return items, total, nil
}

func invoicePayload(inv store.Invoice) map[string]any {
	p := map[string]any{
		"id":        inv.ID,
		"number":    inv.Number,
		"client":    inv.ClientName,
		"status":    string(inv.Status),
		"issued_on": inv.IssuedOn.Format("2006-01-02"),
		"terms":     inv.Terms,
		"total":     store.FormatCents(inv.TotalCents()),
	}
	if inv.ClientEmail != "" {
		p["client_email"] = inv.ClientEmail
	}
	if inv.DueOn != nil {
		p["due_on"] = inv.DueOn.Format("2006-01-02")
	}
	if inv.PaidOn != nil {
		p["paid_on"] = inv.PaidOn.Format("2006-01-02")
		p["payment_notes"] = inv.PaymentNotes
	}
	if inv.Notes != "" {
		p["notes"] = inv.Notes
	}
	items := make([]map[string]any, 0, len(inv.Items))
	for _, item := range inv.Items {
		items = append(items, map[string]any{
			"description": item.Description,
			"amount":      store.FormatCents(item.AmountCents),
			"event_date":  item.EventDate,
			"venue":       item.Venue,
		})
	}
	p["items"] = items
	return p
}
