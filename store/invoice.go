package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/backline-ai/backline/core"
)

// InvoiceStatus tracks where an invoice is in its life. Invoices land in
// the store already sent; drafts live in the approval ledger until then.
type InvoiceStatus string

const (
	InvoiceSent InvoiceStatus = "sent"
	InvoicePaid InvoiceStatus = "paid"
)

// LineItem is one billable entry on an invoice. Amounts are cents.
type LineItem struct {
	ID          string
	Description string
	AmountCents int64
	EventDate   string
	EventType   string
	Venue       string
}

// Invoice is a bill sent to a client, numbered INV-YYYY-NNN with the
// sequence restarting each year.
type Invoice struct {
	ID           string
	Number       string
	ClientName   string
	ClientEmail  string
	Status       InvoiceStatus
	IssuedOn     time.Time
	DueOn        *time.Time
	Terms        string
	Notes        string
	PaidOn       *time.Time
	PaymentNotes string
	Items        []LineItem
	Created      time.Time
}

// TotalCents sums the line items.
func (inv Invoice) TotalCents() int64 {
	var total int64
	for _, item := range inv.Items {
		total += item.AmountCents
	}
	return total
}

// IncomeSummary aggregates invoice totals, splitting paid from
// outstanding. Overdue counts the outstanding invoices past their due date.
type IncomeSummary struct {
	InvoicedCents    int64
	PaidCents        int64
	OutstandingCents int64
	OverdueCents     int64
	InvoiceCount     int
	PaidCount        int
	OutstandingCount int
	OverdueCount     int
}

// NextInvoiceNumber returns the next free INV-YYYY-NNN for the year.
func (s *Store) NextInvoiceNumber(ctx context.Context, year int) (string, error) {
	prefix := fmt.Sprintf("INV-%d-", year)
	var last string
	err := s.db.QueryRowContext(ctx, `
		SELECT invoice_number FROM invoices
		WHERE invoice_number LIKE ?
		ORDER BY invoice_number DESC LIMIT 1`,
		prefix+"%").Scan(&last)

	seq := 1
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return "", fmt.Errorf("last invoice number: %w", err)
	default:
		if n, convErr := strconv.Atoi(strings.TrimPrefix(last, prefix)); convErr == nil {
			seq = n + 1
		}
	}
	return fmt.Sprintf("%s%03d", prefix, seq), nil
}

// CreateInvoice inserts an invoice and its line items. A missing number is
// assigned from the issue year's sequence; a missing issue date defaults to
// today. Returns the stored invoice.
func (s *Store) CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	if inv.ClientName == "" {
		return Invoice{}, fmt.Errorf("invoice has no client name")
	}
	if len(inv.Items) == 0 {
		return Invoice{}, fmt.Errorf("invoice for %q has no line items", inv.ClientName)
	}
	if inv.ID == "" {
		inv.ID = core.NewID()
	}
	if inv.IssuedOn.IsZero() {
		inv.IssuedOn = time.Now().UTC()
	}
	if inv.Number == "" {
		number, err := s.NextInvoiceNumber(ctx, inv.IssuedOn.Year())
		if err != nil {
			return Invoice{}, err
		}
		inv.Number = number
	}
	if inv.Status == "" {
		inv.Status = InvoiceSent
	}
	if inv.Terms == "" {
		inv.Terms = "Due upon receipt"
	}
	inv.Created = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Invoice{}, fmt.Errorf("begin invoice tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (id, invoice_number, client_name, client_email,
			status, issued_on, due_on, terms, notes, paid_on, payment_notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Number, inv.ClientName, inv.ClientEmail,
		string(inv.Status), formatDate(inv.IssuedOn), formatNullableDate(inv.DueOn),
		inv.Terms, inv.Notes, formatNullableDate(inv.PaidOn), inv.PaymentNotes,
		formatTime(inv.Created),
	)
	if err != nil {
		return Invoice{}, fmt.Errorf("insert invoice: %w", err)
	}

	for i := range inv.Items {
		if inv.Items[i].ID == "" {
			inv.Items[i].ID = core.NewID()
		}
		item := inv.Items[i]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO invoice_line_items (id, invoice_id, description,
				amount_cents, event_date, event_type, venue)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID, inv.ID, item.Description, item.AmountCents,
			item.EventDate, item.EventType, item.Venue,
		)
		if err != nil {
			return Invoice{}, fmt.Errorf("insert line item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Invoice{}, fmt.Errorf("commit invoice: %w", err)
	}
	return inv, nil
}

// GetInvoice returns an invoice with its line items.
func (s *Store) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, invoice_number, client_name, client_email, status, issued_on,
			due_on, terms, notes, paid_on, payment_notes, created_at
		FROM invoices WHERE id = ?`, invoiceID)
	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "invoice", ID: invoiceID}
	}
	if err != nil {
		return nil, err
	}
	if inv.Items, err = s.invoiceItems(ctx, invoiceID); err != nil {
		return nil, err
	}
	return inv, nil
}

// ListInvoices returns invoices, newest first, with line items attached.
// year filters on the issue date when non-zero; status filters when
// non-empty.
func (s *Store) ListInvoices(ctx context.Context, year int, status InvoiceStatus) ([]Invoice, error) {
	query := `
		SELECT id, invoice_number, client_name, client_email, status, issued_on,
			due_on, terms, notes, paid_on, payment_notes, created_at
		FROM invoices WHERE 1=1`
	var args []interface{}
	if year != 0 {
		query += ` AND issued_on >= ? AND issued_on <= ?`
		args = append(args, fmt.Sprintf("%d-01-01", year), fmt.Sprintf("%d-12-31", year))
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY issued_on DESC, invoice_number DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", err)
	}

	for i := range invoices {
		if invoices[i].Items, err = s.invoiceItems(ctx, invoices[i].ID); err != nil {
			return nil, err
		}
	}
	return invoices, nil
}

// MarkInvoicePaid records payment. A zero paidOn means today.
func (s *Store) MarkInvoicePaid(ctx context.Context, invoiceID string, paidOn time.Time, paymentNotes string) (*Invoice, error) {
	if paidOn.IsZero() {
		paidOn = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE invoices SET status = ?, paid_on = ?, payment_notes = ?
		WHERE id = ?`,
		string(InvoicePaid), formatDate(paidOn), paymentNotes, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("mark invoice paid: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &NotFoundError{Kind: "invoice", ID: invoiceID}
	}
	return s.GetInvoice(ctx, invoiceID)
}

// Income sums invoice totals for the year (0 = all time). Overdue means
// outstanding past the due date as of today.
func (s *Store) Income(ctx context.Context, year int) (IncomeSummary, error) {
	invoices, err := s.ListInvoices(ctx, year, "")
	if err != nil {
		return IncomeSummary{}, err
	}

	today := time.Now().UTC()
	var sum IncomeSummary
	sum.InvoiceCount = len(invoices)
	for _, inv := range invoices {
		total := inv.TotalCents()
		sum.InvoicedCents += total
		if inv.Status == InvoicePaid {
			sum.PaidCents += total
			sum.PaidCount++
			continue
		}
		sum.OutstandingCents += total
		sum.OutstandingCount++
		if inv.DueOn != nil && inv.DueOn.Before(today) {
			sum.OverdueCents += total
			sum.OverdueCount++
		}
	}
	return sum, nil
}

func (s *Store) invoiceItems(ctx context.Context, invoiceID string) ([]LineItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, amount_cents, event_date, event_type, venue
		FROM invoice_line_items WHERE invoice_id = ?
		ORDER BY event_date, id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.ID, &item.Description, &item.AmountCents,
			&item.EventDate, &item.EventType, &item.Venue); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate line items: %w", err)
	}
	return items, nil
}

func scanInvoice(row rowScanner) (*Invoice, error) {
	var inv Invoice
	var status, issued, created string
	var due, paid sql.NullString

	err := row.Scan(
		&inv.ID, &inv.Number, &inv.ClientName, &inv.ClientEmail, &status,
		&issued, &due, &inv.Terms, &inv.Notes, &paid, &inv.PaymentNotes, &created,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan invoice row: %w", err)
	}

	inv.Status = InvoiceStatus(status)
	if inv.IssuedOn, err = time.Parse(dateLayout, issued); err != nil {
		return nil, fmt.Errorf("parse issue date %q: %w", issued, err)
	}
	if inv.DueOn, err = parseNullableDate(due); err != nil {
		return nil, err
	}
	if inv.PaidOn, err = parseNullableDate(paid); err != nil {
		return nil, err
	}
	if inv.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	return &inv, nil
}
