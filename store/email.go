package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/backline-ai/backline/core"
)

// EmailStatus is the folder an email lives in. Archiving flips the status;
// the row is never deleted.
type EmailStatus string

const (
	EmailInbox    EmailStatus = "inbox"
	EmailArchived EmailStatus = "archived"
	EmailSent     EmailStatus = "sent"
)

const (
	defaultEmailListLimit   = 20
	defaultEmailSearchLimit = 10
	snippetLength           = 100
)

// Email is a message in the local mailbox.
type Email struct {
	ID       string
	ThreadID string
	Subject  string
	Sender   string
	To       []string
	Cc       []string
	Date     time.Time
	Body     string
	Snippet  string
	Status   EmailStatus
	Unread   bool
}

const emailColumns = `id, thread_id, subject, sender, to_addresses, cc_addresses,
	date, body, snippet, status, unread`

// SaveEmail inserts a message. Missing ID, thread, snippet, status, and
// date get defaults. Returns the stored email.
func (s *Store) SaveEmail(ctx context.Context, em Email) (Email, error) {
	if em.ID == "" {
		em.ID = core.NewID()
	}
	if em.ThreadID == "" {
		em.ThreadID = em.ID
	}
	if em.Snippet == "" {
		em.Snippet = makeSnippet(em.Body)
	}
	if em.Status == "" {
		em.Status = EmailInbox
	}
	if em.Date.IsZero() {
		em.Date = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emails (`+emailColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		em.ID, em.ThreadID, em.Subject, em.Sender,
		marshalStrings(em.To), marshalStrings(em.Cc),
		formatTime(em.Date), em.Body, em.Snippet, string(em.Status), boolToInt(em.Unread),
	)
	if err != nil {
		return Email{}, fmt.Errorf("insert email: %w", err)
	}
	return em, nil
}

// ListEmails returns messages in a folder, newest first. status defaults to
// the inbox; unreadOnly narrows to unread messages; limit defaults to 20.
func (s *Store) ListEmails(ctx context.Context, status EmailStatus, unreadOnly bool, limit int) ([]Email, error) {
	if status == "" {
		status = EmailInbox
	}
	if limit <= 0 {
		limit = defaultEmailListLimit
	}
	query := `SELECT ` + emailColumns + ` FROM emails WHERE status = ?`
	args := []interface{}{string(status)}
	if unreadOnly {
		query += ` AND unread = 1`
	}
	query += ` ORDER BY date DESC LIMIT ?`
	args = append(args, limit)

	return s.queryEmails(ctx, query, args...)
}

// GetEmail returns a single message with its full body.
func (s *Store) GetEmail(ctx context.Context, emailID string) (*Email, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE id = ?`, emailID)
	em, err := scanEmail(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "email", ID: emailID}
	}
	if err != nil {
		return nil, err
	}
	return em, nil
}

// SearchEmails matches the query as a substring of subject, sender, or
// body across every folder, newest first. limit defaults to 10.
func (s *Store) SearchEmails(ctx context.Context, query string, limit int) ([]Email, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query is empty")
	}
	if limit <= 0 {
		limit = defaultEmailSearchLimit
	}
	like := "%" + query + "%"
	return s.queryEmails(ctx, `
		SELECT `+emailColumns+` FROM emails
		WHERE subject LIKE ? OR sender LIKE ? OR body LIKE ?
		ORDER BY date DESC LIMIT ?`,
		like, like, like, limit)
}

// MarkEmailRead clears the unread flag.
func (s *Store) MarkEmailRead(ctx context.Context, emailID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE emails SET unread = 0 WHERE id = ?`, emailID)
	if err != nil {
		return fmt.Errorf("mark email read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &NotFoundError{Kind: "email", ID: emailID}
	}
	return nil
}

// ArchiveEmail moves a message out of the inbox by flipping its status.
func (s *Store) ArchiveEmail(ctx context.Context, emailID string) (*Email, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE emails SET status = ?, unread = 0 WHERE id = ?`,
		string(EmailArchived), emailID)
	if err != nil {
		return nil, fmt.Errorf("archive email: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &NotFoundError{Kind: "email", ID: emailID}
	}
	return s.GetEmail(ctx, emailID)
}

func (s *Store) queryEmails(ctx context.Context, query string, args ...interface{}) ([]Email, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query emails: %w", err)
	}
	defer rows.Close()

	var emails []Email
	for rows.Next() {
		em, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, *em)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate emails: %w", err)
	}
	return emails, nil
}

func scanEmail(row rowScanner) (*Email, error) {
	var em Email
	var to, cc, date, status string
	var unread int

	err := row.Scan(
		&em.ID, &em.ThreadID, &em.Subject, &em.Sender, &to, &cc,
		&date, &em.Body, &em.Snippet, &status, &unread,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan email row: %w", err)
	}

	em.To = unmarshalStrings(to)
	em.Cc = unmarshalStrings(cc)
	em.Status = EmailStatus(status)
	em.Unread = unread != 0
	if em.Date, err = parseTime(date); err != nil {
		return nil, err
	}
	return &em, nil
}

// makeSnippet collapses whitespace and truncates to the preview length.
func makeSnippet(body string) string {
	flat := strings.Join(strings.Fields(body), " ")
	runes := []rune(flat)
	if len(runes) <= snippetLength {
		return flat
	}
	return string(runes[:snippetLength]) + "..."
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
