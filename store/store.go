// Package store persists the musician's back office in SQLite: calendar
// events, inbox emails, invoices, published posts, contacts, and session
// history. It is the local stand-in for the external calendar/email/social
// services; rows are soft-deleted (status flips) so nothing is ever lost.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/backline-ai/backline/logging"
	_ "modernc.org/sqlite"
)

// InMemoryPath opens a private in-memory database. Used by tests and demos.
const InMemoryPath = ":memory:"

const (
	timeLayout = time.RFC3339
	dateLayout = "2006-01-02"
)

// Options configures a Store.
type Options struct {
	// Logger receives busy-retry and seed diagnostics. Defaults to no-op.
	Logger logging.Logger
}

// WithLogger sets the store logger.
func WithLogger(logger logging.Logger) func(o *Options) {
	return func(o *Options) {
		o.Logger = logger
	}
}

// Store wraps a SQLite database holding every back-office table.
// All methods are safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens (creating if necessary) the database at path and initializes
// the schema. Pass InMemoryPath for a throwaway database.
func Open(path string, optFns ...func(o *Options)) (*Store, error) {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	dsn := path
	if path != InMemoryPath {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		// WAL mode for better concurrency.
		dsn = path + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == InMemoryPath {
		// Each connection gets its own in-memory database, so keep one.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, logger: opts.Logger}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		event_type TEXT NOT NULL DEFAULT 'other',
		venue TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		load_in_time TEXT,
		soundcheck_time TEXT,
		set_time TEXT,
		pay_cents INTEGER NOT NULL DEFAULT 0,
		pay_notes TEXT NOT NULL DEFAULT '',
		contact_name TEXT NOT NULL DEFAULT '',
		contact_info TEXT NOT NULL DEFAULT '',
		gear_notes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'confirmed',
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_time);

	CREATE TABLE IF NOT EXISTS emails (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		subject TEXT NOT NULL DEFAULT '',
		sender TEXT NOT NULL DEFAULT '',
		to_addresses TEXT NOT NULL DEFAULT '[]',
		cc_addresses TEXT NOT NULL DEFAULT '[]',
		date TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		snippet TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'inbox',
		unread INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_emails_date ON emails(status, date);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		invoice_number TEXT NOT NULL,
		client_name TEXT NOT NULL,
		client_email TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'sent',
		issued_on TEXT NOT NULL,
		due_on TEXT,
		terms TEXT NOT NULL DEFAULT 'Due upon receipt',
		notes TEXT NOT NULL DEFAULT '',
		paid_on TEXT,
		payment_notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_invoices_number ON invoices(invoice_number);

	CREATE TABLE IF NOT EXISTS invoice_line_items (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL,
		description TEXT NOT NULL,
		amount_cents INTEGER NOT NULL,
		event_date TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL DEFAULT '',
		venue TEXT NOT NULL DEFAULT '',
		FOREIGN KEY(invoice_id) REFERENCES invoices(id)
	);
	CREATE INDEX IF NOT EXISTS idx_line_items_invoice ON invoice_line_items(invoice_id);

	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		platform TEXT NOT NULL DEFAULT 'instagram',
		kind TEXT NOT NULL DEFAULT 'feed',
		caption TEXT NOT NULL DEFAULT '',
		hashtags TEXT NOT NULL DEFAULT '[]',
		image_note TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'posted',
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS contacts (
		id TEXT PRIMARY KEY,
		organization TEXT NOT NULL,
		person TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'other',
		tags TEXT NOT NULL DEFAULT '[]',
		notes TEXT NOT NULL DEFAULT '',
		rate TEXT NOT NULL DEFAULT '',
		terms TEXT NOT NULL DEFAULT '',
		last_contact TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		contact_id TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'general',
		content TEXT NOT NULL DEFAULT '',
		interaction_date TEXT NOT NULL,
		follow_up TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		FOREIGN KEY(contact_id) REFERENCES contacts(id)
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_contact ON interactions(contact_id, interaction_date);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL DEFAULT '{}',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS session_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		event TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY(session_id) REFERENCES sessions(id)
	);
	CREATE INDEX IF NOT EXISTS idx_session_events ON session_events(session_id, seq);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// NotFoundError reports a lookup for a row that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// execRetry runs fn, retrying with exponential backoff when SQLite reports
// the database busy. Used on write paths that race with concurrent runs.
func (s *Store) execRetry(fn func() error) error {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return err
		}
		if i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			s.logger.Debug("sqlite busy, retrying", "attempt", i+1, "delay", delay.String())
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("after %d attempts: %w", maxRetries, err)
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// formatTime normalizes to UTC so stored strings sort chronologically.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func formatNullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func formatNullableDate(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return formatDate(*t)
}

func parseNullableDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, ns.String)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", ns.String, err)
	}
	return &t, nil
}

// marshalStrings encodes a string slice as a JSON array column value.
func marshalStrings(vals []string) string {
	if len(vals) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(vals)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func unmarshalStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		return nil
	}
	return vals
}

// FormatCents renders a cent amount as dollars, e.g. 40000 -> "$400.00".
func FormatCents(cents int64) string {
	return fmt.Sprintf("$%.2f", float64(cents)/100)
}
