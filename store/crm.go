package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/backline-ai/backline/core"
)

// Contact is someone the artist works with: a venue, studio, promoter,
// label, or collaborator. Rate and Terms are free text as negotiated.
type Contact struct {
	ID           string
	Organization string
	Person       string
	Email        string
	Phone        string
	Role         string
	Tags         []string
	Notes        string
	Rate         string
	Terms        string
	LastContact  string
	Created      time.Time
	Updated      time.Time
}

// Interaction is a logged touchpoint with a contact: a call, an email
// note, a session debrief. FollowUp marks a date to circle back.
type Interaction struct {
	ID        string
	ContactID string
	Kind      string
	Content   string
	Date      string
	FollowUp  string
	Created   time.Time
}

const defaultInteractionLimit = 5

const contactColumns = `id, organization, person, email, phone, role, tags,
	notes, rate, terms, last_contact, created_at, updated_at`

// AddContact inserts a contact. Missing ID, role, and last-contact date
// get defaults. Returns the stored contact.
func (s *Store) AddContact(ctx context.Context, c Contact) (Contact, error) {
	if c.Organization == "" {
		return Contact{}, fmt.Errorf("contact has no organization name")
	}
	if c.ID == "" {
		c.ID = core.NewID()
	}
	if c.Role == "" {
		c.Role = "other"
	}
	now := time.Now().UTC()
	if c.LastContact == "" {
		c.LastContact = formatDate(now)
	}
	c.Created = now
	c.Updated = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (`+contactColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Organization, c.Person, c.Email, c.Phone, c.Role,
		marshalStrings(c.Tags), c.Notes, c.Rate, c.Terms, c.LastContact,
		formatTime(c.Created), formatTime(c.Updated),
	)
	if err != nil {
		return Contact{}, fmt.Errorf("insert contact: %w", err)
	}
	return c, nil
}

// GetContact returns a single contact by id.
func (s *Store) GetContact(ctx context.Context, contactID string) (*Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE id = ?`, contactID)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "contact", ID: contactID}
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindContacts matches the query as a substring of organization, person,
// or email. role narrows when non-empty. Most recently contacted first.
func (s *Store) FindContacts(ctx context.Context, query, role string) ([]Contact, error) {
	sqlQuery := `SELECT ` + contactColumns + ` FROM contacts WHERE 1=1`
	var args []interface{}
	if query != "" {
		sqlQuery += ` AND (organization LIKE ? OR person LIKE ? OR email LIKE ?)`
		like := "%" + query + "%"
		args = append(args, like, like, like)
	}
	if role != "" {
		sqlQuery += ` AND role = ?`
		args = append(args, role)
	}
	sqlQuery += ` ORDER BY last_contact DESC`

	return s.queryContacts(ctx, sqlQuery, args...)
}

// ListContacts returns every contact, most recently contacted first.
func (s *Store) ListContacts(ctx context.Context) ([]Contact, error) {
	return s.queryContacts(ctx,
		`SELECT `+contactColumns+` FROM contacts ORDER BY last_contact DESC`)
}

// LogInteraction records a touchpoint and moves the contact's last-contact
// date forward. The contact must exist.
func (s *Store) LogInteraction(ctx context.Context, in Interaction) (Interaction, error) {
	if in.ContactID == "" {
		return Interaction{}, fmt.Errorf("interaction has no contact id")
	}
	if _, err := s.GetContact(ctx, in.ContactID); err != nil {
		return Interaction{}, err
	}
	if in.ID == "" {
		in.ID = core.NewID()
	}
	if in.Kind == "" {
		in.Kind = "general"
	}
	now := time.Now().UTC()
	if in.Date == "" {
		in.Date = formatDate(now)
	}
	in.Created = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, contact_id, kind, content,
			interaction_date, follow_up, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.ContactID, in.Kind, in.Content, in.Date, in.FollowUp,
		formatTime(in.Created),
	)
	if err != nil {
		return Interaction{}, fmt.Errorf("insert interaction: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE contacts SET last_contact = ?, updated_at = ? WHERE id = ?`,
		in.Date, formatTime(now), in.ContactID)
	if err != nil {
		return Interaction{}, fmt.Errorf("update last contact: %w", err)
	}
	return in, nil
}

// ListInteractions returns a contact's interactions, newest first. limit
// defaults to 5.
func (s *Store) ListInteractions(ctx context.Context, contactID string, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = defaultInteractionLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contact_id, kind, content, interaction_date, follow_up, created_at
		FROM interactions WHERE contact_id = ?
		ORDER BY interaction_date DESC LIMIT ?`, contactID, limit)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var interactions []Interaction
	for rows.Next() {
		var in Interaction
		var created string
		if err := rows.Scan(&in.ID, &in.ContactID, &in.Kind, &in.Content,
			&in.Date, &in.FollowUp, &created); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		if in.Created, err = parseTime(created); err != nil {
			return nil, err
		}
		interactions = append(interactions, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return interactions, nil
}

func (s *Store) queryContacts(ctx context.Context, query string, args ...interface{}) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return contacts, nil
}

func scanContact(row rowScanner) (*Contact, error) {
	var c Contact
	var tags, created, updated string

	err := row.Scan(&c.ID, &c.Organization, &c.Person, &c.Email, &c.Phone,
		&c.Role, &tags, &c.Notes, &c.Rate, &c.Terms, &c.LastContact,
		&created, &updated)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan contact row: %w", err)
	}

	c.Tags = unmarshalStrings(tags)
	if c.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if c.Updated, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &c, nil
}
