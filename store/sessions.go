package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/backline-ai/backline/core"
)

// SessionStore is a SQLite-backed core.SessionStore sharing the Store's
// database, so conversations survive restarts. Events serialize as JSON
// rows in append order; state and metadata live on the session row.
type SessionStore struct {
	s *Store
}

var _ core.SessionStore = (*SessionStore)(nil)

// Sessions returns the session store view of this database.
func (s *Store) Sessions() *SessionStore {
	return &SessionStore{s: s}
}

// Get returns an existing session or creates a new one lazily, matching
// the in-memory store's contract.
func (st *SessionStore) Get(ctx context.Context, sessionID string) (*core.Session, error) {
	if err := st.ensure(ctx, sessionID); err != nil {
		return nil, err
	}
	return st.load(ctx, sessionID)
}

// Create forces a fresh session with the given id, discarding any prior
// state and events.
func (st *SessionStore) Create(ctx context.Context, sessionID string) (*core.Session, error) {
	sess := core.NewSession(sessionID)
	err := st.s.execRetry(func() error {
		tx, err := st.s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin session tx: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM session_events WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("clear session events: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, state, metadata, created_at, updated_at)
			VALUES (?, '{}', '{}', ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				state = '{}',
				metadata = '{}',
				created_at = excluded.created_at,
				updated_at = excluded.updated_at`,
			sessionID, formatTime(sess.Created), formatTime(sess.Updated)); err != nil {
			return fmt.Errorf("reset session: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// AppendEvent adds an event to an existing or newly created session.
func (st *SessionStore) AppendEvent(ctx context.Context, sessionID string, ev core.Event) error {
	if err := st.ensure(ctx, sessionID); err != nil {
		return err
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	now := formatTime(time.Now())
	return st.s.execRetry(func() error {
		if _, err := st.s.db.ExecContext(ctx, `
			INSERT INTO session_events (session_id, event, created_at)
			VALUES (?, ?, ?)`, sessionID, string(raw), now); err != nil {
			return fmt.Errorf("insert session event: %w", err)
		}
		if _, err := st.s.db.ExecContext(ctx,
			`UPDATE sessions SET updated_at = ? WHERE id = ?`, now, sessionID); err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		return nil
	})
}

// ApplyDelta merges a key/value delta into the session state.
func (st *SessionStore) ApplyDelta(ctx context.Context, sessionID string, delta map[string]interface{}) error {
	if len(delta) == 0 {
		return nil
	}
	if err := st.ensure(ctx, sessionID); err != nil {
		return err
	}
	return st.s.execRetry(func() error {
		var raw string
		if err := st.s.db.QueryRowContext(ctx,
			`SELECT state FROM sessions WHERE id = ?`, sessionID).Scan(&raw); err != nil {
			return fmt.Errorf("read session state: %w", err)
		}
		state := map[string]interface{}{}
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			return fmt.Errorf("decode session state: %w", err)
		}
		for k, v := range delta {
			state[k] = v
		}
		merged, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("encode session state: %w", err)
		}
		if _, err := st.s.db.ExecContext(ctx,
			`UPDATE sessions SET state = ?, updated_at = ? WHERE id = ?`,
			string(merged), formatTime(time.Now()), sessionID); err != nil {
			return fmt.Errorf("write session state: %w", err)
		}
		return nil
	})
}

func (st *SessionStore) ensure(ctx context.Context, sessionID string) error {
	now := formatTime(time.Now())
	_, err := st.s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO sessions (id, state, metadata, created_at, updated_at)
		VALUES (?, '{}', '{}', ?, ?)`, sessionID, now, now)
	if err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	return nil
}

func (st *SessionStore) load(ctx context.Context, sessionID string) (*core.Session, error) {
	var stateRaw, metaRaw, created, updated string
	err := st.s.db.QueryRowContext(ctx, `
		SELECT state, metadata, created_at, updated_at
		FROM sessions WHERE id = ?`, sessionID).
		Scan(&stateRaw, &metaRaw, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "session", ID: sessionID}
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess := core.NewSession(sessionID)
	if err := json.Unmarshal([]byte(stateRaw), &sess.State); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	if err := json.Unmarshal([]byte(metaRaw), &sess.Metadata); err != nil {
		return nil, fmt.Errorf("decode session metadata: %w", err)
	}
	if sess.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	if sess.Updated, err = parseTime(updated); err != nil {
		return nil, err
	}

	rows, err := st.s.db.QueryContext(ctx, `
		SELECT event FROM session_events
		WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		var ev core.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("decode session event: %w", err)
		}
		sess.Events = append(sess.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session events: %w", err)
	}
	return sess, nil
}
