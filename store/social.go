package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/backline-ai/backline/core"
)

// PostStatus tracks a social post's state. Posts land in the store when
// published; drafts live in the approval ledger until then.
type PostStatus string

const (
	PostPublished PostStatus = "posted"
	PostArchived  PostStatus = "archived"
)

const defaultPostListLimit = 20

// Post is a published social media post. The caption is what the artist
// actually posts; ImageNote describes the visual to pair it with.
type Post struct {
	ID        string
	Platform  string
	Kind      string
	Caption   string
	Hashtags  []string
	ImageNote string
	Status    PostStatus
	Notes     string
	Created   time.Time
}

const postColumns = `id, platform, kind, caption, hashtags, image_note, status, notes, created_at`

// SavePost inserts a post. Missing ID, platform, kind, and status get
// defaults. Returns the stored post.
func (s *Store) SavePost(ctx context.Context, p Post) (Post, error) {
	if p.Caption == "" {
		return Post{}, fmt.Errorf("post has no caption")
	}
	if p.ID == "" {
		p.ID = core.NewID()
	}
	if p.Platform == "" {
		p.Platform = "instagram"
	}
	if p.Kind == "" {
		p.Kind = "feed"
	}
	if p.Status == "" {
		p.Status = PostPublished
	}
	if p.Created.IsZero() {
		p.Created = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Platform, p.Kind, p.Caption, marshalStrings(p.Hashtags),
		p.ImageNote, string(p.Status), p.Notes, formatTime(p.Created),
	)
	if err != nil {
		return Post{}, fmt.Errorf("insert post: %w", err)
	}
	return p, nil
}

// ListPosts returns posts newest first. status filters when non-empty;
// archived posts only show up when asked for. limit defaults to 20.
func (s *Store) ListPosts(ctx context.Context, status PostStatus, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = defaultPostListLimit
	}
	query := `SELECT ` + postColumns + ` FROM posts WHERE 1=1`
	var args []interface{}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	} else {
		query += ` AND status != ?`
		args = append(args, string(PostArchived))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// GetPost returns a single post by id.
func (s *Store) GetPost(ctx context.Context, postID string) (*Post, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = ?`, postID)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Kind: "post", ID: postID}
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func scanPost(row rowScanner) (*Post, error) {
	var p Post
	var hashtags, status, created string

	err := row.Scan(&p.ID, &p.Platform, &p.Kind, &p.Caption, &hashtags,
		&p.ImageNote, &status, &p.Notes, &created)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan post row: %w", err)
	}

	p.Hashtags = unmarshalStrings(hashtags)
	p.Status = PostStatus(status)
	if p.Created, err = parseTime(created); err != nil {
		return nil, err
	}
	return &p, nil
}
