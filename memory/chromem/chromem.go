// Package chromem implements core.MemoryStore on top of chromem-go, an
// embeddable vector database. Every scope maps to one collection, so session
// memories and long-lived scopes such as the voice library stay separated.
// Without an explicit embedding function a deterministic token-hash embedder
// is used, which keeps retrieval working offline and in tests.
package chromem

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/backline-ai/backline/core"
)

// DefaultSearchLimit bounds Search when the caller passes no limit.
const DefaultSearchLimit = 5

// StoreOptions configures a Store.
type StoreOptions struct {
	// Path persists collections under the given directory. Empty keeps the
	// database in memory only.
	Path string
	// Compress gob-compresses persisted collections.
	Compress bool
	// Embedding overrides the deterministic hash embedder, e.g. with a
	// provider-backed embedding function.
	Embedding chromem.EmbeddingFunc
}

// WithPath persists the database under dir.
func WithPath(dir string) func(o *StoreOptions) {
	return func(o *StoreOptions) { o.Path = dir }
}

// WithEmbedding sets the embedding function used for all collections.
func WithEmbedding(fn chromem.EmbeddingFunc) func(o *StoreOptions) {
	return func(o *StoreOptions) { o.Embedding = fn }
}

// Store is a MemoryStore backed by chromem-go collections, one per scope.
type Store struct {
	mu        sync.Mutex
	db        *chromem.DB
	embedding chromem.EmbeddingFunc
}

var _ core.MemoryStore = (*Store)(nil)

// New opens a chromem-backed memory store.
func New(optFns ...func(o *StoreOptions)) (*Store, error) {
	opts := StoreOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Embedding == nil {
		opts.Embedding = HashEmbedding()
	}

	var db *chromem.DB
	var err error
	if opts.Path != "" {
		db, err = chromem.NewPersistentDB(opts.Path, opts.Compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}
	return &Store{db: db, embedding: opts.Embedding}, nil
}

func (s *Store) collection(scope string) (*chromem.Collection, error) {
	col, err := s.db.GetOrCreateCollection(scope, nil, s.embedding)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", scope, err)
	}
	return col, nil
}

// Store adds a snippet to the scope's collection and returns its id.
// Metadata values are stringified since chromem stores string pairs.
func (s *Store) Store(ctx context.Context, scope, content string, metadata map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.collection(scope)
	if err != nil {
		return "", err
	}

	id := core.NewID()
	md := make(map[string]string, len(metadata))
	for k, v := range metadata {
		md[k] = fmt.Sprint(v)
	}
	if err := col.AddDocument(ctx, chromem.Document{ID: id, Content: content, Metadata: md}); err != nil {
		return "", fmt.Errorf("add document: %w", err)
	}
	return id, nil
}

// Search runs a similarity query against the scope's collection. Results are
// ordered by descending cosine similarity. A scope with no documents yields
// an empty slice.
func (s *Store) Search(ctx context.Context, scope, query string, limit int) ([]core.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.collection(scope)
	if err != nil {
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return []core.SearchResult{}, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	// chromem rejects queries asking for more results than stored documents
	if limit > count {
		limit = count
	}

	hits, err := col.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", scope, err)
	}

	results := make([]core.SearchResult, 0, len(hits))
	for _, h := range hits {
		md := make(map[string]any, len(h.Metadata))
		for k, v := range h.Metadata {
			md[k] = v
		}
		results = append(results, core.SearchResult{
			ID:       h.ID,
			Content:  h.Content,
			Score:    float64(h.Similarity),
			Metadata: md,
		})
	}
	return results, nil
}

// Delete removes a document by id. Deleting an absent id is a no-op.
func (s *Store) Delete(ctx context.Context, scope, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.collection(scope)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, memoryID); err != nil {
		return fmt.Errorf("delete document %s: %w", memoryID, err)
	}
	return nil
}

// Count reports how many documents the scope holds.
func (s *Store) Count(scope string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.collection(scope)
	if err != nil {
		return 0, err
	}
	return col.Count(), nil
}

// hashDims is the dimensionality of the deterministic hash embedding.
const hashDims = 64

// HashEmbedding returns a deterministic embedding function derived from
// token hashes: each word contributes a fixed pseudo-random direction, so
// texts sharing vocabulary land near each other. It needs no network or
// model and exists for offline retrieval and tests; configure WithEmbedding
// for production-quality semantics.
func HashEmbedding() chromem.EmbeddingFunc {
	return func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, hashDims)
		for _, token := range tokenize(text) {
			h1 := sha256.Sum256([]byte(token))
			h2 := sha256.Sum256(append(h1[:], 'x'))
			for i := 0; i < 32; i++ {
				vec[i] += float32(int(h1[i])-128) / 128
				vec[32+i] += float32(int(h2[i])-128) / 128
			}
		}

		var norm float64
		for _, v := range vec {
			norm += float64(v) * float64(v)
		}
		if norm == 0 {
			vec[0] = 1
			return vec, nil
		}
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
		return vec, nil
	}
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:'\"()[]#@&")
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
