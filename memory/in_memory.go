package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/backline-ai/backline/core"
)

// entry is one stored snippet within a scope.
type entry struct {
	id       string
	content  string
	metadata map[string]any
}

// InMemoryStore is a volatile MemoryStore keeping snippets in process-local
// slices, one per scope. Search is case-insensitive substring matching over
// content, every hit scoring 1.0, returned in insertion order. Suited for
// tests and single-process demos; use the chromem-backed store for semantic
// retrieval.
type InMemoryStore struct {
	mu     sync.RWMutex
	scopes map[string][]entry
}

var _ core.MemoryStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{scopes: make(map[string][]entry)}
}

// Store appends a snippet to the scope and returns its generated id.
func (m *InMemoryStore) Store(_ context.Context, scope, content string, metadata map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := core.NewID()
	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	m.scopes[scope] = append(m.scopes[scope], entry{id: id, content: content, metadata: md})
	return id, nil
}

// Search returns snippets whose content contains the query, ignoring case.
// An empty query matches everything; limit <= 0 means no limit.
func (m *InMemoryStore) Search(_ context.Context, scope, query string, limit int) ([]core.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q := strings.ToLower(query)
	results := []core.SearchResult{}
	for _, e := range m.scopes[scope] {
		if limit > 0 && len(results) >= limit {
			break
		}
		if q != "" && !strings.Contains(strings.ToLower(e.content), q) {
			continue
		}
		md := make(map[string]any, len(e.metadata))
		for k, v := range e.metadata {
			md[k] = v
		}
		results = append(results, core.SearchResult{ID: e.id, Content: e.content, Score: 1.0, Metadata: md})
	}
	return results, nil
}

// Delete removes a stored snippet by id.
func (m *InMemoryStore) Delete(_ context.Context, scope, memoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.scopes[scope]
	for i, e := range entries {
		if e.id == memoryID {
			m.scopes[scope] = append(entries[:i], entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("memory %s not found in scope %s", memoryID, scope)
}
