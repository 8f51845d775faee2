package core

import "context"

// VoiceScope is the memory scope holding the user's writing samples. The
// social agent retrieves from it to ground drafts in the user's voice.
const VoiceScope = "voice"

// MemoryStore defines persistence + retrieval (search) for free-text
// snippets grouped into named scopes. A scope is usually a session id, but
// agents may use well-known scopes such as VoiceScope that outlive any one
// conversation. Implementations can back search with embeddings, keywords or
// any heuristic; results come back ordered by descending relevance.
type MemoryStore interface {
	Store(ctx context.Context, scope string, content string, metadata map[string]any) (string, error)
	Search(ctx context.Context, scope string, query string, limit int) ([]SearchResult, error)
	Delete(ctx context.Context, scope string, memoryID string) error
}
