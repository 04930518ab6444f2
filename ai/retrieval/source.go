// Package retrieval abstracts the knowledge lookups agents depend on.
// A source returns ranked snippets with citations; ranking quality is
// the provider's concern, not the caller's.
package retrieval

import "context"

// Snippet is one ranked lookup result.
type Snippet struct {
	Text  string  `json:"text"`
	URL   string  `json:"url"`
	Title string  `json:"title"`
	Score float32 `json:"score"`
}

// KnowledgeSource answers free-text queries with ranked snippets.
type KnowledgeSource interface {
	// Lookup returns up to limit snippets ordered best-first. An empty
	// result is a valid answer, not an error.
	Lookup(ctx context.Context, query, language string, limit int) ([]Snippet, error)
}
