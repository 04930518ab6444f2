package retrieval

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/civicsense/ai/core/llm"
)

// VectorSource answers lookups with cosine similarity over a pgvector
// corpus of civic documents. It shares the PostgreSQL pool with the
// key-value store.
type VectorSource struct {
	db       *sql.DB
	embedder llm.Embedder
}

// NewVectorSource creates a pgvector-backed knowledge source.
func NewVectorSource(db *sql.DB, embedder llm.Embedder) *VectorSource {
	return &VectorSource{db: db, embedder: embedder}
}

// Migrate creates the document corpus schema. Requires the pgvector
// extension to be installed on the server.
func (s *VectorSource) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS civic_document (
			id BIGSERIAL PRIMARY KEY,
			language TEXT NOT NULL,
			title TEXT NOT NULL,
			url TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(1536) NOT NULL,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_civic_document_language ON civic_document (language)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrate civic_document")
		}
	}
	return nil
}

// Lookup embeds the query and returns the most similar documents.
// The <=> operator computes cosine distance, so ascending order gives
// the most similar documents first.
func (s *VectorSource) Lookup(ctx context.Context, query, language string, limit int) ([]Snippet, error) {
	if limit <= 0 {
		limit = 5
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "embed query")
	}
	vector := pgvector.NewVector(embedding)

	rows, err := s.db.QueryContext(ctx, `
		SELECT content, url, title, 1 - (embedding <=> $1) AS score
		FROM civic_document
		WHERE language = $2
		ORDER BY embedding <=> $3
		LIMIT $4`,
		vector, language, vector, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "vector search")
	}
	defer rows.Close()

	var snippets []Snippet
	for rows.Next() {
		var sn Snippet
		if err := rows.Scan(&sn.Text, &sn.URL, &sn.Title, &sn.Score); err != nil {
			return nil, errors.Wrap(err, "scan search result")
		}
		snippets = append(snippets, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate search results")
	}
	return snippets, nil
}
