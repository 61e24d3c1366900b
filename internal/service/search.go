package service

import (
	"context"
	"time"

	"github.com/tractionhq/coachd/internal/domain"
)

// SearchResult is one retrieval hit. Score semantics depend on origin:
// cosine similarity in [0,1] for vector hits, matched-term fraction in [0,1]
// for keyword hits, and a reciprocal-rank sum after fusion.
type SearchResult struct {
	ID        string
	Source    domain.SourceType
	Title     string
	Content   string
	Score     float32
	CreatedAt time.Time
	Metadata  map[string]string
}

// SearchOptions bounds one retrieval call.
type SearchOptions struct {
	// Threshold is the minimum cosine similarity for vector search; hits
	// below it are excluded, not merely ranked lower. Ignored by keyword
	// search. Zero means the configured default; pass a negative value to
	// disable the cutoff.
	Threshold float32
	Limit     int
	// Source restricts the search to one pool when set.
	Source domain.SourceType
}

// SearchStore is the persistent retrieval boundary: vector similarity and
// keyword matching over the same logical chunk collection.
type SearchStore interface {
	SearchSimilar(ctx context.Context, embedding []float32, opts SearchOptions) ([]*SearchResult, error)
	SearchKeyword(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error)
}

// RecordStore is the read-only boundary to live operational records.
type RecordStore interface {
	Snapshot(ctx context.Context, topN int) (*domain.RecordSnapshot, error)
}

// EmbeddingClient is the external embedding provider boundary.
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}
