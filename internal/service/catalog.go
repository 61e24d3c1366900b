package service

import (
	"context"
	"errors"
	"time"

	"github.com/tractionhq/coachd/internal/domain"
	"github.com/tractionhq/coachd/internal/pagination"
)

const (
	defaultCatalogPageSize = 50
	maxCatalogPageSize     = 200
)

// CatalogChunkRepository is the read surface for browsing indexed chunks.
type CatalogChunkRepository interface {
	List(ctx context.Context, source domain.SourceType, cursor *pagination.Cursor, limit int) ([]*domain.Chunk, error)
}

// ChunkSummary is one indexed chunk as shown in catalog listings. The
// embedding itself is never exposed, only whether one is stored.
type ChunkSummary struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	Title        string    `json:"title,omitempty"`
	Content      string    `json:"content"`
	HasEmbedding bool      `json:"has_embedding"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListChunksInput are the catalog listing parameters.
type ListChunksInput struct {
	Source string
	Cursor string
	Limit  int
}

// CatalogService lists what the index currently holds. It exists so
// operators can audit ingestion and spot chunks still waiting for a
// backfill.
type CatalogService struct {
	repo CatalogChunkRepository
}

func NewCatalogService(repo CatalogChunkRepository) *CatalogService {
	return &CatalogService{repo: repo}
}

func (s *CatalogService) ListChunks(ctx context.Context, input ListChunksInput) (*pagination.PageResult[ChunkSummary], error) {
	source := domain.SourceType(input.Source)
	if input.Source != "" && source != domain.SourceKnowledge && source != domain.SourceTranscript {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "unknown source type")
	}

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return nil, domain.NewDomainError(domain.ErrCodeValidation, "invalid cursor")
		}
		return nil, err
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultCatalogPageSize
	}
	if limit > maxCatalogPageSize {
		limit = maxCatalogPageSize
	}

	chunks, err := s.repo.List(ctx, source, cursor, limit)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to list chunks", err)
	}

	items := make([]ChunkSummary, len(chunks))
	for i, c := range chunks {
		items[i] = ChunkSummary{
			ID:           c.ID,
			Source:       string(c.SourceType),
			Title:        c.Title(),
			Content:      c.Content,
			HasEmbedding: c.HasEmbedding(),
			CreatedAt:    c.CreatedAt,
		}
	}

	next := pagination.CreateNextCursor(chunks, limit,
		func(c *domain.Chunk) string { return c.ID },
		func(c *domain.Chunk) time.Time { return c.CreatedAt },
	)

	return &pagination.PageResult[ChunkSummary]{
		Items:   items,
		Cursor:  next,
		HasMore: next != "",
	}, nil
}
