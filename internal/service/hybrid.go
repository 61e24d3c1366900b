package service

import (
	"context"
	"log"
	"strings"

	"github.com/tractionhq/coachd/internal/domain"
	"github.com/tractionhq/coachd/internal/telemetry"
)

// HybridSearcher runs rank-fused vector and keyword search and returns the
// fused result list directly, without rendering it into a context block.
type HybridSearcher struct {
	store     SearchStore
	embedding EmbeddingClient
	cfg       ContextBuilderConfig
}

func NewHybridSearcher(store SearchStore, embedding EmbeddingClient, cfg ContextBuilderConfig) *HybridSearcher {
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultContextBuilderConfig().SearchLimit
	}
	return &HybridSearcher{store: store, embedding: embedding, cfg: cfg}
}

// Search embeds the query, runs both retrieval strategies against the
// requested pool (or both pools when none is given), and fuses the hits by
// reciprocal rank. An unavailable embedding provider degrades the call to
// keyword-only. The error is non-nil only when the query is invalid or every
// retrieval path failed.
func (s *HybridSearcher) Search(ctx context.Context, query string, opts SearchOptions) ([]*SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "HybridSearcher.Search", telemetry.SpanAttributes{
		Operation: "hybrid_search",
		Source:    string(opts.Source),
	})
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "query is required")
	}
	switch opts.Source {
	case "", domain.SourceKnowledge, domain.SourceTranscript:
	default:
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "unknown source type")
	}
	if opts.Limit <= 0 {
		opts.Limit = s.cfg.SearchLimit
	}
	switch {
	case opts.Threshold < 0:
		// Negative disables the similarity cutoff entirely.
		opts.Threshold = 0
	case opts.Threshold == 0:
		opts.Threshold = s.cfg.SimilarityThreshold
	}

	pools := []domain.SourceType{domain.SourceKnowledge, domain.SourceTranscript}
	if opts.Source != "" {
		pools = []domain.SourceType{opts.Source}
	}

	var embedding []float32
	var err error
	embedding, err = s.embedding.GenerateEmbedding(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("search: query embedding failed, degrading to keyword-only: %v", err)
		embedding = nil
	}

	var out []*SearchResult
	failed := 0
	attempted := 0
	for _, sourceType := range pools {
		poolOpts := opts
		poolOpts.Source = sourceType

		var vector, keyword []*SearchResult
		if embedding != nil {
			attempted++
			vector, err = s.store.SearchSimilar(ctx, embedding, poolOpts)
			if err != nil {
				log.Printf("search: vector search failed for %s pool: %v", sourceType, err)
				failed++
				vector = nil
			}
		}
		attempted++
		keyword, err = s.store.SearchKeyword(ctx, query, poolOpts)
		if err != nil {
			log.Printf("search: keyword search failed for %s pool: %v", sourceType, err)
			failed++
			keyword = nil
		}

		out = append(out, fusedSearchResults(FuseResults(vector, keyword))...)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failed == attempted && attempted > 0 {
		return nil, domain.ErrStoreUnavailable
	}
	if out == nil {
		out = []*SearchResult{}
	}
	return out, nil
}
