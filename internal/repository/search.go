package repository

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/tractionhq/coachd/internal/domain"
	"github.com/tractionhq/coachd/internal/service"
)

const (
	defaultSearchLimit = 20

	// Keyword candidates are fetched wider than the requested limit so that
	// in-process scoring ranks over a meaningful pool.
	candidateMultiplier = 4
	minCandidates       = 20
	maxCandidates       = 200
)

// SearchRepository implements vector similarity and keyword search over the
// chunks table.
type SearchRepository struct {
	pool *pgxpool.Pool
	dims int
}

// NewSearchRepository creates a search repository. dims is the embedding
// provider's fixed dimensionality, validated against every query vector.
func NewSearchRepository(pool *pgxpool.Pool, dims int) *SearchRepository {
	return &SearchRepository{pool: pool, dims: dims}
}

// SearchSimilar returns chunks whose stored embedding has cosine similarity
// >= opts.Threshold with the query vector, ordered by descending similarity.
// Chunks without an embedding do not participate. Ties at equal similarity
// are broken by creation order for determinism.
func (r *SearchRepository) SearchSimilar(ctx context.Context, embedding []float32, opts service.SearchOptions) ([]*service.SearchResult, error) {
	if len(embedding) == 0 || (r.dims > 0 && len(embedding) != r.dims) {
		return nil, domain.ErrInvalidQueryVector
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	vec := pgvector.NewVector(embedding)
	rows, err := r.pool.Query(ctx,
		`SELECT id, source_type, content, chapter_title, section_heading, transcript_title, meeting_id, created_at,
		        1 - (embedding <=> $1) AS similarity
		 FROM chunks
		 WHERE embedding IS NOT NULL
		   AND ($2 = '' OR source_type = $2)
		   AND 1 - (embedding <=> $1) >= $3
		 ORDER BY similarity DESC, created_at ASC, id ASC
		 LIMIT $4`,
		vec, string(opts.Source), opts.Threshold, limit,
	)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	defer rows.Close()

	results := make([]*service.SearchResult, 0, limit)
	for rows.Next() {
		result, err := scanSearchRow(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, storeUnavailable(err)
	}
	return results, nil
}

// SearchKeyword tokenizes the query into lowercase terms (terms of length
// <= 2 discarded), scores each candidate chunk by the fraction of terms found
// as substrings of its content, and returns chunks with score > 0 ordered by
// descending score, ties by creation order. A query with no usable terms
// returns an empty list, not an error.
func (r *SearchRepository) SearchKeyword(ctx context.Context, query string, opts service.SearchOptions) ([]*service.SearchResult, error) {
	terms := keywordTerms(query)
	if len(terms) == 0 {
		return []*service.SearchResult{}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	candidateLimit := limit * candidateMultiplier
	if candidateLimit < minCandidates {
		candidateLimit = minCandidates
	}
	if candidateLimit > maxCandidates {
		candidateLimit = maxCandidates
	}

	patterns := make([]string, len(terms))
	for i, term := range terms {
		patterns[i] = likePattern(term)
	}

	// Candidates arrive in creation order so the stable sort below breaks
	// score ties by creation order.
	rows, err := r.pool.Query(ctx,
		`SELECT id, source_type, content, chapter_title, section_heading, transcript_title, meeting_id, created_at
		 FROM chunks
		 WHERE lower(content) LIKE ANY($1)
		   AND ($2 = '' OR source_type = $2)
		 ORDER BY created_at ASC, id ASC
		 LIMIT $3`,
		patterns, string(opts.Source), candidateLimit,
	)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	defer rows.Close()

	var results []*service.SearchResult
	for rows.Next() {
		result, err := scanKeywordRow(rows)
		if err != nil {
			return nil, err
		}
		result.Score = keywordScore(result.Content, terms)
		if result.Score > 0 {
			results = append(results, result)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storeUnavailable(err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	if results == nil {
		results = []*service.SearchResult{}
	}
	return results, nil
}

func scanSearchRow(rows pgx.Rows) (*service.SearchResult, error) {
	var result service.SearchResult
	var chapterTitle, sectionHeading, transcriptTitle, meetingID *string
	var createdAt time.Time
	if err := rows.Scan(&result.ID, &result.Source, &result.Content,
		&chapterTitle, &sectionHeading, &transcriptTitle, &meetingID,
		&createdAt, &result.Score); err != nil {
		return nil, err
	}
	fillResultMetadata(&result, chapterTitle, sectionHeading, transcriptTitle, meetingID, createdAt)
	return &result, nil
}

func scanKeywordRow(rows pgx.Rows) (*service.SearchResult, error) {
	var result service.SearchResult
	var chapterTitle, sectionHeading, transcriptTitle, meetingID *string
	var createdAt time.Time
	if err := rows.Scan(&result.ID, &result.Source, &result.Content,
		&chapterTitle, &sectionHeading, &transcriptTitle, &meetingID,
		&createdAt); err != nil {
		return nil, err
	}
	fillResultMetadata(&result, chapterTitle, sectionHeading, transcriptTitle, meetingID, createdAt)
	return &result, nil
}

func fillResultMetadata(result *service.SearchResult, chapterTitle, sectionHeading, transcriptTitle, meetingID *string, createdAt time.Time) {
	result.CreatedAt = createdAt
	result.Metadata = make(map[string]string, 2)
	if chapterTitle != nil && *chapterTitle != "" {
		result.Metadata["chapter_title"] = *chapterTitle
		result.Title = *chapterTitle
	}
	if sectionHeading != nil && *sectionHeading != "" {
		result.Metadata["section_heading"] = *sectionHeading
		if result.Title != "" {
			result.Title += " / " + *sectionHeading
		} else {
			result.Title = *sectionHeading
		}
	}
	if transcriptTitle != nil && *transcriptTitle != "" {
		result.Metadata["transcript_title"] = *transcriptTitle
		result.Title = *transcriptTitle
	}
	if meetingID != nil && *meetingID != "" {
		result.Metadata["meeting_id"] = *meetingID
	}
}

func storeUnavailable(err error) error {
	return domain.NewDomainErrorWithCause(domain.ErrCodeUnavailable, "search store unavailable", err)
}
