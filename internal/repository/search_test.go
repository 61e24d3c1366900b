//go:build integration

package repository

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tractionhq/coachd/internal/domain"
	"github.com/tractionhq/coachd/internal/service"
	"github.com/tractionhq/coachd/internal/testutil"
)

// blendVector returns a unit vector with the given weights on two axes, so
// its cosine similarity against unitVector(axisA) is exactly wa.
func blendVector(axisA, axisB int, wa, wb float32) []float32 {
	norm := float32(math.Sqrt(float64(wa*wa + wb*wb)))
	v := make([]float32, testEmbeddingDims)
	v[axisA] = wa / norm
	v[axisB] = wb / norm
	return v
}

func TestSearchRepository_SearchSimilar(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	chunkRepo := NewChunkRepository(pool)
	searchRepo := NewSearchRepository(pool, testEmbeddingDims)

	exact := newChunk(domain.SourceKnowledge, "exact match", unitVector(0))
	exact.ChapterTitle = "Traction"
	near := newChunk(domain.SourceKnowledge, "close match", blendVector(0, 1, 0.8, 0.6))
	orthogonal := newChunk(domain.SourceKnowledge, "unrelated", unitVector(1))
	unembedded := newChunk(domain.SourceKnowledge, "no embedding", nil)

	require.NoError(t, chunkRepo.CreateBatch(ctx, []*domain.Chunk{exact, near, orthogonal, unembedded}))

	results, err := searchRepo.SearchSimilar(ctx, unitVector(0), service.SearchOptions{
		Threshold: 0.5,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, exact.ID, results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-3)
	assert.Equal(t, "Traction", results[0].Title)

	assert.Equal(t, near.ID, results[1].ID)
	assert.InDelta(t, 0.8, results[1].Score, 1e-3)
}

func TestSearchRepository_SearchSimilar_SourceFilter(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	chunkRepo := NewChunkRepository(pool)
	searchRepo := NewSearchRepository(pool, testEmbeddingDims)

	knowledge := newChunk(domain.SourceKnowledge, "knowledge", unitVector(0))
	transcript := newChunk(domain.SourceTranscript, "transcript", unitVector(0))
	require.NoError(t, chunkRepo.CreateBatch(ctx, []*domain.Chunk{knowledge, transcript}))

	results, err := searchRepo.SearchSimilar(ctx, unitVector(0), service.SearchOptions{
		Threshold: 0.5,
		Limit:     10,
		Source:    domain.SourceTranscript,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, transcript.ID, results[0].ID)
}

func TestSearchRepository_SearchSimilar_EmptyStore(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	searchRepo := NewSearchRepository(pool, testEmbeddingDims)
	chunkRepo := NewChunkRepository(pool)

	results, err := searchRepo.SearchSimilar(ctx, unitVector(0), service.SearchOptions{Threshold: 0.5, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, results)

	// A store that had content and was cleared behaves the same way.
	require.NoError(t, chunkRepo.Create(ctx, newChunk(domain.SourceKnowledge, "transient", unitVector(0))))
	require.NoError(t, testutil.TruncateAll(ctx, pool))

	results, err = searchRepo.SearchSimilar(ctx, unitVector(0), service.SearchOptions{Threshold: 0.5, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRepository_SearchSimilar_InvalidVector(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	searchRepo := NewSearchRepository(pool, testEmbeddingDims)

	_, err := searchRepo.SearchSimilar(ctx, nil, service.SearchOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidQueryVector)

	_, err = searchRepo.SearchSimilar(ctx, []float32{0.1, 0.2}, service.SearchOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidQueryVector)
}

func TestSearchRepository_SearchKeyword(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	chunkRepo := NewChunkRepository(pool)
	searchRepo := NewSearchRepository(pool, testEmbeddingDims)

	both := newChunk(domain.SourceKnowledge, "Quarterly rocks keep the team focused", nil)
	both.CreatedAt = time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Microsecond)
	one := newChunk(domain.SourceKnowledge, "Rocks are the priorities", nil)
	one.CreatedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	none := newChunk(domain.SourceKnowledge, "The scorecard shows numbers", nil)

	require.NoError(t, chunkRepo.CreateBatch(ctx, []*domain.Chunk{both, one, none}))

	results, err := searchRepo.SearchKeyword(ctx, "quarterly rocks", service.SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, both.ID, results[0].ID)
	assert.Equal(t, float32(1.0), results[0].Score)
	assert.Equal(t, one.ID, results[1].ID)
	assert.Equal(t, float32(0.5), results[1].Score)
}

func TestSearchRepository_SearchKeyword_TiesByCreationOrder(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	chunkRepo := NewChunkRepository(pool)
	searchRepo := NewSearchRepository(pool, testEmbeddingDims)

	first := newChunk(domain.SourceKnowledge, "rocks first", nil)
	first.CreatedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	second := newChunk(domain.SourceKnowledge, "rocks second", nil)

	require.NoError(t, chunkRepo.CreateBatch(ctx, []*domain.Chunk{second, first}))

	results, err := searchRepo.SearchKeyword(ctx, "rocks", service.SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, first.ID, results[0].ID)
	assert.Equal(t, second.ID, results[1].ID)
}

func TestSearchRepository_SearchKeyword_NoUsableTerms(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	searchRepo := NewSearchRepository(pool, testEmbeddingDims)

	results, err := searchRepo.SearchKeyword(ctx, "a of to", service.SearchOptions{Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearchRepository_SearchKeyword_MatchesUnembeddedChunks(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	chunkRepo := NewChunkRepository(pool)
	searchRepo := NewSearchRepository(pool, testEmbeddingDims)

	// Chunks awaiting backfill still participate in keyword search.
	pending := newChunk(domain.SourceTranscript, "we discussed the vision traction organizer", nil)
	pending.TranscriptTitle = "Annual Planning"
	require.NoError(t, chunkRepo.Create(ctx, pending))

	results, err := searchRepo.SearchKeyword(ctx, "vision", service.SearchOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Annual Planning", results[0].Title)
	assert.Equal(t, "Annual Planning", results[0].Metadata["transcript_title"])
}
