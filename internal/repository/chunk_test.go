//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tractionhq/coachd/internal/domain"
	"github.com/tractionhq/coachd/internal/pagination"
	"github.com/tractionhq/coachd/internal/testutil"
)

const testEmbeddingDims = 1536

// unitVector returns a 1536-dim unit vector with 1.0 at the given axis, so
// tests can construct embeddings with exact cosine similarities.
func unitVector(axis int) []float32 {
	v := make([]float32, testEmbeddingDims)
	v[axis] = 1.0
	return v
}

func newChunk(sourceType domain.SourceType, content string, embedding []float32) *domain.Chunk {
	return &domain.Chunk{
		ID:         uuid.NewString(),
		SourceType: sourceType,
		Content:    content,
		Embedding:  embedding,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestChunkRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	c := newChunk(domain.SourceKnowledge, "Rocks are 90-day priorities.", unitVector(0))
	c.ChapterTitle = "Traction"
	c.SectionHeading = "Rocks"
	require.NoError(t, repo.Create(ctx, c))

	retrieved, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, retrieved.ID)
	assert.Equal(t, domain.SourceKnowledge, retrieved.SourceType)
	assert.Equal(t, c.Content, retrieved.Content)
	assert.Equal(t, "Traction", retrieved.ChapterTitle)
	assert.Equal(t, "Rocks", retrieved.SectionHeading)
	assert.True(t, retrieved.HasEmbedding())
	assert.Len(t, retrieved.Embedding, testEmbeddingDims)
}

func TestChunkRepository_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	_, err := repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)
}

func TestChunkRepository_CreateWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	c := newChunk(domain.SourceTranscript, "transcript text", nil)
	c.TranscriptTitle = "Weekly L10"
	c.MeetingID = "m-1"
	require.NoError(t, repo.Create(ctx, c))

	retrieved, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, retrieved.HasEmbedding())
	assert.Equal(t, "Weekly L10", retrieved.TranscriptTitle)
	assert.Equal(t, "m-1", retrieved.MeetingID)
}

func TestChunkRepository_ListMissingEmbeddings(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	embedded := newChunk(domain.SourceKnowledge, "has embedding", unitVector(0))
	older := newChunk(domain.SourceKnowledge, "older missing", nil)
	older.CreatedAt = time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)
	newer := newChunk(domain.SourceTranscript, "newer missing", nil)

	require.NoError(t, repo.CreateBatch(ctx, []*domain.Chunk{embedded, newer, older}))

	missing, err := repo.ListMissingEmbeddings(ctx, 0)
	require.NoError(t, err)
	require.Len(t, missing, 2)
	// Oldest first.
	assert.Equal(t, older.ID, missing[0].ID)
	assert.Equal(t, newer.ID, missing[1].ID)

	count, err := repo.CountMissingEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	limited, err := repo.ListMissingEmbeddings(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, older.ID, limited[0].ID)
}

func TestChunkRepository_UpdateEmbedding(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	c := newChunk(domain.SourceKnowledge, "missing at first", nil)
	require.NoError(t, repo.Create(ctx, c))

	require.NoError(t, repo.UpdateEmbedding(ctx, c.ID, unitVector(3)))

	retrieved, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, retrieved.HasEmbedding())
	assert.Equal(t, float32(1.0), retrieved.Embedding[3])

	// A second write is a no-op: the stored vector is kept.
	require.NoError(t, repo.UpdateEmbedding(ctx, c.ID, unitVector(7)))
	retrieved, err = repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, float32(1.0), retrieved.Embedding[3])
	assert.Equal(t, float32(0.0), retrieved.Embedding[7])
}

func TestChunkRepository_UpdateEmbedding_MissingChunk(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	err := repo.UpdateEmbedding(ctx, uuid.NewString(), unitVector(0))
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)
}

func TestChunkRepository_Delete(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	c := newChunk(domain.SourceKnowledge, "to delete", unitVector(0))
	require.NoError(t, repo.Create(ctx, c))

	require.NoError(t, repo.Delete(ctx, c.ID))
	_, err := repo.GetByID(ctx, c.ID)
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, c.ID), domain.ErrChunkNotFound)
}

func TestChunkRepository_List(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewChunkRepository(pool)

	base := time.Now().UTC().Truncate(time.Microsecond).Add(-time.Hour)
	var created []*domain.Chunk
	for i := 0; i < 5; i++ {
		source := domain.SourceKnowledge
		if i%2 == 1 {
			source = domain.SourceTranscript
		}
		c := newChunk(source, "chunk content", nil)
		c.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, c))
		created = append(created, c)
	}

	t.Run("orders by creation time", func(t *testing.T) {
		chunks, err := repo.List(ctx, "", nil, 10)
		require.NoError(t, err)
		require.Len(t, chunks, 5)
		for i, c := range chunks {
			assert.Equal(t, created[i].ID, c.ID)
		}
	})

	t.Run("filters by source", func(t *testing.T) {
		chunks, err := repo.List(ctx, domain.SourceTranscript, nil, 10)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		for _, c := range chunks {
			assert.Equal(t, domain.SourceTranscript, c.SourceType)
		}
	})

	t.Run("resumes after cursor", func(t *testing.T) {
		cursor := &pagination.Cursor{LastID: created[2].ID, Timestamp: created[2].CreatedAt}
		chunks, err := repo.List(ctx, "", cursor, 10)
		require.NoError(t, err)
		require.Len(t, chunks, 2)
		assert.Equal(t, created[3].ID, chunks[0].ID)
		assert.Equal(t, created[4].ID, chunks[1].ID)
	})

	t.Run("respects limit", func(t *testing.T) {
		chunks, err := repo.List(ctx, "", nil, 2)
		require.NoError(t, err)
		assert.Len(t, chunks, 2)
	})
}
