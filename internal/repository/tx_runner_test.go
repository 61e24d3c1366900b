//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tractionhq/coachd/internal/domain"
	"github.com/tractionhq/coachd/internal/testutil"
)

func TestAtomicChunkRepository_RollsBackPartialBatch(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	atomic := NewAtomicChunkRepository(pool)
	repo := NewChunkRepository(pool)

	first := newChunk(domain.SourceKnowledge, "first section", nil)
	duplicate := newChunk(domain.SourceKnowledge, "duplicate id", nil)
	duplicate.ID = first.ID

	err := atomic.CreateBatch(ctx, []*domain.Chunk{first, duplicate})
	require.Error(t, err)

	// The first insert succeeded inside the transaction but must not survive
	// the rollback.
	_, err = repo.GetByID(ctx, first.ID)
	assert.ErrorIs(t, err, domain.ErrChunkNotFound)
}

func TestAtomicChunkRepository_CommitsFullBatch(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	atomic := NewAtomicChunkRepository(pool)
	repo := NewChunkRepository(pool)

	chunks := []*domain.Chunk{
		newChunk(domain.SourceTranscript, "part one", nil),
		newChunk(domain.SourceTranscript, "part two", nil),
	}
	require.NoError(t, atomic.CreateBatch(ctx, chunks))

	for _, c := range chunks {
		stored, err := repo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.Content, stored.Content)
	}
}
