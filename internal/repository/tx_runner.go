package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tractionhq/coachd/internal/domain"
)

// TxRunner runs chunk repository operations inside one transaction.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// WithTx begins a transaction, hands fn a chunk repository bound to it, and
// commits when fn returns nil. Any error rolls the whole transaction back.
func (r *TxRunner) WithTx(ctx context.Context, fn func(chunks *ChunkRepository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(NewChunkRepositoryWithTx(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

// AtomicChunkRepository persists chunk batches all-or-nothing. Ingestion uses
// it so a failed upload never leaves a partial document in the index.
type AtomicChunkRepository struct {
	runner *TxRunner
}

func NewAtomicChunkRepository(pool *pgxpool.Pool) *AtomicChunkRepository {
	return &AtomicChunkRepository{runner: NewTxRunner(pool)}
}

func (r *AtomicChunkRepository) CreateBatch(ctx context.Context, chunks []*domain.Chunk) error {
	return r.runner.WithTx(ctx, func(repo *ChunkRepository) error {
		return repo.CreateBatch(ctx, chunks)
	})
}
