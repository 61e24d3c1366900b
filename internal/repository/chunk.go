package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/tractionhq/coachd/internal/domain"
	"github.com/tractionhq/coachd/internal/pagination"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const chunkColumns = `id, source_type, content, embedding, chapter_title, section_heading, transcript_title, meeting_id, created_at`

// ChunkRepository handles persistence of knowledge and transcript chunks.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx dbtx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

func (r *ChunkRepository) Create(ctx context.Context, c *domain.Chunk) error {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO chunks (id, source_type, content, embedding, chapter_title, section_heading, transcript_title, meeting_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID,
		c.SourceType,
		c.Content,
		nullableVector(c.Embedding),
		nullableString(c.ChapterTitle),
		nullableString(c.SectionHeading),
		nullableString(c.TranscriptTitle),
		nullableString(c.MeetingID),
		createdAt,
	)
	return err
}

// CreateBatch inserts chunks in order; creation order is what search and
// fusion tie-breaking rely on.
func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []*domain.Chunk) error {
	for _, c := range chunks {
		if err := r.Create(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *ChunkRepository) GetByID(ctx context.Context, id string) (*domain.Chunk, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = $1`, id)
	c, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrChunkNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListMissingEmbeddings returns chunks without a stored embedding, oldest
// first. This is the backfill selection: a chunk that already has an
// embedding is never returned, which makes re-runs idempotent.
func (r *ChunkRepository) ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE embedding IS NULL ORDER BY created_at ASC, id ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

// List returns chunks ordered by creation time then id, optionally filtered
// by source. The cursor is keyset-based, so pages stay stable while new
// chunks are being ingested.
func (r *ChunkRepository) List(ctx context.Context, source domain.SourceType, cursor *pagination.Cursor, limit int) ([]*domain.Chunk, error) {
	query := `SELECT ` + chunkColumns + ` FROM chunks`
	var conds []string
	var args []any

	if source != "" {
		args = append(args, source)
		conds = append(conds, fmt.Sprintf("source_type = $%d", len(args)))
	}
	if cursor != nil {
		args = append(args, cursor.Timestamp, cursor.LastID)
		conds = append(conds, fmt.Sprintf("(created_at, id) > ($%d, $%d)", len(args)-1, len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at ASC, id ASC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChunkRows(rows)
}

func (r *ChunkRepository) CountMissingEmbeddings(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE embedding IS NULL`,
	).Scan(&count)
	return count, err
}

// UpdateEmbedding writes a computed vector back, keyed by chunk id. Only
// chunks still missing an embedding are updated, so a concurrent or repeated
// backfill never overwrites a stored vector.
func (r *ChunkRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE chunks SET embedding = $1 WHERE id = $2 AND embedding IS NULL`,
		pgvector.NewVector(embedding), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		// Either the chunk is gone or it already has an embedding; verify.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
	}
	return nil
}

// Delete removes a chunk including its embedding; chunks are never partially
// deleted.
func (r *ChunkRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrChunkNotFound
	}
	return nil
}

func scanChunk(row pgx.Row) (*domain.Chunk, error) {
	var c domain.Chunk
	var embedding *pgvector.Vector
	var chapterTitle, sectionHeading, transcriptTitle, meetingID *string
	err := row.Scan(&c.ID, &c.SourceType, &c.Content, &embedding,
		&chapterTitle, &sectionHeading, &transcriptTitle, &meetingID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if embedding != nil {
		c.Embedding = embedding.Slice()
	}
	if chapterTitle != nil {
		c.ChapterTitle = *chapterTitle
	}
	if sectionHeading != nil {
		c.SectionHeading = *sectionHeading
	}
	if transcriptTitle != nil {
		c.TranscriptTitle = *transcriptTitle
	}
	if meetingID != nil {
		c.MeetingID = *meetingID
	}
	return &c, nil
}

func scanChunkRows(rows pgx.Rows) ([]*domain.Chunk, error) {
	var results []*domain.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableVector(embedding []float32) *pgvector.Vector {
	if len(embedding) == 0 {
		return nil
	}
	vec := pgvector.NewVector(embedding)
	return &vec
}
