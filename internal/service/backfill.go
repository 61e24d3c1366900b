package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tractionhq/coachd/internal/domain"
	"github.com/tractionhq/coachd/internal/telemetry"
)

// BackfillChunkRepository is the persistence surface the backfill pipeline
// needs: select chunks missing embeddings and write computed vectors back.
type BackfillChunkRepository interface {
	ListMissingEmbeddings(ctx context.Context, limit int) ([]*domain.Chunk, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
}

// BackfillInput controls one backfill run.
type BackfillInput struct {
	// BatchSize caps how many chunks are embedded per provider call.
	BatchSize int
	// DryRun selects and batches but skips the embedding call and write,
	// reporting what would be processed.
	DryRun bool
}

// BackfillFailure records one chunk that could not be processed.
type BackfillFailure struct {
	ChunkID string
	Err     string
}

// BackfillReport summarizes a backfill run.
type BackfillReport struct {
	Selected  int
	Processed int
	Skipped   int
	DryRun    bool
	Failures  []BackfillFailure
	Duration  time.Duration
}

// BackfillService computes embeddings for chunks that don't have one yet.
// Runs are idempotent: selection only picks chunks with a null embedding, so
// a chunk processed by an earlier run costs nothing on the next.
type BackfillService struct {
	repo      BackfillChunkRepository
	embedding EmbeddingClient
}

// NewBackfillService creates a new BackfillService instance.
func NewBackfillService(repo BackfillChunkRepository, embedding EmbeddingClient) *BackfillService {
	return &BackfillService{repo: repo, embedding: embedding}
}

const defaultBackfillBatchSize = 32

// Backfill embeds all chunks currently missing an embedding, in batches.
// Per-chunk failures are accumulated into the report and the run continues
// with the next batch. The run stops cooperatively between batches when ctx
// is cancelled; batches already written are not rolled back.
func (s *BackfillService) Backfill(ctx context.Context, input BackfillInput) (*BackfillReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "BackfillService.Backfill", telemetry.SpanAttributes{
		Operation: "backfill",
	})
	defer span.End()

	batchSize := input.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBackfillBatchSize
	}

	start := time.Now()
	report := &BackfillReport{DryRun: input.DryRun}

	chunks, err := s.repo.ListMissingEmbeddings(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to select chunks for backfill: %w", err)
	}
	report.Selected = len(chunks)

	if input.DryRun {
		report.Skipped = len(chunks)
		report.Duration = time.Since(start)
		return report, nil
	}

	for batchStart := 0; batchStart < len(chunks); batchStart += batchSize {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}

		batchEnd := batchStart + batchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		s.processBatch(ctx, chunks[batchStart:batchEnd], report)
	}

	report.Duration = time.Since(start)
	if len(report.Failures) > 0 {
		log.Printf("backfill: %d/%d chunks embedded, %d failures",
			report.Processed, report.Selected, len(report.Failures))
	}
	return report, nil
}

func (s *BackfillService) processBatch(ctx context.Context, batch []*domain.Chunk, report *BackfillReport) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	vectors, err := s.embedding.GenerateEmbeddings(ctx, texts)
	if err != nil {
		// The whole batch failed to embed; record each chunk and move on.
		for _, c := range batch {
			report.Failures = append(report.Failures, BackfillFailure{
				ChunkID: c.ID,
				Err:     err.Error(),
			})
		}
		return
	}

	for i, c := range batch {
		if err := s.repo.UpdateEmbedding(ctx, c.ID, vectors[i]); err != nil {
			report.Failures = append(report.Failures, BackfillFailure{
				ChunkID: c.ID,
				Err:     err.Error(),
			})
			continue
		}
		report.Processed++
	}
}
