package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/tractionhq/coachd/internal/service"
)

// BackfillRunner is the subset of the backfill service the worker needs.
type BackfillRunner interface {
	Backfill(ctx context.Context, input service.BackfillInput) (*service.BackfillReport, error)
}

// BackfillWorker periodically embeds chunks that were stored without a
// vector, e.g. while the embedding provider was unreachable.
type BackfillWorker struct {
	runner    BackfillRunner
	batchSize int
}

// NewBackfillWorker creates a new BackfillWorker instance
func NewBackfillWorker(runner BackfillRunner, batchSize int) *BackfillWorker {
	return &BackfillWorker{runner: runner, batchSize: batchSize}
}

// ProcessJobs implements the JobProcessor interface
func (w *BackfillWorker) ProcessJobs(ctx context.Context) error {
	report, err := w.runner.Backfill(ctx, service.BackfillInput{BatchSize: w.batchSize})
	if err != nil {
		return fmt.Errorf("backfill run failed: %w", err)
	}

	if report.Selected > 0 {
		log.Printf("backfill run: selected=%d processed=%d failures=%d duration=%v",
			report.Selected, report.Processed, len(report.Failures), report.Duration)
	}
	return nil
}
