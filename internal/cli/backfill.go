package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/tractionhq/coachd/internal/config"
	"github.com/tractionhq/coachd/internal/database"
	"github.com/tractionhq/coachd/internal/openai"
	"github.com/tractionhq/coachd/internal/repository"
	"github.com/tractionhq/coachd/internal/service"
)

// BackfillCmd returns the backfill command
func BackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed chunks that have no vector",
		Long:  "Run one embedding backfill pass over chunks stored without a vector, then exit",
		RunE:  runBackfill,
	}

	cmd.Flags().Int("batch-size", 32, "Chunks embedded per provider call")
	cmd.Flags().Bool("dry-run", false, "Report what would be embedded without calling the provider")

	return cmd
}

func runBackfill(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	batchSize, _ := cmd.Flags().GetInt("batch-size")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	if !dryRun && !cfg.HasOpenAI() {
		return fmt.Errorf("COACHD_OPENAI_API_KEY is required for a live backfill run")
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	chunkRepo := repository.NewChunkRepository(pool)

	var embeddingClient service.EmbeddingClient
	if cfg.HasOpenAI() {
		embeddingClient = openai.NewClient(cfg.OpenAIAPIKey)
	} else {
		embeddingClient = &noEmbedding{}
	}

	backfillSvc := service.NewBackfillService(chunkRepo, embeddingClient)
	report, err := backfillSvc.Backfill(ctx, service.BackfillInput{
		BatchSize: batchSize,
		DryRun:    dryRun,
	})
	if err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	if report.DryRun {
		log.Printf("backfill dry run: %d chunks are missing embeddings", report.Selected)
		return nil
	}

	log.Printf("backfill complete: selected=%d processed=%d skipped=%d failures=%d duration=%v",
		report.Selected, report.Processed, report.Skipped, len(report.Failures), report.Duration)
	for _, f := range report.Failures {
		log.Printf("backfill failure: chunk=%s err=%s", f.ChunkID, f.Err)
	}
	if len(report.Failures) > 0 {
		return fmt.Errorf("backfill finished with %d failures", len(report.Failures))
	}
	return nil
}
