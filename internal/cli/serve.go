package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/tractionhq/coachd/internal/api/handlers"
	"github.com/tractionhq/coachd/internal/config"
	"github.com/tractionhq/coachd/internal/database"
	"github.com/tractionhq/coachd/internal/domain"
	"github.com/tractionhq/coachd/internal/jobs"
	"github.com/tractionhq/coachd/internal/openai"
	"github.com/tractionhq/coachd/internal/repository"
	"github.com/tractionhq/coachd/internal/server"
	"github.com/tractionhq/coachd/internal/service"
	"github.com/tractionhq/coachd/internal/storage"
	"github.com/tractionhq/coachd/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the coachd retrieval API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if shutdown := initTelemetry(); shutdown != nil {
		defer shutdown()
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	chunkRepo := repository.NewChunkRepository(pool)
	searchRepo := repository.NewSearchRepository(pool, openai.DefaultEmbeddingDimensions)
	recordRepo := repository.NewRecordRepository(pool)

	var embeddingClient service.EmbeddingClient
	if cfg.HasOpenAI() {
		embeddingClient = openai.NewClient(cfg.OpenAIAPIKey)
	} else {
		log.Println("no OpenAI API key configured, running keyword-only")
		embeddingClient = &noEmbedding{}
	}

	var archive service.TranscriptArchive
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("transcript archive bucket '%s' ready", cfg.S3Bucket)
		archive = s3Client
	}

	builderCfg := service.ContextBuilderConfig{
		SimilarityThreshold: cfg.SimilarityThreshold,
		SearchLimit:         cfg.SearchLimit,
		SnippetMaxChars:     cfg.SnippetMaxChars,
		ContextMaxChars:     cfg.ContextMaxChars,
		RecordTopN:          cfg.RecordTopN,
	}

	builder := service.NewContextBuilderWithConfig(searchRepo, recordRepo, embeddingClient, builderCfg)
	searcher := service.NewHybridSearcher(searchRepo, embeddingClient, builderCfg)
	ingestSvc := service.NewIngestService(repository.NewAtomicChunkRepository(pool), embeddingClient, archive, openai.DefaultEmbeddingDimensions)

	var backfillWorker *jobs.Worker
	if cfg.HasOpenAI() {
		backfillSvc := service.NewBackfillService(chunkRepo, embeddingClient)
		processor := jobs.NewBackfillWorker(backfillSvc, cfg.BackfillBatchSize)
		backfillWorker = jobs.NewWorker(processor, cfg.BackfillPollInterval)
		go backfillWorker.Start(ctx)
		log.Println("backfill worker started")
	}

	routerCfg := server.RouterConfig{
		ContextHandler: handlers.NewContextHandler(builder, searcher),
		IngestHandler:  handlers.NewIngestHandler(ingestSvc),
		CatalogHandler: handlers.NewCatalogHandler(service.NewCatalogService(chunkRepo)),
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.NewRouter(routerCfg),
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if backfillWorker != nil {
		backfillWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// initTelemetry starts Sentry tracing when SENTRY_DSN is set. The returned
// shutdown function is nil when telemetry is disabled.
func initTelemetry() func() {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return nil
	}

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	sampleRate := 0.1
	if environment == "development" {
		sampleRate = 1.0
	}

	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              dsn,
		Environment:      environment,
		TracesSampleRate: sampleRate,
	})
	if err != nil {
		log.Printf("telemetry init failed (continuing without tracing): %v", err)
		return nil
	}
	return shutdown
}

// noEmbedding stands in for the embedding provider when no API key is
// configured. Every call reports the provider unavailable, which the callers
// treat as a signal to degrade to keyword-only retrieval.
type noEmbedding struct{}

func (n *noEmbedding) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, domain.ErrEmbeddingUnavailable
}

func (n *noEmbedding) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, domain.ErrEmbeddingUnavailable
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
