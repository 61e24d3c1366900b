package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	OpenAIAPIKey string `envconfig:"OPENAI_API_KEY"`

	// Retrieval tuning
	SimilarityThreshold float32 `envconfig:"SIMILARITY_THRESHOLD" default:"0.5"`
	SearchLimit         int     `envconfig:"SEARCH_LIMIT" default:"8"`
	ContextMaxChars     int     `envconfig:"CONTEXT_MAX_CHARS" default:"6000"`
	SnippetMaxChars     int     `envconfig:"SNIPPET_MAX_CHARS" default:"220"`
	RecordTopN          int     `envconfig:"RECORD_TOP_N" default:"5"`

	// Backfill worker
	BackfillBatchSize    int           `envconfig:"BACKFILL_BATCH_SIZE" default:"32"`
	BackfillPollInterval time.Duration `envconfig:"BACKFILL_POLL_INTERVAL" default:"1m"`

	// Transcript archive (S3-compatible object storage)
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"coachd-transcripts"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("COACHD", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}
