package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/tractionhq/coachd/internal/domain"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used for generating embeddings
	DefaultEmbeddingModel = openai.AdaEmbeddingV2
	// DefaultEmbeddingDimensions is the expected dimension of embeddings from ada-002
	DefaultEmbeddingDimensions = 1536
	// DefaultMaxBatchItems is the provider's documented maximum number of
	// inputs per embedding request.
	DefaultMaxBatchItems = 2048

	// maxInputRunes caps the text sent for a single embedding. ada-002 accepts
	// 8191 tokens; at the usual ~4 chars per token this stays safely under the
	// limit. Truncation is by rune count so identical input always produces
	// identical output.
	maxInputRunes = 24000

	maxAttempts    = 4
	initialBackoff = 500 * time.Millisecond

	defaultMaxInFlight       = 4
	defaultRequestsPerSecond = 5
)

var (
	// ErrEmptyText is returned when text is empty after trimming
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding has wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
)

// EmbeddingAPI defines the provider boundary: ordered texts in, ordered
// vectors of equal length out.
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Client wraps the OpenAI API client with batching, deterministic truncation,
// retry with exponential backoff, and bounded in-flight concurrency.
type Client struct {
	api           EmbeddingAPI
	dimensions    int
	maxBatchItems int
	inFlight      chan struct{}
	limiter       *rate.Limiter
	retryBase     time.Duration
}

type OpenAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIAdapter(apiKey string, model openai.EmbeddingModel) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIAdapter{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// CreateEmbeddings calls the OpenAI API to create embeddings for a batch of texts
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// The API may return data out of order; Index restores input order.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

type Config struct {
	APIKey              string
	EmbeddingModel      openai.EmbeddingModel
	EmbeddingDimensions int
	MaxBatchItems       int
	MaxInFlight         int
	RequestsPerSecond   float64
}

// NewClient creates a new OpenAI client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new OpenAI client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	return newClient(NewOpenAIAdapter(cfg.APIKey, cfg.EmbeddingModel), cfg)
}

// NewClientWithAPI creates a client over a custom provider implementation.
func NewClientWithAPI(provider EmbeddingAPI, cfg Config) *Client {
	return newClient(provider, cfg)
}

func newClient(provider EmbeddingAPI, cfg Config) *Client {
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}
	maxBatch := cfg.MaxBatchItems
	if maxBatch <= 0 || maxBatch > DefaultMaxBatchItems {
		maxBatch = DefaultMaxBatchItems
	}
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	return &Client{
		api:           provider,
		dimensions:    dimensions,
		maxBatchItems: maxBatch,
		inFlight:      make(chan struct{}, maxInFlight),
		limiter:       rate.NewLimiter(rate.Limit(rps), 1),
		retryBase:     initialBackoff,
	}
}

// NewClientFromEnv creates a new OpenAI client using OPENAI_API_KEY environment variable
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// Dimensions returns the provider's fixed output dimensionality.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// GenerateEmbedding generates an embedding for a single text.
func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// GenerateEmbeddings generates embeddings for an ordered list of texts. The
// output has the same length and order as the input. Inputs beyond the
// provider's batch maximum are split into consecutive requests.
func (c *Client) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	prepared := make([]string, len(texts))
	for i, text := range texts {
		clean := truncateText(strings.TrimSpace(text))
		if clean == "" {
			return nil, ErrEmptyText
		}
		prepared[i] = clean
	}

	vectors := make([][]float32, 0, len(prepared))
	for start := 0; start < len(prepared); start += c.maxBatchItems {
		end := start + c.maxBatchItems
		if end > len(prepared) {
			end = len(prepared)
		}

		batch, err := c.embedBatch(ctx, prepared[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	for _, v := range vectors {
		if len(v) != c.dimensions {
			return nil, ErrWrongDimensions
		}
	}
	return vectors, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case c.inFlight <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-c.inFlight }()

	var lastErr error
	backoff := c.retryBase
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		vectors, err := c.api.CreateEmbeddings(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		if !isRetryable(err) {
			return nil, fmt.Errorf("failed to create embeddings: %w", err)
		}

		lastErr = err
		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}

	return nil, domain.NewDomainErrorWithCause(
		domain.ErrCodeUnavailable, "embedding provider unavailable", lastErr)
}

// isRetryable reports whether an error is a rate limit or transient failure
// worth retrying. Context cancellation and client-side API errors are not.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	// Anything else is assumed to be a transient network failure.
	return true
}

func truncateText(text string) string {
	runes := []rune(text)
	if len(runes) <= maxInputRunes {
		return text
	}
	return string(runes[:maxInputRunes])
}
