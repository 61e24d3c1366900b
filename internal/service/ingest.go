package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tractionhq/coachd/internal/domain"
	"github.com/tractionhq/coachd/internal/telemetry"
)

// IngestChunkRepository is the persistence surface for newly ingested chunks.
type IngestChunkRepository interface {
	CreateBatch(ctx context.Context, chunks []*domain.Chunk) error
}

// TranscriptArchive stores raw transcript documents before they are chunked
// and indexed. Optional; ingestion proceeds without one.
type TranscriptArchive interface {
	Store(ctx context.Context, key string, body []byte) error
}

// KnowledgeInput is one methodology chapter section to index.
type KnowledgeInput struct {
	ChapterTitle   string
	SectionHeading string
	Content        string
}

// TranscriptInput is one uploaded meeting transcript to index.
type TranscriptInput struct {
	Title     string
	MeetingID string
	Body      string
}

// IngestResult reports what one ingestion produced.
type IngestResult struct {
	ChunkIDs []string
	// Embedded is false when the embedding provider was unreachable and the
	// chunks were left for backfill.
	Embedded bool
}

// IngestService splits incoming content into chunks, embeds them when the
// provider is reachable, and persists them. When embedding fails the chunks
// are stored without vectors and picked up by the next backfill run.
type IngestService struct {
	repo      IngestChunkRepository
	embedding EmbeddingClient
	archive   TranscriptArchive
	dims      int
	chunkCfg  ChunkConfig
}

// NewIngestService creates a new IngestService instance. archive may be nil.
func NewIngestService(repo IngestChunkRepository, embedding EmbeddingClient, archive TranscriptArchive, dims int) *IngestService {
	return &IngestService{
		repo:      repo,
		embedding: embedding,
		archive:   archive,
		dims:      dims,
		chunkCfg:  DefaultChunkConfig(),
	}
}

// IngestKnowledge indexes one methodology chapter section.
func (s *IngestService) IngestKnowledge(ctx context.Context, input KnowledgeInput) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.IngestKnowledge", telemetry.SpanAttributes{
		Operation: "ingest_knowledge",
		Source:    string(domain.SourceKnowledge),
	})
	defer span.End()

	if input.ChapterTitle == "" || input.Content == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "chapter title and content are required")
	}

	chunks := s.buildChunks(input.Content, func(c *domain.Chunk) {
		c.SourceType = domain.SourceKnowledge
		c.ChapterTitle = input.ChapterTitle
		c.SectionHeading = input.SectionHeading
	})
	return s.store(ctx, chunks)
}

// IngestTranscript archives the raw transcript, then indexes it.
func (s *IngestService) IngestTranscript(ctx context.Context, input TranscriptInput) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.IngestTranscript", telemetry.SpanAttributes{
		Operation: "ingest_transcript",
		Source:    string(domain.SourceTranscript),
	})
	defer span.End()

	if input.Title == "" || input.Body == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "transcript title and body are required")
	}

	if s.archive != nil {
		key := archiveKey(input)
		if err := s.archive.Store(ctx, key, []byte(input.Body)); err != nil {
			// The archive is a convenience copy; indexing proceeds.
			log.Printf("ingest: transcript archive write failed for %s: %v", key, err)
		}
	}

	chunks := s.buildChunks(input.Body, func(c *domain.Chunk) {
		c.SourceType = domain.SourceTranscript
		c.TranscriptTitle = input.Title
		c.MeetingID = input.MeetingID
	})
	return s.store(ctx, chunks)
}

func (s *IngestService) buildChunks(content string, decorate func(*domain.Chunk)) []*domain.Chunk {
	pieces := chunkText(content, s.chunkCfg)
	createdAt := time.Now().UTC()

	chunks := make([]*domain.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		// Offset each chunk by a microsecond, the finest step timestamptz
		// keeps, so (created_at, id) ordering preserves document order
		// within one ingestion.
		c := &domain.Chunk{
			ID:        uuid.NewString(),
			Content:   piece,
			CreatedAt: createdAt.Add(time.Duration(i) * time.Microsecond),
		}
		decorate(c)
		chunks = append(chunks, c)
	}
	return chunks
}

func (s *IngestService) store(ctx context.Context, chunks []*domain.Chunk) (*IngestResult, error) {
	if len(chunks) == 0 {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "content produced no chunks")
	}

	embedded := s.embedChunks(ctx, chunks)

	for _, c := range chunks {
		if err := domain.ValidateChunk(c, s.dims); err != nil {
			return nil, err
		}
	}

	if err := s.repo.CreateBatch(ctx, chunks); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return &IngestResult{ChunkIDs: ids, Embedded: embedded}, nil
}

// embedChunks attaches embeddings at creation time when possible. A provider
// outage leaves the chunks unembedded for backfill instead of failing the
// upload.
func (s *IngestService) embedChunks(ctx context.Context, chunks []*domain.Chunk) bool {
	if s.embedding == nil {
		return false
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := s.embedding.GenerateEmbeddings(ctx, texts)
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingUnavailable) || domain.IsDegradable(err) {
			log.Printf("ingest: embedding unavailable, %d chunks left for backfill: %v", len(chunks), err)
			return false
		}
		log.Printf("ingest: embedding failed, %d chunks left for backfill: %v", len(chunks), err)
		return false
	}

	for i, c := range chunks {
		c.Embedding = vectors[i]
	}
	return true
}

func archiveKey(input TranscriptInput) string {
	ts := time.Now().UTC().Format("2006/01/02")
	if input.MeetingID != "" {
		return fmt.Sprintf("transcripts/%s/%s.txt", ts, input.MeetingID)
	}
	return fmt.Sprintf("transcripts/%s/%s.txt", ts, uuid.NewString())
}
