package domain

import "time"

// SourceType identifies which knowledge pool a chunk belongs to.
type SourceType string

const (
	// SourceKnowledge marks chunks ingested from methodology chapters.
	SourceKnowledge SourceType = "knowledge"
	// SourceTranscript marks chunks ingested from meeting transcripts.
	SourceTranscript SourceType = "transcript"
	// SourceRecords labels context assembled from live operational records.
	// Records are never stored as chunks; the value exists for attribution only.
	SourceRecords SourceType = "records"
)

// Chunk is one indexed unit of text with an optional embedding.
// A chunk with a nil Embedding is excluded from vector search but still
// participates in keyword search.
type Chunk struct {
	ID         string
	SourceType SourceType
	Content    string
	Embedding  []float32

	// Knowledge-pool metadata
	ChapterTitle   string
	SectionHeading string

	// Transcript-pool metadata
	TranscriptTitle string
	MeetingID       string

	CreatedAt time.Time
}

// HasEmbedding reports whether the chunk carries a computed embedding.
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}

// Title returns the display title appropriate for the chunk's pool.
func (c *Chunk) Title() string {
	switch c.SourceType {
	case SourceTranscript:
		return c.TranscriptTitle
	default:
		if c.SectionHeading != "" {
			return c.ChapterTitle + " / " + c.SectionHeading
		}
		return c.ChapterTitle
	}
}

// ValidateChunk checks the invariants required before a chunk is persisted.
// expectedDims is the embedding provider's fixed output dimensionality; a nil
// embedding is valid (it will be filled in by backfill).
func ValidateChunk(c *Chunk, expectedDims int) error {
	if c == nil {
		return ErrMissingRequiredField
	}
	if c.ID == "" {
		return NewDomainError(ErrCodeValidation, "chunk ID is required")
	}
	if c.Content == "" {
		return NewDomainError(ErrCodeValidation, "chunk content is required")
	}
	if !isValidSourceType(c.SourceType) {
		return ErrInvalidSourceType
	}
	if c.Embedding != nil && len(c.Embedding) != expectedDims {
		return ErrInvalidEmbeddingDims
	}
	return nil
}

func isValidSourceType(s SourceType) bool {
	switch s {
	case SourceKnowledge, SourceTranscript:
		return true
	}
	return false
}
