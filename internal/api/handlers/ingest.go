package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/tractionhq/coachd/internal/api"
	"github.com/tractionhq/coachd/internal/service"
)

// IngestionService accepts new content into the searchable pools.
type IngestionService interface {
	IngestKnowledge(ctx context.Context, input service.KnowledgeInput) (*service.IngestResult, error)
	IngestTranscript(ctx context.Context, input service.TranscriptInput) (*service.IngestResult, error)
}

type IngestHandler struct {
	ingest IngestionService
}

func NewIngestHandler(ingest IngestionService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

type KnowledgeRequest struct {
	ChapterTitle   string `json:"chapter_title"`
	SectionHeading string `json:"section_heading,omitempty"`
	Content        string `json:"content"`
}

type TranscriptRequest struct {
	Title     string `json:"title"`
	MeetingID string `json:"meeting_id,omitempty"`
	Body      string `json:"body"`
}

type IngestResponse struct {
	ChunkIDs []string `json:"chunk_ids"`
	Embedded bool     `json:"embedded"`
}

// CreateKnowledge handles POST /knowledge
func (h *IngestHandler) CreateKnowledge(w http.ResponseWriter, r *http.Request) {
	var req KnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.ingest.IngestKnowledge(r.Context(), service.KnowledgeInput{
		ChapterTitle:   req.ChapterTitle,
		SectionHeading: req.SectionHeading,
		Content:        req.Content,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, IngestResponse{
		ChunkIDs: result.ChunkIDs,
		Embedded: result.Embedded,
	})
}

// CreateTranscript handles POST /transcripts
func (h *IngestHandler) CreateTranscript(w http.ResponseWriter, r *http.Request) {
	var req TranscriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.ingest.IngestTranscript(r.Context(), service.TranscriptInput{
		Title:     req.Title,
		MeetingID: req.MeetingID,
		Body:      req.Body,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, IngestResponse{
		ChunkIDs: result.ChunkIDs,
		Embedded: result.Embedded,
	})
}
