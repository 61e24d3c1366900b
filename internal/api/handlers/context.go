package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/tractionhq/coachd/internal/api"
	"github.com/tractionhq/coachd/internal/domain"
	"github.com/tractionhq/coachd/internal/service"
)

// requestTimeout bounds one context-build or search request. Sub-calls carry
// their own shorter timeouts so a degraded partial context can still be
// returned inside this window.
const requestTimeout = 30 * time.Second

// ContextBuilderService assembles LLM context for a user query.
type ContextBuilderService interface {
	BuildContext(ctx context.Context, userQuery string) (*service.ContextResult, error)
}

// SearchService exposes fused hybrid search directly.
type SearchService interface {
	Search(ctx context.Context, query string, opts service.SearchOptions) ([]*service.SearchResult, error)
}

type ContextHandler struct {
	builder ContextBuilderService
	search  SearchService
}

func NewContextHandler(builder ContextBuilderService, search SearchService) *ContextHandler {
	return &ContextHandler{builder: builder, search: search}
}

type ContextRequest struct {
	Query string `json:"query"`
}

type ContextResponse struct {
	Text    string   `json:"text"`
	Sources []string `json:"sources"`
}

// BuildContext handles POST /context
func (h *ContextHandler) BuildContext(w http.ResponseWriter, r *http.Request) {
	var req ContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := h.builder.BuildContext(ctx, req.Query)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ContextResponse{
		Text:    result.Text,
		Sources: result.Sources,
	})
}

type SearchRequest struct {
	Query  string `json:"query"`
	Source string `json:"source,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	// Threshold zero or omitted uses the server default; negative disables
	// the similarity cutoff.
	Threshold float32 `json:"threshold,omitempty"`
}

type SearchResultResponse struct {
	ID       string            `json:"id"`
	Source   string            `json:"source"`
	Title    string            `json:"title,omitempty"`
	Content  string            `json:"content"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type SearchResponse struct {
	Results []*SearchResultResponse `json:"results"`
}

// Search handles POST /search
func (h *ContextHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	results, err := h.search.Search(ctx, req.Query, service.SearchOptions{
		Source:    domain.SourceType(req.Source),
		Limit:     req.Limit,
		Threshold: req.Threshold,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := SearchResponse{Results: make([]*SearchResultResponse, 0, len(results))}
	for _, result := range results {
		resp.Results = append(resp.Results, &SearchResultResponse{
			ID:       result.ID,
			Source:   string(result.Source),
			Title:    result.Title,
			Content:  result.Content,
			Score:    result.Score,
			Metadata: result.Metadata,
		})
	}
	api.Success(w, http.StatusOK, resp)
}
