package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/tractionhq/coachd/internal/api"
	"github.com/tractionhq/coachd/internal/pagination"
	"github.com/tractionhq/coachd/internal/service"
)

// CatalogReader lists what the index currently holds.
type CatalogReader interface {
	ListChunks(ctx context.Context, input service.ListChunksInput) (*pagination.PageResult[service.ChunkSummary], error)
}

type CatalogHandler struct {
	catalog CatalogReader
}

func NewCatalogHandler(catalog CatalogReader) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListChunks handles GET /chunks
func (h *CatalogHandler) ListChunks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 0
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	page, err := h.catalog.ListChunks(r.Context(), service.ListChunksInput{
		Source: q.Get("source"),
		Cursor: q.Get("cursor"),
		Limit:  limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, page)
}
