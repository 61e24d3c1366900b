package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tractionhq/coachd/internal/api"
	"github.com/tractionhq/coachd/internal/api/handlers"
	"github.com/tractionhq/coachd/internal/api/middleware"
)

type RouterConfig struct {
	ContextHandler *handlers.ContextHandler
	IngestHandler  *handlers.IngestHandler
	CatalogHandler *handlers.CatalogHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/context", cfg.ContextHandler.BuildContext)
	r.Post("/search", cfg.ContextHandler.Search)

	r.Post("/knowledge", cfg.IngestHandler.CreateKnowledge)
	r.Post("/transcripts", cfg.IngestHandler.CreateTranscript)
	r.Get("/chunks", cfg.CatalogHandler.ListChunks)

	return r
}
