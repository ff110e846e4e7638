package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/syncservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *syncservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Sync status and trigger.
	r.Get("/status", h.Status)
	r.Post("/sync", h.TriggerSync)

	// Tracking records.
	r.Get("/records", h.ListRecords)
	r.Get("/records/{number}", h.GetRecord)

	// Search over synced resolutions.
	r.Get("/search", h.Search)

	// SSE run feed (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
