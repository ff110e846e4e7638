package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/syncservice"
)

// Handler holds the API endpoint implementations.
type Handler struct {
	svc *syncservice.Service
}

// NewHandler creates a new API handler.
func NewHandler(svc *syncservice.Service) *Handler {
	return &Handler{svc: svc}
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	st, err := h.svc.Status()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// TriggerSync handles POST /sync.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.TriggerSync(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, apperr.ErrUnauthorized) {
			status = http.StatusForbidden
		}
		writeJSON(w, status, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ListRecords handles GET /records.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	records, err := h.svc.Records(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

// GetRecord handles GET /records/{number}.
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.ParseInt(chi.URLParam(r, "number"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid issue number"))
		return
	}
	rec, err := h.svc.Record(number)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, errorBody("record not found"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Search handles GET /search?q=...
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing query parameter q"))
		return
	}
	limit := queryInt(r, "limit", 20)
	records, err := h.svc.Search(query, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

// queryInt reads an integer query parameter with a fallback.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
