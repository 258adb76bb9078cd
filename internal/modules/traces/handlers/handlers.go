// Package handlers provides HTTP handlers for trace queries.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/agenttrace/agenttrace/internal/modules/traces"
	"github.com/agenttrace/agenttrace/pkg/models"
)

// Handler handles trace HTTP requests
type Handler struct {
	repo *traces.Repository
	log  zerolog.Logger
}

// NewHandler creates a new trace handler
func NewHandler(repo *traces.Repository, log zerolog.Logger) *Handler {
	return &Handler{
		repo: repo,
		log:  log.With().Str("handler", "traces").Logger(),
	}
}

// HandleList handles GET /api/v1/traces
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := models.TraceQuery{
		Service: q.Get("service"),
	}
	query.Limit, _ = strconv.Atoi(q.Get("limit"))
	query.Offset, _ = strconv.Atoi(q.Get("offset"))

	if status := q.Get("status"); status != "" {
		s := models.SpanStatus(status)
		if !s.Valid() {
			http.Error(w, "invalid status: "+status, http.StatusBadRequest)
			return
		}
		query.Status = s
	}
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid since timestamp", http.StatusBadRequest)
			return
		}
		query.Since = &t
	}

	summaries, err := h.repo.List(r.Context(), query)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list traces")
		http.Error(w, "Failed to list traces", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"traces": summaries,
			"count":  len(summaries),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGet handles GET /api/v1/traces/{traceID}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "traceID")

	detail, err := h.repo.Get(r.Context(), traceID)
	if err != nil {
		h.log.Error().Err(err).Str("trace_id", traceID).Msg("Failed to get trace")
		http.Error(w, "Failed to get trace", http.StatusInternalServerError)
		return
	}
	if detail == nil {
		http.Error(w, "Trace not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"trace": detail,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetSpans handles GET /api/v1/traces/{traceID}/spans
func (h *Handler) HandleGetSpans(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "traceID")

	detail, err := h.repo.Get(r.Context(), traceID)
	if err != nil {
		h.log.Error().Err(err).Str("trace_id", traceID).Msg("Failed to get trace spans")
		http.Error(w, "Failed to get trace spans", http.StatusInternalServerError)
		return
	}
	if detail == nil {
		http.Error(w, "Trace not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"spans": detail.Spans,
			"count": len(detail.Spans),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
