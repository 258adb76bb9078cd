// Package handlers provides HTTP handlers for span ingestion and queries.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/agenttrace/agenttrace/internal/modules/spans"
	"github.com/agenttrace/agenttrace/pkg/models"
)

// Submitter is the ingest side of the collector pipeline.
type Submitter interface {
	Submit(span models.Span) error
}

// Handler handles span HTTP requests
type Handler struct {
	repo     *spans.Repository
	pipeline Submitter
	log      zerolog.Logger
}

// NewHandler creates a new span handler
func NewHandler(repo *spans.Repository, pipeline Submitter, log zerolog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		pipeline: pipeline,
		log:      log.With().Str("handler", "spans").Logger(),
	}
}

// BatchRequest wraps a batch span export.
type BatchRequest struct {
	Spans []models.Span `json:"spans"`
}

// HandleIngest handles POST /api/v1/spans
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var span models.Span
	if err := json.NewDecoder(r.Body).Decode(&span); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode span")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := validateSpan(&span); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.pipeline.Submit(span); err != nil {
		h.log.Warn().Err(err).Str("span_id", span.SpanID).Msg("Pipeline rejected span")
		http.Error(w, "Collector busy, span dropped", http.StatusServiceUnavailable)
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"data": map[string]interface{}{
			"accepted": 1,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleIngestBatch handles POST /api/v1/spans/batch
func (h *Handler) HandleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode span batch")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Spans) == 0 {
		http.Error(w, "spans array is required", http.StatusBadRequest)
		return
	}

	accepted, dropped := 0, 0
	for i := range req.Spans {
		if err := validateSpan(&req.Spans[i]); err != nil {
			dropped++
			continue
		}
		if err := h.pipeline.Submit(req.Spans[i]); err != nil {
			dropped++
			continue
		}
		accepted++
	}

	if dropped > 0 {
		h.log.Warn().Int("accepted", accepted).Int("dropped", dropped).Msg("Partial batch ingest")
	}

	h.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"data": map[string]interface{}{
			"accepted": accepted,
			"dropped":  dropped,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleList handles GET /api/v1/spans
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.repo.Recent(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list spans")
		http.Error(w, "Failed to list spans", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"spans": result,
			"count": len(result),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGet handles GET /api/v1/spans/{spanID}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	spanID := chi.URLParam(r, "spanID")

	span, err := h.repo.GetBySpanID(r.Context(), spanID)
	if err != nil {
		h.log.Error().Err(err).Str("span_id", spanID).Msg("Failed to get span")
		http.Error(w, "Failed to get span", http.StatusInternalServerError)
		return
	}
	if span == nil {
		http.Error(w, "Span not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"span": span,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleSearch handles GET /api/v1/search
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query, err := parseSearchQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.repo.Search(r.Context(), query)
	if err != nil {
		h.log.Error().Err(err).Msg("Span search failed")
		http.Error(w, "Search failed", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"spans": result.Spans,
			"count": len(result.Spans),
			"total": result.Total,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"limit":     query.Limit,
			"offset":    query.Offset,
		},
	})
}

// HandleServices handles GET /api/v1/services
func (h *Handler) HandleServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.repo.Services(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list services")
		http.Error(w, "Failed to list services", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"services": services,
			"count":    len(services),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func validateSpan(span *models.Span) error {
	switch {
	case span.SpanID == "":
		return errMissing("span_id")
	case span.TraceID == "":
		return errMissing("trace_id")
	case span.OperationName == "":
		return errMissing("operation_name")
	case span.StartedAt.IsZero():
		return errMissing("started_at")
	}
	return nil
}

type validationError string

func (e validationError) Error() string { return string(e) }

func errMissing(field string) error {
	return validationError(field + " is required")
}

// parseSearchQuery maps URL query parameters onto a SearchQuery.
func parseSearchQuery(r *http.Request) (models.SearchQuery, error) {
	q := r.URL.Query()

	query := models.SearchQuery{
		Text:     q.Get("q"),
		Service:  q.Get("service"),
		Model:    q.Get("model"),
		SortBy:   q.Get("sort_by"),
		SortDesc: q.Get("sort_order") != "asc", // Newest first by default
	}

	if status := q.Get("status"); status != "" {
		s := models.SpanStatus(status)
		if !s.Valid() {
			return query, validationError("invalid status: " + status)
		}
		query.Status = s
	}

	query.Limit, _ = strconv.Atoi(q.Get("limit"))
	query.Offset, _ = strconv.Atoi(q.Get("offset"))

	for param, target := range map[string]**float64{
		"min_duration_ms": &query.MinDurationMs,
		"max_duration_ms": &query.MaxDurationMs,
		"min_cost":        &query.MinCostUSD,
		"max_cost":        &query.MaxCostUSD,
	} {
		if raw := q.Get(param); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return query, validationError("invalid " + param)
			}
			*target = &v
		}
	}

	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, validationError("invalid since timestamp")
		}
		query.Since = &t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return query, validationError("invalid until timestamp")
		}
		query.Until = &t
	}

	return query, nil
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
