// Package handlers provides HTTP handlers for metrics queries.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/agenttrace/agenttrace/internal/modules/metrics"
	"github.com/agenttrace/agenttrace/pkg/models"
)

// SnapshotFunc loads the last cached metrics summary. Returns nil without
// error when no snapshot exists yet.
type SnapshotFunc func(ctx context.Context) (*models.MetricsSummary, error)

// Handler handles metrics HTTP requests
type Handler struct {
	service  *metrics.Service
	snapshot SnapshotFunc
	log      zerolog.Logger
}

// NewHandler creates a new metrics handler. snapshot may be nil to disable
// the cached-summary fallback.
func NewHandler(service *metrics.Service, snapshot SnapshotFunc, log zerolog.Logger) *Handler {
	return &Handler{
		service:  service,
		snapshot: snapshot,
		log:      log.With().Str("handler", "metrics").Logger(),
	}
}

// RegisterRoutes registers all metrics routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/metrics", func(r chi.Router) {
		r.Get("/summary", h.HandleSummary)
		r.Get("/costs", h.HandleCosts)
		r.Get("/latency", h.HandleLatency)
		r.Get("/errors", h.HandleErrors)
	})
}

// parseWindow reads optional since/until RFC3339 query parameters.
func parseWindow(r *http.Request) (time.Time, time.Time, error) {
	var since, until time.Time
	q := r.URL.Query()

	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return since, until, err
		}
		since = t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return since, until, err
		}
		until = t
	}
	return since, until, nil
}

// HandleSummary handles GET /api/v1/metrics/summary
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		http.Error(w, "invalid time window", http.StatusBadRequest)
		return
	}

	summary, err := h.service.Summary(r.Context(), since, until)

	// The snapshot covers the default window only; a caller who pinned an
	// explicit range always gets a live answer.
	source := "live"
	if h.snapshot != nil && since.IsZero() && until.IsZero() && (err != nil || summary.TotalSpans == 0) {
		cached, cacheErr := h.snapshot(r.Context())
		if cacheErr != nil {
			h.log.Warn().Err(cacheErr).Msg("Failed to load metrics snapshot")
		} else if cached != nil {
			summary, err = cached, nil
			source = "snapshot"
		}
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute metrics summary")
		http.Error(w, "Failed to compute metrics", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"summary": summary,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"source":    source,
		},
	})
}

// HandleCosts handles GET /api/v1/metrics/costs
func (h *Handler) HandleCosts(w http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		http.Error(w, "invalid time window", http.StatusBadRequest)
		return
	}

	groupBy := r.URL.Query().Get("group_by")
	costs, err := h.service.Costs(r.Context(), groupBy, since, until)
	if err != nil {
		h.log.Error().Err(err).Str("group_by", groupBy).Msg("Failed to compute cost metrics")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"costs": costs,
			"count": len(costs),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"group_by":  groupBy,
		},
	})
}

// HandleLatency handles GET /api/v1/metrics/latency
func (h *Handler) HandleLatency(w http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		http.Error(w, "invalid time window", http.StatusBadRequest)
		return
	}

	series, err := h.service.Latency(r.Context(), since, until)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute latency metrics")
		http.Error(w, "Failed to compute metrics", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"latency": series,
			"count":   len(series),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleErrors handles GET /api/v1/metrics/errors
func (h *Handler) HandleErrors(w http.ResponseWriter, r *http.Request) {
	since, until, err := parseWindow(r)
	if err != nil {
		http.Error(w, "invalid time window", http.StatusBadRequest)
		return
	}

	series, err := h.service.Errors(r.Context(), since, until)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute error metrics")
		http.Error(w, "Failed to compute metrics", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"errors": series,
			"count":  len(series),
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
