package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenttrace/agenttrace/internal/modules/charts"
)

// ChartsHandler serves dashboard chart series.
type ChartsHandler struct {
	service *charts.Service
	log     zerolog.Logger
}

// NewChartsHandler creates a new charts handler.
func NewChartsHandler(service *charts.Service, log zerolog.Logger) *ChartsHandler {
	return &ChartsHandler{
		service: service,
		log:     log.With().Str("handler", "charts").Logger(),
	}
}

// HandleOverview handles GET /api/v1/charts/overview
func (h *ChartsHandler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	var since, until time.Time
	q := r.URL.Query()
	if raw := q.Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid time window", http.StatusBadRequest)
			return
		}
		since = t
	}
	if raw := q.Get("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid time window", http.StatusBadRequest)
			return
		}
		until = t
	}

	overview, err := h.service.Overview(r.Context(), since, until)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute chart overview")
		http.Error(w, "Failed to compute charts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"data": map[string]interface{}{
			"overview": overview,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	}); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
