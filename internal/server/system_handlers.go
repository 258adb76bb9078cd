package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/agenttrace/agenttrace/internal/collector"
	"github.com/agenttrace/agenttrace/internal/config"
	"github.com/agenttrace/agenttrace/internal/database"
	"github.com/agenttrace/agenttrace/internal/events"
)

// SystemHandlers exposes process and database status endpoints.
type SystemHandlers struct {
	cfg       *config.Config
	spansDB   *database.DB
	cacheDB   *database.DB
	pipeline  *collector.Pipeline
	bus       *events.Bus
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates system status handlers.
func NewSystemHandlers(cfg *config.Config, spansDB, cacheDB *database.DB, pipeline *collector.Pipeline, bus *events.Bus, startTime time.Time, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		cfg:       cfg,
		spansDB:   spansDB,
		cacheDB:   cacheDB,
		pipeline:  pipeline,
		bus:       bus,
		startTime: startTime,
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// RegisterRoutes registers all system routes.
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/system", func(r chi.Router) {
		r.Get("/info", h.HandleInfo)
		r.Get("/health", h.HandleHealth)
	})
}

// HandleInfo handles GET /api/system/info
func (h *SystemHandlers) HandleInfo(w http.ResponseWriter, r *http.Request) {
	cpuPct, ramPct := h.systemStats()
	stats := h.pipeline.Stats()

	databases := map[string]interface{}{}
	for _, db := range []*database.DB{h.spansDB, h.cacheDB} {
		if db == nil {
			continue
		}
		dbStats, err := db.Stats(r.Context())
		if err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to read database stats")
			continue
		}
		databases[db.Name()] = dbStats
	}

	h.writeJSON(w, map[string]interface{}{
		"data": map[string]interface{}{
			"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
			"cpu_percent":    cpuPct,
			"ram_percent":    ramPct,
			"collector": map[string]interface{}{
				"received":    stats.Received,
				"stored":      stats.Stored,
				"dropped":     stats.Dropped,
				"failed":      stats.Failed,
				"queue_depth": stats.QueueDepth,
			},
			"databases":   databases,
			"subscribers": h.bus.SubscriberCount(),
			"data_dir":    h.cfg.DataDir,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleHealth handles GET /api/system/health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	for _, db := range []*database.DB{h.spansDB, h.cacheDB} {
		if db == nil {
			continue
		}
		if err := db.HealthCheck(r.Context()); err != nil {
			checks[db.Name()] = err.Error()
			healthy = false
		} else {
			checks[db.Name()] = "ok"
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

// systemStats samples CPU and RAM usage percentages. The CPU sample uses a
// 100ms window so the endpoint stays responsive for dashboard polling.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response.
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
