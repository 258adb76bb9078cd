// Package server provides the HTTP server and routing for AgentTrace.
package server

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/agenttrace/agenttrace/internal/collector"
	"github.com/agenttrace/agenttrace/internal/config"
	"github.com/agenttrace/agenttrace/internal/database"
	"github.com/agenttrace/agenttrace/internal/events"
	"github.com/agenttrace/agenttrace/internal/modules/charts"
	"github.com/agenttrace/agenttrace/internal/modules/metrics"
	metricshandlers "github.com/agenttrace/agenttrace/internal/modules/metrics/handlers"
	"github.com/agenttrace/agenttrace/internal/modules/spans"
	spanshandlers "github.com/agenttrace/agenttrace/internal/modules/spans/handlers"
	"github.com/agenttrace/agenttrace/internal/modules/traces"
	traceshandlers "github.com/agenttrace/agenttrace/internal/modules/traces/handlers"
	"github.com/agenttrace/agenttrace/internal/scheduler"
	"github.com/agenttrace/agenttrace/pkg/embedded"
	"github.com/agenttrace/agenttrace/pkg/models"
)

// Deps bundles everything the HTTP layer needs.
type Deps struct {
	Config   *config.Config
	Log      zerolog.Logger
	SpansDB  *database.DB
	CacheDB  *database.DB
	Pipeline *collector.Pipeline
	Bus      *events.Bus
}

// Server wraps the HTTP server and its routes.
type Server struct {
	cfg       *config.Config
	log       zerolog.Logger
	router    *chi.Mux
	server    *http.Server
	spansDB   *database.DB
	cacheDB   *database.DB
	pipeline  *collector.Pipeline
	bus       *events.Bus
	startTime time.Time
}

// New creates a new HTTP server.
func New(deps Deps) *Server {
	// Register MIME types to ensure correct Content-Type headers
	mime.AddExtensionType(".js", "application/javascript")
	mime.AddExtensionType(".mjs", "application/javascript")
	mime.AddExtensionType(".css", "text/css")
	mime.AddExtensionType(".json", "application/json")
	mime.AddExtensionType(".svg", "image/svg+xml")

	s := &Server{
		cfg:       deps.Config,
		log:       deps.Log.With().Str("component", "server").Logger(),
		router:    chi.NewRouter(),
		spansDB:   deps.SpansDB,
		cacheDB:   deps.CacheDB,
		pipeline:  deps.Pipeline,
		bus:       deps.Bus,
		startTime: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", deps.Config.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)

	// Request logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !s.cfg.DevMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	// Health check (before dashboard routing)
	s.router.Get("/health", s.handleHealth)

	spanRepo := spans.NewRepository(s.spansDB.Conn())
	traceRepo := traces.NewRepository(s.spansDB.Conn(), spanRepo)
	metricsService := metrics.NewService(s.spansDB.Conn())
	chartsService := charts.NewService(s.spansDB.Conn(), s.log)

	// Last cached summary backs /metrics/summary when the live query has
	// nothing to say (fresh restart, empty window).
	snapshot := func(ctx context.Context) (*models.MetricsSummary, error) {
		return scheduler.LoadSnapshot(ctx, s.cacheDB.Conn())
	}

	spanHandler := spanshandlers.NewHandler(spanRepo, s.pipeline, s.log)
	traceHandler := traceshandlers.NewHandler(traceRepo, s.log)
	metricsHandler := metricshandlers.NewHandler(metricsService, snapshot, s.log)
	chartsHandler := NewChartsHandler(chartsService, s.log)
	wsHandler := NewWebsocketHandler(s.bus, s.log)

	s.router.Route("/api/v1", func(r chi.Router) {
		spanHandler.RegisterRoutes(r)
		traceHandler.RegisterRoutes(r)
		metricsHandler.RegisterRoutes(r)
		r.Get("/charts/overview", chartsHandler.HandleOverview)
		r.Get("/stream", wsHandler.ServeHTTP)
	})

	// Unified SSE event stream
	streamHandler := NewEventsStreamHandler(s.bus, s.log)
	s.router.Get("/api/events/stream", streamHandler.ServeHTTP)

	// System status endpoints
	systemHandler := NewSystemHandlers(s.cfg, s.spansDB, s.cacheDB, s.pipeline, s.bus, s.startTime, s.log)
	systemHandler.RegisterRoutes(s.router)

	s.setupStaticRoutes()
}

// setupStaticRoutes serves the embedded dashboard.
func (s *Server) setupStaticRoutes() {
	webFS, err := fs.Sub(embedded.Files, "web")
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to create web filesystem from embedded files")
		return
	}

	assetsFS, err := fs.Sub(webFS, "assets")
	if err != nil {
		s.log.Warn().Err(err).Msg("Dashboard assets directory not found in embedded files")
	} else {
		fileServer := http.FileServer(http.FS(assetsFS))
		s.router.Handle("/assets/*", http.StripPrefix("/assets/", s.assetsHandler(fileServer)))
	}

	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		s.servePage(w, webFS, "index.html")
	})
	s.router.Get("/settings", func(w http.ResponseWriter, r *http.Request) {
		s.servePage(w, webFS, "settings.html")
	})

	// SPA routing: serve the dashboard for any non-API path
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api") || strings.HasPrefix(r.URL.Path, "/health") {
			http.NotFound(w, r)
			return
		}
		s.servePage(w, webFS, "index.html")
	})
}

// servePage serves an HTML page from the embedded filesystem.
func (s *Server) servePage(w http.ResponseWriter, webFS fs.FS, name string) {
	data, err := fs.ReadFile(webFS, name)
	if err != nil {
		s.log.Error().Err(err).Str("page", name).Msg("Failed to read embedded page")
		http.Error(w, "Dashboard not available", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		s.log.Error().Err(err).Str("page", name).Msg("Failed to write page response")
	}
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.spansDB.HealthCheck(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("Health check failed")
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.HTTPPort).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// assetsHandler wraps the file server to set correct MIME types.
func (s *Server) assetsHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ext := filepath.Ext(r.URL.Path)

		contentType := mime.TypeByExtension(ext)
		if contentType == "" {
			switch ext {
			case ".js", ".mjs":
				contentType = "application/javascript"
			case ".css":
				contentType = "text/css"
			case ".json":
				contentType = "application/json"
			case ".woff", ".woff2":
				contentType = "font/woff2"
			case ".svg":
				contentType = "image/svg+xml"
			default:
				contentType = "application/octet-stream"
			}
		}
		w.Header().Set("Content-Type", contentType)

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
