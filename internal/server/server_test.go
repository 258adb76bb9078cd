package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttrace/agenttrace/internal/collector"
	"github.com/agenttrace/agenttrace/internal/config"
	"github.com/agenttrace/agenttrace/internal/events"
	"github.com/agenttrace/agenttrace/internal/modules/spans"
	apptesting "github.com/agenttrace/agenttrace/internal/testing"
	"github.com/agenttrace/agenttrace/pkg/logger"
)

func newTestServer(t *testing.T) (*Server, *collector.Pipeline) {
	t.Helper()

	spansDB, cleanupSpans := apptesting.NewTestDB(t, "spans")
	t.Cleanup(cleanupSpans)
	cacheDB, cleanupCache := apptesting.NewTestDB(t, "cache")
	t.Cleanup(cleanupCache)

	cfg := &config.Config{
		HTTPPort: 0,
		LogLevel: "error",
		Collector: config.CollectorConfig{
			BatchSize:    10,
			BatchTimeout: 50 * time.Millisecond,
			BufferSize:   100,
		},
	}

	log := logger.Nop()
	bus := events.NewBus(log)
	repo := spans.NewRepository(spansDB.Conn())
	pipeline := collector.NewPipeline(cfg.Collector, repo, collector.NewCostCalculator(), bus, log)

	srv := New(Deps{
		Config:   cfg,
		Log:      log,
		SpansDB:  spansDB,
		CacheDB:  cacheDB,
		Pipeline: pipeline,
		Bus:      bus,
	})
	return srv, pipeline
}

func doRequest(srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDashboardServed(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "AgentTrace")
}

func TestSettingsPage(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<h1>Settings</h1>")
	assert.Contains(t, rec.Body.String(), "Settings Coming Soon")
}

func TestSPAFallback(t *testing.T) {
	srv, _ := newTestServer(t)

	// Unknown non-API paths serve the dashboard for client-side routing
	rec := doRequest(srv, http.MethodGet, "/traces/abc123", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "AgentTrace")

	// API paths still 404
	rec = doRequest(srv, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStaticAssets(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/assets/app.css", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")

	rec = doRequest(srv, http.MethodGet, "/assets/app.js", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "javascript")
}

func TestSystemHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/system/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Checks["spans"])
	assert.Equal(t, "ok", body.Checks["cache"])
}

func TestSystemInfo(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/system/info", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Collector map[string]interface{} `json:"collector"`
			Databases map[string]interface{} `json:"databases"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Data.Collector, "queue_depth")
	assert.Contains(t, body.Data.Databases, "spans")
}

func TestIngestThroughAPI(t *testing.T) {
	srv, pipeline := newTestServer(t)
	pipeline.Start()
	t.Cleanup(pipeline.Stop)

	span := apptesting.NewSpanFixture("api-span-1", "api-trace-1")
	payload, err := json.Marshal(span)
	require.NoError(t, err)

	rec := doRequest(srv, http.MethodPost, "/api/v1/spans", payload)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The pipeline flushes on its batch timeout
	require.Eventually(t, func() bool {
		rec := doRequest(srv, http.MethodGet, "/api/v1/spans/api-span-1", nil)
		return rec.Code == http.StatusOK
	}, 2*time.Second, 50*time.Millisecond)
}

func TestMetricsSummaryEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/metrics/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Summary struct {
				TotalSpans int64 `json:"total_spans"`
			} `json:"summary"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(0), body.Data.Summary.TotalSpans)
}

func TestShutdown(t *testing.T) {
	srv, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}
