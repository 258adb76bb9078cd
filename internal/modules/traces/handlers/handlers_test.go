package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttrace/agenttrace/internal/modules/spans"
	"github.com/agenttrace/agenttrace/internal/modules/traces"
	apptesting "github.com/agenttrace/agenttrace/internal/testing"
	"github.com/agenttrace/agenttrace/pkg/logger"
)

func setup(t *testing.T) (*chi.Mux, *spans.Repository) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(apptesting.LoadSchema(t, "spans_schema.sql"))
	require.NoError(t, err)

	spanRepo := spans.NewRepository(db)
	handler := NewHandler(traces.NewRepository(db, spanRepo), logger.Nop())

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router, spanRepo
}

func seedTrace(t *testing.T, repo *spans.Repository, traceID string, n int) {
	t.Helper()
	require.NoError(t, repo.InsertBatch(context.Background(), apptesting.NewTraceFixture(traceID, n)))
}

func TestHandleList(t *testing.T) {
	router, repo := setup(t)
	seedTrace(t, repo, "t1", 3)
	seedTrace(t, repo, "t2", 2)

	req := httptest.NewRequest(http.MethodGet, "/traces/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Count  int `json:"count"`
			Traces []struct {
				TraceID   string `json:"trace_id"`
				SpanCount int64  `json:"span_count"`
			} `json:"traces"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Count)
	require.Len(t, resp.Data.Traces, 2)
}

func TestHandleListRejectsBadParams(t *testing.T) {
	router, _ := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/traces/?status=bogus", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/traces/?since=yesterday", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGet(t *testing.T) {
	router, repo := setup(t)
	seedTrace(t, repo, "t1", 3)

	req := httptest.NewRequest(http.MethodGet, "/traces/t1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Trace struct {
				TraceID       string `json:"trace_id"`
				RootOperation string `json:"root_operation"`
				SpanCount     int64  `json:"span_count"`
				Spans         []struct {
					SpanID string `json:"span_id"`
				} `json:"spans"`
			} `json:"trace"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "t1", resp.Data.Trace.TraceID)
	assert.Equal(t, "agent.run", resp.Data.Trace.RootOperation)
	assert.Equal(t, int64(3), resp.Data.Trace.SpanCount)
	assert.Len(t, resp.Data.Trace.Spans, 3)
}

func TestHandleGetNotFound(t *testing.T) {
	router, _ := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/traces/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetSpans(t *testing.T) {
	router, repo := setup(t)
	seedTrace(t, repo, "t1", 4)

	req := httptest.NewRequest(http.MethodGet, "/traces/t1/spans", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Count int `json:"count"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Data.Count)
}
