package handlers

import (
	"bytes"
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
	apptesting "github.com/agenttrace/agenttrace/internal/testing"
	"github.com/agenttrace/agenttrace/pkg/logger"
	"github.com/agenttrace/agenttrace/pkg/models"
)

type fakeSubmitter struct {
	submitted []models.Span
	err       error
}

func (f *fakeSubmitter) Submit(span models.Span) error {
	if f.err != nil {
		return f.err
	}
	f.submitted = append(f.submitted, span)
	return nil
}

func setup(t *testing.T) (*chi.Mux, *spans.Repository, *fakeSubmitter) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(apptesting.LoadSchema(t, "spans_schema.sql"))
	require.NoError(t, err)

	repo := spans.NewRepository(db)
	submitter := &fakeSubmitter{}
	handler := NewHandler(repo, submitter, logger.Nop())

	router := chi.NewRouter()
	handler.RegisterRoutes(router)
	return router, repo, submitter
}

func TestRegisterRoutes(t *testing.T) {
	router, _, _ := setup(t)
	assert.NotNil(t, router)
}

func TestHandleIngest(t *testing.T) {
	router, _, submitter := setup(t)

	span := apptesting.NewSpanFixture("s1", "t1")
	body, err := json.Marshal(span)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/spans/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, submitter.submitted, 1)
	assert.Equal(t, "s1", submitter.submitted[0].SpanID)
}

func TestHandleIngestRejectsInvalidSpan(t *testing.T) {
	router, _, submitter := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/spans/", bytes.NewReader([]byte(`{"trace_id":"t1"}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, submitter.submitted)
}

func TestHandleIngestBatchPartial(t *testing.T) {
	router, _, submitter := setup(t)

	batch := BatchRequest{Spans: []models.Span{
		apptesting.NewSpanFixture("ok1", "t1"),
		{TraceID: "t1"}, // Missing span_id and operation_name
		apptesting.NewSpanFixture("ok2", "t1"),
	}}
	body, err := json.Marshal(batch)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/spans/batch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, submitter.submitted, 2)

	var resp struct {
		Data struct {
			Accepted int `json:"accepted"`
			Dropped  int `json:"dropped"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Accepted)
	assert.Equal(t, 1, resp.Data.Dropped)
}

func TestHandleGetAndNotFound(t *testing.T) {
	router, repo, _ := setup(t)

	require.NoError(t, repo.Insert(context.Background(), apptesting.NewSpanFixture("s1", "t1")))

	req := httptest.NewRequest(http.MethodGet, "/spans/s1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/spans/missing", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSearchFilters(t *testing.T) {
	router, repo, _ := setup(t)
	ctx := context.Background()

	llm := apptesting.NewLLMSpanFixture("llm1", "t1", "gpt-4o", 100, 50)
	llm.ServiceName = "agent-a"
	other := apptesting.NewSpanFixture("plain1", "t2")
	other.ServiceName = "agent-b"
	require.NoError(t, repo.InsertBatch(ctx, []models.Span{llm, other}))

	req := httptest.NewRequest(http.MethodGet, "/search?service=agent-a", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Count int   `json:"count"`
			Total int64 `json:"total"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Data.Count)
	assert.Equal(t, int64(1), resp.Data.Total)

	// Invalid status is rejected up front
	req = httptest.NewRequest(http.MethodGet, "/search?status=bogus", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
