package spans

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apptesting "github.com/agenttrace/agenttrace/internal/testing"
	"github.com/agenttrace/agenttrace/pkg/models"
)

const testSchema = `
	CREATE TABLE spans (
		span_id             TEXT PRIMARY KEY,
		trace_id            TEXT NOT NULL,
		parent_span_id      TEXT,
		operation_name      TEXT NOT NULL,
		service_name        TEXT NOT NULL DEFAULT 'unknown',
		kind                TEXT NOT NULL DEFAULT 'internal',
		started_at          TEXT NOT NULL,
		ended_at            TEXT,
		duration_ms         REAL,
		status              TEXT NOT NULL DEFAULT 'unset',
		status_message      TEXT,
		model_name          TEXT,
		model_provider      TEXT,
		tokens_in           INTEGER,
		tokens_out          INTEGER,
		tokens_reasoning    INTEGER,
		cost_usd            REAL,
		tool_name           TEXT,
		tool_input          TEXT,
		tool_output         TEXT,
		tool_duration_ms    REAL,
		prompt_preview      TEXT,
		completion_preview  TEXT,
		attributes          TEXT,
		events              TEXT,
		received_at         TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
	)
`

func newTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return NewRepository(db)
}

func TestInsertAndGetBySpanID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	span := apptesting.NewLLMSpanFixture("s1", "t1", "gpt-4o", 1200, 340)
	cost := 0.0064
	span.CostUSD = &cost
	span.Attributes = json.RawMessage(`{"agent":"researcher"}`)
	span.Events = []models.SpanEvent{
		{Name: "retry", Timestamp: time.Now().UTC().Truncate(time.Millisecond)},
	}

	require.NoError(t, repo.Insert(ctx, span))

	got, err := repo.GetBySpanID(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "s1", got.SpanID)
	assert.Equal(t, "t1", got.TraceID)
	assert.Equal(t, "llm.chat", got.OperationName)
	require.NotNil(t, got.ModelName)
	assert.Equal(t, "gpt-4o", *got.ModelName)
	require.NotNil(t, got.TokensIn)
	assert.Equal(t, 1200, *got.TokensIn)
	require.NotNil(t, got.CostUSD)
	assert.InDelta(t, 0.0064, *got.CostUSD, 1e-9)
	assert.JSONEq(t, `{"agent":"researcher"}`, string(got.Attributes))
	require.Len(t, got.Events, 1)
	assert.Equal(t, "retry", got.Events[0].Name)
}

func TestGetBySpanIDNotFound(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.GetBySpanID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInsertBatchUpsertsOnSpanID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// First export: span still open
	open := apptesting.NewSpanFixture("s1", "t1")
	open.EndedAt = nil
	open.DurationMs = nil
	open.Status = models.StatusUnset
	require.NoError(t, repo.Insert(ctx, open))

	// Second export: same span, now finished with an error
	finished := apptesting.NewSpanFixture("s1", "t1")
	finished.Status = models.StatusError
	msg := "tool timed out"
	finished.StatusMessage = &msg
	require.NoError(t, repo.Insert(ctx, finished))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := repo.GetBySpanID(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusError, got.Status)
	require.NotNil(t, got.EndedAt)
	require.NotNil(t, got.StatusMessage)
	assert.Equal(t, "tool timed out", *got.StatusMessage)
}

func TestGetByTraceIDOrdersByStart(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	trace := apptesting.NewTraceFixture("t1", 3)
	// Insert out of order
	require.NoError(t, repo.InsertBatch(ctx, []models.Span{trace[2], trace[0], trace[1]}))

	got, err := repo.GetByTraceID(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "t1-root", got[0].SpanID)
	assert.True(t, got[0].StartedAt.Before(got[1].StartedAt))
	assert.True(t, got[1].StartedAt.Before(got[2].StartedAt))
}

func TestSearchFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	llm := apptesting.NewLLMSpanFixture("llm1", "t1", "claude-sonnet-4-20250514", 1000, 500)
	llm.ServiceName = "agent-a"
	tool := apptesting.NewToolSpanFixture("tool1", "t1", "web_search")
	tool.ServiceName = "agent-b"
	tool.Status = models.StatusError
	plain := apptesting.NewSpanFixture("plain1", "t2")
	plain.ServiceName = "agent-a"

	require.NoError(t, repo.InsertBatch(ctx, []models.Span{llm, tool, plain}))

	// Free text matches tool name
	res, err := repo.Search(ctx, models.SearchQuery{Text: "web_search"})
	require.NoError(t, err)
	require.Len(t, res.Spans, 1)
	assert.Equal(t, "tool1", res.Spans[0].SpanID)

	// Service filter
	res, err = repo.Search(ctx, models.SearchQuery{Service: "agent-a"})
	require.NoError(t, err)
	assert.Len(t, res.Spans, 2)
	assert.Equal(t, int64(2), res.Total)

	// Status filter
	res, err = repo.Search(ctx, models.SearchQuery{Status: models.StatusError})
	require.NoError(t, err)
	require.Len(t, res.Spans, 1)
	assert.Equal(t, "tool1", res.Spans[0].SpanID)

	// Model filter
	res, err = repo.Search(ctx, models.SearchQuery{Model: "claude-sonnet-4-20250514"})
	require.NoError(t, err)
	assert.Len(t, res.Spans, 1)
}

func TestSearchLimitCapAndOffset(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	batch := make([]models.Span, 0, 30)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 30; i++ {
		sp := apptesting.NewSpanFixture(spanID(i), "t1")
		sp.StartedAt = base.Add(time.Duration(i) * time.Second)
		batch = append(batch, sp)
	}
	require.NoError(t, repo.InsertBatch(ctx, batch))

	// Limit beyond the cap is clamped, not an error
	res, err := repo.Search(ctx, models.SearchQuery{Limit: 50_000})
	require.NoError(t, err)
	assert.Len(t, res.Spans, 30)
	assert.Equal(t, int64(30), res.Total)

	// Pagination
	res, err = repo.Search(ctx, models.SearchQuery{Limit: 10, Offset: 25, SortBy: "started_at"})
	require.NoError(t, err)
	assert.Len(t, res.Spans, 5)
	assert.Equal(t, int64(30), res.Total)
}

func TestSearchSortWhitelist(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	fast := apptesting.NewSpanFixture("fast", "t1")
	fastDur := 10.0
	fast.DurationMs = &fastDur
	slow := apptesting.NewSpanFixture("slow", "t1")
	slowDur := 900.0
	slow.DurationMs = &slowDur
	require.NoError(t, repo.InsertBatch(ctx, []models.Span{fast, slow}))

	res, err := repo.Search(ctx, models.SearchQuery{SortBy: "duration_ms", SortDesc: true})
	require.NoError(t, err)
	require.Len(t, res.Spans, 2)
	assert.Equal(t, "slow", res.Spans[0].SpanID)

	// Unknown sort fields fall back to started_at instead of erroring
	res, err = repo.Search(ctx, models.SearchQuery{SortBy: "; DROP TABLE spans"})
	require.NoError(t, err)
	assert.Len(t, res.Spans, 2)
}

func TestSearchWindowWholeSecondBoundary(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	boundary := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	inside := apptesting.NewSpanFixture("inside", "t1")
	inside.StartedAt = boundary.Add(500 * time.Millisecond)
	before := apptesting.NewSpanFixture("before", "t1")
	before.StartedAt = boundary.Add(-500 * time.Millisecond)
	require.NoError(t, repo.InsertBatch(ctx, []models.Span{inside, before}))

	// A whole-second since must not drop sub-second spans inside the window
	res, err := repo.Search(ctx, models.SearchQuery{Since: &boundary})
	require.NoError(t, err)
	require.Len(t, res.Spans, 1)
	assert.Equal(t, "inside", res.Spans[0].SpanID)
	assert.Equal(t, int64(1), res.Total)

	// and a whole-second until must not admit spans started after it
	res, err = repo.Search(ctx, models.SearchQuery{Until: &boundary})
	require.NoError(t, err)
	require.Len(t, res.Spans, 1)
	assert.Equal(t, "before", res.Spans[0].SpanID)
}

func TestOrderingWithinOneSecond(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	second := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	exact := apptesting.NewSpanFixture("exact", "t1")
	exact.StartedAt = second
	half := apptesting.NewSpanFixture("half", "t1")
	half.StartedAt = second.Add(500 * time.Millisecond)
	require.NoError(t, repo.InsertBatch(ctx, []models.Span{half, exact}))

	got, err := repo.GetByTraceID(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].SpanID)
	assert.Equal(t, "half", got[1].SpanID)
}

func TestServices(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := apptesting.NewSpanFixture("a", "t1")
	a.ServiceName = "svc-b"
	b := apptesting.NewSpanFixture("b", "t2")
	b.ServiceName = "svc-a"
	c := apptesting.NewSpanFixture("c", "t3")
	c.ServiceName = "svc-a"
	require.NoError(t, repo.InsertBatch(ctx, []models.Span{a, b, c}))

	services, err := repo.Services(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"svc-a", "svc-b"}, services)
}

func TestPurgeBefore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	old := apptesting.NewSpanFixture("old", "t1")
	old.StartedAt = time.Now().UTC().Add(-48 * time.Hour)
	fresh := apptesting.NewSpanFixture("fresh", "t2")
	require.NoError(t, repo.InsertBatch(ctx, []models.Span{old, fresh}))

	purged, err := repo.PurgeBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDeleteAll(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// A clock-skewed client can report a start time in the future; a full
	// reset must remove those too.
	future := apptesting.NewSpanFixture("future", "t1")
	future.StartedAt = time.Now().UTC().Add(48 * time.Hour)
	present := apptesting.NewSpanFixture("present", "t2")
	require.NoError(t, repo.InsertBatch(ctx, []models.Span{future, present}))

	deleted, err := repo.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func spanID(i int) string {
	return "span-" + string(rune('a'+i/10)) + string(rune('0'+i%10))
}
