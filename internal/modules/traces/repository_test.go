package traces

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttrace/agenttrace/internal/modules/spans"
	apptesting "github.com/agenttrace/agenttrace/internal/testing"
	"github.com/agenttrace/agenttrace/pkg/models"
)

func newTestRepo(t *testing.T) (*Repository, *spans.Repository) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(apptesting.LoadSchema(t, "spans_schema.sql"))
	require.NoError(t, err)

	spanRepo := spans.NewRepository(db)
	return NewRepository(db, spanRepo), spanRepo
}

func seedTrace(t *testing.T, spanRepo *spans.Repository, traceID string, startedAt time.Time, withError bool) {
	t.Helper()

	trace := apptesting.NewTraceFixture(traceID, 3)
	trace[0].StartedAt = startedAt
	for i := 1; i < len(trace); i++ {
		trace[i].StartedAt = startedAt.Add(time.Duration(i) * 100 * time.Millisecond)
		ended := trace[i].StartedAt.Add(50 * time.Millisecond)
		trace[i].EndedAt = &ended
	}
	ended := startedAt.Add(time.Second)
	trace[0].EndedAt = &ended
	if withError {
		trace[2].Status = models.StatusError
	}

	// LLM child with cost
	model := "gpt-4o"
	tokensIn, tokensOut := 1000, 200
	cost := 0.0045
	trace[1].ModelName = &model
	trace[1].TokensIn = &tokensIn
	trace[1].TokensOut = &tokensOut
	trace[1].CostUSD = &cost

	require.NoError(t, spanRepo.InsertBatch(context.Background(), trace))
}

func TestListSummaries(t *testing.T) {
	repo, spanRepo := newTestRepo(t)
	base := time.Now().UTC().Add(-time.Hour)

	seedTrace(t, spanRepo, "t-old", base, false)
	seedTrace(t, spanRepo, "t-new", base.Add(30*time.Minute), true)

	summaries, err := repo.List(context.Background(), models.TraceQuery{})
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	// Newest first
	assert.Equal(t, "t-new", summaries[0].TraceID)
	assert.Equal(t, "agent.run", summaries[0].RootOperation)
	assert.Equal(t, int64(3), summaries[0].SpanCount)
	assert.Equal(t, int64(1), summaries[0].ErrorCount)
	assert.Equal(t, int64(1200), summaries[0].TotalTokens)
	assert.InDelta(t, 0.0045, summaries[0].TotalCostUSD, 1e-9)
	require.NotNil(t, summaries[0].DurationMs)
	assert.InDelta(t, 1000, *summaries[0].DurationMs, 10)
}

func TestListStatusFilter(t *testing.T) {
	repo, spanRepo := newTestRepo(t)
	base := time.Now().UTC().Add(-time.Hour)

	seedTrace(t, spanRepo, "t-ok", base, false)
	seedTrace(t, spanRepo, "t-err", base.Add(time.Minute), true)

	errored, err := repo.List(context.Background(), models.TraceQuery{Status: models.StatusError})
	require.NoError(t, err)
	require.Len(t, errored, 1)
	assert.Equal(t, "t-err", errored[0].TraceID)

	clean, err := repo.List(context.Background(), models.TraceQuery{Status: models.StatusOk})
	require.NoError(t, err)
	require.Len(t, clean, 1)
	assert.Equal(t, "t-ok", clean[0].TraceID)
}

func TestGetTraceDetail(t *testing.T) {
	repo, spanRepo := newTestRepo(t)

	seedTrace(t, spanRepo, "t1", time.Now().UTC().Add(-time.Minute), true)

	detail, err := repo.Get(context.Background(), "t1")
	require.NoError(t, err)
	require.NotNil(t, detail)

	assert.Equal(t, "t1", detail.TraceID)
	assert.Equal(t, "agent.run", detail.RootOperation)
	assert.Len(t, detail.Spans, 3)
	assert.Equal(t, int64(1), detail.ErrorCount)
	assert.True(t, detail.HasErrors())
}

func TestGetMissingTrace(t *testing.T) {
	repo, _ := newTestRepo(t)

	detail, err := repo.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, detail)
}

func TestCount(t *testing.T) {
	repo, spanRepo := newTestRepo(t)
	base := time.Now().UTC()

	seedTrace(t, spanRepo, "t1", base, false)
	seedTrace(t, spanRepo, "t2", base, false)

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
