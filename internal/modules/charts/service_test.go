package charts

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
	"github.com/agenttrace/agenttrace/pkg/logger"
	"github.com/agenttrace/agenttrace/pkg/models"
)

func newTestService(t *testing.T) (*Service, *spans.Repository) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(apptesting.LoadSchema(t, "spans_schema.sql"))
	require.NoError(t, err)

	return NewService(db, logger.Nop()), spans.NewRepository(db)
}

func TestOverview(t *testing.T) {
	svc, repo := newTestService(t)
	base := time.Now().UTC().Add(-20 * time.Minute).Truncate(time.Minute)

	var batch []models.Span
	for minute := 0; minute < 10; minute++ {
		for j := 0; j <= minute%3; j++ {
			sp := apptesting.NewSpanFixture(spanName(minute, j), "t1")
			sp.StartedAt = base.Add(time.Duration(minute) * time.Minute)
			cost := 0.001
			sp.CostUSD = &cost
			batch = append(batch, sp)
		}
	}
	require.NoError(t, repo.InsertBatch(context.Background(), batch))

	overview, err := svc.Overview(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)

	require.Len(t, overview.SpanRate.Timestamps, 10)
	assert.Len(t, overview.SpanRate.Smoothed, 10)
	assert.Len(t, overview.CostPerMin.Values, 10)
	assert.Len(t, overview.AvgLatency.Values, 10)

	// First bucket holds exactly one span costing 0.001
	assert.Equal(t, 1.0, overview.SpanRate.Values[0])
	assert.InDelta(t, 0.001, overview.CostPerMin.Values[0], 1e-9)

	// Fixture spans carry a 120ms duration
	assert.InDelta(t, 120, overview.AvgLatency.Values[0], 1)

	// Timestamps ascend
	for i := 1; i < len(overview.SpanRate.Timestamps); i++ {
		assert.True(t, overview.SpanRate.Timestamps[i-1].Before(overview.SpanRate.Timestamps[i]))
	}
}

func TestOverviewEmpty(t *testing.T) {
	svc, _ := newTestService(t)

	overview, err := svc.Overview(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, overview.SpanRate.Values)
}

func TestSmoothShortSeries(t *testing.T) {
	in := []float64{1, 2, 3}
	out := Smooth(in)
	assert.Equal(t, in, out)
}

func TestSmoothTracksTrend(t *testing.T) {
	values := []float64{10, 10, 10, 10, 10, 100, 100, 100, 100, 100}
	smoothed := Smooth(values)

	require.Len(t, smoothed, len(values))
	// EMA lags the step change but converges toward it
	assert.Less(t, smoothed[5], 100.0)
	assert.Greater(t, smoothed[9], smoothed[5])
	assert.Greater(t, smoothed[9], 80.0)
}

func spanName(minute, j int) string {
	return "c-" + string(rune('a'+minute)) + "-" + string(rune('0'+j))
}
