package tui

import (
	"errors"
	"testing"

	tea "charm.land/bubbletea/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttrace/agenttrace/pkg/models"
)

func updated(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestWindowSizeMakesReady(t *testing.T) {
	m := NewModel(NewClient("http://localhost:8080"), "http://localhost:8080")
	assert.False(t, m.ready)

	m, _ = updated(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.True(t, m.ready)
	assert.Equal(t, 120, m.width)
	assert.Equal(t, 40, m.height)
}

func TestSummaryMsgStoresDataAndConnects(t *testing.T) {
	m := NewModel(NewClient("http://localhost:8080"), "http://localhost:8080")

	m, _ = updated(t, m, summaryMsg{summary: models.MetricsSummary{
		TotalSpans:   12,
		TotalCostUSD: 0.42,
	}})

	assert.True(t, m.connected)
	require.NotNil(t, m.summary)
	assert.Equal(t, int64(12), m.summary.TotalSpans)
	assert.Empty(t, m.fetchErr)
}

func TestSummaryErrorDisconnects(t *testing.T) {
	m := NewModel(NewClient("http://localhost:8080"), "http://localhost:8080")
	m.connected = true

	m, _ = updated(t, m, summaryMsg{err: errors.New("connection refused")})

	assert.False(t, m.connected)
	assert.Equal(t, "connection refused", m.fetchErr)
}

func TestTracesMsgKeepsLastGoodListOnError(t *testing.T) {
	m := NewModel(NewClient("http://localhost:8080"), "http://localhost:8080")

	m, _ = updated(t, m, tracesMsg{traces: []models.TraceSummary{{TraceID: "t1"}}})
	require.Len(t, m.traces, 1)

	m, _ = updated(t, m, tracesMsg{err: errors.New("down")})
	assert.Len(t, m.traces, 1)
}

func TestRefreshSchedulesFetches(t *testing.T) {
	m := NewModel(NewClient("http://localhost:8080"), "http://localhost:8080")

	_, cmd := updated(t, m, refreshMsg{})
	assert.NotNil(t, cmd)
}
