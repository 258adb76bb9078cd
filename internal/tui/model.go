package tui

import (
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/agenttrace/agenttrace/pkg/models"
)

const (
	refreshInterval = 5 * time.Second
	traceListLimit  = 15
)

// Model is the dashboard's bubbletea model.
type Model struct {
	client *Client
	apiURL string

	// Data
	connected bool
	summary   *models.MetricsSummary
	traces    []models.TraceSummary
	fetchErr  string

	// UI state
	width  int
	height int
	ready  bool
}

// Messages

type summaryMsg struct {
	summary models.MetricsSummary
	err     error
}

type tracesMsg struct {
	traces []models.TraceSummary
	err    error
}

type refreshMsg struct{}

// NewModel creates the dashboard model.
func NewModel(client *Client, apiURL string) Model {
	return Model{
		client: client,
		apiURL: apiURL,
	}
}

func (m Model) Init() tea.Cmd {
	cmds := fetchAll(m.client)
	cmds = append(cmds, scheduleRefresh())
	return tea.Batch(cmds...)
}

// Commands

func fetchAll(c *Client) []tea.Cmd {
	return []tea.Cmd{
		fetchSummary(c),
		fetchTraces(c),
	}
}

func fetchSummary(c *Client) tea.Cmd {
	return func() tea.Msg {
		s, err := c.Summary()
		return summaryMsg{s, err}
	}
}

func fetchTraces(c *Client) tea.Cmd {
	return func() tea.Msg {
		t, err := c.Traces(traceListLimit)
		return tracesMsg{t, err}
	}
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}
