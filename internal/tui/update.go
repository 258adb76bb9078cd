package tui

import (
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
)

type keyMap struct {
	Quit    key.Binding
	Refresh key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case tea.KeyPressMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			cmds = append(cmds, fetchAll(m.client)...)
		}

	case refreshMsg:
		cmds = append(cmds, fetchAll(m.client)...)
		cmds = append(cmds, scheduleRefresh())

	case summaryMsg:
		if msg.err != nil {
			m.connected = false
			m.fetchErr = msg.err.Error()
		} else {
			m.connected = true
			m.fetchErr = ""
			s := msg.summary
			m.summary = &s
		}

	case tracesMsg:
		if msg.err == nil {
			m.traces = msg.traces
		}
	}

	return m, tea.Batch(cmds...)
}
