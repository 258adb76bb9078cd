package tui

import (
	"fmt"
	"image/color"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/common-nighthawk/go-figure"
)

func (m Model) View() tea.View {
	if !m.ready {
		return tea.NewView("\n  Loading...")
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		m.viewHeader(),
		"",
		m.viewCards(),
		"",
		m.viewTraces(),
		"",
		m.viewFooter(),
	)

	v := tea.NewView(lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Padding(1, 2).
		Render(content))
	v.AltScreen = true
	return v
}

func (m Model) viewHeader() string {
	t := Default

	banner := figure.NewFigure("AgentTrace", "", true).String()
	banner = strings.TrimRight(banner, "\n")
	title := lipgloss.NewStyle().Foreground(t.Primary).Render(banner)

	status := lipgloss.NewStyle().Foreground(t.Success).Render("● connected")
	if !m.connected {
		reason := m.fetchErr
		if reason == "" {
			reason = "connecting..."
		}
		status = lipgloss.NewStyle().Foreground(t.Error).
			Render(fmt.Sprintf("○ %s (%s)", m.apiURL, reason))
	}

	return lipgloss.JoinVertical(lipgloss.Left, title, "", status)
}

func (m Model) viewCards() string {
	t := Default

	if m.summary == nil {
		return lipgloss.NewStyle().Foreground(t.Muted).Render("No metrics yet")
	}
	s := m.summary

	errColor := t.Success
	if s.ErrorCount > 0 {
		errColor = t.Error
	}

	cards := []string{
		card("SPANS", fmt.Sprintf("%d", s.TotalSpans), t.Primary),
		card("TRACES", fmt.Sprintf("%d", s.TotalTraces), t.Primary),
		card("TOKENS", fmt.Sprintf("%d", s.TotalTokens), t.Accent),
		card("COST", fmt.Sprintf("$%.4f", s.TotalCostUSD), t.Accent),
		card("ERRORS", fmt.Sprintf("%d (%.1f%%)", s.ErrorCount, s.ErrorRate*100), errColor),
		card("P95", fmt.Sprintf("%.0fms", s.P95LatencyMs), t.Warning),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func card(label, value string, valueColor color.Color) string {
	t := Default
	return lipgloss.NewStyle().
		Padding(0, 2, 0, 0).
		Render(lipgloss.JoinVertical(lipgloss.Left,
			lipgloss.NewStyle().Foreground(t.Muted).Render(label),
			lipgloss.NewStyle().Foreground(valueColor).Bold(true).Render(value),
		))
}

func (m Model) viewTraces() string {
	t := Default

	title := lipgloss.NewStyle().Foreground(t.Primary).Bold(true).Render("RECENT TRACES")
	if len(m.traces) == 0 {
		empty := lipgloss.NewStyle().Foreground(t.Muted).Render("no traces")
		return lipgloss.JoinVertical(lipgloss.Left, title, "", empty)
	}

	header := lipgloss.NewStyle().Foreground(t.Muted).Render(
		fmt.Sprintf("%-20s %-28s %6s %10s %10s", "TRACE", "ROOT OPERATION", "SPANS", "DURATION", "COST"))

	lines := []string{title, "", header}
	for _, tr := range m.traces {
		rowColor := t.Text
		if tr.HasErrors() {
			rowColor = t.Error
		}
		duration := "-"
		if tr.DurationMs != nil {
			duration = fmt.Sprintf("%.0fms", *tr.DurationMs)
		}
		row := fmt.Sprintf("%-20s %-28s %6d %10s %10s",
			clip(tr.TraceID, 20), clip(tr.RootOperation, 28), tr.SpanCount,
			duration, fmt.Sprintf("$%.4f", tr.TotalCostUSD))
		lines = append(lines, lipgloss.NewStyle().Foreground(rowColor).Render(row))
	}
	return strings.Join(lines, "\n")
}

func (m Model) viewFooter() string {
	t := Default
	return lipgloss.NewStyle().Foreground(t.Subtext).Render("r refresh   q quit")
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
