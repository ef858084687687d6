package tui

import (
	"github.com/charmbracelet/lipgloss"
)

type view int

const (
	viewRegional view = iota
	viewHeadlines
	viewSearch
)

func renderTabs(label string, current view, query string, width int) string {
	sep := tabSeparatorStyle.Render(" · ")

	tab := func(v view, text string) string {
		if v == current {
			return tabActiveStyle.Render(text)
		}
		return tabInactiveStyle.Render(text)
	}

	row := tab(viewRegional, "1 "+label) + sep + tab(viewHeadlines, "2 Headlines")
	if query != "" {
		row += sep + tab(viewSearch, "Search: "+truncateStr(query, 30))
	}

	return lipgloss.NewStyle().
		Background(colorSurface).
		Width(width).
		PaddingLeft(1).
		Render(row)
}
