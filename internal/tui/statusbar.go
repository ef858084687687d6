package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

func renderStatusBar(articleCount, page, width int, searching, loading bool) string {
	left := fmt.Sprintf(" page %d · %d articles", page, articleCount)
	if loading {
		left += " (loading...)"
	}

	right := " n/p page  / search  o open  ? help  q quit "
	if searching {
		right = " esc cancel  enter search "
	}

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}

	bar := left + fmt.Sprintf("%*s", gap, "") + right

	return statusBarStyle.Width(width).Render(bar)
}
