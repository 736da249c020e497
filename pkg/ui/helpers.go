// SPDX-License-Identifier: Apache-2.0
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Work-Fort/Warehouse/pkg/config"
)

// modalWidth is the inner width of centered dialogs
const modalWidth = 50

// renderModal centers a bordered dialog in a width x height screen. Empty
// lines are dropped.
func renderModal(width, height int, title string, lines ...string) string {
	theme := config.CurrentTheme
	muted := lipgloss.NewStyle().Foreground(theme.GetMutedColor())

	parts := []string{lipgloss.NewStyle().Foreground(theme.GetPrimaryColor()).Bold(true).Render(title)}
	for _, l := range lines {
		if l != "" {
			parts = append(parts, "", muted.Render(l))
		}
	}

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.GetWarningColor()).
		Padding(1, 2).
		Width(modalWidth).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, modal,
		lipgloss.WithWhitespaceChars(" "))
}

// tail returns at most the last n lines
func tail(lines []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
