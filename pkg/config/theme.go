// SPDX-License-Identifier: Apache-2.0
package config

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Theme holds the application color scheme
type Theme struct {
	Primary   string // Bright mint green
	Secondary string // Bright cyan
	Muted     string // Muted purple-gray
	Success   string
	Info      string
	Warning   string
	Error     string
}

// CurrentTheme is the active theme used throughout the application
var CurrentTheme = Theme{
	Primary:   "#82FB9C", // Hackerman accent
	Secondary: "#7cf8f7", // Hackerman color6
	Muted:     "#6a6e95",
	Success:   "#82FB9C",
	Info:      "#7cf8f7",
	Warning:   "#FFD700",
	Error:     "#FF6B6B",
}

func (t Theme) GetPrimaryColor() lipgloss.Color { return lipgloss.Color(t.Primary) }
func (t Theme) GetMutedColor() lipgloss.Color   { return lipgloss.Color(t.Muted) }
func (t Theme) GetWarningColor() lipgloss.Color { return lipgloss.Color(t.Warning) }

func (t Theme) SuccessStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Success))
}

func (t Theme) InfoStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Info))
}

func (t Theme) WarningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Warning))
}

func (t Theme) ErrorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Error))
}

func (t Theme) SubtleStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(t.Muted))
}

// Message helpers prefix text with the matching symbol

func (t Theme) SuccessMessage(text string) string { return t.SuccessStyle().Render("✓ " + text) }
func (t Theme) InfoMessage(text string) string    { return t.InfoStyle().Render("ℹ " + text) }
func (t Theme) WarningMessage(text string) string { return t.WarningStyle().Render("⚠ " + text) }
func (t Theme) ErrorMessage(text string) string   { return t.ErrorStyle().Render("✗ " + text) }

func (t Theme) PendingIndicator() string  { return t.SubtleStyle().Render("○") }
func (t Theme) CompleteIndicator() string { return t.SuccessStyle().Render("✓") }
func (t Theme) ErrorIndicator() string    { return t.ErrorStyle().Render("✗") }
func (t Theme) WarningIndicator() string  { return t.WarningStyle().Render("⚠") }

// ResultKind classifies a finished build for display
type ResultKind int

const (
	ResultSucceeded ResultKind = iota
	ResultSkipped
	ResultFailed
)

// ResultLine renders one finished build: symbol, label, then the duration
// for successes or the reason otherwise.
func (t Theme) ResultLine(kind ResultKind, label, reason string, took time.Duration) string {
	switch kind {
	case ResultSucceeded:
		return fmt.Sprintf("%s %s %s", t.CompleteIndicator(), label, t.SubtleStyle().Render(took.Round(time.Second).String()))
	case ResultSkipped:
		return fmt.Sprintf("%s %s %s", t.WarningIndicator(), label, t.WarningStyle().Render(reason))
	default:
		return fmt.Sprintf("%s %s %s", t.ErrorIndicator(), label, t.ErrorStyle().Render(reason))
	}
}

// RenderHeader renders the banner of full-screen views
// Format: "  WAREHOUSE  ▸  SECTION  ▸  [CONTEXT]  "
func (t Theme) RenderHeader(width int, section, context string) string {
	headerText := fmt.Sprintf("  WAREHOUSE  ▸  %s  ▸  [%s]  ", section, context)
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color(t.Secondary)).
		Bold(true).
		Width(width).
		Align(lipgloss.Center).
		Render(headerText)
}

// RenderFooter renders the key help line of full-screen views
// Format: "╰─ [content] ─╯"
func (t Theme) RenderFooter(width int, content string) string {
	return lipgloss.NewStyle().
		Foreground(t.GetMutedColor()).
		Width(width).
		Align(lipgloss.Center).
		Render("╰─ " + content + " ─╯")
}

// TODO: Investigate dynamically pulling theme from Omarchy terminal theme
// Omarchy themes are defined in ~/.config/omarchy/themes/*.toml; reading
// the active one with go-toml would let the CLI match the user's terminal.
