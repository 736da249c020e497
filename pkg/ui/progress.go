// SPDX-License-Identifier: Apache-2.0
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Work-Fort/Warehouse/pkg/config"
)

// Outcome classifies a finished task
type Outcome = config.ResultKind

const (
	OutcomeSucceeded = config.ResultSucceeded
	OutcomeSkipped   = config.ResultSkipped
	OutcomeFailed    = config.ResultFailed
)

// TaskDoneMsg reports one finished build
type TaskDoneMsg struct {
	Label    string
	Outcome  Outcome
	Detail   string
	Duration time.Duration
}

// ProgressDoneMsg ends the progress view
type ProgressDoneMsg struct{}

// Layout rows outside the task list: header, blank, status, bar, blank, footer
const progressChrome = 6

// ProgressModel shows builds finishing while a release runs. Cancel is
// called once when the user asks to stop; the view stays up until
// ProgressDoneMsg arrives.
type ProgressModel struct {
	Title  string
	Total  int
	Cancel func()

	lines     []string
	done      int
	failed    int
	cancelled bool
	finished  bool
	width     int
	height    int
	spinner   spinner.Model
	bar       progress.Model
	help      help.Model
	keys      progressKeyMap
}

// NewProgressModel creates a progress view for total builds
func NewProgressModel(title string, total int, cancel func()) *ProgressModel {
	theme := config.CurrentTheme
	return &ProgressModel{
		Title:   title,
		Total:   total,
		Cancel:  cancel,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(theme.InfoStyle())),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:    help.New(),
		keys:    newProgressKeyMap(),
		width:   80,
		height:  24,
	}
}

// Init starts the spinner
func (m *ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles task results, resizes and the cancel keys
func (m *ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.bar.Width = min(60, max(10, msg.Width-20))
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Cancel) {
			m.cancelled = true
			m.keys.Cancel.SetEnabled(false)
			if m.Cancel != nil {
				m.Cancel()
			}
		}
		return m, nil

	case TaskDoneMsg:
		m.done++
		if msg.Outcome == OutcomeFailed {
			m.failed++
		}
		m.lines = append(m.lines, formatTask(msg))
		return m, nil

	case ProgressDoneMsg:
		m.finished = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the progress screen
func (m *ProgressModel) View() string {
	if m.finished {
		return ""
	}
	theme := config.CurrentTheme

	if m.cancelled {
		return renderModal(m.width, m.height,
			"Cancelling release",
			fmt.Sprintf("%d of %d builds finished", m.done, m.Total),
			m.spinner.View()+" waiting for running builds to stop",
			"Nothing is published from a cancelled run.")
	}

	var b strings.Builder
	b.WriteString(theme.RenderHeader(m.width, "RELEASE", m.Title))
	b.WriteString("\n\n")
	status := fmt.Sprintf("%s Building  %d/%d", m.spinner.View(), m.done, m.Total)
	if m.failed > 0 {
		status += theme.ErrorStyle().Render(fmt.Sprintf("  (%d failed)", m.failed))
	}
	b.WriteString(status + "\n")
	b.WriteString(m.bar.ViewAs(m.fraction()) + "\n\n")
	for _, line := range tail(m.lines, m.height-progressChrome-1) {
		b.WriteString(line + "\n")
	}

	content := lipgloss.Place(m.width, m.height-1, lipgloss.Left, lipgloss.Top, b.String())
	return content + "\n" + theme.RenderFooter(m.width, m.help.View(m.keys))
}

func (m *ProgressModel) fraction() float64 {
	if m.Total == 0 {
		return 0
	}
	return min(1, float64(m.done)/float64(m.Total))
}

func formatTask(msg TaskDoneMsg) string {
	return config.CurrentTheme.ResultLine(msg.Outcome, msg.Label, msg.Detail, msg.Duration)
}
