// SPDX-License-Identifier: Apache-2.0
package pipeline

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Work-Fort/Warehouse/pkg/build"
	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/packager"
)

// TargetReport is the outcome of one crate on one target
type TargetReport struct {
	Target   string
	State    build.State
	Reason   string
	Err      error
	Duration time.Duration
	Artifact *packager.Artifact
}

// Published reports whether the target produced an archive
func (t TargetReport) Published() bool { return t.Artifact != nil }

// CrateReport collects the targets of one crate
type CrateReport struct {
	Name    string
	Version string
	Remote  bool
	Patched bool
	// Err is set when the crate was excluded before building
	Err     error
	Targets []TargetReport
}

// Failed reports whether the crate produced nothing
func (c CrateReport) Failed() bool {
	if c.Err != nil {
		return true
	}
	for _, t := range c.Targets {
		if t.Published() {
			return false
		}
	}
	return true
}

// Report summarises a run
type Report struct {
	RunID        string
	OutputDir    string
	KeyID        string
	PublicKey    string
	KeyGenerated bool
	Crates       []CrateReport
	Artifacts    []*packager.Artifact
	Notes        []string

	Finalized    bool
	FinalizeErr  error
	IndexPath    string
	IndexEntries int
}

// ExitCode is 0 when the index was updated and every crate published at
// least one target.
func (r *Report) ExitCode() int {
	if r.FinalizeErr != nil {
		return 1
	}
	for _, c := range r.Crates {
		if c.Failed() {
			return 1
		}
	}
	if !r.Finalized {
		return 1
	}
	return 0
}

// Render formats the report for a terminal
func (r *Report) Render() string {
	theme := config.CurrentTheme
	title := cases.Title(language.English)
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", theme.InfoStyle().Bold(true).Render("Release "+r.RunID))
	if r.KeyGenerated {
		fmt.Fprintf(&b, "%s\n", theme.WarningMessage("Generated a new signing key "+r.KeyID))
	} else {
		fmt.Fprintf(&b, "%s\n", theme.SubtleStyle().Render("Signing key "+r.KeyID))
	}

	for _, c := range r.Crates {
		name := c.Name
		if c.Version != "" {
			name += " " + c.Version
		}
		b.WriteString("\n")
		if c.Err != nil {
			fmt.Fprintf(&b, "%s %s\n", theme.ErrorIndicator(), theme.ErrorStyle().Render(name))
			fmt.Fprintf(&b, "    %s\n", theme.SubtleStyle().Render(c.Err.Error()))
			continue
		}
		header := name
		if c.Patched {
			header += theme.SubtleStyle().Render(" (manifest patched)")
		}
		fmt.Fprintf(&b, "%s\n", header)

		for _, t := range c.Targets {
			state := title.String(t.State.String())
			switch {
			case t.Published():
				fmt.Fprintf(&b, "  %s %-36s %s %s\n", theme.CompleteIndicator(), t.Target,
					theme.SuccessStyle().Render(state),
					theme.SubtleStyle().Render(t.Artifact.FileName))
			case t.State == build.StateSkipped:
				fmt.Fprintf(&b, "  %s %-36s %s %s\n", theme.WarningIndicator(), t.Target,
					theme.WarningStyle().Render(state), t.Reason)
			default:
				fmt.Fprintf(&b, "  %s %-36s %s %s\n", theme.ErrorIndicator(), t.Target,
					theme.ErrorStyle().Render(state), t.Reason)
				if t.Err != nil {
					for _, line := range strings.Split(strings.TrimSpace(t.Err.Error()), "\n") {
						fmt.Fprintf(&b, "      %s\n", theme.SubtleStyle().Render(line))
					}
				}
			}
		}
	}

	b.WriteString("\n")
	for _, n := range r.Notes {
		fmt.Fprintf(&b, "%s\n", theme.InfoMessage(n))
	}
	switch {
	case r.Finalized:
		fmt.Fprintf(&b, "%s\n", theme.SuccessMessage(fmt.Sprintf("Published %d artifact(s); %s now lists %d", len(r.Artifacts), r.IndexPath, r.IndexEntries)))
	case r.FinalizeErr != nil:
		fmt.Fprintf(&b, "%s\n", theme.ErrorMessage("Index NOT updated: "+r.FinalizeErr.Error()))
	default:
		fmt.Fprintf(&b, "%s\n", theme.WarningMessage("Index NOT updated"))
	}
	return b.String()
}
