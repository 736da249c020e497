// SPDX-License-Identifier: Apache-2.0
package init

import (
	"fmt"
	"path/filepath"
	"strings"
)

// InitSettings holds everything needed to lay out a release repository
type InitSettings struct {
	// Crates are crate directories relative to the repository root
	Crates []string
	// Targets are the target triples (or short arch names) to build
	Targets []string
	// BaseURL is where the published tree will be served from
	BaseURL string
	// Layout is "tree" or "github"
	Layout string

	// Repo layout, all relative to the repository root
	KeyLocation     string // default: "keys"
	HistoryLocation string // default: "keys/history"
	OutputLocation  string // default: "dist"

	// Results
	KeyGenerated bool
	PublicKey    string
	FilesCreated []string
}

// DefaultSettings returns settings for a repository holding the crate in
// the current directory
func DefaultSettings() InitSettings {
	return InitSettings{
		Crates:          []string{"."},
		Layout:          "tree",
		KeyLocation:     "keys",
		HistoryLocation: "keys/history",
		OutputLocation:  "dist",
	}
}

// Validate checks that every location stays inside the repository
func (s InitSettings) Validate() error {
	locations := map[string]string{
		"key location":     s.KeyLocation,
		"history location": s.HistoryLocation,
		"output location":  s.OutputLocation,
	}
	for what, loc := range locations {
		if loc == "" {
			return fmt.Errorf("%s must not be empty", what)
		}
		if filepath.IsAbs(loc) {
			return fmt.Errorf("%s must be a relative path inside the repo, got %q", what, loc)
		}
		if clean := filepath.Clean(loc); clean == ".." || strings.HasPrefix(clean, "../") {
			return fmt.Errorf("%s must be inside the repo, got %q", what, loc)
		}
	}
	if len(s.Crates) == 0 {
		return fmt.Errorf("at least one crate is required")
	}
	switch s.Layout {
	case "tree", "github":
	default:
		return fmt.Errorf("layout must be tree or github, got %q", s.Layout)
	}
	return nil
}
