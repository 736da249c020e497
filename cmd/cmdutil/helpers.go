// SPDX-License-Identifier: Apache-2.0
package cmdutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/release"
	"github.com/Work-Fort/Warehouse/pkg/signing"
	"golang.org/x/term"
)

// ExitError makes the root command exit with Code without printing
// anything further; the command already reported the problem.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

// IsInteractive checks if stdin is connected to a terminal AND the user wants TUI mode
func IsInteractive() bool {
	// Check both terminal capability and user preference
	return term.IsTerminal(int(os.Stdin.Fd())) && config.GetUseTUI()
}

// HistoryDir resolves signing.history.location. Relative locations live in
// the repository when warehouse.yaml is present, otherwise beside the keys.
func HistoryDir() string {
	loc := config.GetSigningHistoryLocation()
	if loc == "" || filepath.IsAbs(loc) {
		return loc
	}
	if config.IsRepoMode() {
		return loc
	}
	return filepath.Join(config.GetSigningKeyLocation(), filepath.Base(loc))
}

// KeyOptions builds signing options from the app configuration
func KeyOptions(pw *signing.Passwords) signing.Options {
	return signing.Options{
		KeyDir:      config.GetSigningKeyLocation(),
		HistoryDir:  HistoryDir(),
		Password:    pw.Get,
		NewPassword: pw.New,
		Encrypt:     config.GetSigningEncryptedKeys(),
	}
}

// LoadReleaseConfig loads the release request named by path, or by the
// release.config setting when path is empty.
func LoadReleaseConfig(path string) (*release.Config, error) {
	if path == "" {
		path = config.GetReleaseConfig()
	}
	log.Debugf("Loading release config %s", path)

	cfg, err := release.Load(path)
	if err != nil {
		var cfgErr *release.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("%s: %w", path, cfgErr)
		}
		return nil, err
	}
	return cfg, nil
}

// PrintError writes a styled error line to stderr
func PrintError(msg string) {
	fmt.Fprintln(os.Stderr, config.CurrentTheme.ErrorMessage(msg))
}
