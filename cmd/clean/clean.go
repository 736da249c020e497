// SPDX-License-Identifier: Apache-2.0
package clean

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Work-Fort/Warehouse/cmd/cmdutil"
	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/ui"
)

// Work dir entries written by 'warehouse release'
var (
	buildDirs  = []string{"staging", "targets"}
	sourceDirs = []string{"sources"}
)

// NewCleanCmd creates the clean command
func NewCleanCmd() *cobra.Command {
	var (
		all   bool
		force bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Clean warehouse scratch data",
		Long: `Remove build outputs and staged archives left in the work directory.

With --all, downloaded crate sources and the update cache are removed too.
The published tree and the signing keys are never touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && !force && cmdutil.IsInteractive() {
				theme := config.CurrentTheme
				confirmed, err := ui.Confirm(theme.WarningIndicator()+"  Remove all scratch data?",
					"Downloaded crate sources are fetched again on the next release.",
					"The update cache is removed.")
				if err != nil {
					return err
				}
				if !confirmed {
					return fmt.Errorf("operation cancelled")
				}
			}

			removed, err := cleanWorkDir(config.GetReleaseWorkDir(), all)
			if err != nil {
				return err
			}
			if all {
				cache := filepath.Join(config.GlobalPaths.CacheDir, "update")
				if _, err := os.Stat(cache); err == nil {
					if err := os.RemoveAll(cache); err != nil {
						return fmt.Errorf("failed to remove %s: %w", cache, err)
					}
					removed = append(removed, cache)
				}
			}
			printRemoved(removed)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&all, "all", "a", false, "Also remove downloaded crate sources and the update cache")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt (use with --all)")

	return cmd
}

// cleanWorkDir removes the release scratch directories under dir and
// returns what it removed
func cleanWorkDir(dir string, all bool) ([]string, error) {
	names := buildDirs
	if all {
		names = append(append([]string{}, buildDirs...), sourceDirs...)
	}

	var removed []string
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		log.Debugf("Removing %s", path)
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		removed = append(removed, path)
	}
	return removed, nil
}

func printRemoved(removed []string) {
	theme := config.CurrentTheme
	subtleStyle := theme.SubtleStyle()
	itemStyle := theme.ErrorStyle()

	fmt.Println()
	if len(removed) == 0 {
		fmt.Println(theme.SuccessMessage("Nothing to clean"))
		return
	}
	fmt.Println(theme.SuccessMessage("Cleaned"))
	fmt.Println()
	for _, item := range removed {
		fmt.Println(subtleStyle.Render("  • ") + itemStyle.Render(item))
	}
}
