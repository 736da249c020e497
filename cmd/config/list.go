// SPDX-License-Identifier: Apache-2.0
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Work-Fort/Warehouse/pkg/config"
)

func newListCmd() *cobra.Command {
	var onlySet bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List every setting with its source",
		Long: `List every known setting, plus unknown keys found in config files,
as "key = value (source)". Secret settings are masked.`,
		Example: `  warehouse config list
  warehouse config list --set

  # Output:
  # release.jobs = 8 (from ./warehouse.yaml)
  # release.output = dist (default)
  # use-tui = false (from ENV: WAREHOUSE_USE_TUI)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := config.ListConfigValues()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			shown := 0
			for _, cv := range values {
				if onlySet && cv.Source == config.SourceDefault {
					continue
				}
				fmt.Fprintf(out, "%s = %s (%s)\n", cv.Key, cv.Display(), cv.Describe())
				shown++
			}
			if shown == 0 {
				fmt.Fprintln(out, "No configuration set")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&onlySet, "set", false, "Hide settings that use their default")
	return cmd
}
