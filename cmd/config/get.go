// SPDX-License-Identifier: Apache-2.0
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Work-Fort/Warehouse/pkg/config"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Show a setting and where it comes from",
		Long: `Show the effective value of a setting and the layer that supplies it:
an environment variable, ./warehouse.yaml, the user config or the default.
Secret settings are masked.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeKeys,
		Example: `  warehouse config get release.timeout

  # Output:
  # release.timeout = 45m (from ./warehouse.yaml)
  # github-token = ghp_******** (from ~/.config/warehouse/config.yaml)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cv, err := config.GetConfigValue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s (%s)\n", cv.Key, cv.Display(), cv.Describe())
			return nil
		},
	}
}
