// SPDX-License-Identifier: Apache-2.0
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Work-Fort/Warehouse/pkg/config"
)

func newUnsetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a setting from a config file",
		Long: `Remove a setting from ./warehouse.yaml, or from the user config with --global.

Naming a table such as "release" removes every setting under it. Tables
left empty are dropped. Lower layers still apply afterwards.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeKeys,
		Example: `  warehouse config unset release.jobs
  warehouse config unset release
  warehouse config unset --global github-token`,
	}
	scope := scopeFlag(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		s := scope()
		if err := config.UnsetConfigValue(args[0], s); err != nil {
			return err
		}
		msg := fmt.Sprintf("Removed %s from %s config (%s)", args[0], s, config.ScopePath(s))
		fmt.Fprintln(cmd.OutOrStdout(), config.CurrentTheme.SuccessMessage(msg))
		return nil
	}
	return cmd
}
