// SPDX-License-Identifier: Apache-2.0
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Work-Fort/Warehouse/pkg/config"
)

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a setting",
		Long: `Write a setting to ./warehouse.yaml, or to the user config with --global.

The value is parsed for the key's type: booleans accept true/false,
yes/no, on/off and 1/0; integers must be whole numbers. The value is
checked against the key's constraints before anything is written.`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeKeys,
		Example: `  warehouse config set release.jobs 8
  warehouse config set release.timeout 45m
  warehouse config set use-tui off
  warehouse config set --global github-token ghp_xxxxx`,
	}
	scope := scopeFlag(cmd)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		key := args[0]
		s := scope()
		if err := config.SetConfigValue(key, args[1], s); err != nil {
			return err
		}
		cv := config.ConfigValue{Key: key, Value: args[1]}
		msg := fmt.Sprintf("Set %s = %s in %s config (%s)", key, cv.Display(), s, config.ScopePath(s))
		fmt.Fprintln(cmd.OutOrStdout(), config.CurrentTheme.SuccessMessage(msg))
		return nil
	}
	return cmd
}
