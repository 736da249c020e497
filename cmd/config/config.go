// SPDX-License-Identifier: Apache-2.0
package config

import (
	"github.com/spf13/cobra"

	"github.com/Work-Fort/Warehouse/pkg/config"
)

// NewConfigCmd creates the config command and its subcommands
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage warehouse configuration",
		Long: `Read and write warehouse settings.

Settings resolve from, highest first:
  1. Command line flags (--log-level, --use-tui)
  2. Environment variables (WAREHOUSE_*)
  3. Repo config (./warehouse.yaml)
  4. User config (~/.config/warehouse/config.yaml)
  5. Defaults

set and unset write the repo config unless --global is given. Per-machine
settings such as github-token are only accepted with --global.`,
		Example: `  warehouse config set release.jobs 8
  warehouse config set --global github-token ghp_xxxxx
  warehouse config get release.output
  warehouse config unset release.jobs
  warehouse config list`,
	}

	cmd.AddCommand(newSetCmd(), newGetCmd(), newUnsetCmd(), newListCmd(), newSchemaCmd())
	return cmd
}

// scopeFlag adds --global and returns the scope it selects
func scopeFlag(cmd *cobra.Command) func() config.ConfigScope {
	global := cmd.Flags().Bool("global", false, "Write the user config instead of ./warehouse.yaml")
	return func() config.ConfigScope {
		if *global {
			return config.ScopeUser
		}
		return config.ScopeRepo
	}
}

// completeKeys offers registry keys for the first argument
func completeKeys(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return config.Keys(), cobra.ShellCompDirectiveNoFileComp
}
