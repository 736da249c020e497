// SPDX-License-Identifier: Apache-2.0
package deps

import (
	"fmt"
	"strings"

	"github.com/Work-Fort/Warehouse/cmd/cmdutil"
	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/deps"
	"github.com/Work-Fort/Warehouse/pkg/ui"
	"github.com/spf13/cobra"
)

// NewDepsCmd creates the deps command and its subcommands
func NewDepsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check and install the cargo tools a release needs",
		Long: `Compare the tools required by warehouse.toml (cargo-auditable, cross and
their pinned versions) with "cargo install --list".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Show help by default
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Release config (default: release.config setting, warehouse.toml)")

	cmd.AddCommand(newCheckCmd(&configPath))
	cmd.AddCommand(newInstallCmd(&configPath))
	return cmd
}

func newCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report missing or mismatched tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			theme := config.CurrentTheme

			cfg, err := cmdutil.LoadReleaseConfig(*configPath)
			if err != nil {
				return err
			}
			statuses, err := deps.Check(cmd.Context(), deps.CargoRunner{}, cfg)
			if err != nil {
				return err
			}
			if len(statuses) == 0 {
				fmt.Println(theme.SubtleStyle().Render("No external tools required"))
				return nil
			}

			for _, s := range statuses {
				installed := s.Installed
				if installed == "" {
					installed = "not installed"
				}
				if s.Satisfied() {
					fmt.Printf("%s %-18s %s\n", theme.CompleteIndicator(), s.Name, theme.SubtleStyle().Render(installed))
				} else {
					fmt.Printf("%s %-18s %s %s\n", theme.ErrorIndicator(), s.Name,
						theme.ErrorStyle().Render(installed), theme.SubtleStyle().Render("(want "+s.Pin+")"))
				}
			}

			if missing := deps.Missing(statuses); len(missing) > 0 {
				fmt.Println()
				fmt.Println(theme.InfoMessage(`Run "warehouse deps install" to fix`))
				return &cmdutil.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func newInstallCmd(configPath *string) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install missing tools with cargo install",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			theme := config.CurrentTheme

			cfg, err := cmdutil.LoadReleaseConfig(*configPath)
			if err != nil {
				return err
			}
			statuses, err := deps.Check(cmd.Context(), deps.CargoRunner{}, cfg)
			if err != nil {
				return err
			}
			missing := deps.Missing(statuses)
			if len(missing) == 0 {
				fmt.Println(theme.SuccessMessage("All required tools are installed"))
				return nil
			}

			commands := make([]string, len(missing))
			for i, s := range missing {
				commands[i] = "cargo " + strings.Join(deps.InstallArgs(s), " ")
			}
			if !yes {
				if !cmdutil.IsInteractive() {
					for _, c := range commands {
						fmt.Printf("  %s\n", c)
					}
					return fmt.Errorf("refusing to install without confirmation; pass --yes")
				}
				ok, err := ui.Confirm(fmt.Sprintf("Install %d tool(s)?", len(missing)), commands...)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}

			if err := deps.Install(cmd.Context(), deps.CargoRunner{}, missing); err != nil {
				return err
			}
			fmt.Println(theme.SuccessMessage(fmt.Sprintf("Installed %d tool(s)", len(missing))))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Install without asking")
	return cmd
}

