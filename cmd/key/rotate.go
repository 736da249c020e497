// SPDX-License-Identifier: Apache-2.0
package key

import (
	"fmt"

	"github.com/Work-Fort/Warehouse/cmd/cmdutil"
	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/signing"
	"github.com/Work-Fort/Warehouse/pkg/ui"
	"github.com/spf13/cobra"
)

func newRotateCmd(keyRef, passwordSource *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate the signing key",
		Long: `Rotate the signing key by generating a new keypair and backing up the old one.

This:
  - Archives the current keypair to <key dir>/backups/<timestamp>/
  - Generates a new keypair in its place
  - Records the new public key in the key history

Artifacts already in an index keep their old signatures. Clients must be
given the new public key before they can verify new releases.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			theme := config.CurrentTheme
			labelStyle := theme.SubtleStyle()
			valueStyle := theme.InfoStyle()

			if !force && cmdutil.IsInteractive() {
				ok, err := ui.Confirm("Replace the current signing key?",
					"The old public key is kept in the key history.",
					"Clients and Cargo.toml metadata must be updated with the new public key.")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println(theme.SubtleStyle().Render("Rotation cancelled"))
					return nil
				}
			}

			opts, _, err := keyOptions(*passwordSource)
			if err != nil {
				return err
			}

			fmt.Println()
			fmt.Println(theme.SubtleStyle().Render("Rotating minisign signing key..."))
			fmt.Println()

			res, err := signing.Rotate(*keyRef, opts)
			if err != nil {
				return err
			}
			defer res.Manager.Close()

			fmt.Printf("%s Signing key rotated successfully!\n", theme.SuccessStyle().Render("✓"))
			fmt.Println()
			fmt.Printf("  %s %s\n", labelStyle.Render("Old Key ID:"), valueStyle.Render(res.OldKeyID))
			fmt.Printf("  %s %s\n", labelStyle.Render("Backup:"), valueStyle.Render(res.BackupDir))
			printKey(res.Manager)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation")
	return cmd
}
