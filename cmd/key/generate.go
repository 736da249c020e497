// SPDX-License-Identifier: Apache-2.0
package key

import (
	"fmt"
	"os"

	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/signing"
	"github.com/spf13/cobra"
)

func newGenerateCmd(keyRef, passwordSource *string) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate a new signing keypair",
		Long: `Generate a new minisign keypair.

This creates:
  - The private key (mode 0600), scrypt-encrypted when signing.encrypted-keys is set
  - The public key beside it (mode 0644)
  - A copy of the public key in the key history

The password can be provided via:
  - Interactive prompt (default)
  - Environment variable: WAREHOUSE_PASSWORD
  - Stdin (for scripts)

An existing keypair is never overwritten; use "warehouse key rotate".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			theme := config.CurrentTheme

			opts, _, err := keyOptions(*passwordSource)
			if err != nil {
				return err
			}

			priv, pub := signing.KeyPaths(*keyRef, opts.KeyDir)
			for _, p := range []string{priv, pub} {
				if _, err := os.Stat(p); err == nil {
					return fmt.Errorf("%s already exists; use \"warehouse key rotate\" to replace it", p)
				}
			}

			fmt.Println()
			fmt.Println(theme.SubtleStyle().Render("Generating minisign signing key..."))
			fmt.Println()

			m, err := signing.Generate(priv, pub, opts)
			if err != nil {
				return err
			}
			defer m.Close()

			fmt.Printf("%s Signing key generated successfully!\n", theme.SuccessStyle().Render("✓"))
			fmt.Println()
			printKey(m)
			return nil
		},
	}
}
