// SPDX-License-Identifier: Apache-2.0
package key

import (
	"fmt"

	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/signing"
	"github.com/spf13/cobra"
)

func newEncryptCmd(keyRef, passwordSource *string) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt an unprotected private key in place",
		Long: `Rewrite an unencrypted private key file with scrypt password protection.
Keys that are already encrypted are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			theme := config.CurrentTheme

			opts, pw, err := keyOptions(*passwordSource)
			if err != nil {
				return err
			}
			priv, _ := signing.KeyPaths(*keyRef, opts.KeyDir)

			password, err := pw.New("Choose a password to encrypt the signing key")
			if err != nil {
				return err
			}

			migrated, err := signing.EncryptKeyFile(priv, password)
			if err != nil {
				return err
			}
			if !migrated {
				fmt.Println(theme.SubtleStyle().Render(fmt.Sprintf("%s is already encrypted or does not exist", priv)))
				return nil
			}
			fmt.Printf("%s Encrypted %s\n", theme.SuccessStyle().Render("✓"), priv)
			return nil
		},
	}
}
