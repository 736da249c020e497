// SPDX-License-Identifier: Apache-2.0
package key

import (
	"fmt"
	"os"

	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/signing"
	"github.com/Work-Fort/Warehouse/pkg/ui"
	"github.com/spf13/cobra"
)

func newBackupCmd(keyRef, passwordSource *string) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <file>",
		Short: "Write a passphrase-protected backup of the private key",
		Long: `Export the private key as an ASCII-armored OpenPGP message encrypted with a
passphrase. The backup can be restored with "warehouse key restore" or
decrypted with any OpenPGP tool (gpg --decrypt).

The file is created with mode 0600 and is never overwritten.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			theme := config.CurrentTheme

			opts, pw, err := keyOptions(*passwordSource)
			if err != nil {
				return err
			}
			priv, pub := signing.KeyPaths(*keyRef, opts.KeyDir)
			m, err := signing.Load(priv, pub, opts)
			if err != nil {
				return err
			}
			defer m.Close()

			passphrase, err := backupPassphrase(pw, true)
			if err != nil {
				return err
			}
			if err := m.WriteBackup(args[0], passphrase); err != nil {
				return err
			}

			fmt.Printf("%s Backup of key %s written to %s\n", theme.SuccessStyle().Render("✓"), m.KeyID(), args[0])
			return nil
		},
	}
}

func newRestoreCmd(keyRef, passwordSource *string) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore the private key from a backup",
		Long: `Decrypt a backup written by "warehouse key backup" and install it as the
signing keypair. Existing key files are never overwritten; move them away
first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			theme := config.CurrentTheme

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read backup: %w", err)
			}

			opts, pw, err := keyOptions(*passwordSource)
			if err != nil {
				return err
			}
			passphrase, err := backupPassphrase(pw, false)
			if err != nil {
				return err
			}
			m, err := signing.RestoreBackup(data, passphrase, *keyRef, opts)
			if err != nil {
				return err
			}
			defer m.Close()

			fmt.Printf("%s Signing key restored\n", theme.SuccessStyle().Render("✓"))
			fmt.Println()
			printKey(m)
			return nil
		},
	}
}

// backupPassphrase asks for the backup passphrase. A terminal gets its own
// prompt; otherwise the key password source answers, so piped and env
// passwords double as the passphrase.
func backupPassphrase(pw *signing.Passwords, create bool) (string, error) {
	title := "Enter backup passphrase"
	if create {
		title = "Choose a backup passphrase"
	}
	if pw.Source == signing.PasswordSourceTUI || (pw.Source == signing.PasswordSourceAuto && ui.IsTerminal()) {
		if create {
			return ui.NewPasswordInput(title)
		}
		return ui.PasswordInput(title)
	}
	if create {
		return pw.New(title)
	}
	return pw.Get(title)
}
