// SPDX-License-Identifier: Apache-2.0
package key

import (
	"fmt"

	"github.com/Work-Fort/Warehouse/cmd/cmdutil"
	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/signing"
	"github.com/spf13/cobra"
)

// NewKeyCmd creates the key command and its subcommands
func NewKeyCmd() *cobra.Command {
	var (
		keyRef         string
		passwordSource string
	)

	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the minisign signing key",
		Long: `Generate, rotate, back up and inspect the minisign keypair used to sign
release archives.

The key reference is either "generate", meaning the default keypair in the
signing.key.location directory, or the path of a private key file whose
public key lives beside it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Show help by default
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVarP(&keyRef, "key", "k", signing.RefGenerate, `Key reference: "generate" or a private key path`)
	cmd.PersistentFlags().StringVar(&passwordSource, "password-source", "auto", "How to read key passwords: auto, env, stdin, tui")

	cmd.AddCommand(newGenerateCmd(&keyRef, &passwordSource))
	cmd.AddCommand(newRotateCmd(&keyRef, &passwordSource))
	cmd.AddCommand(newShowCmd(&keyRef, &passwordSource))
	cmd.AddCommand(newBackupCmd(&keyRef, &passwordSource))
	cmd.AddCommand(newRestoreCmd(&keyRef, &passwordSource))
	cmd.AddCommand(newEncryptCmd(&keyRef, &passwordSource))

	return cmd
}

// keyOptions returns signing options and the password resolver behind them
func keyOptions(passwordSource string) (signing.Options, *signing.Passwords, error) {
	source, err := signing.ParsePasswordSource(passwordSource)
	if err != nil {
		return signing.Options{}, nil, err
	}
	pw := signing.NewPasswords(source)
	return cmdutil.KeyOptions(pw), pw, nil
}

// printKey prints the identifying details of a keypair
func printKey(m *signing.Manager) {
	theme := config.CurrentTheme
	labelStyle := theme.SubtleStyle()
	valueStyle := theme.InfoStyle()

	priv, pub := m.Paths()
	fmt.Printf("  %s %s\n", labelStyle.Render("Key ID:"), valueStyle.Render(m.KeyID()))
	if m.FromEnv() {
		fmt.Printf("  %s %s\n", labelStyle.Render("Source:"), valueStyle.Render("$"+signing.EnvSecret))
	} else {
		fmt.Printf("  %s %s\n", labelStyle.Render("Private key:"), valueStyle.Render(priv))
		fmt.Printf("  %s %s\n", labelStyle.Render("Public key:"), valueStyle.Render(pub))
	}
	fmt.Println()
	fmt.Printf("  %s=%s\n", signing.EnvPublic, m.ExportPublic())
	fmt.Println()
}
