// SPDX-License-Identifier: Apache-2.0
package verify

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Work-Fort/Warehouse/cmd/cmdutil"
	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/index"
	"github.com/Work-Fort/Warehouse/pkg/layout"
	"github.com/Work-Fort/Warehouse/pkg/signing"
)

// NewVerifyCmd creates the verify command
func NewVerifyCmd() *cobra.Command {
	var (
		publicKey  string
		historyDir string
	)

	cmd := &cobra.Command{
		Use:   "verify [dir]",
		Short: "Verify every archive and signature in a published tree",
		Long: `Re-check every entry of index.json: the archive digest, its .sig file, the
signature recorded in the index and the signed SHA256SUMS of each release.

The public key is taken from --public-key (a key or a key file), then from
WAREHOUSE_PUBLIC. Falling back to the warehouse.pub inside the tree only
proves internal consistency, not authenticity.

Releases signed before a key rotation are checked against the public keys
recorded in the key history (signing.history.location).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			theme := config.CurrentTheme
			out := cmd.OutOrStdout()

			dir := config.GetReleaseOutput()
			if len(args) == 1 {
				dir = args[0]
			}

			keyText, trusted, err := resolvePublicKey(publicKey, dir)
			if err != nil {
				return err
			}
			if !trusted {
				fmt.Fprintln(out, theme.WarningMessage("Using the public key shipped in the tree; pass --public-key to check authenticity"))
			}
			pub, err := signing.ParsePublicKey(keyText)
			if err != nil {
				return fmt.Errorf("invalid public key: %w", err)
			}

			keys := signing.NewKeyring(pub)
			if !cmd.Flags().Changed("history-dir") {
				historyDir = cmdutil.HistoryDir()
			}
			if err := keys.AddHistory(historyDir); err != nil {
				return fmt.Errorf("failed to read key history: %w", err)
			}
			log.Debug("Verifying published tree", "dir", dir, "keys", keys.IDs())

			report, err := index.Verify(dir, keys)
			if report == nil {
				return err
			}
			for _, p := range report.Problems {
				fmt.Fprintf(out, "%s %s\n", theme.ErrorIndicator(), p)
			}
			if errors.Is(err, index.ErrVerification) {
				cmdutil.PrintError(fmt.Sprintf("%d problem(s) in %d entries", len(report.Problems), report.Checked))
				return &cmdutil.ExitError{Code: 1}
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(out, theme.SuccessMessage(fmt.Sprintf("%d entries verified", report.Checked)))
			return nil
		},
	}

	cmd.Flags().StringVar(&publicKey, "public-key", "", "Public key, or path to a .pub file")
	cmd.Flags().StringVar(&historyDir, "history-dir", "", "Directory of previously used public keys (default: signing.history.location)")
	return cmd
}

// resolvePublicKey returns the key text and whether it came from outside
// the tree being verified.
func resolvePublicKey(flag, dir string) (string, bool, error) {
	if flag != "" {
		if data, err := os.ReadFile(flag); err == nil {
			return string(data), true, nil
		}
		return flag, true, nil
	}
	if env := strings.TrimSpace(os.Getenv(signing.EnvPublic)); env != "" {
		return env, true, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, layout.PublicKeyFile))
	if err != nil {
		return "", false, fmt.Errorf("no public key given and %s is unreadable: %w", layout.PublicKeyFile, err)
	}
	return string(data), false, nil
}
