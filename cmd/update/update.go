// SPDX-License-Identifier: Apache-2.0
package update

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/github"
	"github.com/Work-Fort/Warehouse/pkg/selfupdate"
	"github.com/Work-Fort/Warehouse/pkg/signing"
)

// NewUpdateCmd creates the update command
func NewUpdateCmd(version, disableUpdate string) *cobra.Command {
	var (
		publicKey string
		check     bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update warehouse to the latest version",
		Long: `Update the warehouse binary to the latest version from GitHub releases.

This command:
  1. Finds the newest warehouse-v* release with an archive for this host
  2. Downloads the archive, SHA256SUMS and SHA256SUMS.minisig
  3. Verifies the minisign signature with the trusted public key
  4. Verifies the SHA256 checksum of the archive
  5. Replaces the current binary atomically

The trusted key is taken from --public-key, then WAREHOUSE_PUBLIC. Without
one the update is refused.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			theme := config.CurrentTheme

			// Package managers disable self-update at build time
			if disableUpdate == "true" {
				fmt.Printf("%s Updates are disabled for this installation\n", theme.WarningIndicator())
				fmt.Println("This version was installed by a package manager. Use it to update.")
				return nil
			}

			owner, repo, err := github.SplitRepo(config.GitHubRepo)
			if err != nil {
				return err
			}
			host, err := config.HostTriple()
			if err != nil {
				return err
			}

			u := &selfupdate.Updater{
				Client:  github.NewClient(),
				Owner:   owner,
				Repo:    repo,
				Binary:  "warehouse",
				Target:  host,
				TempDir: filepath.Join(config.GlobalPaths.CacheDir, "update"),
			}

			log.Info("Checking for warehouse updates...")
			c, err := u.Latest(cmd.Context())
			if err != nil {
				if errors.Is(err, selfupdate.ErrNoRelease) {
					fmt.Printf("%s %v\n", theme.WarningIndicator(), err)
					return nil
				}
				return err
			}
			if !selfupdate.Newer(c, version) {
				fmt.Printf("%s Already on latest version: %s\n", theme.CompleteIndicator(), version)
				return nil
			}
			fmt.Printf("%s New version available: %s (current: %s)\n", theme.InfoStyle().Render("→"), c.Version.Original(), version)
			if check {
				return nil
			}

			if publicKey == "" {
				publicKey = os.Getenv(signing.EnvPublic)
			}
			if publicKey == "" {
				return fmt.Errorf("no trusted public key: pass --public-key or set %s", signing.EnvPublic)
			}
			pub, err := signing.ParsePublicKey(publicKey)
			if err != nil {
				return err
			}
			u.PublicKey = pub

			exePath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("failed to get executable path: %w", err)
			}
			if real, err := filepath.EvalSymlinks(exePath); err == nil {
				exePath = real
			}

			if err := u.Apply(cmd.Context(), c, exePath); err != nil {
				return err
			}

			fmt.Println()
			fmt.Printf("%s Updated to version %s\n", theme.CompleteIndicator(), c.Version.Original())
			fmt.Println(theme.SubtleStyle().Render("Run 'warehouse version' to verify"))
			return nil
		},
	}

	cmd.Flags().StringVar(&publicKey, "public-key", "", "Trusted minisign public key (default: $WAREHOUSE_PUBLIC)")
	cmd.Flags().BoolVar(&check, "check", false, "Only report whether an update is available")

	return cmd
}
