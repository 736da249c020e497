// SPDX-License-Identifier: Apache-2.0
package publish

import (
	"fmt"

	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/github"
	"github.com/spf13/cobra"
)

// NewPublishCmd creates the publish command
func NewPublishCmd() *cobra.Command {
	var (
		repo    string
		dir     string
		version string
	)

	cmd := &cobra.Command{
		Use:   "publish [crate]",
		Short: "Upload published releases to GitHub Releases",
		Long: `Mirror releases from the published tree to GitHub Releases. Each crate
version becomes the release <crate>-v<version>, carrying the archives, their
.sha256 and .sig files, SHA256SUMS and SHA256SUMS.minisig.

Releases are created when missing; assets that already exist are skipped.
Use layout = "github" in warehouse.toml so index URLs point at these assets.

Authentication uses the github-token setting (WAREHOUSE_GITHUB_TOKEN).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			theme := config.CurrentTheme

			if !cmd.Flags().Changed("repo") {
				repo = config.GetPublishRepo()
			}
			owner, name, err := github.SplitRepo(repo)
			if err != nil {
				return fmt.Errorf("publish.repo: %w", err)
			}
			if !cmd.Flags().Changed("dir") {
				dir = config.GetReleaseOutput()
			}

			client := github.NewClient()
			if !client.HasToken() {
				return fmt.Errorf("no GitHub token; set github-token or WAREHOUSE_GITHUB_TOKEN")
			}

			var crate string
			if len(args) == 1 {
				crate = args[0]
			}

			p := &github.Publisher{Client: client, Owner: owner, Repo: name, Dir: dir}
			uploads, err := p.Publish(cmd.Context(), crate, version)
			for _, u := range uploads {
				if u.Skipped {
					fmt.Printf("%s %s/%s %s\n", theme.PendingIndicator(), u.Tag, u.Name, theme.SubtleStyle().Render("already uploaded"))
				} else {
					fmt.Printf("%s %s/%s\n", theme.CompleteIndicator(), u.Tag, u.Name)
				}
			}
			if err != nil {
				return err
			}

			fmt.Println(theme.SuccessMessage(fmt.Sprintf("Published to https://github.com/%s/%s/releases", owner, name)))
			return nil
		},
	}

	cmd.Flags().StringVar(&repo, "repo", config.GetPublishRepo(), "GitHub repository (owner/repo)")
	cmd.Flags().StringVar(&dir, "dir", config.GetReleaseOutput(), "Published tree directory")
	cmd.Flags().StringVar(&version, "version", "", "Only publish this version")
	return cmd
}
