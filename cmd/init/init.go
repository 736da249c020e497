// SPDX-License-Identifier: Apache-2.0
package init

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/Work-Fort/Warehouse/cmd/cmdutil"
	"github.com/Work-Fort/Warehouse/pkg/config"
	initpkg "github.com/Work-Fort/Warehouse/pkg/init"
	"github.com/Work-Fort/Warehouse/pkg/signing"
)

// InitFlags holds the CLI flags
type InitFlags struct {
	Crates         []string
	Targets        []string
	BaseURL        string
	Layout         string
	Output         string
	NoKey          bool
	PasswordSource string
}

// NewInitCmd returns the cobra command for the init subcommand
func NewInitCmd() *cobra.Command {
	var flags InitFlags

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a release repository",
		Long: `Sets up the current directory as a binary release repository.

Creates:
  - warehouse.toml (release request, kept if it already exists)
  - warehouse.yaml (repo configuration)
  - keys/ and keys/history/ for the signing keypair
  - .gitignore for the published tree and private keys

A minisign keypair is generated unless --no-key is given or WAREHOUSE_SECRET
is set. When stdin is a terminal and use-tui is enabled, missing settings
are asked for interactively.`,
		Example: `  # Crate in the current directory, two targets
  warehouse init --target x86_64 --target aarch64 \
    --base-url https://downloads.example.com

  # Workspace with two member crates, key password from the environment
  WAREHOUSE_PASSWORD=secret warehouse init --crate cli --crate server`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validatePreFlight(); err != nil {
				return err
			}
			settings := settingsFromFlags(flags)
			if cmdutil.IsInteractive() && !cmd.Flags().Changed("base-url") {
				if err := askSettings(&settings); err != nil {
					return err
				}
			}
			source, err := signing.ParsePasswordSource(flags.PasswordSource)
			if err != nil {
				return err
			}
			return runInit(settings, !flags.NoKey, source)
		},
	}

	cmd.Flags().StringSliceVar(&flags.Crates, "crate", []string{"."}, "Crate directory relative to the repo root (repeatable)")
	cmd.Flags().StringSliceVar(&flags.Targets, "target", nil, "Target triple or arch (repeatable, default: host triple)")
	cmd.Flags().StringVar(&flags.BaseURL, "base-url", "", "URL the published tree will be served from")
	cmd.Flags().StringVar(&flags.Layout, "layout", "tree", "Published layout: tree or github")
	cmd.Flags().StringVar(&flags.Output, "output", "dist", "Published tree directory (relative to the repo root)")
	cmd.Flags().BoolVar(&flags.NoKey, "no-key", false, "Do not generate a signing key")
	cmd.Flags().StringVar(&flags.PasswordSource, "password-source", "auto", "How to read the key password: auto, env, stdin, tui")

	return cmd
}

func settingsFromFlags(flags InitFlags) initpkg.InitSettings {
	settings := initpkg.DefaultSettings()
	if len(flags.Crates) > 0 {
		settings.Crates = flags.Crates
	}
	settings.Targets = flags.Targets
	settings.BaseURL = strings.TrimRight(flags.BaseURL, "/")
	if flags.Layout != "" {
		settings.Layout = flags.Layout
	}
	if flags.Output != "" {
		settings.OutputLocation = flags.Output
	}
	return settings
}

// askSettings fills in the settings most projects change from the defaults
func askSettings(settings *initpkg.InitSettings) error {
	if len(settings.Targets) == 0 {
		if host, err := config.HostTriple(); err == nil {
			settings.Targets = []string{host}
		}
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Base URL").
				Description("Where the published tree will be served from (empty for relative URLs)").
				Value(&settings.BaseURL),
			huh.NewMultiSelect[string]().
				Title("Targets").
				Options(huh.NewOptions(targetChoices(settings.Targets)...)...).
				Value(&settings.Targets),
			huh.NewSelect[string]().
				Title("Layout").
				Options(huh.NewOption("tree (<crate>/<version>/<file>)", "tree"), huh.NewOption("github (<crate>-v<version>/<file>)", "github")).
				Value(&settings.Layout),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("init cancelled: %w", err)
	}
	settings.BaseURL = strings.TrimRight(strings.TrimSpace(settings.BaseURL), "/")
	return nil
}

// targetChoices offers the common targets plus anything already selected
func targetChoices(selected []string) []string {
	choices := []string{
		"x86_64-unknown-linux-gnu",
		"aarch64-unknown-linux-gnu",
		"x86_64-unknown-linux-musl",
		"aarch64-unknown-linux-musl",
		"x86_64-apple-darwin",
		"aarch64-apple-darwin",
		"x86_64-pc-windows-msvc",
	}
	for _, t := range selected {
		found := false
		for _, c := range choices {
			if c == t {
				found = true
				break
			}
		}
		if !found {
			choices = append(choices, t)
		}
	}
	return choices
}

// validatePreFlight checks whether the current directory can be initialized.
// It returns an error if warehouse.yaml already exists.
func validatePreFlight() error {
	if _, err := os.Stat(initpkg.RepoConfigFile); err == nil {
		return fmt.Errorf("already initialized: %s already exists in the current directory", initpkg.RepoConfigFile)
	}

	// Warn (non-fatal) if the directory is not a git repository
	if _, err := os.Stat(".git"); os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "warning: not a git repository - consider running 'git init' first")
	}

	return nil
}

// runInit writes the repository files and, with genKey, the signing keypair
func runInit(settings initpkg.InitSettings, genKey bool, source signing.PasswordSource) error {
	files, err := initpkg.GenerateRepoFiles(settings)
	if err != nil {
		return err
	}
	settings.FilesCreated = files

	if genKey {
		pw := signing.NewPasswords(source)
		m, err := signing.LoadOrGenerate(signing.RefGenerate, signing.Options{
			KeyDir:      settings.KeyLocation,
			HistoryDir:  settings.HistoryLocation,
			Password:    pw.Get,
			NewPassword: pw.New,
			Encrypt:     config.GetSigningEncryptedKeys(),
		})
		if err != nil {
			return fmt.Errorf("repository files written but key generation failed: %w", err)
		}
		defer m.Close()
		settings.KeyGenerated = m.Generated()
		settings.PublicKey = m.ExportPublic()
		if m.Generated() {
			priv, pub := m.Paths()
			settings.FilesCreated = append(settings.FilesCreated, priv, pub)
		}
	}

	printSummary(settings)
	return nil
}

func printSummary(settings initpkg.InitSettings) {
	theme := config.CurrentTheme
	fmt.Println(theme.SuccessMessage("Repository initialized successfully"))
	fmt.Println()
	for _, file := range settings.FilesCreated {
		fmt.Println(theme.CompleteIndicator() + " " + file)
	}
	if settings.PublicKey != "" {
		fmt.Println()
		if settings.KeyGenerated {
			fmt.Println(theme.InfoMessage("Add this public key to your CI and cargo-binstall configuration:"))
		} else {
			fmt.Println(theme.InfoMessage("Using the existing signing key:"))
		}
		fmt.Printf("  %s=%s\n", signing.EnvPublic, settings.PublicKey)
	}
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Review %s\n", initpkg.ReleaseConfigFile)
	fmt.Println("  2. Check build tools: warehouse deps check")
	fmt.Println("  3. Release: warehouse release")
	fmt.Println("  4. Commit to git: git add . && git commit")
}
