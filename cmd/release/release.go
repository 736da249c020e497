// SPDX-License-Identifier: Apache-2.0
package release

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Work-Fort/Warehouse/cmd/cmdutil"
	"github.com/Work-Fort/Warehouse/pkg/build"
	"github.com/Work-Fort/Warehouse/pkg/config"
	"github.com/Work-Fort/Warehouse/pkg/pipeline"
	"github.com/Work-Fort/Warehouse/pkg/release"
	"github.com/Work-Fort/Warehouse/pkg/signing"
	"github.com/Work-Fort/Warehouse/pkg/ui"
)

// NewReleaseCmd creates the release command
func NewReleaseCmd() *cobra.Command {
	var (
		configPath     string
		outputDir      string
		workDir        string
		jobs           int
		timeout        string
		noPatch        bool
		verbose        bool
		passwordSource string
	)

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Build, sign and index the crates in warehouse.toml",
		Long: `Build every crate listed in warehouse.toml for every target, package the
binaries, sign the archives with minisign and add them to index.json in the
output directory.

The signing key is taken from WAREHOUSE_SECRET (and WAREHOUSE_PUBLIC) when
set, otherwise from the key file named by the "key" setting. With
key = "generate" a keypair is created on first use.

A coordinate (crate, version, target) that is already in the index is never
overwritten: bump the crate version to publish new binaries.

Exit status is non-zero when the index could not be updated or when every
target of some crate failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			theme := config.CurrentTheme

			cfg, err := cmdutil.LoadReleaseConfig(configPath)
			if err != nil {
				return err
			}

			// Flags override the app config, which overrides warehouse.toml
			if !cmd.Flags().Changed("jobs") {
				jobs = config.GetReleaseJobs()
			}
			if jobs > 0 {
				cfg.Jobs = jobs
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = config.GetReleaseTimeout()
			}
			if timeout != "" {
				cfg.Timeout = timeout
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			if !cmd.Flags().Changed("output") {
				outputDir = config.GetReleaseOutput()
			}
			if !cmd.Flags().Changed("work-dir") {
				workDir = config.GetReleaseWorkDir()
			}
			patch := config.GetReleasePatchManifests() && !noPatch

			source, err := signing.ParsePasswordSource(passwordSource)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var buildOutput io.Writer
			if verbose {
				buildOutput = os.Stderr
			}

			opts := pipeline.Options{
				Config:         cfg,
				OutputDir:      outputDir,
				WorkDir:        workDir,
				Keys:           cmdutil.KeyOptions(signing.NewPasswords(source)),
				PatchManifests: patch,
				BuildOutput:    buildOutput,
			}

			var report *pipeline.Report
			if cmdutil.IsInteractive() && !verbose {
				report, err = runWithProgress(ctx, stop, cfg, opts)
			} else {
				fmt.Println(theme.SubtleStyle().Render(fmt.Sprintf("Releasing %d crate(s) for %d target(s) with %d job(s)...",
					len(cfg.Crates), len(cfg.Targets), cfg.Jobs)))
				opts.OnResult = func(res build.Result) {
					fmt.Println(progressLine(res))
				}
				report, err = pipeline.Run(ctx, opts)
			}
			if err != nil {
				return err
			}

			fmt.Println()
			fmt.Print(report.Render())
			if report.KeyGenerated {
				fmt.Println()
				fmt.Println(theme.InfoMessage("Add this public key to your CI and cargo-binstall configuration:"))
				fmt.Printf("  %s=%s\n", signing.EnvPublic, report.PublicKey)
			}

			if code := report.ExitCode(); code != 0 {
				return &cmdutil.ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Release config (default: release.config setting, warehouse.toml)")
	cmd.Flags().StringVarP(&outputDir, "output", "o", config.GetReleaseOutput(), "Published tree directory")
	cmd.Flags().StringVar(&workDir, "work-dir", config.GetReleaseWorkDir(), "Scratch directory for sources, builds and staging")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "Concurrent builds (default: warehouse.toml jobs, or one per CPU)")
	cmd.Flags().StringVar(&timeout, "timeout", "", "Per-build timeout, e.g. 45m (default: warehouse.toml timeout)")
	cmd.Flags().BoolVar(&noPatch, "no-patch", false, "Do not write binstall metadata into crate manifests")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Stream cargo output to stderr")
	cmd.Flags().StringVar(&passwordSource, "password-source", "auto", "How to read the key password: auto, env, stdin, tui")

	return cmd
}

// runWithProgress runs the release behind a full-screen progress view.
// The key password is asked for before the view takes over the terminal.
func runWithProgress(ctx context.Context, cancel context.CancelFunc, cfg *release.Config, opts pipeline.Options) (*pipeline.Report, error) {
	rememberPassword(&opts.Keys)
	key, err := signing.LoadOrGenerate(cfg.Key, opts.Keys)
	if err != nil {
		return nil, err
	}
	generated := key.Generated()
	key.Close()

	title := fmt.Sprintf("%d crate(s) × %d target(s)", len(cfg.Crates), len(cfg.Targets))
	model := ui.NewProgressModel(title, len(cfg.Crates)*len(cfg.Targets), cancel)
	p := tea.NewProgram(model, tea.WithAltScreen())

	opts.Logger = log.New(io.Discard)
	opts.OnResult = func(res build.Result) {
		p.Send(ui.TaskDoneMsg{
			Label:    res.Task.String(),
			Outcome:  outcome(res.State),
			Detail:   res.Reason,
			Duration: res.Duration,
		})
	}

	var (
		report *pipeline.Report
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		report, runErr = pipeline.Run(ctx, opts)
		p.Send(ui.ProgressDoneMsg{})
	}()

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		<-done
		return nil, fmt.Errorf("progress view failed: %w", err)
	}
	<-done
	if report != nil && generated {
		report.KeyGenerated = true
	}
	return report, runErr
}

// rememberPassword makes both password funcs ask at most once between
// them. The password chosen for a new key is the one that unlocks it.
func rememberPassword(keys *signing.Options) {
	var (
		password string
		known    bool
	)
	wrap := func(fn signing.PasswordFunc) signing.PasswordFunc {
		if fn == nil {
			return nil
		}
		return func(prompt string) (string, error) {
			if known {
				return password, nil
			}
			pw, err := fn(prompt)
			if err != nil {
				return "", err
			}
			password, known = pw, true
			return pw, nil
		}
	}
	keys.Password = wrap(keys.Password)
	keys.NewPassword = wrap(keys.NewPassword)
}

func outcome(s build.State) ui.Outcome {
	switch s {
	case build.StateSucceeded:
		return ui.OutcomeSucceeded
	case build.StateSkipped:
		return ui.OutcomeSkipped
	default:
		return ui.OutcomeFailed
	}
}

func progressLine(res build.Result) string {
	return config.CurrentTheme.ResultLine(outcome(res.State), res.Task.String(), res.Reason, res.Duration)
}
