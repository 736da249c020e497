// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/Work-Fort/Warehouse/cmd/clean"
	"github.com/Work-Fort/Warehouse/cmd/cmdutil"
	configCmd "github.com/Work-Fort/Warehouse/cmd/config"
	"github.com/Work-Fort/Warehouse/cmd/deps"
	initcmd "github.com/Work-Fort/Warehouse/cmd/init"
	"github.com/Work-Fort/Warehouse/cmd/key"
	"github.com/Work-Fort/Warehouse/cmd/publish"
	"github.com/Work-Fort/Warehouse/cmd/release"
	"github.com/Work-Fort/Warehouse/cmd/update"
	"github.com/Work-Fort/Warehouse/cmd/verify"
	"github.com/Work-Fort/Warehouse/cmd/version"
	"github.com/Work-Fort/Warehouse/pkg/config"
)

var (
	// Version is set at build time via ldflags
	// -ldflags "-X github.com/Work-Fort/Warehouse/cmd.Version=x.y.z"
	Version string

	// DisableUpdate is set to "true" by package builds
	// -ldflags "-X github.com/Work-Fort/Warehouse/cmd.DisableUpdate=true"
	DisableUpdate string

	logLevel string
	useTUI   bool
)

// debugLogFile lives in the XDG data dir
const debugLogFile = "debug.log"

var rootCmd = &cobra.Command{
	Use:   "warehouse",
	Short: "Signed binary releases for cargo-binstall",
	Long: `Warehouse - signed binary releases for cargo-binstall

Builds Rust crates for a set of target triples, packages the binaries,
signs every archive with minisign and maintains an index that
cargo-binstall clients and static hosting can consume. Keys, caches and
logs follow the XDG base directory layout.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitDirs(); err != nil {
			return err
		}
		if err := config.LoadConfig(); err != nil {
			return err
		}

		// Flags, config files and WAREHOUSE_* all resolve through viper
		useTUI = config.GetUseTUI()
		return setupLogging(config.GetLogLevel(), filepath.Join(config.GlobalPaths.DataDir, debugLogFile))
	},
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *cmdutil.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}

		fmt.Fprintf(os.Stderr, "%s %s\n", config.CurrentTheme.ErrorStyle().Render("Error:"), err.Error())
		os.Exit(1)
	}
}

func init() {
	// Redirected to the debug log in PersistentPreRunE
	log.SetReportTimestamp(false)
	log.SetLevel(log.InfoLevel)

	config.InitViper()

	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "debug", "Log level: disabled, debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&useTUI, "use-tui", true, "Enable terminal UI mode")
	config.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		clean.NewCleanCmd(),
		configCmd.NewConfigCmd(),
		deps.NewDepsCmd(),
		initcmd.NewInitCmd(),
		key.NewKeyCmd(),
		publish.NewPublishCmd(),
		release.NewReleaseCmd(),
		update.NewUpdateCmd(Version, DisableUpdate),
		verify.NewVerifyCmd(),
		version.NewVersionCmd(Version),
	)

	rootCmd.SetHelpFunc(styledHelpFunc)
	rootCmd.SetUsageFunc(styledUsageFunc)
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	// Linux shells only
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(newCompletionCmd(rootCmd))
}

// parseLogLevel maps a log-level setting to a charmbracelet level. ok is
// false for "disabled".
func parseLogLevel(s string) (level log.Level, ok bool, err error) {
	switch s {
	case "disabled":
		return 0, false, nil
	case "", "debug":
		return log.DebugLevel, true, nil
	case "info":
		return log.InfoLevel, true, nil
	case "warn":
		return log.WarnLevel, true, nil
	case "error":
		return log.ErrorLevel, true, nil
	}
	return 0, false, fmt.Errorf("invalid log level %q (valid: disabled, debug, info, warn, error)", s)
}

// setupLogging sends the default logger to path as JSON records. Terminal
// output stays free of log lines; commands print through the theme.
func setupLogging(levelName, path string) error {
	level, enabled, err := parseLogLevel(levelName)
	if err != nil {
		return err
	}
	if !enabled {
		log.SetOutput(io.Discard)
		return nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetDefault(log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02T15:04:05.000Z07:00",
		Level:           level,
		ReportCaller:    true,
		Formatter:       log.JSONFormatter,
	}))
	return nil
}
