package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/slipway-sh/slipway/internal/config"
	"github.com/slipway-sh/slipway/internal/errkind"
	"github.com/slipway-sh/slipway/internal/logger"
	"github.com/slipway-sh/slipway/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel for console output.
	logLevel string

	// rootCmd represents the base command of the release pipeline.
	rootCmd = &cobra.Command{
		Use:   "slipway",
		Short: "Plan, build, publish and tap releases of prebuilt binaries",
		Long: `Slipway drives a four-stage release pipeline for prebuilt binaries.

plan records the release tag and target matrix in a manifest, build packages
one binary per target into deterministic archives with checksums, github
publishes the archives to a draft GitHub release, and tap renders a Homebrew
formula and pushes it to a tap repository. The manifest under the dist
directory is the only state shared between stages.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				logger.Warnf(cmd.Context(), "Unknown log level %q, using %s", logLevel, level)
			}

			logger.SetLevel(level)
		},
	}
)

// Execute runs the slipway CLI and exits non-zero on error: 2 for usage
// mistakes, 1 for every other failure category.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return errkind.Wrap(errkind.Usage, err, "invalid flags")
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err.Error())
		os.Exit(errkind.ExitCode(err))
	}
}

// exactArgs wraps cobra's validator so argument-count mistakes map to the
// usage exit code.
func exactArgs(count int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(count)(cmd, args); err != nil {
			return errkind.Wrap(errkind.Usage, err, "invalid arguments")
		}

		return nil
	}
}

// loadConfig reads the project settings honoring the --config override.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", "", "path to configuration file (default "+config.DefaultConfigFilename+")")
	rootCmd.PersistentFlags().
		StringVarP(&logLevel, "log-level", "l", "info", "log level: debug, info, warn or error")
}
