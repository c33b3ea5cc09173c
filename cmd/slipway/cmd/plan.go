package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slipway-sh/slipway/internal/repository/manifest"
	"github.com/slipway-sh/slipway/internal/service/plan"
)

var (
	// planName is the tool identifier recorded in the manifest.
	planName string
	// planTargets is the comma-separated target matrix override.
	planTargets string
	// planDistDir is where the manifest is written.
	planDistDir string

	// planCmd creates the release manifest for a tag.
	planCmd = &cobra.Command{
		Use:   "plan <tag>",
		Short: "Create the release manifest for a tag",
		Long: `Creates the release manifest that later stages read and update.

The working tree must be clean so the manifest cannot capture a state that
does not match committed code. Targets default to ` + "`macos-arm64,macos-amd64,linux-amd64`" + `.`,
		Args: exactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &plan.Options{
				Tag:     args[0],
				Name:    planName,
				Targets: planTargets,
				DistDir: planDistDir,
			}

			return plan.Run(ctx, options)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	planCmd.Flags().StringVarP(&planName, "name", "n", "", "tool name recorded in the manifest")
	planCmd.Flags().StringVarP(&planTargets, "targets", "t", "", "comma-separated target list")
	planCmd.Flags().StringVar(&planDistDir, "dist", manifest.DefaultDistDir, "distribution directory")

	rootCmd.AddCommand(planCmd)
}
