package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slipway-sh/slipway/internal/repository/manifest"
	"github.com/slipway-sh/slipway/internal/service/build"
)

var (
	// buildName is the tool identifier; must match the planned manifest.
	buildName string
	// buildRepo overrides the release repository.
	buildRepo string
	// buildDistDir is where archives and the manifest land.
	buildDistDir string
	// buildArtifactsDir holds per-target input binaries.
	buildArtifactsDir string
	// buildNoAutoPython disables launcher generation for missing binaries.
	buildNoAutoPython bool

	// buildCmd packages the planned targets and fills the manifest checksums.
	buildCmd = &cobra.Command{
		Use:   "build <tag>",
		Short: "Package binaries into archives and record checksums",
		Long: `Packages one prebuilt binary per planned target into a deterministic
tar.gz archive, computes SHA-256 checksums and derives download URLs.

Binaries are expected under <artifacts-dir>/<target>/<name>*. Targets without
a binary get a generated Python launcher unless --no-auto-python is set. The
manifest is rewritten only after every target succeeded.`,
		Args: exactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			options := &build.Options{
				Tag:            args[0],
				Name:           buildName,
				Repo:           buildRepo,
				DistDir:        buildDistDir,
				ArtifactsDir:   buildArtifactsDir,
				NoAutoWrappers: buildNoAutoPython,
				Config:         cfg,
			}

			return build.Run(ctx, options)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	buildCmd.Flags().StringVarP(&buildName, "name", "n", "", "tool name recorded in the manifest")
	buildCmd.Flags().StringVarP(&buildRepo, "repo", "r", "", "release repository (default $GITHUB_REPOSITORY)")
	buildCmd.Flags().StringVar(&buildDistDir, "dist", manifest.DefaultDistDir, "distribution directory")
	buildCmd.Flags().
		StringVar(&buildArtifactsDir, "artifacts-dir", build.DefaultArtifactsDir, "directory holding per-target binaries")
	buildCmd.Flags().
		BoolVar(&buildNoAutoPython, "no-auto-python", false, "do not generate Python launchers for targets without binaries")

	rootCmd.AddCommand(buildCmd)
}
