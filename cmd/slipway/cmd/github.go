package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slipway-sh/slipway/internal/repository/manifest"
	"github.com/slipway-sh/slipway/internal/service/github"
)

var (
	// githubName is the tool identifier; must match the built manifest.
	githubName string
	// githubRepo overrides the release repository.
	githubRepo string
	// githubDistDir holds the archives and the manifest.
	githubDistDir string
	// githubReleaseNotes is an optional notes template path.
	githubReleaseNotes string

	// githubCmd publishes the built archives to a GitHub release.
	githubCmd = &cobra.Command{
		Use:   "github <tag>",
		Short: "Publish archives to a draft GitHub release",
		Long: `Creates a draft GitHub release for the tag (or reuses an existing one)
and uploads every archive from the dist directory, replacing stale assets.

The manifest must be complete: every target needs its checksum from build.
Credentials come from gh auth, GITHUB_TOKEN, TAP_PAT or a terminal prompt.`,
		Args: exactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			options := &github.Options{
				Tag:          args[0],
				Name:         githubName,
				Repo:         githubRepo,
				DistDir:      githubDistDir,
				ReleaseNotes: githubReleaseNotes,
				Config:       cfg,
			}

			return github.Run(ctx, options)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	githubCmd.Flags().StringVarP(&githubName, "name", "n", "", "tool name recorded in the manifest")
	githubCmd.Flags().StringVarP(&githubRepo, "repo", "r", "", "release repository (default $GITHUB_REPOSITORY)")
	githubCmd.Flags().StringVar(&githubDistDir, "dist", manifest.DefaultDistDir, "distribution directory")
	githubCmd.Flags().
		StringVar(&githubReleaseNotes, "release-notes", "", "path to a release notes template")

	rootCmd.AddCommand(githubCmd)
}
