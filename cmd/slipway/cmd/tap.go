package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/slipway-sh/slipway/internal/repository/manifest"
	"github.com/slipway-sh/slipway/internal/service/tap"
)

var (
	// tapName is the tool identifier; must match the built manifest.
	tapName string
	// tapFormula is the formula file name without the .rb suffix.
	tapFormula string
	// tapRepo is the tap repository receiving the formula.
	tapRepo string
	// tapBranch overrides the release branch name.
	tapBranch string
	// tapOpenPR opens a pull request after pushing.
	tapOpenPR bool
	// tapAuto creates a missing tap repository without prompting.
	tapAuto bool
	// tapNonInteractive forbids prompts.
	tapNonInteractive bool
	// tapDryRun renders and reports without remote changes.
	tapDryRun bool
	// tapFormulaTemplate overrides the embedded formula template.
	tapFormulaTemplate string
	// tapReleaseRepo is the release repository, used for the homepage default.
	tapReleaseRepo string
	// tapDesc overrides the formula description.
	tapDesc string
	// tapHomepage overrides the formula homepage.
	tapHomepage string
	// tapDistDir holds the manifest from the build stage.
	tapDistDir string

	// tapCmd renders the Homebrew formula and pushes it to the tap.
	tapCmd = &cobra.Command{
		Use:   "tap <tag>",
		Short: "Render the Homebrew formula and push it to the tap",
		Long: `Renders a Homebrew formula from the built manifest and pushes it to the
tap repository on a release branch (default <name>/<tag>), optionally
opening a pull request.

Re-runs converge: identical content is never pushed twice and at most one
pull request stays open per branch. --dry-run prints the formula and the
intended operations without touching the network.`,
		Args: exactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			options := &tap.Options{
				Tag:             args[0],
				Name:            tapName,
				Formula:         tapFormula,
				TapRepo:         tapRepo,
				Branch:          tapBranch,
				OpenPR:          tapOpenPR,
				Auto:            tapAuto,
				NonInteractive:  tapNonInteractive,
				DryRun:          tapDryRun,
				FormulaTemplate: tapFormulaTemplate,
				Repo:            tapReleaseRepo,
				Desc:            tapDesc,
				Homepage:        tapHomepage,
				DistDir:         tapDistDir,
				Config:          cfg,
			}

			return tap.Run(ctx, options)
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	tapCmd.Flags().StringVarP(&tapName, "name", "n", "", "tool name recorded in the manifest")
	tapCmd.Flags().StringVarP(&tapFormula, "formula", "f", "", "formula name without the .rb suffix")
	tapCmd.Flags().StringVar(&tapRepo, "tap", "", "tap repository (owner/name)")
	tapCmd.Flags().StringVarP(&tapBranch, "branch", "b", "", "release branch name (default <name>/<tag>)")
	tapCmd.Flags().BoolVar(&tapOpenPR, "open-pr", false, "open a pull request for the branch")
	tapCmd.Flags().BoolVar(&tapAuto, "auto", false, "create a missing tap repository without prompting")
	tapCmd.Flags().
		BoolVar(&tapNonInteractive, "non-interactive", false, "never prompt; fail when input would be required")
	tapCmd.Flags().BoolVar(&tapDryRun, "dry-run", false, "print the formula and intended operations only")
	tapCmd.Flags().
		StringVar(&tapFormulaTemplate, "formula-template", "", "path to a custom formula template")
	tapCmd.Flags().StringVarP(&tapReleaseRepo, "repo", "r", "", "release repository backing the homepage default")
	tapCmd.Flags().StringVar(&tapDesc, "desc", "", `formula description (default "CLI tool")`)
	tapCmd.Flags().StringVar(&tapHomepage, "homepage", "", "formula homepage URL")
	tapCmd.Flags().StringVar(&tapDistDir, "dist", manifest.DefaultDistDir, "distribution directory")

	rootCmd.AddCommand(tapCmd)
}
