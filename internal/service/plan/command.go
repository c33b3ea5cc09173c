package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/slipway-sh/slipway/internal/domain/release"
	"github.com/slipway-sh/slipway/internal/errkind"
	"github.com/slipway-sh/slipway/internal/gitrepo"
	"github.com/slipway-sh/slipway/internal/logger"
	"github.com/slipway-sh/slipway/internal/repository/manifest"
)

// Options contains inputs for the plan entry point.
type Options struct {
	// Tag is the release tag in vMAJOR.MINOR.PATCH form.
	Tag string
	// Name is the tool identifier used in filename derivation.
	Name string
	// Targets is the comma-separated target spec; empty selects the default matrix.
	Targets string
	// DistDir is the output directory holding the manifest.
	DistDir string
	// SourceDir is the working tree checked for uncommitted changes.
	SourceDir string
}

// planner assembles the release manifest for one tag.
// It is unexported; callers use Run, which encapsulates setup and validation.
type planner struct {
	opts  *Options
	store manifest.Repository
	// treeClean reports whether the source working tree has no uncommitted
	// changes. A stale manifest must never mask unreleased code.
	treeClean func(dir string) (bool, error)
}

// Run executes the plan stage: it validates the tag, resolves the target
// matrix and writes a fresh manifest with empty checksums.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "plan")

	return newPlanner(opts).run(ctx)
}

// newPlanner wires the planner with its on-disk manifest store.
func newPlanner(opts *Options) *planner {
	return &planner{
		opts:      opts,
		store:     manifest.NewFileRepository(manifest.DefaultPath(opts.DistDir)),
		treeClean: gitrepo.WorkingTreeClean,
	}
}

func (p *planner) run(ctx context.Context) error {
	if _, err := release.ParseTag(p.opts.Tag); err != nil {
		return errkind.Wrap(errkind.Usage, err, "invalid release tag")
	}

	if p.opts.Name == "" {
		return errkind.New(errkind.Usage, "tool name is required")
	}

	if err := p.ensureCleanTree(); err != nil {
		return err
	}

	targets, err := release.ResolveTargets(p.opts.Targets)
	if err != nil {
		return errkind.Wrap(errkind.PreconditionFailed, err, "resolve targets")
	}

	doc, err := release.NewManifest(p.opts.Tag, p.opts.Name, targets)
	if err != nil {
		return fmt.Errorf("assemble manifest: %w", err)
	}

	p.noteReplacedManifest(ctx)

	if err = p.store.Save(ctx, doc); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}

	logger.InfoKV(ctx, "Created release manifest",
		"path", p.store.Path(),
		"tag", doc.Tag,
		"targets", strings.Join(doc.Targets, ", "))

	return nil
}

// ensureCleanTree enforces the plan precondition on the source repository.
func (p *planner) ensureCleanTree() error {
	dir := p.opts.SourceDir
	if dir == "" {
		dir = "."
	}

	clean, err := p.treeClean(dir)
	if err != nil {
		if errors.Is(err, gitrepo.ErrNotARepository) {
			return errkind.Wrap(errkind.PreconditionFailed, err, "plan requires a git repository")
		}

		return fmt.Errorf("check working tree: %w", err)
	}

	if !clean {
		return errkind.New(errkind.PreconditionFailed,
			"working tree has uncommitted changes; commit or stash them before planning %s", p.opts.Tag)
	}

	return nil
}

// noteReplacedManifest logs what an existing manifest is replaced with,
// since re-planning resets every checksum collected so far.
func (p *planner) noteReplacedManifest(ctx context.Context) {
	existing, err := p.store.Load(ctx)

	switch {
	case err == nil:
		logger.InfoKV(ctx, "Replacing existing manifest",
			"previous_tag", existing.Tag,
			"tag", p.opts.Tag)
	case errors.Is(err, manifest.ErrMalformed):
		logger.WarnKV(ctx, "Replacing malformed manifest", "path", p.store.Path())
	}
}
