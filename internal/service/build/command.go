package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/slipway-sh/slipway/internal/archive"
	"github.com/slipway-sh/slipway/internal/config"
	"github.com/slipway-sh/slipway/internal/domain/release"
	"github.com/slipway-sh/slipway/internal/errkind"
	"github.com/slipway-sh/slipway/internal/logger"
	"github.com/slipway-sh/slipway/internal/repository/manifest"
	"github.com/slipway-sh/slipway/internal/service/common"
	"github.com/slipway-sh/slipway/internal/wrapgen"
)

// DefaultArtifactsDir is where prebuilt binaries are expected per target.
const DefaultArtifactsDir = "build"

// dirPermissions applies to the dist directory.
const dirPermissions = 0o755

// errNoBinary marks a target directory without a qualifying candidate.
var errNoBinary = errors.New("no binary candidate")

// Options contains inputs for the build entry point.
type Options struct {
	// Tag is the release tag; it must match the planned manifest.
	Tag string
	// Name is the tool identifier; it must match the planned manifest.
	Name string
	// Repo overrides the release repository (owner/name form).
	Repo string
	// DistDir is the output directory for archives and the manifest.
	DistDir string
	// ArtifactsDir holds the per-target input binaries.
	ArtifactsDir string
	// NoAutoWrappers disables launcher generation for targets without binaries.
	NoAutoWrappers bool
	// Config carries the project settings backing flag defaults.
	Config *config.Config
}

// builder packages every planned target and fills the manifest checksums.
// It is unexported; callers use Run, which encapsulates setup and validation.
type builder struct {
	opts     *Options
	store    manifest.Repository
	wrappers wrapgen.Generator
}

// Run executes the build stage: locate one binary per target, archive it
// deterministically, compute checksums and derive download URLs. The
// manifest is saved once, after every target succeeded, so a failed run
// leaves the document untouched.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "build")

	return newBuilder(opts).run(ctx)
}

// newBuilder wires the builder with its manifest store and the default
// wrapper generator.
func newBuilder(opts *Options) *builder {
	if opts.DistDir == "" {
		opts.DistDir = manifest.DefaultDistDir
	}

	if opts.ArtifactsDir == "" {
		opts.ArtifactsDir = DefaultArtifactsDir
	}

	b := &builder{
		opts:  opts,
		store: manifest.NewFileRepository(manifest.DefaultPath(opts.DistDir)),
	}

	if !opts.NoAutoWrappers {
		b.wrappers = wrapgen.NewPythonGenerator(opts.ArtifactsDir)
	}

	return b
}

func (b *builder) run(ctx context.Context) error {
	if _, err := release.ParseTag(b.opts.Tag); err != nil {
		return errkind.Wrap(errkind.Usage, err, "invalid release tag")
	}

	if b.opts.Name == "" {
		return errkind.New(errkind.Usage, "tool name is required")
	}

	doc, err := b.loadPlanned(ctx)
	if err != nil {
		return err
	}

	repo, err := common.ResolveRepo(b.opts.Repo, b.opts.Config)
	if err != nil {
		return err
	}

	binaries, err := b.locateAll(ctx, doc)
	if err != nil {
		return err
	}

	staged := doc.Clone()
	if err = b.packageAll(ctx, staged, binaries, repo); err != nil {
		return err
	}

	if err = b.store.Save(ctx, staged); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}

	logger.InfoKV(ctx, "Updated manifest with checksums",
		"path", b.store.Path(),
		"targets", len(staged.Assets))

	return nil
}

// loadPlanned reads the manifest and checks it belongs to this invocation.
func (b *builder) loadPlanned(ctx context.Context) (*release.Manifest, error) {
	doc, err := b.store.Load(ctx)
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			return nil, errkind.Wrap(errkind.PreconditionFailed, err, "no manifest; run plan first")
		}

		return nil, fmt.Errorf("load manifest: %w", err)
	}

	if doc.Tag != b.opts.Tag {
		return nil, errkind.New(errkind.PreconditionFailed,
			"manifest tag %q does not match %q; re-run plan for this release", doc.Tag, b.opts.Tag)
	}

	if doc.Name != b.opts.Name {
		return nil, errkind.New(errkind.PreconditionFailed,
			"manifest name %q does not match %q; re-run plan for this release", doc.Name, b.opts.Name)
	}

	return doc, nil
}

// locateAll finds one binary per target, invoking the wrapper generator at
// most once when some targets have no prebuilt candidate.
func (b *builder) locateAll(ctx context.Context, doc *release.Manifest) (map[string]string, error) {
	binaries := make(map[string]string, len(doc.Assets))

	missing, err := b.scan(doc, binaries)
	if err != nil {
		return nil, err
	}

	if len(missing) > 0 && b.wrappers != nil {
		logger.InfoKV(ctx, "Generating launchers for targets without binaries",
			"targets", strings.Join(targetIDs(missing), ", "))

		if err = b.wrappers.GenerateWrappers(ctx, doc.Name, missing); err != nil {
			return nil, fmt.Errorf("generate wrappers: %w", err)
		}

		missing, err = b.scan(doc, binaries)
		if err != nil {
			return nil, err
		}
	}

	if len(missing) > 0 {
		target := missing[0].ID

		return nil, errkind.New(errkind.InputNotFound,
			"no binary for target %s: expected %s", target,
			filepath.Join(b.opts.ArtifactsDir, target, doc.Name+"*"))
	}

	return binaries, nil
}

// scan fills the located map and returns the targets still without a binary.
func (b *builder) scan(doc *release.Manifest, binaries map[string]string) ([]release.Target, error) {
	var missing []release.Target

	for i := range doc.Assets {
		target := doc.Assets[i].Target
		if _, done := binaries[target]; done {
			continue
		}

		path, err := b.locateBinary(target, doc.Name)
		if err != nil {
			if errors.Is(err, errNoBinary) {
				missing = append(missing, missingTarget(target))

				continue
			}

			return nil, err
		}

		binaries[target] = path
	}

	return missing, nil
}

// locateBinary picks the single name-prefixed regular file for a target.
// Directory entries are considered in lexical order.
func (b *builder) locateBinary(target, name string) (string, error) {
	dir := filepath.Join(b.opts.ArtifactsDir, target)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", errNoBinary
		}

		return "", fmt.Errorf("read artifacts directory %s: %w", dir, err)
	}

	var candidates []string

	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasPrefix(entry.Name(), name) {
			candidates = append(candidates, entry.Name())
		}
	}

	switch len(candidates) {
	case 0:
		return "", errNoBinary
	case 1:
		return filepath.Join(dir, candidates[0]), nil
	default:
		return "", errkind.New(errkind.Ambiguous,
			"multiple binaries for target %s in %s: %s", target, dir, strings.Join(candidates, ", "))
	}
}

// packageAll archives every located binary and fills checksum and URL on the
// staged manifest.
func (b *builder) packageAll(ctx context.Context, staged *release.Manifest, binaries map[string]string, repo string) error {
	if err := os.MkdirAll(b.opts.DistDir, dirPermissions); err != nil {
		return fmt.Errorf("create dist directory: %w", err)
	}

	host := common.ResolveHost(b.opts.Config)

	for i := range staged.Assets {
		asset := &staged.Assets[i]
		src := binaries[asset.Target]

		member := staged.Name
		if strings.HasSuffix(src, ".exe") {
			member += ".exe"
		}

		sum, err := archive.PackBinary(src, filepath.Join(b.opts.DistDir, asset.Filename), member)
		if err != nil {
			return fmt.Errorf("package %s: %w", asset.Target, err)
		}

		asset.SHA256 = sum
		asset.URL = release.DownloadURL(host, repo, staged.Tag, asset.Filename)

		logger.InfoKV(ctx, "Packaged archive",
			"archive", asset.Filename,
			"sha256", sum[:16]+"...")
	}

	return nil
}

// missingTarget resolves a manifest target id against the known table,
// falling back to a bare id for hand-edited manifests so the error still
// names it.
func missingTarget(id string) release.Target {
	if target, ok := release.LookupTarget(id); ok {
		return target
	}

	return release.Target{ID: id}
}

// targetIDs renders a target list for logging.
func targetIDs(targets []release.Target) []string {
	ids := make([]string, 0, len(targets))
	for _, target := range targets {
		ids = append(ids, target.ID)
	}

	return ids
}
