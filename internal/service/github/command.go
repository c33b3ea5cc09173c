package github

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/slipway-sh/slipway/internal/auth"
	"github.com/slipway-sh/slipway/internal/config"
	"github.com/slipway-sh/slipway/internal/domain/release"
	"github.com/slipway-sh/slipway/internal/errkind"
	"github.com/slipway-sh/slipway/internal/executor"
	"github.com/slipway-sh/slipway/internal/ghcli"
	"github.com/slipway-sh/slipway/internal/logger"
	"github.com/slipway-sh/slipway/internal/render"
	"github.com/slipway-sh/slipway/internal/repository/manifest"
	"github.com/slipway-sh/slipway/internal/service/common"
)

// Options contains inputs for the publish entry point.
type Options struct {
	// Tag is the release tag; it must match the built manifest.
	Tag string
	// Name is the tool identifier; it must match the built manifest.
	Name string
	// Repo overrides the release repository (owner/name form).
	Repo string
	// DistDir holds the archives and the manifest from the build stage.
	DistDir string
	// ReleaseNotes is an optional template rendered into the release body.
	ReleaseNotes string
	// Config carries the project settings backing flag defaults.
	Config *config.Config
}

// releaseClient is the slice of the GitHub CLI the publisher drives.
type releaseClient interface {
	ReleaseByTag(ctx context.Context, repo, tag string) (*ghcli.Release, error)
	CreateDraftRelease(ctx context.Context, repo, tag, notesFile string) error
	UploadAssets(ctx context.Context, repo, tag string, paths []string) error
}

// credentialSource yields a GitHub token for the remote calls.
type credentialSource interface {
	Token(ctx context.Context) (string, error)
}

// publisher pushes a completed release to GitHub: it ensures a draft
// release exists for the tag and uploads every archive, replacing stale
// assets so re-runs converge.
type publisher struct {
	opts      *Options
	store     manifest.Repository
	creds     credentialSource
	newClient func(token string) releaseClient
	timeout   time.Duration
}

// Run executes the publish stage against the manifest in the dist
// directory. Nothing is contacted before the manifest and the archives
// pass validation, so misconfigured runs fail without network traffic.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "github")

	return newPublisher(opts).run(ctx)
}

// newPublisher wires the publisher with the manifest store, the credential
// cascade and a factory producing authenticated gh clients.
func newPublisher(opts *Options) *publisher {
	if opts.DistDir == "" {
		opts.DistDir = manifest.DefaultDistDir
	}

	runner := executor.NewCommandRunner()

	return &publisher{
		opts:    opts,
		store:   manifest.NewFileRepository(manifest.DefaultPath(opts.DistDir)),
		creds:   auth.DefaultChain(ghcli.NewClient(runner), false),
		timeout: common.ResolveTimeout(opts.Config),
		newClient: func(token string) releaseClient {
			return ghcli.NewClient(runner, ghcli.WithToken(token))
		},
	}
}

func (p *publisher) run(ctx context.Context) error {
	if _, err := release.ParseTag(p.opts.Tag); err != nil {
		return errkind.Wrap(errkind.Usage, err, "invalid release tag")
	}

	if p.opts.Name == "" {
		return errkind.New(errkind.Usage, "tool name is required")
	}

	doc, err := p.loadBuilt(ctx)
	if err != nil {
		return err
	}

	repo, err := common.ResolveRepo(p.opts.Repo, p.opts.Config)
	if err != nil {
		return err
	}

	archives, err := p.collectArchives(doc)
	if err != nil {
		return err
	}

	token, err := p.creds.Token(ctx)
	if err != nil {
		return err
	}

	gh := p.newClient(token)

	if err = p.ensureRelease(ctx, gh, repo, doc); err != nil {
		return err
	}

	uploadCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err = gh.UploadAssets(uploadCtx, repo, doc.Tag, archives); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Release published",
		"repo", repo,
		"tag", doc.Tag,
		"assets", len(archives))

	return nil
}

// loadBuilt reads the manifest, checks it belongs to this invocation and
// that the build stage filled every checksum.
func (p *publisher) loadBuilt(ctx context.Context) (*release.Manifest, error) {
	doc, err := p.store.Load(ctx)
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			return nil, errkind.Wrap(errkind.PreconditionFailed, err, "no manifest; run plan and build first")
		}

		return nil, fmt.Errorf("load manifest: %w", err)
	}

	if doc.Tag != p.opts.Tag {
		return nil, errkind.New(errkind.PreconditionFailed,
			"manifest tag %q does not match %q; re-run plan for this release", doc.Tag, p.opts.Tag)
	}

	if doc.Name != p.opts.Name {
		return nil, errkind.New(errkind.PreconditionFailed,
			"manifest name %q does not match %q; re-run plan for this release", doc.Name, p.opts.Name)
	}

	if missing := doc.MissingChecksums(); len(missing) > 0 {
		return nil, errkind.New(errkind.ManifestIncomplete,
			"manifest has no checksums for %s; run build first", strings.Join(missing, ", "))
	}

	return doc, nil
}

// collectArchives verifies every archive named by the manifest is present
// in the dist directory and returns their paths in manifest order.
func (p *publisher) collectArchives(doc *release.Manifest) ([]string, error) {
	paths := make([]string, 0, len(doc.Assets))

	for i := range doc.Assets {
		path := filepath.Join(p.opts.DistDir, doc.Assets[i].Filename)

		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, errkind.New(errkind.InputNotFound,
					"archive %s not found; run build first", path)
			}

			return nil, fmt.Errorf("stat archive %s: %w", path, err)
		}

		paths = append(paths, path)
	}

	return paths, nil
}

// ensureRelease reuses an existing release for the tag or creates a draft
// one, optionally with rendered notes.
func (p *publisher) ensureRelease(ctx context.Context, gh releaseClient, repo string, doc *release.Manifest) error {
	lookupCtx, cancelLookup := context.WithTimeout(ctx, p.timeout)
	existing, err := gh.ReleaseByTag(lookupCtx, repo, doc.Tag)

	cancelLookup()

	if err == nil {
		logger.InfoKV(ctx, "Reusing existing release",
			"url", existing.URL,
			"draft", existing.IsDraft)

		return nil
	}

	if !errors.Is(err, ghcli.ErrReleaseNotFound) {
		return err
	}

	notesFile, cleanup, err := p.renderNotes(ctx, doc)
	if err != nil {
		return err
	}
	defer cleanup()

	createCtx, cancelCreate := context.WithTimeout(ctx, p.timeout)
	defer cancelCreate()

	if err = gh.CreateDraftRelease(createCtx, repo, doc.Tag, notesFile); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Created draft release", "tag", doc.Tag)

	return nil
}

// renderNotes renders the notes template to a temporary file for gh.
// A missing template is skipped with a warning so pipelines keep working
// before the template lands in the repository.
func (p *publisher) renderNotes(ctx context.Context, doc *release.Manifest) (string, func(), error) {
	noop := func() {}

	if p.opts.ReleaseNotes == "" {
		return "", noop, nil
	}

	body, err := render.ReleaseNotes(p.opts.ReleaseNotes, doc)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.WarnKV(ctx, "Release notes template not found, creating release without notes",
				"template", p.opts.ReleaseNotes)

			return "", noop, nil
		}

		return "", noop, fmt.Errorf("render release notes: %w", err)
	}

	file, err := os.CreateTemp("", "slipway-notes-*.md")
	if err != nil {
		return "", noop, fmt.Errorf("create notes file: %w", err)
	}

	if _, err = file.WriteString(body); err != nil {
		_ = file.Close()
		_ = os.Remove(file.Name())

		return "", noop, fmt.Errorf("write notes file: %w", err)
	}

	if err = file.Close(); err != nil {
		_ = os.Remove(file.Name())

		return "", noop, fmt.Errorf("close notes file: %w", err)
	}

	return file.Name(), func() { _ = os.Remove(file.Name()) }, nil
}
