package tap

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/slipway-sh/slipway/internal/auth"
	"github.com/slipway-sh/slipway/internal/config"
	"github.com/slipway-sh/slipway/internal/domain/release"
	"github.com/slipway-sh/slipway/internal/errkind"
	"github.com/slipway-sh/slipway/internal/executor"
	"github.com/slipway-sh/slipway/internal/ghcli"
	"github.com/slipway-sh/slipway/internal/gitrepo"
	"github.com/slipway-sh/slipway/internal/logger"
	"github.com/slipway-sh/slipway/internal/render"
	"github.com/slipway-sh/slipway/internal/repository/manifest"
	"github.com/slipway-sh/slipway/internal/service/common"
)

const (
	// defaultDesc fills the formula description when nothing else names one.
	defaultDesc = "CLI tool"
	// defaultTapBranch is the branch a freshly bootstrapped tap starts on.
	defaultTapBranch = "main"
	// formulaDir is where Homebrew expects formula files inside a tap.
	formulaDir = "Formula"
	// cloneDepth keeps tap clones shallow; the stage only needs branch tips.
	cloneDepth = 1
)

// Options contains inputs for the formula publish entry point.
type Options struct {
	// Tag is the release tag; it must match the built manifest.
	Tag string
	// Name is the tool identifier; it must match the built manifest.
	Name string
	// Formula is the formula file name without the .rb suffix.
	Formula string
	// TapRepo is the tap repository (owner/name form).
	TapRepo string
	// Branch overrides the release branch, default "<name>/<tag>".
	Branch string
	// OpenPR opens a pull request for the branch after pushing.
	OpenPR bool
	// Auto creates a missing tap repository without prompting.
	Auto bool
	// NonInteractive forbids prompts; missing prerequisites fail instead.
	NonInteractive bool
	// DryRun renders the formula and reports intended operations only.
	DryRun bool
	// FormulaTemplate overrides the embedded formula template.
	FormulaTemplate string
	// Repo is the release repository, used for the homepage default.
	Repo string
	// Desc overrides the formula description.
	Desc string
	// Homepage overrides the formula homepage.
	Homepage string
	// DistDir holds the manifest from the build stage.
	DistDir string
	// Config carries the project settings backing flag defaults.
	Config *config.Config
}

// repoAdmin is the slice of the GitHub CLI the tap stage drives.
type repoAdmin interface {
	RepoExists(ctx context.Context, repo string) (bool, error)
	CreateRepo(ctx context.Context, repo string, private bool) error
	FindOpenPR(ctx context.Context, repo, head string) (*ghcli.PullRequest, error)
	CreatePR(ctx context.Context, repo, base, head, title, body string) (*ghcli.PullRequest, error)
}

// credentialSource yields a GitHub token for the remote calls.
type credentialSource interface {
	Token(ctx context.Context) (string, error)
}

// syncOutcome describes how the tap ended up carrying the formula.
type syncOutcome int

const (
	// syncMerged: the default branch already has this exact formula.
	syncMerged syncOutcome = iota
	// syncBootstrapped: an empty tap was seeded directly on its default branch.
	syncBootstrapped
	// syncBranchReady: the release branch now carries the formula.
	syncBranchReady
)

// tapper renders the Homebrew formula for a built release and pushes it to
// the tap repository on a release branch, optionally opening a pull request.
// Every remote mutation is an upsert so re-runs converge.
type tapper struct {
	opts        *Options
	store       manifest.Repository
	creds       credentialSource
	newAdmin    func(token string) repoAdmin
	clone       func(ctx context.Context, opts gitrepo.CloneOptions) (*gitrepo.TapRepo, error)
	initRepo    func(url, token, defaultBranch string) (*gitrepo.TapRepo, error)
	resolveURL  func(tapRepo string) string
	author      func() (name, email string, err error)
	confirm     func(prompt string) (bool, error)
	out         io.Writer
	depth       int
	interactive bool
	timeout     time.Duration
}

// Run executes the tap stage against the manifest in the dist directory.
// In dry-run mode nothing is contacted; otherwise the formula lands on the
// release branch and, when requested, an open pull request exists for it.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "tap")

	return newTapper(opts).run(ctx)
}

// newTapper wires the tapper with the manifest store, the credential
// cascade, the gh client factory and the git transport.
func newTapper(opts *Options) *tapper {
	if opts.DistDir == "" {
		opts.DistDir = manifest.DefaultDistDir
	}

	runner := executor.NewCommandRunner()
	host := common.ResolveHost(opts.Config)

	return &tapper{
		opts:     opts,
		store:    manifest.NewFileRepository(manifest.DefaultPath(opts.DistDir)),
		creds:    auth.DefaultChain(ghcli.NewClient(runner), opts.NonInteractive),
		clone:    gitrepo.CloneTap,
		initRepo: gitrepo.InitTap,
		author:   common.DetectAuthor,
		confirm:  confirmFromStdin,
		out:      os.Stdout,
		depth:    cloneDepth,
		timeout:  common.ResolveTimeout(opts.Config),
		newAdmin: func(token string) repoAdmin {
			return ghcli.NewClient(runner, ghcli.WithToken(token))
		},
		resolveURL: func(tapRepo string) string {
			return fmt.Sprintf("https://%s/%s.git", host, tapRepo)
		},
		interactive: !opts.NonInteractive &&
			(isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())),
	}
}

func (t *tapper) run(ctx context.Context) error {
	if _, err := release.ParseTag(t.opts.Tag); err != nil {
		return errkind.Wrap(errkind.Usage, err, "invalid release tag")
	}

	if t.opts.Name == "" {
		return errkind.New(errkind.Usage, "tool name is required")
	}

	if t.opts.Formula == "" {
		return errkind.New(errkind.Usage, "formula name is required")
	}

	tapRepo, err := t.resolveTap()
	if err != nil {
		return err
	}

	doc, err := t.loadBuilt(ctx)
	if err != nil {
		return err
	}

	content, err := t.renderFormula(doc)
	if err != nil {
		return err
	}

	branch := t.opts.Branch
	if branch == "" {
		branch = fmt.Sprintf("%s/%s", doc.Name, doc.Tag)
	}

	formulaPath := path.Join(formulaDir, t.opts.Formula+".rb")

	if t.opts.DryRun {
		return t.dryRun(ctx, tapRepo, branch, formulaPath, content)
	}

	token, err := t.creds.Token(ctx)
	if err != nil {
		return err
	}

	admin := t.newAdmin(token)

	if err = t.ensureTapRepo(ctx, admin, tapRepo); err != nil {
		return err
	}

	outcome, base, err := t.syncFormula(ctx, tapRepo, token, branch, formulaPath, content, doc)
	if err != nil {
		return err
	}

	if outcome != syncBranchReady || !t.opts.OpenPR {
		return nil
	}

	return t.ensurePullRequest(ctx, admin, tapRepo, base, branch, doc)
}

// resolveTap picks the tap repository from the flag or project settings.
func (t *tapper) resolveTap() (string, error) {
	if t.opts.TapRepo != "" {
		return t.opts.TapRepo, nil
	}

	if t.opts.Config != nil && t.opts.Config.Tap != "" {
		return t.opts.Config.Tap, nil
	}

	return "", errkind.New(errkind.PreconditionFailed,
		"tap repository is required; pass --tap or set tap in %s", config.DefaultConfigFilename)
}

// loadBuilt reads the manifest, checks it belongs to this invocation and
// that every checksum the formula will embed is present.
func (t *tapper) loadBuilt(ctx context.Context) (*release.Manifest, error) {
	doc, err := t.store.Load(ctx)
	if err != nil {
		if errors.Is(err, manifest.ErrNotFound) {
			return nil, errkind.Wrap(errkind.PreconditionFailed, err, "no manifest; run plan and build first")
		}

		return nil, fmt.Errorf("load manifest: %w", err)
	}

	if doc.Tag != t.opts.Tag {
		return nil, errkind.New(errkind.PreconditionFailed,
			"manifest tag %q does not match %q; re-run plan for this release", doc.Tag, t.opts.Tag)
	}

	if doc.Name != t.opts.Name {
		return nil, errkind.New(errkind.PreconditionFailed,
			"manifest name %q does not match %q; re-run plan for this release", doc.Name, t.opts.Name)
	}

	if missing := doc.MissingChecksums(); len(missing) > 0 {
		return nil, errkind.New(errkind.ManifestIncomplete,
			"manifest has no checksums for %s; run build first", strings.Join(missing, ", "))
	}

	return doc, nil
}

// renderFormula produces the formula text for this release.
func (t *tapper) renderFormula(doc *release.Manifest) ([]byte, error) {
	data := render.FormulaData{
		FormulaName: t.opts.Formula,
		Name:        doc.Name,
		Version:     doc.Version,
		Desc:        t.desc(),
		Homepage:    t.homepage(),
	}

	content, err := render.Formula(t.opts.FormulaTemplate, data, doc)
	if err != nil {
		return nil, fmt.Errorf("render formula: %w", err)
	}

	return []byte(content), nil
}

// desc picks the formula description: flag, settings, then a neutral default.
func (t *tapper) desc() string {
	if t.opts.Desc != "" {
		return t.opts.Desc
	}

	if t.opts.Config != nil && t.opts.Config.Desc != "" {
		return t.opts.Config.Desc
	}

	return defaultDesc
}

// homepage picks the formula homepage, deriving one from the release
// repository when nothing names it explicitly.
func (t *tapper) homepage() string {
	if t.opts.Homepage != "" {
		return t.opts.Homepage
	}

	if t.opts.Config != nil && t.opts.Config.Homepage != "" {
		return t.opts.Config.Homepage
	}

	if repo, err := common.ResolveRepo(t.opts.Repo, t.opts.Config); err == nil {
		return fmt.Sprintf("https://%s/%s", common.ResolveHost(t.opts.Config), repo)
	}

	return ""
}

// dryRun prints the rendered formula and the operations a real run would
// perform, touching nothing remote.
func (t *tapper) dryRun(ctx context.Context, tapRepo, branch, formulaPath string, content []byte) error {
	fmt.Fprint(t.out, string(content))

	logger.InfoKV(ctx, "Dry run, no remote changes made",
		"tap", tapRepo,
		"branch", branch,
		"path", formulaPath,
		"commit_message", fmt.Sprintf("Update %s to %s", t.opts.Formula, t.opts.Tag),
		"open_pr", t.opts.OpenPR)

	return nil
}

// ensureTapRepo verifies the tap repository exists, creating it when
// allowed: automatically with --auto, after a confirmation otherwise.
func (t *tapper) ensureTapRepo(ctx context.Context, admin repoAdmin, tapRepo string) error {
	lookupCtx, cancelLookup := context.WithTimeout(ctx, t.timeout)
	exists, err := admin.RepoExists(lookupCtx, tapRepo)

	cancelLookup()

	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	switch {
	case t.opts.Auto:
		// Create without asking.
	case t.opts.NonInteractive || !t.interactive:
		return errkind.New(errkind.PreconditionFailed,
			"tap repository %s does not exist; pass --auto to create it", tapRepo)
	default:
		ok, confirmErr := t.confirm(fmt.Sprintf("Tap repository %s does not exist. Create it? [y/N] ", tapRepo))
		if confirmErr != nil {
			return fmt.Errorf("read confirmation: %w", confirmErr)
		}

		if !ok {
			return errkind.New(errkind.PreconditionFailed,
				"tap repository creation declined for %s", tapRepo)
		}
	}

	createCtx, cancelCreate := context.WithTimeout(ctx, t.timeout)
	defer cancelCreate()

	if err = admin.CreateRepo(createCtx, tapRepo, false); err != nil {
		return err
	}

	logger.InfoKV(ctx, "Created tap repository", "repo", tapRepo)

	return nil
}

// syncFormula brings the tap to a state where the formula content is
// reachable: already merged on the default branch, seeded into an empty
// tap, or pushed to the release branch. The returned base is the branch a
// pull request should target.
func (t *tapper) syncFormula(
	ctx context.Context,
	tapRepo, token, branch, formulaPath string,
	content []byte,
	doc *release.Manifest,
) (syncOutcome, string, error) {
	url := t.resolveURL(tapRepo)

	cloneCtx, cancelClone := context.WithTimeout(ctx, t.timeout)
	repo, err := t.clone(cloneCtx, gitrepo.CloneOptions{URL: url, Token: token, ShallowDepth: t.depth})

	cancelClone()

	if errors.Is(err, gitrepo.ErrEmptyRemote) {
		return t.bootstrap(ctx, url, token, formulaPath, content, doc)
	}

	if err != nil {
		return 0, "", err
	}

	base := repo.DefaultBranch()

	current, err := repo.RemoteFileContent(base, formulaPath)
	if err == nil && current == string(content) {
		logger.InfoKV(ctx, "Formula already up to date", "tap", tapRepo, "branch", base)

		return syncMerged, base, nil
	}

	if err != nil && !errors.Is(err, gitrepo.ErrFileMissing) {
		return 0, "", err
	}

	if repo.RemoteBranchExists(branch) {
		existing, branchErr := repo.RemoteFileContent(branch, formulaPath)
		if branchErr == nil && existing == string(content) {
			logger.InfoKV(ctx, "Branch already carries this formula", "tap", tapRepo, "branch", branch)

			return syncBranchReady, base, nil
		}

		if branchErr != nil && !errors.Is(branchErr, gitrepo.ErrFileMissing) {
			return 0, "", branchErr
		}
	}

	if err = t.pushFormula(ctx, repo, branch, formulaPath, content, doc); err != nil {
		return 0, "", err
	}

	logger.InfoKV(ctx, "Pushed formula branch",
		"tap", tapRepo,
		"branch", branch,
		"path", formulaPath)

	return syncBranchReady, base, nil
}

// pushFormula writes the formula on the release branch and force-pushes it,
// resetting any stale branch content from an earlier run.
func (t *tapper) pushFormula(
	ctx context.Context,
	repo *gitrepo.TapRepo,
	branch, formulaPath string,
	content []byte,
	doc *release.Manifest,
) error {
	if err := repo.CheckoutBranch(branch); err != nil {
		return err
	}

	if err := repo.WriteFile(formulaPath, content); err != nil {
		return err
	}

	authorName, authorEmail, err := t.author()
	if err != nil {
		return fmt.Errorf("resolve commit author: %w", err)
	}

	message := fmt.Sprintf("Update %s to %s", t.opts.Formula, doc.Tag)
	if _, err = repo.CommitAll(message, authorName, authorEmail); err != nil {
		return err
	}

	pushCtx, cancelPush := context.WithTimeout(ctx, t.timeout)
	defer cancelPush()

	return repo.Push(pushCtx, branch, true)
}

// bootstrap publishes the first formula of an empty tap straight to its
// default branch; there is nothing to diff against, so no pull request.
func (t *tapper) bootstrap(
	ctx context.Context,
	url, token, formulaPath string,
	content []byte,
	doc *release.Manifest,
) (syncOutcome, string, error) {
	logger.InfoKV(ctx, "Tap repository is empty, publishing first formula",
		"branch", defaultTapBranch)

	repo, err := t.initRepo(url, token, defaultTapBranch)
	if err != nil {
		return 0, "", err
	}

	if err = repo.WriteFile(formulaPath, content); err != nil {
		return 0, "", err
	}

	authorName, authorEmail, err := t.author()
	if err != nil {
		return 0, "", fmt.Errorf("resolve commit author: %w", err)
	}

	message := fmt.Sprintf("Add %s %s", t.opts.Formula, doc.Tag)
	if _, err = repo.CommitAll(message, authorName, authorEmail); err != nil {
		return 0, "", err
	}

	pushCtx, cancelPush := context.WithTimeout(ctx, t.timeout)
	defer cancelPush()

	if err = repo.Push(pushCtx, defaultTapBranch, false); err != nil {
		return 0, "", err
	}

	return syncBootstrapped, defaultTapBranch, nil
}

// ensurePullRequest reuses the open pull request for the branch or opens a
// new one against the tap's default branch.
func (t *tapper) ensurePullRequest(ctx context.Context, admin repoAdmin, tapRepo, base, branch string, doc *release.Manifest) error {
	findCtx, cancelFind := context.WithTimeout(ctx, t.timeout)
	existing, err := admin.FindOpenPR(findCtx, tapRepo, branch)

	cancelFind()

	if err != nil {
		return err
	}

	if existing != nil {
		logger.InfoKV(ctx, "Reusing open pull request", "url", existing.URL)

		return nil
	}

	title := fmt.Sprintf("Update %s to %s", t.opts.Formula, doc.Tag)
	body := fmt.Sprintf("Automated update via slipway for %s", doc.Tag)

	createCtx, cancelCreate := context.WithTimeout(ctx, t.timeout)
	defer cancelCreate()

	created, err := admin.CreatePR(createCtx, tapRepo, base, branch, title, body)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Opened pull request", "url", created.URL)

	return nil
}

// confirmFromStdin asks on stderr and reads a single-line answer.
func confirmFromStdin(prompt string) (bool, error) {
	fmt.Fprint(os.Stderr, prompt)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}

	answer := strings.ToLower(strings.TrimSpace(line))

	return answer == "y" || answer == "yes", nil
}
