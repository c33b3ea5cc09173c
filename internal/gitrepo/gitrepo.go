package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/slipway-sh/slipway/internal/errkind"
)

// Retry policy for clone and push against the tap host.
const (
	maxAttempts = 3
	retryDelay  = 2 * time.Second
)

var (
	// ErrEmptyRemote is reported when the tap repository exists but has no
	// commits yet, e.g. right after auto-creation.
	ErrEmptyRemote = errors.New("remote repository is empty")
	// ErrBranchMissing is reported when a remote branch does not exist.
	ErrBranchMissing = errors.New("remote branch not found")
	// ErrFileMissing is reported when a file is absent from a remote branch.
	ErrFileMissing = errors.New("file not found on remote branch")
)

// CloneOptions configures a tap clone.
type CloneOptions struct {
	// URL is the HTTPS remote of the tap repository.
	URL string
	// Token authenticates the clone and later pushes; empty means anonymous.
	Token string
	// ShallowDepth limits history depth; zero clones the full history.
	ShallowDepth int
}

// TapRepo is an in-memory working copy of the tap repository.
// Both the object storage and the worktree live in memory: the formula
// publishing flow touches a handful of small files and never needs disk.
type TapRepo struct {
	repo          *git.Repository
	worktree      *git.Worktree
	fs            billy.Filesystem
	auth          transport.AuthMethod
	url           string
	defaultBranch string
}

// CloneTap clones the tap repository into memory.
// An empty remote reports ErrEmptyRemote so callers can fall back to InitTap.
func CloneTap(ctx context.Context, opts CloneOptions) (*TapRepo, error) {
	var (
		storage = memory.NewStorage()
		fs      = memfs.New()
		auth    = tokenAuth(opts.Token)
		repo    *git.Repository
	)

	err := withRetry(ctx, func() error {
		var cloneErr error
		repo, cloneErr = git.CloneContext(ctx, storage, fs, &git.CloneOptions{
			URL:   opts.URL,
			Auth:  auth,
			Depth: opts.ShallowDepth,
			Tags:  git.NoTags,
		})

		return cloneErr
	})
	if err != nil {
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return nil, fmt.Errorf("%w: %s", ErrEmptyRemote, opts.URL)
		}

		return nil, classifyRemoteErr(err, "clone %s", opts.URL)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve default branch: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}

	return &TapRepo{
		repo:          repo,
		worktree:      worktree,
		fs:            fs,
		auth:          auth,
		url:           opts.URL,
		defaultBranch: head.Name().Short(),
	}, nil
}

// InitTap prepares an in-memory repository for a tap remote that has no
// commits yet. The first CommitAll lands on defaultBranch and Push publishes
// it as the remote's initial history.
func InitTap(url, token, defaultBranch string) (*TapRepo, error) {
	var (
		storage = memory.NewStorage()
		fs      = memfs.New()
	)

	repo, err := git.Init(storage, fs)
	if err != nil {
		return nil, fmt.Errorf("init repository: %w", err)
	}

	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(defaultBranch))
	if err = repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("set default branch: %w", err)
	}

	if _, err = repo.CreateRemote(&config.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{url},
	}); err != nil {
		return nil, fmt.Errorf("configure remote: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}

	return &TapRepo{
		repo:          repo,
		worktree:      worktree,
		fs:            fs,
		auth:          tokenAuth(token),
		url:           url,
		defaultBranch: defaultBranch,
	}, nil
}

// DefaultBranch returns the branch HEAD pointed at after clone or init.
func (r *TapRepo) DefaultBranch() string {
	return r.defaultBranch
}

// RemoteBranchExists reports whether the clone saw the given branch on the remote.
func (r *TapRepo) RemoteBranchExists(branch string) bool {
	_, err := r.repo.Reference(plumbing.NewRemoteReferenceName(git.DefaultRemoteName, branch), true)

	return err == nil
}

// RemoteFileContent reads a file from the tip of a remote branch.
// A missing branch reports ErrBranchMissing, a missing file ErrFileMissing.
func (r *TapRepo) RemoteFileContent(branch, path string) (string, error) {
	ref, err := r.repo.Reference(plumbing.NewRemoteReferenceName(git.DefaultRemoteName, branch), true)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBranchMissing, branch)
	}

	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return "", fmt.Errorf("read commit at %s: %w", branch, err)
	}

	file, err := commit.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", fmt.Errorf("%w: %s on %s", ErrFileMissing, path, branch)
		}

		return "", fmt.Errorf("read %s on %s: %w", path, branch, err)
	}

	contents, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read %s on %s: %w", path, branch, err)
	}

	return contents, nil
}

// CheckoutBranch creates the named branch at the current HEAD and switches
// the worktree to it.
func (r *TapRepo) CheckoutBranch(branch string) error {
	err := r.worktree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(branch),
		Create: true,
		Force:  true,
	})
	if err != nil {
		return fmt.Errorf("checkout branch %s: %w", branch, err)
	}

	return nil
}

// WriteFile writes a file into the worktree, creating parent directories.
func (r *TapRepo) WriteFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := r.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	f, err := r.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err = f.Write(data); err != nil {
		_ = f.Close()

		return fmt.Errorf("write %s: %w", path, err)
	}

	if err = f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	return nil
}

// CommitAll stages every change and commits it with the given identity.
func (r *TapRepo) CommitAll(message, authorName, authorEmail string) (string, error) {
	if err := r.worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("stage changes: %w", err)
	}

	hash, err := r.worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	return hash.String(), nil
}

// Push publishes the named branch to the remote. A force push carries the
// branch-reset semantics of the release flow; an up-to-date remote is a
// no-op success.
func (r *TapRepo) Push(ctx context.Context, branch string, force bool) error {
	refspec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)
	if force {
		refspec = "+" + refspec
	}

	err := withRetry(ctx, func() error {
		pushErr := r.repo.PushContext(ctx, &git.PushOptions{
			RemoteName: git.DefaultRemoteName,
			RefSpecs:   []config.RefSpec{config.RefSpec(refspec)},
			Auth:       r.auth,
		})
		if errors.Is(pushErr, git.NoErrAlreadyUpToDate) {
			return nil
		}

		return pushErr
	})
	if err != nil {
		return classifyRemoteErr(err, "push branch %s to %s", branch, r.url)
	}

	return nil
}

// tokenAuth builds HTTPS basic auth with the token as password.
// Anonymous access (local fixtures, public reads) uses no auth method.
func tokenAuth(token string) transport.AuthMethod {
	if token == "" {
		return nil
	}

	return &githttp.BasicAuth{
		Username: "token",
		Password: token,
	}
}

// classifyRemoteErr maps go-git transport failures onto the error taxonomy.
func classifyRemoteErr(err error, format string, args ...any) error {
	if errors.Is(err, transport.ErrAuthenticationRequired) ||
		errors.Is(err, transport.ErrAuthorizationFailed) {
		return errkind.Wrap(errkind.Unauthenticated, err, format, args...)
	}

	return errkind.Wrap(errkind.RemoteError, err, format, args...)
}

// withRetry runs fn up to maxAttempts times with a doubling delay,
// skipping retries for failures that cannot heal on their own.
func withRetry(ctx context.Context, fn func() error) error {
	delay := retryDelay

	var err error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || !retryableGitErr(err) || attempt == maxAttempts {
			return err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("canceled while waiting to retry: %w", ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
	}

	return err
}

// retryableGitErr filters out failures where a retry cannot change the outcome.
func retryableGitErr(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.Is(err, transport.ErrRepositoryNotFound),
		errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, git.ErrNonFastForwardUpdate):
		return false
	default:
		return true
	}
}
