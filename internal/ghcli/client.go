package ghcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/slipway-sh/slipway/internal/errkind"
	"github.com/slipway-sh/slipway/internal/executor"
)

// program is the GitHub CLI binary resolved from PATH.
const program = "gh"

// Default retry policy for transient remote failures.
const (
	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
)

var (
	// ErrReleaseNotFound is reported when no release exists for a tag.
	ErrReleaseNotFound = errors.New("release not found")
	// ErrRepoNotFound is reported when the remote repository does not exist.
	ErrRepoNotFound = errors.New("repository not found")
)

// transientMarkers are stderr fragments that identify failures worth retrying.
var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"temporarily unavailable",
	"502",
	"503",
	"504",
}

// Release mirrors the fields requested from `gh release view --json`.
type Release struct {
	// TagName is the git tag the release was created for.
	TagName string `json:"tagName"`
	// IsDraft reports whether the release is still unpublished.
	IsDraft bool `json:"isDraft"`
	// URL is the release page location.
	URL string `json:"url"`
	// Assets lists the files currently attached to the release.
	Assets []ReleaseAsset `json:"assets"`
}

// ReleaseAsset is one uploaded file on a release.
type ReleaseAsset struct {
	// Name is the asset filename on the release.
	Name string `json:"name"`
	// Size is the asset size in bytes.
	Size int64 `json:"size"`
}

// PullRequest mirrors the fields requested from `gh pr list --json`.
type PullRequest struct {
	// Number is the PR number in the target repository.
	Number int `json:"number"`
	// URL is the PR page location.
	URL string `json:"url"`
}

// Client drives the GitHub host through the gh CLI. All invocations run
// with prompts disabled; a token, when set, is handed over via GH_TOKEN.
type Client struct {
	runner     executor.Runner
	token      string
	maxRetries int
	retryDelay time.Duration
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithToken makes every invocation authenticate with the given token.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithRetryPolicy overrides the transient-failure retry policy.
func WithRetryPolicy(maxRetries int, delay time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryDelay = delay
	}
}

// NewClient creates a gh-backed host client.
func NewClient(runner executor.Runner, opts ...ClientOption) *Client {
	client := &Client{
		runner:     runner,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// AuthToken asks the locally authenticated gh installation for its token.
// Errors are returned as-is: the credential cascade treats any failure as
// "this source has nothing".
func (c *Client) AuthToken(ctx context.Context) (string, error) {
	result, err := c.runner.Run(ctx, program, []string{"auth", "token"},
		executor.WithEnv(promptlessEnv()))
	if err != nil {
		return "", fmt.Errorf("gh auth token: %w", err)
	}

	token := strings.TrimSpace(result.Stdout)
	if token == "" {
		return "", errors.New("gh auth token: empty output")
	}

	return token, nil
}

// ReleaseByTag looks an existing release up, reporting ErrReleaseNotFound
// when the tag has none.
func (c *Client) ReleaseByTag(ctx context.Context, repo, tag string) (*Release, error) {
	result, err := c.run(ctx,
		"release", "view", tag,
		"--repo", repo,
		"--json", "tagName,isDraft,url,assets")
	if err != nil {
		if isNotFoundOutput(result) {
			return nil, fmt.Errorf("%w for %s on %s", ErrReleaseNotFound, tag, repo)
		}

		return nil, err
	}

	var release Release
	if err = json.Unmarshal([]byte(result.Stdout), &release); err != nil {
		return nil, fmt.Errorf("decode gh release view output: %w", err)
	}

	return &release, nil
}

// CreateDraftRelease creates a draft release titled after the tag.
// When notesFile is non-empty its contents become the release body.
func (c *Client) CreateDraftRelease(ctx context.Context, repo, tag, notesFile string) error {
	args := []string{
		"release", "create", tag,
		"--repo", repo,
		"--draft",
		"--title", tag,
	}

	if notesFile != "" {
		args = append(args, "--notes-file", notesFile)
	} else {
		args = append(args, "--notes", "")
	}

	if _, err := c.run(ctx, args...); err != nil {
		return err
	}

	return nil
}

// UploadAssets attaches the given files to the release for tag.
// Existing assets with the same filenames are replaced, which is what makes
// a re-run after a corrected build converge instead of erroring.
func (c *Client) UploadAssets(ctx context.Context, repo, tag string, paths []string) error {
	args := append([]string{"release", "upload", tag}, paths...)
	args = append(args, "--repo", repo, "--clobber")

	if _, err := c.run(ctx, args...); err != nil {
		return err
	}

	return nil
}

// RepoExists reports whether the repository is visible to the credential.
func (c *Client) RepoExists(ctx context.Context, repo string) (bool, error) {
	result, err := c.run(ctx, "repo", "view", repo, "--json", "name")
	if err != nil {
		if isNotFoundOutput(result) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

// CreateRepo creates the repository, public unless private is requested.
func (c *Client) CreateRepo(ctx context.Context, repo string, private bool) error {
	visibility := "--public"
	if private {
		visibility = "--private"
	}

	if _, err := c.run(ctx, "repo", "create", repo, visibility); err != nil {
		return err
	}

	return nil
}

// FindOpenPR returns the open pull request whose head is the given branch,
// or nil when none exists.
func (c *Client) FindOpenPR(ctx context.Context, repo, head string) (*PullRequest, error) {
	result, err := c.run(ctx,
		"pr", "list",
		"--repo", repo,
		"--head", head,
		"--state", "open",
		"--json", "number,url")
	if err != nil {
		return nil, err
	}

	var prs []PullRequest
	if err = json.Unmarshal([]byte(result.Stdout), &prs); err != nil {
		return nil, fmt.Errorf("decode gh pr list output: %w", err)
	}

	if len(prs) == 0 {
		return nil, nil //nolint:nilnil // Absence of an open PR is not an error.
	}

	return &prs[0], nil
}

// CreatePR opens a pull request from head into base and returns its URL.
func (c *Client) CreatePR(ctx context.Context, repo, base, head, title, body string) (*PullRequest, error) {
	result, err := c.run(ctx,
		"pr", "create",
		"--repo", repo,
		"--base", base,
		"--head", head,
		"--title", title,
		"--body", body)
	if err != nil {
		return nil, err
	}

	return &PullRequest{URL: strings.TrimSpace(result.Stdout)}, nil
}

// run invokes gh with prompts disabled, the configured token and the
// transient-failure retry policy, classifying failures for the taxonomy.
func (c *Client) run(ctx context.Context, args ...string) (*executor.Result, error) {
	env := promptlessEnv()
	if c.token != "" {
		env["GH_TOKEN"] = c.token
	}

	result, err := c.runner.Run(ctx, program, args,
		executor.WithEnv(env),
		executor.WithRetry(c.maxRetries, c.retryDelay, retryTransient))
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return result, errkind.Wrap(errkind.PreconditionFailed, err,
				"GitHub CLI (gh) not found in PATH")
		}

		detail := ""
		if result != nil {
			detail = strings.TrimSpace(result.Stderr)
		}

		if detail != "" {
			return result, errkind.Wrap(errkind.RemoteError, err, "gh %s: %s",
				commandLabel(args), detail)
		}

		return result, errkind.Wrap(errkind.RemoteError, err, "gh %s", commandLabel(args))
	}

	return result, nil
}

// commandLabel names a gh invocation by its first two tokens for error text.
func commandLabel(args []string) string {
	if len(args) > 2 {
		return strings.Join(args[:2], " ")
	}

	return strings.Join(args, " ")
}

// retryTransient decides whether a failed gh invocation is worth retrying.
func retryTransient(result *executor.Result, err error) bool {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if result == nil {
		return false
	}

	if isNotFoundOutput(result) {
		return false
	}

	combined := strings.ToLower(result.Stderr + "\n" + result.Stdout)
	for _, marker := range transientMarkers {
		if strings.Contains(combined, marker) {
			return true
		}
	}

	return false
}

// isNotFoundOutput detects gh's various missing-resource messages.
func isNotFoundOutput(result *executor.Result) bool {
	if result == nil {
		return false
	}

	combined := strings.ToLower(result.Stderr + "\n" + result.Stdout)

	return strings.Contains(combined, "not found") ||
		strings.Contains(combined, "could not resolve") ||
		strings.Contains(combined, "http 404")
}

// promptlessEnv disables every interactive path of git and gh subprocesses.
func promptlessEnv() map[string]string {
	return map[string]string{
		"GIT_TERMINAL_PROMPT":   "0",
		"GH_PROMPT_DISABLED":    "1",
		"GH_NO_UPDATE_NOTIFIER": "1",
	}
}
