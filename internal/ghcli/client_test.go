package ghcli

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/slipway-sh/slipway/internal/errkind"
	"github.com/slipway-sh/slipway/internal/executor"
)

// fakeCall records one invocation the client asked for.
type fakeCall struct {
	program string
	args    []string
	options executor.Options
}

// fakeRunner replays a scripted queue of results and keeps every call.
type fakeRunner struct {
	calls []fakeCall
	queue []struct {
		result *executor.Result
		err    error
	}
}

func (f *fakeRunner) push(result *executor.Result, err error) {
	f.queue = append(f.queue, struct {
		result *executor.Result
		err    error
	}{result, err})
}

func (f *fakeRunner) Run(
	_ context.Context,
	program string,
	args []string,
	opts ...executor.Option,
) (*executor.Result, error) {
	options := executor.Options{}
	for _, opt := range opts {
		opt(&options)
	}

	f.calls = append(f.calls, fakeCall{program: program, args: args, options: options})

	if len(f.queue) == 0 {
		return &executor.Result{}, nil
	}

	next := f.queue[0]
	f.queue = f.queue[1:]

	return next.result, next.err
}

// failure builds a failed invocation with the given stderr.
func failure(stderr string) (*executor.Result, error) {
	return &executor.Result{Stderr: stderr, ExitCode: 1},
		fmt.Errorf("run gh: %w", errors.New("exit status 1"))
}

// TestClient_ReleaseByTag_Found parses the release JSON and issues one view call.
func TestClient_ReleaseByTag_Found(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	runner.push(&executor.Result{
		Stdout: `{"tagName":"v1.2.3","isDraft":true,"url":"https://github.com/acme/foo/releases/tag/v1.2.3","assets":[{"name":"foo-linux-amd64.tar.gz","size":123}]}`,
	}, nil)

	client := NewClient(runner)

	release, err := client.ReleaseByTag(context.Background(), "acme/foo", "v1.2.3")
	require.NoError(t, err)
	require.Equal(t, "v1.2.3", release.TagName)
	require.True(t, release.IsDraft)
	require.Len(t, release.Assets, 1)
	require.Equal(t, "foo-linux-amd64.tar.gz", release.Assets[0].Name)

	require.Len(t, runner.calls, 1)
	require.Equal(t, "gh", runner.calls[0].program)
	require.Equal(t,
		[]string{"release", "view", "v1.2.3", "--repo", "acme/foo", "--json", "tagName,isDraft,url,assets"},
		runner.calls[0].args)
}

// TestClient_ReleaseByTag_NotFound maps gh's missing-release failure to the sentinel.
func TestClient_ReleaseByTag_NotFound(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	runner.push(failure("release not found"))

	client := NewClient(runner)

	_, err := client.ReleaseByTag(context.Background(), "acme/foo", "v9.9.9")
	require.ErrorIs(t, err, ErrReleaseNotFound)
	require.Contains(t, err.Error(), "v9.9.9")
}

// TestClient_UploadAssets_Clobber pins the replace semantics and token handover.
func TestClient_UploadAssets_Clobber(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	client := NewClient(runner, WithToken("tok-123"))

	err := client.UploadAssets(context.Background(), "acme/foo", "v1.2.3",
		[]string{"dist/a.tar.gz", "dist/b.tar.gz"})
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	require.Equal(t,
		[]string{"release", "upload", "v1.2.3", "dist/a.tar.gz", "dist/b.tar.gz", "--repo", "acme/foo", "--clobber"},
		runner.calls[0].args)

	env := runner.calls[0].options.Env
	require.Equal(t, "tok-123", env["GH_TOKEN"])
	require.Equal(t, "0", env["GIT_TERMINAL_PROMPT"])
	require.Equal(t, "1", env["GH_PROMPT_DISABLED"])
}

// TestClient_CreateDraftRelease uses empty notes unless a notes file is given.
func TestClient_CreateDraftRelease(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	client := NewClient(runner)

	require.NoError(t, client.CreateDraftRelease(context.Background(), "acme/foo", "v1.2.3", ""))
	require.Equal(t,
		[]string{"release", "create", "v1.2.3", "--repo", "acme/foo", "--draft", "--title", "v1.2.3", "--notes", ""},
		runner.calls[0].args)

	require.NoError(t, client.CreateDraftRelease(context.Background(), "acme/foo", "v1.2.3", "/tmp/notes.md"))
	require.Equal(t,
		[]string{"release", "create", "v1.2.3", "--repo", "acme/foo", "--draft", "--title", "v1.2.3", "--notes-file", "/tmp/notes.md"},
		runner.calls[1].args)
}

// TestClient_FindOpenPR distinguishes "none" from the first match.
func TestClient_FindOpenPR(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	runner.push(&executor.Result{Stdout: "[]"}, nil)
	runner.push(&executor.Result{
		Stdout: `[{"number":7,"url":"https://github.com/acme/tap/pull/7"}]`,
	}, nil)

	client := NewClient(runner)

	pr, err := client.FindOpenPR(context.Background(), "acme/tap", "foo/v1.2.3")
	require.NoError(t, err)
	require.Nil(t, pr)

	pr, err = client.FindOpenPR(context.Background(), "acme/tap", "foo/v1.2.3")
	require.NoError(t, err)
	require.NotNil(t, pr)
	require.Equal(t, 7, pr.Number)
	require.Equal(t, "https://github.com/acme/tap/pull/7", pr.URL)

	require.Equal(t,
		[]string{"pr", "list", "--repo", "acme/tap", "--head", "foo/v1.2.3", "--state", "open", "--json", "number,url"},
		runner.calls[0].args)
}

// TestClient_CreatePR returns the URL gh prints on stdout.
func TestClient_CreatePR(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	runner.push(&executor.Result{Stdout: "https://github.com/acme/tap/pull/8\n"}, nil)

	client := NewClient(runner)

	pr, err := client.CreatePR(context.Background(), "acme/tap", "main", "foo/v1.2.3",
		"Update foo to v1.2.3", "Automated update via slipway for v1.2.3")
	require.NoError(t, err)
	require.Equal(t, "https://github.com/acme/tap/pull/8", pr.URL)
}

// TestClient_RepoExists treats a resolve failure as absence, not an error.
func TestClient_RepoExists(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	runner.push(&executor.Result{Stdout: `{"name":"homebrew-tap"}`}, nil)
	runner.push(failure("GraphQL: Could not resolve to a Repository with the name 'acme/homebrew-tap'."))

	client := NewClient(runner)

	exists, err := client.RepoExists(context.Background(), "acme/homebrew-tap")
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = client.RepoExists(context.Background(), "acme/homebrew-tap")
	require.NoError(t, err)
	require.False(t, exists)
}

// TestClient_ErrorClassification pins the taxonomy mapping of run failures.
func TestClient_ErrorClassification(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	runner.push(&executor.Result{ExitCode: -1}, fmt.Errorf("run gh: %w", exec.ErrNotFound))
	runner.push(failure("HTTP 500 something broke"))

	client := NewClient(runner)

	err := client.CreateRepo(context.Background(), "acme/homebrew-tap", false)
	require.Equal(t, errkind.PreconditionFailed, errkind.KindOf(err))
	require.Contains(t, err.Error(), "not found in PATH")

	err = client.CreateRepo(context.Background(), "acme/homebrew-tap", false)
	require.Equal(t, errkind.RemoteError, errkind.KindOf(err))
	require.Contains(t, err.Error(), "HTTP 500")
}

// TestRetryTransient covers the retry classifier.
func TestRetryTransient(t *testing.T) {
	t.Parallel()

	runErr := errors.New("exit status 1")

	require.True(t, retryTransient(&executor.Result{Stderr: "connection reset by peer"}, runErr))
	require.True(t, retryTransient(&executor.Result{Stderr: "HTTP 502 bad gateway"}, runErr))
	require.False(t, retryTransient(&executor.Result{Stderr: "release not found"}, runErr))
	require.False(t, retryTransient(&executor.Result{Stderr: "x"}, context.Canceled))
	require.False(t, retryTransient(nil, exec.ErrNotFound))
}

// TestClient_RetryPolicyHandedToRunner passes the configured policy through.
func TestClient_RetryPolicyHandedToRunner(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	client := NewClient(runner, WithRetryPolicy(5, 10*time.Millisecond))

	require.NoError(t, client.CreateRepo(context.Background(), "acme/homebrew-tap", true))

	require.Len(t, runner.calls, 1)
	require.Equal(t, 5, runner.calls[0].options.MaxRetries)
	require.Equal(t, 10*time.Millisecond, runner.calls[0].options.RetryDelay)
	require.NotNil(t, runner.calls[0].options.RetryOn)
	require.Equal(t, []string{"repo", "create", "acme/homebrew-tap", "--private"}, runner.calls[0].args)
}
