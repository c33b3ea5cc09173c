package auth

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slipway-sh/slipway/internal/errkind"
)

// fakeSource is a scripted cascade source that counts its resolutions.
type fakeSource struct {
	name  string
	token string
	err   error
	calls int
}

func (s *fakeSource) Name() string {
	return s.name
}

func (s *fakeSource) Resolve(_ context.Context) (string, error) {
	s.calls++

	return s.token, s.err
}

// fakeCLI is a scripted TokenCommand.
type fakeCLI struct {
	token string
	err   error
}

func (c *fakeCLI) AuthToken(_ context.Context) (string, error) {
	return c.token, c.err
}

// TestChainReturnsFirstHit checks that resolution stops at the first source
// with a credential.
func TestChainReturnsFirstHit(t *testing.T) {
	t.Parallel()

	var (
		empty  = &fakeSource{name: "first", err: ErrNoCredential}
		winner = &fakeSource{name: "second", token: "tok-123"}
		unused = &fakeSource{name: "third", token: "tok-456"}
	)

	token, err := NewChain(empty, winner, unused).Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-123", token)
	require.Equal(t, 1, empty.calls)
	require.Equal(t, 1, winner.calls)
	require.Zero(t, unused.calls)
}

// TestChainExhausted checks that running out of sources reports an
// Unauthenticated error naming everything that was tried.
func TestChainExhausted(t *testing.T) {
	t.Parallel()

	chain := NewChain(
		&fakeSource{name: "gh auth token", err: ErrNoCredential},
		&fakeSource{name: "GITHUB_TOKEN", err: ErrNoCredential},
		&fakeSource{name: "TAP_PAT", err: ErrNoCredential},
	)

	_, err := chain.Token(context.Background())
	require.Error(t, err)
	require.Equal(t, errkind.Unauthenticated, errkind.KindOf(err))
	require.Contains(t, err.Error(), "gh auth token")
	require.Contains(t, err.Error(), "GITHUB_TOKEN")
	require.Contains(t, err.Error(), "TAP_PAT")
}

// TestChainSkipsFailedSource checks that an unexpected source failure only
// moves the cascade along.
func TestChainSkipsFailedSource(t *testing.T) {
	t.Parallel()

	var (
		broken = &fakeSource{name: "first", err: errors.New("keyring exploded")}
		winner = &fakeSource{name: "second", token: "tok-123"}
	)

	token, err := NewChain(broken, winner).Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-123", token)
}

// TestChainStopsOnCanceledContext checks that cancellation aborts resolution
// instead of walking the remaining sources.
func TestChainStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var (
		empty  = &fakeSource{name: "first", err: ErrNoCredential}
		unused = &fakeSource{name: "second", token: "tok-123"}
	)

	_, err := NewChain(empty, unused).Token(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, unused.calls)
}

// TestCLISourceSwallowsCLIFailures checks that a broken or absent CLI only
// advances the cascade.
func TestCLISourceSwallowsCLIFailures(t *testing.T) {
	t.Parallel()

	source := NewCLISource(&fakeCLI{err: errors.New("gh not found")})

	_, err := source.Resolve(context.Background())
	require.ErrorIs(t, err, ErrNoCredential)
}

// TestCLISourceTrimsToken checks whitespace handling around the CLI output.
func TestCLISourceTrimsToken(t *testing.T) {
	t.Parallel()

	source := NewCLISource(&fakeCLI{token: "  tok-123\n"})

	token, err := source.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-123", token)
}

// TestEnvSource checks set, unset and blank environment variables.
func TestEnvSource(t *testing.T) {
	t.Setenv("SLIPWAY_TEST_TOKEN", "tok-env")

	token, err := NewEnvSource("SLIPWAY_TEST_TOKEN").Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-env", token)

	t.Setenv("SLIPWAY_TEST_TOKEN", "   ")

	_, err = NewEnvSource("SLIPWAY_TEST_TOKEN").Resolve(context.Background())
	require.ErrorIs(t, err, ErrNoCredential)

	_, err = NewEnvSource("SLIPWAY_TEST_UNSET_TOKEN").Resolve(context.Background())
	require.ErrorIs(t, err, ErrNoCredential)
}

// TestPromptSourceReadsLine checks the happy path of an attached terminal.
func TestPromptSourceReadsLine(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	source := &PromptSource{
		in:         strings.NewReader("tok-typed\n"),
		out:        out,
		isTerminal: func() bool { return true },
	}

	token, err := source.Resolve(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-typed", token)
	require.Contains(t, out.String(), "GitHub token")
}

// TestPromptSourceSkipsWithoutTerminal checks that piped input never prompts.
func TestPromptSourceSkipsWithoutTerminal(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}
	source := &PromptSource{
		in:         strings.NewReader("tok-typed\n"),
		out:        out,
		isTerminal: func() bool { return false },
	}

	_, err := source.Resolve(context.Background())
	require.ErrorIs(t, err, ErrNoCredential)
	require.Empty(t, out.String())
}

// TestPromptSourceEmptyInput checks that just pressing enter yields no
// credential.
func TestPromptSourceEmptyInput(t *testing.T) {
	t.Parallel()

	source := &PromptSource{
		in:         strings.NewReader("\n"),
		out:        &bytes.Buffer{},
		isTerminal: func() bool { return true },
	}

	_, err := source.Resolve(context.Background())
	require.ErrorIs(t, err, ErrNoCredential)
}

// TestDefaultChainOmitsPromptWhenNonInteractive checks the cascade make-up in
// both modes.
func TestDefaultChainOmitsPromptWhenNonInteractive(t *testing.T) {
	t.Parallel()

	interactive := DefaultChain(&fakeCLI{err: ErrNoCredential}, false)
	require.Len(t, interactive.sources, 4)

	unattended := DefaultChain(&fakeCLI{err: ErrNoCredential}, true)
	require.Len(t, unattended.sources, 3)
	for _, source := range unattended.sources {
		require.NotEqual(t, "interactive prompt", source.Name())
	}
}
