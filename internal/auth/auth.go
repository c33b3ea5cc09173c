package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/slipway-sh/slipway/internal/errkind"
	"github.com/slipway-sh/slipway/internal/logger"
)

// Environment variables consulted by the default cascade.
const (
	// EnvGitHubToken is the primary credential variable.
	EnvGitHubToken = "GITHUB_TOKEN"
	// EnvTapToken is the fallback credential variable, useful when tap
	// pushes need a different scope than the release upload.
	EnvTapToken = "TAP_PAT"
)

// ErrNoCredential signals that a source has nothing to offer and the cascade
// should move on to the next one.
var ErrNoCredential = errors.New("no credential available")

// Source yields a GitHub token from one particular place.
type Source interface {
	// Name identifies the source in diagnostics.
	Name() string
	// Resolve returns a token, or ErrNoCredential to continue the cascade.
	Resolve(ctx context.Context) (string, error)
}

// TokenCommand is the slice of the GitHub CLI the cascade needs.
type TokenCommand interface {
	AuthToken(ctx context.Context) (string, error)
}

// Chain resolves a token by asking its sources in order.
type Chain struct {
	sources []Source
}

// NewChain builds a cascade over the given sources.
func NewChain(sources ...Source) *Chain {
	return &Chain{sources: sources}
}

// DefaultChain builds the standard cascade: the GitHub CLI session, the
// GITHUB_TOKEN and TAP_PAT environment variables, and finally an interactive
// prompt. The prompt is omitted in non-interactive mode.
func DefaultChain(cli TokenCommand, nonInteractive bool) *Chain {
	sources := []Source{
		NewCLISource(cli),
		NewEnvSource(EnvGitHubToken),
		NewEnvSource(EnvTapToken),
	}

	if !nonInteractive {
		sources = append(sources, NewPromptSource())
	}

	return NewChain(sources...)
}

// Token walks the cascade and returns the first credential found. A source
// failing for its own reasons only moves the cascade along; exhaustion
// reports an Unauthenticated error listing every source tried.
func (c *Chain) Token(ctx context.Context) (string, error) {
	tried := make([]string, 0, len(c.sources))

	for _, source := range c.sources {
		token, err := source.Resolve(ctx)
		if err == nil && token != "" {
			return token, nil
		}

		if ctx.Err() != nil {
			return "", fmt.Errorf("credential resolution canceled: %w", ctx.Err())
		}

		if err != nil && !errors.Is(err, ErrNoCredential) {
			logger.DebugKV(ctx, "Credential source failed", "source", source.Name(), "error", err)
		}

		tried = append(tried, source.Name())
	}

	return "", errkind.New(errkind.Unauthenticated,
		"no GitHub credential found (tried: %s); run \"gh auth login\" or set %s",
		strings.Join(tried, ", "), EnvGitHubToken)
}

// CLISource asks the logged-in GitHub CLI session for its token.
type CLISource struct {
	cli TokenCommand
}

// NewCLISource wraps a GitHub CLI client as a cascade source.
func NewCLISource(cli TokenCommand) *CLISource {
	return &CLISource{cli: cli}
}

// Name implements Source.
func (s *CLISource) Name() string {
	return "gh auth token"
}

// Resolve implements Source. A missing or logged-out CLI is not a failure,
// it only moves the cascade along.
func (s *CLISource) Resolve(ctx context.Context) (string, error) {
	token, err := s.cli.AuthToken(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		return "", ErrNoCredential
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrNoCredential
	}

	return token, nil
}

// EnvSource reads a token from one environment variable.
type EnvSource struct {
	key string
}

// NewEnvSource builds a source over the named environment variable.
func NewEnvSource(key string) *EnvSource {
	return &EnvSource{key: key}
}

// Name implements Source.
func (s *EnvSource) Name() string {
	return s.key
}

// Resolve implements Source.
func (s *EnvSource) Resolve(_ context.Context) (string, error) {
	token := strings.TrimSpace(os.Getenv(s.key))
	if token == "" {
		return "", ErrNoCredential
	}

	return token, nil
}

// PromptSource asks the operator directly. It stays silent unless standard
// input is a terminal, so piped and CI invocations never hang on a prompt.
type PromptSource struct {
	in         io.Reader
	out        io.Writer
	isTerminal func() bool
}

// NewPromptSource builds a prompt bound to the process terminal.
func NewPromptSource() *PromptSource {
	return &PromptSource{
		in:         os.Stdin,
		out:        os.Stderr,
		isTerminal: stdinIsTerminal,
	}
}

// Name implements Source.
func (s *PromptSource) Name() string {
	return "interactive prompt"
}

// Resolve implements Source.
func (s *PromptSource) Resolve(_ context.Context) (string, error) {
	if !s.isTerminal() {
		return "", ErrNoCredential
	}

	fmt.Fprint(s.out, "GitHub token: ")

	reader := bufio.NewReader(s.in)

	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", ErrNoCredential
	}

	token := strings.TrimSpace(line)
	if token == "" {
		return "", ErrNoCredential
	}

	return token, nil
}

// stdinIsTerminal reports whether the process is attached to a terminal.
func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
