package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Result holds the captured output of one command invocation.
type Result struct {
	// Stdout is the captured standard output.
	Stdout string
	// Stderr is the captured standard error.
	Stderr string
	// ExitCode is the process exit status, -1 when the process never ran.
	ExitCode int
}

// Runner abstracts subprocess execution so remote adapters can be tested
// with a fake implementation.
type Runner interface {
	Run(ctx context.Context, program string, args []string, opts ...Option) (*Result, error)
}

// Options configures one invocation.
type Options struct {
	// Dir is the working directory; empty means inherit.
	Dir string
	// Env holds variables appended to the inherited environment.
	Env map[string]string
	// Input is fed to the process on stdin when non-empty.
	Input string
	// MaxRetries is the number of re-invocations after a failed attempt.
	MaxRetries int
	// RetryDelay is the wait before the first retry; it doubles per attempt.
	RetryDelay time.Duration
	// RetryOn decides whether a failed attempt is worth retrying.
	// A nil func means never retry.
	RetryOn func(result *Result, err error) bool
}

// Option mutates Options.
type Option func(*Options)

// WithDir sets the working directory.
func WithDir(dir string) Option {
	return func(o *Options) { o.Dir = dir }
}

// WithEnv appends environment variables to the inherited environment.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string, len(env))
		}

		for key, value := range env {
			o.Env[key] = value
		}
	}
}

// WithInput feeds the given text to the process on stdin.
func WithInput(input string) Option {
	return func(o *Options) { o.Input = input }
}

// WithRetry enables bounded retries with a doubling delay between attempts.
func WithRetry(maxRetries int, delay time.Duration, retryOn func(*Result, error) bool) Option {
	return func(o *Options) {
		o.MaxRetries = maxRetries
		o.RetryDelay = delay
		o.RetryOn = retryOn
	}
}

// CommandRunner executes commands with exec.CommandContext.
type CommandRunner struct{}

// NewCommandRunner returns the process-backed Runner.
func NewCommandRunner() *CommandRunner {
	return &CommandRunner{}
}

// Run invokes the program once plus up to MaxRetries re-invocations,
// capturing stdout and stderr. The returned Result is never nil.
func (r *CommandRunner) Run(
	ctx context.Context,
	program string,
	args []string,
	opts ...Option,
) (*Result, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	var (
		attempts = options.MaxRetries + 1
		delay    = options.RetryDelay
		result   *Result
		err      error
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = runOnce(ctx, program, args, options)
		if err == nil || attempt == attempts {
			return result, err
		}

		if options.RetryOn == nil || !options.RetryOn(result, err) {
			return result, err
		}

		select {
		case <-ctx.Done():
			return result, fmt.Errorf("canceled while waiting to retry %s: %w", program, ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
	}

	return result, err
}

// runOnce performs a single invocation.
func runOnce(ctx context.Context, program string, args []string, options *Options) (*Result, error) {
	cmd := exec.CommandContext(ctx, program, args...)

	if options.Dir != "" {
		cmd.Dir = options.Dir
	}

	if len(options.Env) > 0 {
		cmd.Env = os.Environ()
		for key, value := range options.Env {
			cmd.Env = append(cmd.Env, key+"="+value)
		}
	}

	if options.Input != "" {
		cmd.Stdin = strings.NewReader(options.Input)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(runErr),
	}

	if runErr != nil {
		return result, fmt.Errorf("run %s: %w", program, runErr)
	}

	return result, nil
}

// exitCode extracts the process exit status from a run error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}
