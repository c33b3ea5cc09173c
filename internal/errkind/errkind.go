package errkind

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure for exit-code mapping and retry policy.
type Kind string

// Failure categories surfaced by the stage commands.
const (
	// PreconditionFailed covers dirty working trees at plan time, a missing
	// manifest at later stages, and tag/name mismatches between the manifest
	// and command-line arguments.
	PreconditionFailed Kind = "precondition_failed"
	// InputNotFound covers a missing binary or archive for a target.
	InputNotFound Kind = "input_not_found"
	// ManifestIncomplete covers empty checksum/URL fields a downstream
	// stage depends on.
	ManifestIncomplete Kind = "manifest_incomplete"
	// Unauthenticated is raised when the credential cascade is exhausted.
	Unauthenticated Kind = "unauthenticated"
	// RemoteError covers transient network or remote API failures and is
	// the only category eligible for retries.
	RemoteError Kind = "remote_error"
	// Ambiguous is raised when more than one candidate binary matches a target.
	Ambiguous Kind = "ambiguous"
	// Usage covers invalid flags or arguments and maps to exit code 2.
	Usage Kind = "usage"
	// Internal is the fallback for unclassified failures.
	Internal Kind = "internal"
)

// Error is a classified pipeline error. It keeps the underlying cause
// reachable for errors.Is/errors.As while carrying the category used for
// exit codes and retry decisions.
type Error struct {
	// Kind is the failure category.
	Kind Kind
	// Message is the human-readable description shown to the operator.
	Message string
	// Err is the wrapped cause, if any.
	Err error
}

// Error returns the operator-facing message, including the cause when present.
func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

// Unwrap exposes the cause for the errors package helpers.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error from a format string.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap attaches a category and a context message to an existing error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// KindOf extracts the category from an error chain.
// Unclassified non-nil errors report Internal; nil reports an empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return Kind("")
	}

	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}

	return Internal
}

// IsRetryable reports whether the error chain carries a RemoteError category.
func IsRetryable(err error) bool {
	return KindOf(err) == RemoteError
}

// ExitCode maps an error chain to the process exit status.
func ExitCode(err error) int {
	switch KindOf(err) {
	case Kind(""):
		return 0
	case Usage:
		return 2
	default:
		return 1
	}
}
