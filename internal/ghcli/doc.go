// Package ghcli adapts the GitHub host contract onto the gh CLI.
//
// It covers the release operations of the github stage (look up by tag,
// create draft, upload with replace) and the tap-host operations of the tap
// stage (repository existence and creation, pull request lookup and
// creation). Every invocation runs with prompts disabled and transient
// failures are retried with a doubling delay before surfacing as remote
// errors.
package ghcli
