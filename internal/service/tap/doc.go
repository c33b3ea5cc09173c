// Package tap implements the formula publish stage of the release pipeline.
//
// It renders a Homebrew formula from the built manifest and pushes it to
// the tap repository on a release branch, opening a pull request when
// requested. The stage converges on re-runs: a formula already merged to
// the default branch is a no-op, a branch already carrying the content is
// reused, and at most one open pull request exists per branch. An empty
// tap is bootstrapped with the formula committed straight to its default
// branch. Dry-run mode prints the rendered formula and the intended
// operations without touching the network.
package tap
