// Package gitrepo wraps go-git for the two git surfaces of the release flow:
// checking that the working tree is clean before a plan is written, and
// publishing formula updates to the Homebrew tap repository.
//
// Tap operations run entirely in memory. The clone keeps its objects and
// worktree in memory-backed storage, so publishing never scatters temporary
// checkouts on disk.
package gitrepo
