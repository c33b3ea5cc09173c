// Package github implements the publish stage of the release pipeline.
//
// It validates that the manifest is complete and every archive exists,
// resolves a GitHub credential through the cascade, then upserts a draft
// release for the tag and uploads all archives with clobber semantics.
// Re-running the stage after a fixed build converges instead of failing.
package github
