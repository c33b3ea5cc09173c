// Package common holds helpers shared by several services.
//
// It resolves cross-stage settings (release repository, host, remote
// timeout) from flags, environment and project configuration, and
// detects the commit author identity for tap updates.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
