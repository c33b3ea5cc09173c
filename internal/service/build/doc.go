// Package build implements the packaging stage: one deterministic tar.gz
// archive per planned target, checksummed and recorded in the manifest
// together with its download URL. The stage is all-or-nothing; the manifest
// on disk is replaced only after every target packaged successfully.
package build
