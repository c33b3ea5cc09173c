// Package release contains the core domain types of the pipeline.
//
// It defines the Manifest (the persisted release state threaded through the
// plan, build, github and tap stages), its Asset records, and the canonical
// Target table with the alias mapping used in filename derivation. The types
// are pure: no I/O, so every invariant is checkable in isolation.
package release
