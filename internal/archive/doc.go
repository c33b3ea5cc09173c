// Package archive produces the reproducible tar.gz artifacts of the build
// stage. Member metadata is pinned (fixed timestamp, USTAR format, zeroed
// ownership) so packaging the same binary twice yields byte-identical
// archives and therefore identical checksums.
package archive
