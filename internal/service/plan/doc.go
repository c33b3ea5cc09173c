// Package plan implements the first release stage: fixing the tag and the
// target matrix in a fresh manifest. Planning requires a clean git working
// tree so the manifest never describes code that is not committed.
package plan
