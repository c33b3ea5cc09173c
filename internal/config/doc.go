// Package config defines per-project release settings and provides helpers
// to load and validate them from YAML.
//
// The Config type holds the repositories, formula metadata and remote
// timeout a project releases with. The file is optional: flags cover every
// field, and the file only saves retyping them on each invocation.
package config
