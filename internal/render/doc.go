// Package render turns manifest data into publishable text: the Homebrew
// formula pushed to the tap, and optional release notes attached to the
// GitHub release. A default formula template covering the default target
// set ships embedded in the binary; both renders accept a template file
// override.
package render
