// Package executor runs external programs with output capture, environment
// injection and bounded retries with a doubling delay. The Runner interface
// is what the remote adapters depend on, so tests can substitute a fake
// instead of spawning processes.
package executor
