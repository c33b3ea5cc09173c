// Package errkind defines the failure taxonomy shared by all pipeline stages.
//
// Every fatal error raised by a stage carries a Kind (precondition failed,
// input not found, manifest incomplete, unauthenticated, remote error,
// ambiguous, usage) so the CLI can map it to an exit code and the remote
// adapters can decide whether a retry is worthwhile.
package errkind
