// Package logger provides a small wrapper around zap to offer:
//   - a global sugared logger with a console encoder on stderr,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// All services accept a context and extract the logger from it, enabling
// scoped, structured logging throughout the codebase. Command output meant
// for the operator goes to stdout and never through this package.
package logger
