// Package auth resolves the GitHub credential used for release uploads and
// tap pushes. Resolution is a cascade: the GitHub CLI session first, then
// well-known environment variables, then an interactive prompt when a
// terminal is attached. Callers that run unattended disable the prompt and
// get a descriptive Unauthenticated error instead.
package auth
