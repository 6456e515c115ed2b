// Package preflight provides readiness checks for the filesystem paths,
// external commands and services catalogcron depends on.
//
// The daemon runs RunAll at startup and logs every failed check; the CLI
// "status" command renders the same results as a table. Checks for optional
// features are skipped when the feature is not configured.
package preflight
