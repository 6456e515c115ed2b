// Package logs reads the daemon log and per-submission parsing logs for the
// CLI. Last returns the final lines of a file with bounded memory; Follow
// streams lines appended after an offset until its context ends.
package logs
