// Package daemon coordinates the long-running catalogcron process.
//
// A Daemon owns a set of scheduled routines (parse, flush, warm) and runs
// them from a single goroutine, so routines never overlap inside one process.
// A flock-based lock file keeps a second daemon from starting. Each run gets
// its own correlation id and a routine-tagged logger; the outcome of the last
// run of every routine is kept for Status.
//
// An optional HTTP API exposes status, the pending parse queue, and a way to
// request an immediate routine run.
package daemon
