// Package main hosts the catalogcron CLI.
//
// Maintenance commands (queue, flush, zombies, warm, report) open the
// configured stores directly and run a routine once in the foreground.
// Catalog commands register ontologies and submissions. Daemon commands run
// the scheduler in the foreground or talk to a running one through its pid
// file, lock and optional HTTP status API.
package main
