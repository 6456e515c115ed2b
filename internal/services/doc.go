// Package services defines shared utilities consumed by the processing
// routines and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp submission IDs, routine and stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures with errors.Is regardless of which backend produced them.
//
// Use these helpers when wiring new routine logic so error handling and
// observability stay uniform across the daemon and the CLI.
package services
