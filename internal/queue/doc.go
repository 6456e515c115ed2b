// Package queue holds the deduplicating parse queue: a single keyed holder
// of pending submission IDs, each mapped to the action set requested for it.
//
// A Queue wraps an EntryStore backend (SQLite, Redis hash, or Postgres
// table). Enqueueing the same submission twice overwrites the earlier action
// set. Drain snapshots the holder, removes each well-formed entry just before
// handing it to the caller, and leaves undecodable entries in place (unless
// purge_malformed is set) so an operator can inspect them.
//
// Removal happens before processing and nothing is re-enqueued on failure;
// a submission that fails during processing is dropped until something
// enqueues it again.
package queue
