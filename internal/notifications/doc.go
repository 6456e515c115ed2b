// Package notifications sends routine alerts to an ntfy topic.
//
// Only problems are reported: failed routines, parse passes that left
// submissions failed or not ready, and zombie graphs found by the flush. When
// no topic is configured every call is a no-op.
package notifications
