// Package processor implements the parse routine.
//
// Each run drains the parse queue and hands every entry to Process, which
// loads the submission, retries a missing download, runs the requested
// pipeline stages, and then performs the follow-up work that only applies
// to ready submissions: archiving older versions and rebuilding the
// annotator term cache. The ontologies report entry is refreshed for every
// submission that was found, whether or not processing succeeded.
//
// Failures are isolated per entry. An error or panic in one submission is
// logged and counted; the drain continues with the next entry and the failed
// entry is not requeued.
package processor
