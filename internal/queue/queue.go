package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"catalogcron/internal/actions"
	"catalogcron/internal/logging"
	"catalogcron/internal/services"
)

// Entry is one pending submission and the actions requested for it.
type Entry struct {
	Key     string
	ID      string
	Actions actions.Set
}

// Malformed is a stored entry whose value could not be decoded.
type Malformed struct {
	Key   string
	Value string
	Err   error
}

// DrainStats summarizes one Drain call.
type DrainStats struct {
	Drained   int
	Malformed int
	Purged    int
}

// Options configures a Queue.
type Options struct {
	KeyPrefix      string
	PurgeMalformed bool
	Logger         *slog.Logger
}

// Queue is the deduplicating parse queue.
type Queue struct {
	store          EntryStore
	prefix         string
	purgeMalformed bool
	logger         *slog.Logger
}

// New wraps store. An empty prefix defaults to "sub:".
func New(store EntryStore, opts Options) *Queue {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = "sub:"
	}
	return &Queue{
		store:          store,
		prefix:         prefix,
		purgeMalformed: opts.PurgeMalformed,
		logger:         logging.NewComponentLogger(opts.Logger, "queue"),
	}
}

// Key returns the storage key for a submission id.
func (q *Queue) Key(id string) string {
	return q.prefix + id
}

// Enqueue records a request to process id with the canonical subset of
// requested; a true actions.AllKey requests every canonical action. It
// returns false without writing when nothing canonical remains.
// A later Enqueue for the same id replaces the earlier action set.
func (q *Queue) Enqueue(ctx context.Context, id string, requested actions.Set) (bool, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return false, services.Wrap(services.ErrValidation, "queue", "enqueue", "submission id is required", nil)
	}
	filtered := actions.Filter(requested)
	if len(filtered) == 0 {
		q.logger.Debug("enqueue skipped; no canonical actions",
			logging.String(logging.FieldSubmissionID, id),
			logging.String(logging.FieldEventType, "enqueue_skipped"),
		)
		return false, nil
	}
	value, err := actions.Encode(filtered)
	if err != nil {
		return false, err
	}
	if err := q.store.Put(ctx, q.Key(id), value); err != nil {
		return false, err
	}
	q.logger.Info("submission queued",
		logging.String(logging.FieldSubmissionID, id),
		logging.String("actions", filtered.String()),
		logging.String(logging.FieldEventType, "enqueued"),
	)
	return true, nil
}

// EnqueueAll queues id with every canonical action enabled.
func (q *Queue) EnqueueAll(ctx context.Context, id string) (bool, error) {
	return q.Enqueue(ctx, id, actions.All())
}

// Pending lists decodable entries and malformed ones without removing anything.
// Entries come back ordered by key.
func (q *Queue) Pending(ctx context.Context) ([]Entry, []Malformed, error) {
	snapshot, err := q.store.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	keys := make([]string, 0, len(snapshot))
	for key := range snapshot {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entries := make([]Entry, 0, len(keys))
	var malformed []Malformed
	for _, key := range keys {
		set, err := actions.Decode(snapshot[key])
		if err != nil {
			malformed = append(malformed, Malformed{Key: key, Value: snapshot[key], Err: err})
			continue
		}
		entries = append(entries, Entry{Key: key, ID: strings.TrimPrefix(key, q.prefix), Actions: set})
	}
	return entries, malformed, nil
}

// Drain takes a snapshot of the queue and hands each decodable entry to fn,
// removing the entry from the store immediately before the call. Entries
// written after the snapshot wait for the next Drain. Malformed entries are
// logged and left in place unless purging is enabled.
//
// Drain stops early when ctx is cancelled; entries not yet handed out stay queued.
func (q *Queue) Drain(ctx context.Context, fn func(context.Context, Entry)) (DrainStats, error) {
	var stats DrainStats
	entries, malformed, err := q.Pending(ctx)
	if err != nil {
		return stats, err
	}

	for _, bad := range malformed {
		stats.Malformed++
		logging.ErrorWithContext(q.logger, "queue entry could not be decoded", "queue_entry_malformed",
			logging.String("key", bad.Key),
			logging.String("value", bad.Value),
			logging.Error(bad.Err),
			logging.Bool("purged", q.purgeMalformed),
			logging.String(logging.FieldErrorHint, "fix or remove the entry with 'catalogcron queue remove'"),
		)
		if !q.purgeMalformed {
			continue
		}
		if err := q.store.Delete(ctx, bad.Key); err != nil {
			logging.WarnWithContext(q.logger, "purge of malformed entry failed", "queue_purge_failed",
				logging.String("key", bad.Key),
				logging.Error(err),
				logging.String(logging.FieldImpact, "entry will be reported again on the next drain"),
			)
			continue
		}
		stats.Purged++
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := q.store.Delete(ctx, entry.Key); err != nil {
			logging.WarnWithContext(q.logger, "queue entry removal failed; leaving it for the next drain", "queue_remove_failed",
				logging.String(logging.FieldSubmissionID, entry.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "submission processing is deferred"),
				logging.String(logging.FieldErrorHint, "check queue backend connectivity"),
			)
			continue
		}
		stats.Drained++
		fn(ctx, entry)
	}
	return stats, nil
}

// Remove deletes the entry for id, whether or not it is well formed.
func (q *Queue) Remove(ctx context.Context, id string) error {
	key := id
	if !strings.HasPrefix(key, q.prefix) {
		key = q.Key(id)
	}
	return q.store.Delete(ctx, key)
}

// Clear removes every entry in the holder and returns how many were removed.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	snapshot, err := q.store.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for key := range snapshot {
		if err := q.store.Delete(ctx, key); err != nil {
			return removed, fmt.Errorf("clear queue: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Close closes the backing store.
func (q *Queue) Close() error {
	if q == nil || q.store == nil {
		return nil
	}
	return q.store.Close()
}
