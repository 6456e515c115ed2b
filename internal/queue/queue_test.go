package queue_test

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"catalogcron/internal/actions"
	"catalogcron/internal/queue"
)

func openQueue(t *testing.T, opts queue.Options) (*queue.Queue, queue.EntryStore) {
	t.Helper()
	store, err := queue.OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "queue.db"), "parseQueue")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	q := queue.New(store, opts)
	t.Cleanup(func() { _ = q.Close() })
	return q, store
}

func TestEnqueueLastWriteWins(t *testing.T) {
	ctx := context.Background()
	q, store := openQueue(t, queue.Options{})

	if ok, err := q.Enqueue(ctx, "S1", actions.Set{actions.AllKey: true}); err != nil || !ok {
		t.Fatalf("first enqueue: ok=%v err=%v", ok, err)
	}
	if ok, err := q.Enqueue(ctx, "S1", actions.Set{actions.IndexSearch: true}); err != nil || !ok {
		t.Fatalf("second enqueue: ok=%v err=%v", ok, err)
	}

	snapshot, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snapshot) != 1 {
		t.Fatalf("expected one entry, got %v", snapshot)
	}
	if snapshot["sub:S1"] != `{"index_search":true}` {
		t.Fatalf("expected latest action set to win, got %q", snapshot["sub:S1"])
	}
}

func TestEnqueueAllKeyThenNarrowDrainsLatest(t *testing.T) {
	ctx := context.Background()
	q, _ := openQueue(t, queue.Options{})

	if ok, err := q.Enqueue(ctx, "X", actions.Set{actions.AllKey: true}); err != nil || !ok {
		t.Fatalf("enqueue all: ok=%v err=%v", ok, err)
	}
	if ok, err := q.Enqueue(ctx, "X", actions.Set{actions.IndexSearch: true}); err != nil || !ok {
		t.Fatalf("enqueue index_search: ok=%v err=%v", ok, err)
	}

	var got []queue.Entry
	if _, err := q.Drain(ctx, func(_ context.Context, e queue.Entry) { got = append(got, e) }); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(got) != 1 || got[0].ID != "X" {
		t.Fatalf("expected one entry for X, got %+v", got)
	}
	if !reflect.DeepEqual(got[0].Actions, actions.Set{actions.IndexSearch: true}) {
		t.Fatalf("expected only index_search, got %v", got[0].Actions)
	}
}

func TestEnqueueAllKeyStoresEveryCanonicalAction(t *testing.T) {
	ctx := context.Background()
	q, store := openQueue(t, queue.Options{})

	if ok, err := q.Enqueue(ctx, "S5", actions.Set{actions.AllKey: true}); err != nil || !ok {
		t.Fatalf("enqueue all: ok=%v err=%v", ok, err)
	}
	snapshot, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	stored, err := actions.Decode(snapshot["sub:S5"])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(stored, actions.All()) {
		t.Fatalf("expected all five canonical actions, got %v", stored)
	}
	if _, ok := stored[actions.AllKey]; ok {
		t.Fatal("the all key must not be stored")
	}
}

func TestEnqueueFiltersAndSkipsEmpty(t *testing.T) {
	ctx := context.Background()
	q, store := openQueue(t, queue.Options{})

	if ok, err := q.Enqueue(ctx, "S2", actions.Set{"bogus": true}); err != nil || ok {
		t.Fatalf("expected no-op for unknown-only set, ok=%v err=%v", ok, err)
	}
	if ok, err := q.Enqueue(ctx, "S3", actions.Set{actions.Diff: false, "bogus": true}); err != nil || !ok {
		t.Fatalf("expected write for canonical false flag, ok=%v err=%v", ok, err)
	}
	snapshot, _ := store.Snapshot(ctx)
	if _, ok := snapshot["sub:S2"]; ok {
		t.Fatal("S2 should not be stored")
	}
	if snapshot["sub:S3"] != `{"diff":false}` {
		t.Fatalf("unexpected S3 value %q", snapshot["sub:S3"])
	}
	if _, err := q.Enqueue(ctx, "  ", actions.All()); err == nil {
		t.Fatal("expected validation error for blank id")
	}
}

func TestEnqueueAll(t *testing.T) {
	ctx := context.Background()
	q, _ := openQueue(t, queue.Options{})
	if _, err := q.EnqueueAll(ctx, "S4"); err != nil {
		t.Fatalf("EnqueueAll: %v", err)
	}
	entries, _, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(entries) != 1 || len(entries[0].Actions) != 5 {
		t.Fatalf("expected all five actions, got %+v", entries)
	}
}

func TestDrainRemovesBeforeYieldAndLeavesMalformed(t *testing.T) {
	ctx := context.Background()
	q, store := openQueue(t, queue.Options{})

	if _, err := q.Enqueue(ctx, "S1", actions.Set{actions.ProcessRDF: true}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, "S2", actions.Set{actions.Diff: true}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.Put(ctx, "sub:BAD", "{not json"); err != nil {
		t.Fatalf("put malformed: %v", err)
	}

	var seen []string
	stats, err := q.Drain(ctx, func(ctx context.Context, entry queue.Entry) {
		snapshot, err := store.Snapshot(ctx)
		if err != nil {
			t.Fatalf("snapshot inside drain: %v", err)
		}
		if _, present := snapshot[entry.Key]; present {
			t.Fatalf("entry %s should be removed before it is yielded", entry.ID)
		}
		seen = append(seen, entry.ID)
	})
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if stats.Drained != 2 || stats.Malformed != 1 || stats.Purged != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(seen) != 2 || seen[0] != "S1" || seen[1] != "S2" {
		t.Fatalf("unexpected drain order %v", seen)
	}

	snapshot, _ := store.Snapshot(ctx)
	if len(snapshot) != 1 || snapshot["sub:BAD"] != "{not json" {
		t.Fatalf("expected only the malformed entry to remain, got %v", snapshot)
	}
}

func TestDrainPurgesMalformedWhenEnabled(t *testing.T) {
	ctx := context.Background()
	q, store := openQueue(t, queue.Options{PurgeMalformed: true})
	if err := store.Put(ctx, "sub:BAD", "[]"); err != nil {
		t.Fatalf("put: %v", err)
	}
	stats, err := q.Drain(ctx, func(context.Context, queue.Entry) {
		t.Fatal("malformed entries must not be yielded")
	})
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if stats.Purged != 1 {
		t.Fatalf("expected purge, got %+v", stats)
	}
	if snapshot, _ := store.Snapshot(ctx); len(snapshot) != 0 {
		t.Fatalf("expected empty store, got %v", snapshot)
	}
}

func TestEnqueueDuringDrainWaitsForNextDrain(t *testing.T) {
	ctx := context.Background()
	q, _ := openQueue(t, queue.Options{})
	if _, err := q.EnqueueAll(ctx, "S1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var first []string
	if _, err := q.Drain(ctx, func(ctx context.Context, entry queue.Entry) {
		first = append(first, entry.ID)
		if _, err := q.EnqueueAll(ctx, "S1"); err != nil {
			t.Fatalf("re-enqueue: %v", err)
		}
	}); err != nil {
		t.Fatalf("first drain: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected single yield in first drain, got %v", first)
	}

	var second []string
	if _, err := q.Drain(ctx, func(_ context.Context, entry queue.Entry) {
		second = append(second, entry.ID)
	}); err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if len(second) != 1 || second[0] != "S1" {
		t.Fatalf("expected re-enqueued S1 in second drain, got %v", second)
	}
}

func TestDrainStopsOnCancelledContext(t *testing.T) {
	q, store := openQueue(t, queue.Options{})
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		if _, err := q.EnqueueAll(ctx, id); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	stats, err := q.Drain(runCtx, func(context.Context, queue.Entry) { cancel() })
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if stats.Drained != 1 {
		t.Fatalf("expected one entry processed before cancel, got %+v", stats)
	}
	snapshot, _ := store.Snapshot(ctx)
	if len(snapshot) != 2 {
		t.Fatalf("expected two entries left queued, got %v", snapshot)
	}
}

func TestRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	q, store := openQueue(t, queue.Options{})
	for _, id := range []string{"A", "B"} {
		if _, err := q.EnqueueAll(ctx, id); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if err := store.Put(ctx, "sub:BAD", "oops"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := q.Remove(ctx, "sub:BAD"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	removed, err := q.Clear(ctx)
	if err != nil || removed != 2 {
		t.Fatalf("Clear removed %d, err=%v", removed, err)
	}
}
