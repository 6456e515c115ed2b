package testsupport

import (
	"context"
	"testing"

	"catalogcron/internal/catalogdb"
	"catalogcron/internal/config"
	"catalogcron/internal/graphstore"
	"catalogcron/internal/logging"
	"catalogcron/internal/queue"
)

// MustOpenQueue opens the configured parse queue and registers cleanup.
func MustOpenQueue(t testing.TB, cfg *config.Config) *queue.Queue {
	t.Helper()

	store, err := queue.OpenStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("queue.OpenStore: %v", err)
	}
	q := queue.New(store, queue.Options{KeyPrefix: cfg.Queue.KeyPrefix, PurgeMalformed: cfg.Queue.PurgeMalformed})
	t.Cleanup(func() {
		_ = q.Close()
	})
	return q
}

// MustOpenCatalog opens the configured graph store and catalog database and
// registers cleanup for both.
func MustOpenCatalog(t testing.TB, cfg *config.Config) (*catalogdb.DB, graphstore.Store) {
	t.Helper()

	ctx := context.Background()
	graphs, err := graphstore.Open(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("graphstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = graphs.Close()
	})
	db, err := catalogdb.OpenFromConfig(ctx, cfg, graphs, logging.NewNop())
	if err != nil {
		t.Fatalf("catalogdb.OpenFromConfig: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, graphs
}
