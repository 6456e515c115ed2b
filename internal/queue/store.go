package queue

import (
	"context"
	"fmt"

	"catalogcron/internal/config"
)

// EntryStore is a keyed map of queue keys to encoded action sets living under
// one holder name. Implementations must make Put an overwrite.
type EntryStore interface {
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Snapshot(ctx context.Context) (map[string]string, error)
	Close() error
}

// OpenStore opens the entry store selected by cfg.Queue.Backend.
func OpenStore(ctx context.Context, cfg *config.Config) (EntryStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	switch cfg.Queue.Backend {
	case "", "sqlite":
		return OpenSQLiteStore(ctx, cfg.Queue.SQLitePath, cfg.Queue.Holder)
	case "redis":
		return OpenRedisStore(ctx, cfg.Queue.RedisURL, cfg.Queue.Holder)
	case "postgres":
		return OpenPostgresStore(ctx, cfg.Queue.PostgresURL, cfg.Queue.Holder)
	default:
		return nil, fmt.Errorf("queue backend %q not supported", cfg.Queue.Backend)
	}
}
