package queue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS queue_entries (
    holder TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (holder, key)
)`

// PostgresStore keeps queue entries in a shared Postgres table so several
// hosts can enqueue into the same holder.
type PostgresStore struct {
	pool   *pgxpool.Pool
	holder string
}

// OpenPostgresStore connects to dsn and ensures the queue table exists.
func OpenPostgresStore(ctx context.Context, dsn, holder string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure queue table: %w", err)
	}
	return &PostgresStore{pool: pool, holder: holder}, nil
}

// Put writes or overwrites key.
func (s *PostgresStore) Put(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO queue_entries (holder, key, value) VALUES ($1, $2, $3)
ON CONFLICT (holder, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		s.holder, key, value)
	if err != nil {
		return fmt.Errorf("put queue entry %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM queue_entries WHERE holder = $1 AND key = $2`, s.holder, key); err != nil {
		return fmt.Errorf("delete queue entry %s: %w", key, err)
	}
	return nil
}

// Snapshot returns every key and raw value in the holder.
func (s *PostgresStore) Snapshot(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM queue_entries WHERE holder = $1`, s.holder)
	if err != nil {
		return nil, fmt.Errorf("snapshot queue: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue entries: %w", err)
	}
	return out, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}
