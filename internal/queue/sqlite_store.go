package queue

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"catalogcron/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current queue schema version. Bump this when schema.sql changes.
const schemaVersion = 1

// SQLiteStore keeps queue entries in a local SQLite table.
type SQLiteStore struct {
	db     *sqlitedb.DB
	holder string
}

// OpenSQLiteStore initializes or connects to the queue database at path.
func OpenSQLiteStore(ctx context.Context, path, holder string) (*SQLiteStore, error) {
	db, err := sqlitedb.Open(ctx, path, schemaSQL, schemaVersion)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}
	return &SQLiteStore{db: db, holder: holder}, nil
}

// Put writes or overwrites key.
func (s *SQLiteStore) Put(ctx context.Context, key, value string) error {
	_, err := s.db.ExecWithRetry(ctx, `
INSERT INTO queue_entries (holder, key, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(holder, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.holder, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("put queue entry %s: %w", key, err)
	}
	return nil
}

// Delete removes key; deleting a missing key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecWithRetry(ctx, "DELETE FROM queue_entries WHERE holder = ? AND key = ?", s.holder, key); err != nil {
		return fmt.Errorf("delete queue entry %s: %w", key, err)
	}
	return nil
}

// Snapshot returns every key and raw value in the holder.
func (s *SQLiteStore) Snapshot(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM queue_entries WHERE holder = ?", s.holder)
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

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
