package sqlitedb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

const testSchema = `CREATE TABLE things (name TEXT PRIMARY KEY);`

func TestOpenCreatesSchemaOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := Open(ctx, path, testSchema, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := db.ExecWithRetry(ctx, "INSERT INTO things (name) VALUES (?)", "a"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, path, testSchema, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	var count int
	if err := reopened.QueryRowContext(ctx, "SELECT COUNT(*) FROM things").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected data to survive reopen, got %d rows", count)
	}
	if reopened.Path() != path {
		t.Fatalf("unexpected path %q", reopened.Path())
	}
}

func TestOpenRejectsVersionMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(ctx, path, testSchema, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = db.Close()

	if _, err := Open(ctx, path, testSchema, 2); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := RetryOnBusy(context.Background(), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("expected single attempt with boom, got calls=%d err=%v", calls, err)
	}

	calls = 0
	err = RetryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success after retries, got calls=%d err=%v", calls, err)
	}
}
