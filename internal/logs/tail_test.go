package logs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"catalogcron/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalogcrond.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestLastReturnsTrailingLines(t *testing.T) {
	path := writeLog(t, "a\nb\r\nc\n")

	lines, offset, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if offset != int64(len("a\nb\r\nc\n")) {
		t.Fatalf("unexpected offset %d", offset)
	}

	all, _, err := logs.Last(path, 10)
	if err != nil || len(all) != 3 || all[0] != "a" {
		t.Fatalf("Last(10) = %#v, %v", all, err)
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "absent.log"), 5)
	if err != nil || lines != nil || offset != 0 {
		t.Fatalf("expected empty result, got %#v %d %v", lines, offset, err)
	}
}

func TestLastZeroSkipsToEnd(t *testing.T) {
	path := writeLog(t, "one\ntwo\n")
	lines, offset, err := logs.Last(path, 0)
	if err != nil || len(lines) != 0 || offset != 8 {
		t.Fatalf("Last(0) = %#v, %d, %v", lines, offset, err)
	}
}

func TestFollowStreamsAppendedLines(t *testing.T) {
	path := writeLog(t, "start\n")
	_, offset, err := logs.Last(path, 1)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, 20*time.Millisecond, func(line string) {
			mu.Lock()
			got = append(got, line)
			mu.Unlock()
		})
	}()

	appendLog(t, path, "later\npartial")
	deadline := time.Now().Add(5 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 1 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	appendLog(t, path, " line\n")
	time.Sleep(100 * time.Millisecond)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "later" || got[1] != "partial line" {
		t.Fatalf("unexpected followed lines: %#v", got)
	}
}

func TestFollowRestartsAfterTruncation(t *testing.T) {
	path := writeLog(t, "old line one\nold line two\n")
	_, offset, err := logs.Last(path, 0)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if err := os.WriteFile(path, []byte("new\n"), 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	var got []string
	_ = logs.Follow(ctx, path, offset, 20*time.Millisecond, func(line string) { got = append(got, line) })
	if len(got) != 1 || got[0] != "new" {
		t.Fatalf("expected re-read after truncation, got %#v", got)
	}
}
