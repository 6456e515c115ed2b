package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"catalogcron/internal/config"
	"catalogcron/internal/logging"
	"catalogcron/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello from config")

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, "catalogcron.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from config") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerHeaderFromContext(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-subject.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithRoutine(context.Background(), "parse")
	ctx = services.WithSubmissionID(ctx, "http://data.example.org/ontologies/BRO/submissions/3")
	ctx = services.WithStage(ctx, "process_rdf")
	logging.WithContext(ctx, logging.NewComponentLogger(logger, "processor")).Info("stage started", logging.Int("classes", 12))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{"[processor]", "Parse · BRO/3 (process_rdf)", "stage started", "classes: 12"} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
}

func TestJSONLoggerUsesStandardKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Error("boom", logging.Error(errors.New("disk full")))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(content), &record); err != nil {
		t.Fatalf("decode json log: %v (%q)", err, content)
	}
	if record["level"] != "error" || record["msg"] != "boom" || record["error"] != "disk full" {
		t.Fatalf("unexpected record: %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFileLoggerWritesOnlyToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "parsing.log")
	logger, closer, err := logging.NewFileLogger(path, "debug")
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	logger.Debug("parsing started")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(content), "parsing started") {
		t.Fatalf("expected debug line, got %q", content)
	}
}

func TestTeeLoggerFansOut(t *testing.T) {
	var first, second bytes.Buffer
	base := slog.New(slog.NewTextHandler(&first, nil))
	tee := logging.TeeLogger(base, slog.NewTextHandler(&second, nil))
	tee.Info("fan out")
	if !strings.Contains(first.String(), "fan out") || !strings.Contains(second.String(), "fan out") {
		t.Fatalf("expected both sinks to receive the record: %q / %q", first.String(), second.String())
	}
}

func TestForRoutineAppliesOverride(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger := logging.ForRoutine(base, map[string]string{"flush": "warn"}, "flush")
	logger.Info("suppressed")
	logger.Warn("kept")
	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Fatalf("info should be filtered by override: %q", out)
	}
	if !strings.Contains(out, "kept") || !strings.Contains(out, "routine=flush") {
		t.Fatalf("expected warn line tagged with routine: %q", out)
	}
}

func TestErrorWithContextAddsKind(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logging.ErrorWithContext(logger, "lookup failed", "lookup_failed",
		logging.Error(services.Wrap(services.ErrNotFound, "catalog", "find", "", nil)))
	out := buf.String()
	for _, fragment := range []string{"event_type=lookup_failed", "error_kind=not_found", "error_hint="} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("expected %q in %q", fragment, out)
		}
	}
}

func TestCleanupOldLogs(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "catalogcron-old.log")
	newPath := filepath.Join(dir, "catalogcron-new.log")
	for _, p := range []string{oldPath, newPath} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}
	stale := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(oldPath, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 5, logging.RetentionTarget{Dir: dir, Pattern: "catalogcron-*.log"})
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Fatalf("expected new log kept: %v", err)
	}
	if logging.CleanupOldLogs(nil, 0, logging.RetentionTarget{Dir: dir}) != 0 {
		t.Fatal("retention 0 should disable pruning")
	}
}

func TestCleanupOldLogsKeepsExcludedAndLinks(t *testing.T) {
	dir := t.TempDir()
	current := filepath.Join(dir, "catalogcron-current.log")
	if err := os.WriteFile(current, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	stale := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(current, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	link := filepath.Join(dir, "catalogcron-link.log")
	if err := os.Symlink(current, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	removed := logging.CleanupOldLogs(logging.NewNop(), 5,
		logging.RetentionTarget{Dir: dir, Pattern: "catalogcron-*.log", Exclude: []string{current}},
		logging.RetentionTarget{Dir: filepath.Join(dir, "missing")},
	)
	if removed != 0 {
		t.Fatalf("expected nothing removed, got %d", removed)
	}
	for _, p := range []string{current, link} {
		if _, err := os.Lstat(p); err != nil {
			t.Fatalf("expected %s kept: %v", p, err)
		}
	}
}
