package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"catalogcron/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckCommand(t *testing.T) {
	if r := CheckCommand("parser", []string{"sh", "-c", "true"}); !r.Passed {
		t.Fatalf("expected sh to resolve, got %s", r.Detail)
	}
	if r := CheckCommand("parser", []string{"catalogcron-no-such-binary"}); r.Passed {
		t.Fatal("expected missing binary to fail")
	}
	if r := CheckCommand("parser", nil); !r.Passed || r.Detail != "Not configured" {
		t.Fatalf("unexpected result for empty command: %+v", r)
	}
}

func TestCheckRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	if r := CheckRedis(context.Background(), "redis", "redis://"+srv.Addr()); !r.Passed || r.Detail != "PONG" {
		t.Fatalf("expected PONG, got %+v", r)
	}
	if r := CheckRedis(context.Background(), "redis", ""); r.Passed {
		t.Fatal("expected missing url to fail")
	}
}

func TestRunAllSkipsDisabledFeatures(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = base
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.RepositoryDir = filepath.Join(base, "repository")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), &cfg)
	if len(results) != 3 {
		t.Fatalf("expected only directory checks, got %+v", results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}

	cfg.Pipeline.ParserCommand = []string{"catalogcron-no-such-binary"}
	failed := Failed(RunAll(context.Background(), &cfg))
	if len(failed) != 1 || failed[0].Name != "Parser command" {
		t.Fatalf("expected parser failure, got %+v", failed)
	}
}
