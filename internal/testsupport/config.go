// Package testsupport builds isolated configs and opened stores for tests.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"catalogcron/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a normalized config seeded with unique temp directories
// per test. Routines are manual, the settle delay is zero and every store uses
// SQLite under the temp dir.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.RepositoryDir = filepath.Join(base, "repository")
	cfgVal.Maintenance.SettleDelaySeconds = 0
	cfgVal.Schedule.Parse = "manual"
	cfgVal.Schedule.Flush = "manual"
	cfgVal.Schedule.Warm = "manual"
	cfgVal.Logging.RetentionDays = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Normalize(); err != nil {
		t.Fatalf("normalize config: %v", err)
	}
	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithRedisQueue switches the queue backend to redis at url.
func WithRedisQueue(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.Backend = "redis"
		b.cfg.Queue.RedisURL = url
	}
}

// WithAnnotator enables the annotator term cache against redis at url.
func WithAnnotator(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Annotator.Enabled = true
		b.cfg.Annotator.RedisURL = url
	}
}

// WithMaintenance overrides the archival window and class count threshold.
func WithMaintenance(window, threshold int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Maintenance.RecentWindow = window
		b.cfg.Maintenance.ClassCountThreshold = threshold
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. Each stub exits 0 without output.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
