package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogcron/internal/testsupport"
)

func TestRunStopsOnCancelledContext(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, Run(ctx, cfg, Options{LogLevel: "error"}))

	runLogs, err := filepath.Glob(filepath.Join(cfg.Paths.LogDir, "catalogcron-*.log"))
	require.NoError(t, err)
	assert.Len(t, runLogs, 1)

	target, err := os.Readlink(filepath.Join(cfg.Paths.LogDir, CurrentLogName))
	require.NoError(t, err)
	assert.Equal(t, runLogs[0], target)

	_, err = os.Stat(cfg.PIDPath())
	assert.True(t, os.IsNotExist(err), "pid file should be removed on shutdown")
}

func TestRunRefusesSecondInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = lock.Unlock() })

	require.NoError(t, os.WriteFile(cfg.PIDPath(), []byte("4242\n"), 0o644))

	err = Run(context.Background(), cfg, Options{LogLevel: "error"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	data, err := os.ReadFile(cfg.PIDPath())
	require.NoError(t, err)
	assert.Equal(t, "4242\n", string(data), "losing instance must not touch the running daemon's pid file")
}

func TestEnsureCurrentLogPointerReplacesLink(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "catalogcron-1.log")
	second := filepath.Join(dir, "catalogcron-2.log")
	for _, p := range []string{first, second} {
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}

	require.NoError(t, ensureCurrentLogPointer(dir, first))
	require.NoError(t, ensureCurrentLogPointer(dir, second))

	target, err := os.Readlink(filepath.Join(dir, CurrentLogName))
	require.NoError(t, err)
	assert.Equal(t, second, target)
}
