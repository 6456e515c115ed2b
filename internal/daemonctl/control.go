// Package daemonctl lets the CLI inspect and control a running daemon: pid
// liveness, graceful stop with a forced fallback, and the HTTP status API.
package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"catalogcron/internal/config"
)

// ErrDaemonNotRunning indicates no live daemon process was found.
var ErrDaemonNotRunning = errors.New("daemon not running")

// ReadPID returns the pid recorded at path, or 0 when the file is absent.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	pidStr := strings.TrimSpace(string(data))
	if pidStr == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("daemon pid file %q holds %q", path, pidStr)
	}
	return pid, nil
}

// ProcessAlive reports whether a process with pid exists.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// LockHeld reports whether some process holds the daemon lock at path.
func LockHeld(path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("check daemon lock: %w", err)
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

// ProcessInfo returns whether a daemon is running and its pid when known.
func ProcessInfo(cfg *config.Config) (bool, int, error) {
	if cfg == nil {
		return false, 0, errors.New("config is required")
	}
	held, err := LockHeld(cfg.LockPath())
	if err != nil {
		return false, 0, err
	}
	pid, err := ReadPID(cfg.PIDPath())
	if err != nil {
		return held, 0, err
	}
	if pid > 0 && !ProcessAlive(pid) {
		pid = 0
	}
	return held || pid > 0, pid, nil
}

// StopResult captures daemon stop outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Stop sends SIGTERM to the daemon and waits up to grace for it to exit,
// then sends SIGKILL and removes the pid file.
func Stop(ctx context.Context, cfg *config.Config, grace time.Duration) (StopResult, error) {
	running, pid, err := ProcessInfo(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !running || pid == 0 {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	result := StopResult{PID: pid}
	if err := unix.Kill(pid, unix.SIGTERM); err != nil {
		return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	if waitForExit(ctx, pid, grace) {
		return result, nil
	}

	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	result.ForcedKill = true
	if err := os.Remove(cfg.PIDPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file: %w", err)
	}
	return result, nil
}

func waitForExit(ctx context.Context, pid int, grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if !ProcessAlive(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(200 * time.Millisecond):
		}
	}
	return !ProcessAlive(pid)
}
