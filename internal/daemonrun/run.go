package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"catalogcron/internal/config"
	"catalogcron/internal/daemon"
	"catalogcron/internal/logging"
	"catalogcron/internal/preflight"
)

// CurrentLogName is the link in the log directory that points at the log
// file of the most recent daemon run.
const CurrentLogName = "catalogcrond.log"

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the catalogcron daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("catalogcron-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", CurrentLogName, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "catalogcron-*.log", Exclude: []string{logPath}},
	)
	logPreflight(signalCtx, logger, cfg)

	comps, err := OpenComponents(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("open components", logging.Error(err))
		return err
	}
	defer func() {
		if err := comps.Close(); err != nil {
			logger.Warn("close components", logging.Error(err))
		}
	}()

	routines, err := comps.Routines()
	if err != nil {
		return err
	}
	d, err := daemon.New(daemon.Options{
		LockPath:       cfg.LockPath(),
		Routines:       routines,
		LevelOverrides: cfg.Logging.RoutineOverrides,
		APIBind:        cfg.Daemon.APIBind,
		APIToken:       cfg.Daemon.APIToken,
		Queue:          comps.Queue,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "stop the other instance or remove a stale lock at "+cfg.LockPath()),
			logging.String(logging.FieldImpact, "no routines will run"),
		)
		return err
	}

	// The pid file is written only after the instance lock is held.
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	<-signalCtx.Done()
	logger.Info("catalogcron daemon shutting down")
	return nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	results := preflight.RunAll(ctx, cfg)
	for _, failed := range preflight.Failed(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldImpact, "routines depending on this check will fail"),
		)
	}
	logger.Info("preflight complete",
		logging.Int("checks", len(results)),
		logging.Int("failed", len(preflight.Failed(results))),
		logging.String(logging.FieldEventType, "preflight_complete"),
	)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, CurrentLogName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
