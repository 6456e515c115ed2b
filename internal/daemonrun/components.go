package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"catalogcron/internal/annotator"
	"catalogcron/internal/archival"
	"catalogcron/internal/catalogdb"
	"catalogcron/internal/config"
	"catalogcron/internal/daemon"
	"catalogcron/internal/graphstore"
	"catalogcron/internal/logging"
	"catalogcron/internal/notifications"
	"catalogcron/internal/processor"
	"catalogcron/internal/queue"
	"catalogcron/internal/report"
	"catalogcron/internal/schedule"
	"catalogcron/internal/staledata"
	"catalogcron/internal/warmer"
)

// Routine names used by the daemon and the CLI.
const (
	RoutineParse = "parse"
	RoutineFlush = "flush"
	RoutineWarm  = "warm"
)

// Components holds every opened store and routine collaborator built from a
// config. Close releases them in reverse order.
type Components struct {
	Config    *config.Config
	Logger    *slog.Logger
	Queue     *queue.Queue
	Graphs    graphstore.Store
	Catalog   *catalogdb.DB
	Annotator *annotator.Annotator
	Report    *report.Refresher
	Archiver  *archival.Manager
	Processor *processor.Processor
	Stale     *staledata.Detector
	Warmer    *warmer.Warmer
	Notifier  notifications.Service

	closers []func() error
}

// OpenComponents opens the queue, graph store, catalog and annotator and
// wires the routines on top of them.
func OpenComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *Components, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Components{Config: cfg, Logger: logger, Notifier: notifications.NewService(cfg)}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	entries, err := queue.OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	c.Queue = queue.New(entries, queue.Options{
		KeyPrefix:      cfg.Queue.KeyPrefix,
		PurgeMalformed: cfg.Queue.PurgeMalformed,
		Logger:         logger,
	})
	c.closers = append(c.closers, c.Queue.Close)

	if c.Graphs, err = graphstore.Open(ctx, cfg, logger); err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}
	c.closers = append(c.closers, c.Graphs.Close)

	if c.Catalog, err = catalogdb.OpenFromConfig(ctx, cfg, c.Graphs, logger); err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	c.closers = append(c.closers, c.Catalog.Close)

	if c.Annotator, err = annotator.NewFromConfig(ctx, cfg, c.Graphs); err != nil {
		return nil, fmt.Errorf("open annotator: %w", err)
	}
	if c.Annotator != nil {
		c.closers = append(c.closers, c.Annotator.Close)
	}

	c.Report = report.New(c.Catalog, cfg.Paths.ReportPath, logger)
	c.Archiver = archival.New(c.Catalog, cfg.Maintenance.RecentWindow, logger)

	procOpts := processor.Options{
		Catalog:  c.Catalog,
		Queue:    c.Queue,
		Archiver: c.Archiver,
		Report:   c.Report,
		Logger:   logger,
	}
	if c.Annotator != nil {
		procOpts.Annotator = c.Annotator
	}
	c.Processor = processor.New(procOpts)

	c.Stale = staledata.New(c.Catalog, c.Graphs, staledata.Options{
		Window:      cfg.Maintenance.RecentWindow,
		Threshold:   cfg.Maintenance.ClassCountThreshold,
		SettleDelay: cfg.SettleDelay(),
		Logger:      logger,
	})
	c.Warmer = warmer.New(c.Catalog, c.Catalog, warmer.Options{
		Filter:   warmer.Filter{Status: cfg.Warmer.Status, IncludeViews: cfg.Warmer.IncludeViews},
		PageSize: cfg.Warmer.PageSize,
		Logger:   logger,
	})
	return c, nil
}

// Close releases every opened component.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Routines returns the scheduled daemon routines.
func (c *Components) Routines() ([]daemon.Routine, error) {
	specs := []struct {
		name string
		expr string
		run  daemon.RoutineFunc
	}{
		{RoutineParse, c.Config.Schedule.Parse, c.runParse},
		{RoutineFlush, c.Config.Schedule.Flush, c.runFlush},
		{RoutineWarm, c.Config.Schedule.Warm, c.runWarm},
	}
	routines := make([]daemon.Routine, 0, len(specs))
	for _, spec := range specs {
		sched, err := schedule.Parse(spec.expr, seedFor(spec.name))
		if err != nil {
			return nil, fmt.Errorf("schedule.%s: %w", spec.name, err)
		}
		routines = append(routines, daemon.Routine{Name: spec.name, Schedule: sched, Run: c.alertOnFailure(spec.name, spec.run)})
	}
	return routines, nil
}

// alertOnFailure sends a notification when run fails. The routine error is
// returned unchanged; a failed notification is only logged.
func (c *Components) alertOnFailure(name string, run daemon.RoutineFunc) daemon.RoutineFunc {
	return func(ctx context.Context, logger *slog.Logger) error {
		err := run(ctx, logger)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if notifyErr := c.Notifier.NotifyRoutineFailed(ctx, name, err); notifyErr != nil {
			logger.Warn("routine failure notification failed", logging.Error(notifyErr))
		}
		return err
	}
}

func (c *Components) runParse(ctx context.Context, logger *slog.Logger) error {
	started := time.Now()
	summary, err := c.Processor.ProcessQueue(ctx)
	if err != nil {
		return err
	}
	if summary.Drained == 0 && summary.Malformed == 0 {
		logger.Debug("parse queue empty")
		return nil
	}
	outcome := notifications.QueueOutcome{
		Drained:   summary.Drained,
		Ready:     summary.Ready,
		NotReady:  summary.NotReady,
		Failed:    summary.Failed,
		Malformed: summary.Malformed,
		Duration:  time.Since(started),
	}
	if err := c.Notifier.NotifyQueueProblems(ctx, outcome); err != nil {
		logger.Warn("queue problem notification failed", logging.Error(err))
	}
	return nil
}

func (c *Components) runFlush(ctx context.Context, logger *slog.Logger) error {
	res, err := c.Stale.FlushClasses(ctx)
	if err != nil {
		return err
	}
	logger.Info("stale class graphs flushed",
		logging.Int("deleted", len(res.Deleted)),
		logging.Int("zombies", len(res.Zombies)),
		logging.String(logging.FieldEventType, "flush_completed"),
	)
	if err := c.Notifier.NotifyZombieGraphs(ctx, res.Zombies); err != nil {
		logger.Warn("zombie graph notification failed", logging.Error(err))
	}
	return nil
}

func (c *Components) runWarm(ctx context.Context, logger *slog.Logger) error {
	iterations, err := c.Warmer.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("caches warmed",
		logging.Int("iterations", iterations),
		logging.String(logging.FieldEventType, "warm_completed"),
	)
	return nil
}

func seedFor(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}
