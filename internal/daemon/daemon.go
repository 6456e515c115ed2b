package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"catalogcron/internal/logging"
	"catalogcron/internal/schedule"
	"catalogcron/internal/services"
)

// ErrUnknownRoutine is returned by Trigger for names that are not registered.
var ErrUnknownRoutine = errors.New("unknown routine")

// RoutineFunc performs one run of a routine.
type RoutineFunc func(ctx context.Context, logger *slog.Logger) error

// Routine is a named unit of scheduled work.
type Routine struct {
	Name     string
	Schedule *schedule.Schedule
	Run      RoutineFunc
}

// RoutineStatus is the recorded state of one routine.
type RoutineStatus struct {
	Name         string
	Schedule     string
	Running      bool
	Runs         int
	Failures     int
	LastStarted  time.Time
	LastFinished time.Time
	LastDuration time.Duration
	LastError    string
	NextRun      time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	LockFilePath string
	StartedAt    time.Time
	Routines     []RoutineStatus
}

// Options configures a Daemon.
type Options struct {
	LockPath string
	Routines []Routine
	// LevelOverrides maps routine names to log levels.
	LevelOverrides map[string]string
	APIBind        string
	APIToken       string
	Queue          QueueReader
	Logger         *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type routineState struct {
	routine Routine
	status  RoutineStatus
}

// Daemon runs scheduled routines and enforces single-instance execution.
type Daemon struct {
	logger    *slog.Logger
	overrides map[string]string
	now       func() time.Time

	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	routines  []*routineState
	startedAt time.Time

	trigger chan string
	api     *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a daemon. Routine names must be unique and non-empty.
func New(opts Options) (*Daemon, error) {
	if strings.TrimSpace(opts.LockPath) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "new", "lock path is required", nil)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	d := &Daemon{
		logger:    logging.NewComponentLogger(opts.Logger, "daemon"),
		overrides: opts.LevelOverrides,
		now:       now,
		lockPath:  opts.LockPath,
		lock:      flock.New(opts.LockPath),
		trigger:   make(chan string, 8),
	}
	seen := map[string]struct{}{}
	for _, r := range opts.Routines {
		name := strings.TrimSpace(r.Name)
		if name == "" || r.Run == nil || r.Schedule == nil {
			return nil, services.Wrap(services.ErrConfiguration, "daemon", "new", "routine needs a name, schedule and func", nil)
		}
		if _, dup := seen[name]; dup {
			return nil, services.Wrap(services.ErrConfiguration, "daemon", "new", fmt.Sprintf("duplicate routine %q", name), nil)
		}
		seen[name] = struct{}{}
		r.Name = name
		d.routines = append(d.routines, &routineState{
			routine: r,
			status:  RoutineStatus{Name: name, Schedule: r.Schedule.String()},
		})
	}
	api, err := newAPIServer(opts.APIBind, opts.APIToken, d, opts.Queue, opts.Logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the scheduler loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another catalogcron daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.mu.Lock()
	d.startedAt = d.now()
	for _, st := range d.routines {
		st.status.NextRun = st.routine.Schedule.Next(d.startedAt, time.Time{})
	}
	d.mu.Unlock()

	d.cancel = cancel
	d.done = make(chan struct{})
	d.running.Store(true)
	go d.loop(runCtx)

	d.logger.Info("catalogcron daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("routines", len(d.routines)),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop cancels the loop, waits for a routine in flight to return, and
// releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.done != nil {
		<-d.done
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("catalogcron daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Done is closed when the scheduler loop exits.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Trigger requests an immediate run of the named routine. The run happens on
// the scheduler goroutine after any routine already in flight.
func (d *Daemon) Trigger(name string) error {
	if d.find(name) == nil {
		return fmt.Errorf("%w: %s", ErrUnknownRoutine, name)
	}
	if !d.running.Load() {
		return errors.New("daemon is not running")
	}
	select {
	case d.trigger <- name:
		return nil
	default:
		return errors.New("trigger queue is full; try again shortly")
	}
}

// Status returns the current daemon status with routines sorted by name.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	routines := make([]RoutineStatus, 0, len(d.routines))
	for _, st := range d.routines {
		routines = append(routines, st.status)
	}
	sort.Slice(routines, func(i, j int) bool { return routines[i].Name < routines[j].Name })
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		StartedAt:    d.startedAt,
		Routines:     routines,
	}
}

func (d *Daemon) loop(ctx context.Context) {
	defer close(d.done)
	for {
		if ctx.Err() != nil {
			return
		}
		due, wait := d.due(d.now())
		if due != nil {
			d.runRoutine(ctx, due)
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case name := <-d.trigger:
			timer.Stop()
			if st := d.find(name); st != nil {
				d.runRoutine(ctx, st)
			}
		case <-timer.C:
		}
	}
}

// due returns the routine with the earliest NextRun at or before now, or the
// time to wait until the next one becomes due.
func (d *Daemon) due(now time.Time) (*routineState, time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var (
		earliest *routineState
		wait     = time.Hour
	)
	for _, st := range d.routines {
		next := st.status.NextRun
		if !next.After(now) {
			if earliest == nil || next.Before(earliest.status.NextRun) {
				earliest = st
			}
			continue
		}
		if until := next.Sub(now); until < wait {
			wait = until
		}
	}
	return earliest, wait
}

func (d *Daemon) find(name string) *routineState {
	for _, st := range d.routines {
		if st.routine.Name == name {
			return st
		}
	}
	return nil
}

func (d *Daemon) runRoutine(ctx context.Context, st *routineState) {
	name := st.routine.Name
	ctx = services.WithRoutine(ctx, name)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, logging.ForRoutine(d.logger, d.overrides, name))

	started := d.now()
	d.mu.Lock()
	st.status.Running = true
	st.status.LastStarted = started
	d.mu.Unlock()

	logger.Info("routine started", logging.String(logging.FieldEventType, "routine_started"))
	err := d.invoke(ctx, logger, st.routine)
	finished := d.now()
	duration := finished.Sub(started)

	d.mu.Lock()
	st.status.Running = false
	st.status.Runs++
	st.status.LastFinished = finished
	st.status.LastDuration = duration
	st.status.LastError = ""
	if err != nil {
		st.status.Failures++
		st.status.LastError = err.Error()
	}
	st.status.NextRun = st.routine.Schedule.Next(finished, finished)
	next := st.status.NextRun
	d.mu.Unlock()

	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			logger.Info("routine interrupted by shutdown", logging.Duration("duration", duration))
			return
		}
		logging.ErrorWithContext(logger, "routine failed", "routine_failed",
			logging.Error(err),
			logging.Duration("duration", duration),
			logging.String(logging.FieldErrorHint, "the routine will run again at its next scheduled time"),
		)
		return
	}
	attrs := []logging.Attr{
		logging.Duration("duration", duration),
		logging.String(logging.FieldEventType, "routine_completed"),
	}
	if !next.Equal(schedule.Never) {
		attrs = append(attrs, logging.String("next_run", next.Format(time.RFC3339)))
	}
	logger.Info("routine completed", logging.Args(attrs...)...)
}

func (d *Daemon) invoke(ctx context.Context, logger *slog.Logger, r Routine) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("routine %s panicked: %v", r.Name, rec)
			logger.Error("routine panicked", logging.Any("panic", rec), logging.String("stack", string(debug.Stack())))
		}
	}()
	return r.Run(ctx, logger)
}
