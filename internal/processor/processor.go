package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"catalogcron/internal/actions"
	"catalogcron/internal/catalog"
	"catalogcron/internal/logging"
	"catalogcron/internal/queue"
	"catalogcron/internal/services"
)

// ParsingLogName is the per-submission log file inside its data directory.
const ParsingLogName = "parsing.log"

// Outcome is the result of processing one submission.
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeNotReady
	OutcomeReady
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomeNotReady:
		return "not_ready"
	default:
		return "not_found"
	}
}

// Archiver retires older versions of a processed submission.
type Archiver interface {
	ArchivePrevious(ctx context.Context, logger *slog.Logger, current catalog.Submission) (int, error)
}

// Annotator builds the annotator term cache and dictionary.
type Annotator interface {
	CreateTermCache(ctx context.Context, logger *slog.Logger, sub catalog.Submission) (int, error)
	GenerateDictionary(ctx context.Context, logger *slog.Logger) (int, error)
}

// ReportRefresher recomputes report entries for the given acronyms.
type ReportRefresher interface {
	Refresh(ctx context.Context, acronyms ...string) error
}

// Options configures a Processor. Annotator may be nil.
type Options struct {
	Catalog   catalog.Catalog
	Queue     *queue.Queue
	Archiver  Archiver
	Annotator Annotator
	Report    ReportRefresher
	// ParsingLogLevel sets the level of the per-submission parsing.log.
	ParsingLogLevel string
	Logger          *slog.Logger
}

// Processor runs queued submissions.
type Processor struct {
	catalog   catalog.Catalog
	queue     *queue.Queue
	archiver  Archiver
	annotator Annotator
	report    ReportRefresher
	logLevel  string
	logger    *slog.Logger
}

// New builds a Processor.
func New(opts Options) *Processor {
	level := opts.ParsingLogLevel
	if level == "" {
		level = "debug"
	}
	return &Processor{
		catalog:   opts.Catalog,
		queue:     opts.Queue,
		archiver:  opts.Archiver,
		annotator: opts.Annotator,
		report:    opts.Report,
		logLevel:  level,
		logger:    logging.NewComponentLogger(opts.Logger, "processor"),
	}
}

// RunSummary counts what one ProcessQueue call did.
type RunSummary struct {
	queue.DrainStats
	Ready    int
	NotReady int
	NotFound int
	Failed   int
}

// ProcessQueue drains the queue and processes every entry. A failure or panic
// while processing one entry is logged and does not stop the others; failed
// entries are not requeued. Cancelling ctx stops the drain between entries.
func (p *Processor) ProcessQueue(ctx context.Context) (RunSummary, error) {
	var summary RunSummary
	if p.queue == nil {
		return summary, services.Wrap(services.ErrConfiguration, "processor", "process queue", "queue is required", nil)
	}
	if _, ok := services.RequestIDFromContext(ctx); !ok {
		ctx = services.WithRequestID(ctx, uuid.NewString())
	}
	logger := logging.WithContext(ctx, p.logger)
	started := time.Now()

	stats, err := p.queue.Drain(ctx, func(ctx context.Context, entry queue.Entry) {
		outcome, err := p.processIsolated(ctx, logger, entry)
		if err != nil {
			summary.Failed++
			return
		}
		switch outcome {
		case OutcomeReady:
			summary.Ready++
		case OutcomeNotReady:
			summary.NotReady++
		default:
			summary.NotFound++
		}
	})
	summary.DrainStats = stats
	logger.Info("parse queue processed",
		logging.Int("drained", stats.Drained),
		logging.Int("malformed", stats.Malformed),
		logging.Int("ready", summary.Ready),
		logging.Int("not_ready", summary.NotReady),
		logging.Int("not_found", summary.NotFound),
		logging.Int("failed", summary.Failed),
		logging.Duration("duration", time.Since(started)),
		logging.String(logging.FieldEventType, "queue_processed"),
	)
	return summary, err
}

func (p *Processor) processIsolated(ctx context.Context, logger *slog.Logger, entry queue.Entry) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			logging.ErrorWithContext(logger, "submission processing panicked", "processing_panic",
				logging.String(logging.FieldSubmissionID, entry.ID),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "re-enqueue the submission after fixing the cause"),
			)
		}
	}()

	logger.Info("processing started",
		logging.String(logging.FieldSubmissionID, entry.ID),
		logging.String("actions", entry.Actions.String()),
	)
	outcome, err = p.Process(ctx, entry.ID, entry.Actions)
	if err != nil {
		logging.ErrorWithContext(logger, "submission processing failed", "processing_failed",
			logging.String(logging.FieldSubmissionID, entry.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect parsing.log and re-enqueue the submission"),
		)
		return outcome, err
	}
	logger.Info("processing finished",
		logging.String(logging.FieldSubmissionID, entry.ID),
		logging.String("outcome", outcome.String()),
	)
	return outcome, nil
}

// Process runs one submission with the given actions. A submission that does
// not exist yields OutcomeNotFound with a nil error. Download and pipeline
// failures are returned; archival, annotation and report failures are only
// logged.
func (p *Processor) Process(ctx context.Context, id string, set actions.Set) (Outcome, error) {
	ctx = services.WithSubmissionID(ctx, id)
	logger := logging.WithContext(ctx, p.logger)

	sub, err := p.catalog.FindSubmission(ctx, id)
	if err != nil {
		return OutcomeNotFound, fmt.Errorf("find submission: %w", err)
	}
	if sub == nil {
		logging.ErrorWithContext(logger, "submission is not in the catalog; processing cancelled", "submission_not_found",
			logging.String(logging.FieldErrorHint, "check the queued id; the entry has been removed"),
		)
		return OutcomeNotFound, nil
	}
	defer p.refreshReport(ctx, logger, sub)

	itemLogger, closeLog, err := p.openParsingLog(logger, sub)
	if err != nil {
		return OutcomeNotReady, err
	}
	defer closeLog()

	started := time.Now()
	itemLogger.Debug("starting parsing", logging.String("actions", set.String()))

	if err := p.ensureSource(ctx, itemLogger, sub); err != nil {
		return OutcomeNotReady, err
	}
	if err := sub.Pipeline(ctx, itemLogger, set); err != nil {
		return OutcomeNotReady, fmt.Errorf("pipeline: %w", err)
	}

	if !catalog.IsReady(sub) {
		logging.ErrorWithContext(itemLogger, "submission parsing failed", "parse_incomplete",
			logging.Strings("statuses", statusStrings(sub.Statuses())),
			logging.String(logging.FieldErrorHint, "inspect parsing.log for the failing stage"),
		)
		return OutcomeNotReady, nil
	}

	if set.Enabled(actions.ProcessRDF) && p.archiver != nil {
		if _, err := p.archiver.ArchivePrevious(ctx, itemLogger, sub); err != nil {
			logging.WarnWithContext(itemLogger, "archiving previous submissions failed", "archive_previous_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "older derived graphs remain until the next flush"),
			)
		}
	}
	if set.Enabled(actions.ProcessAnnotator) {
		p.processAnnotator(ctx, itemLogger, sub)
	}

	itemLogger.Info("processing completed",
		logging.Duration("duration", time.Since(started)),
		logging.String(logging.FieldEventType, "submission_processed"),
	)
	return OutcomeReady, nil
}

func (p *Processor) openParsingLog(logger *slog.Logger, sub catalog.Submission) (*slog.Logger, func(), error) {
	dir := sub.DataDir()
	if strings.TrimSpace(dir) == "" {
		return logger, func() {}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("ensure data dir: %w", err)
	}
	path := filepath.Join(dir, ParsingLogName)
	fileLogger, closer, err := logging.NewFileLogger(path, p.logLevel)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("logging parsing output", logging.String("path", path))
	tee := logging.TeeLogger(logger, fileLogger.Handler())
	return tee, func() {
		if err := closer.Close(); err != nil {
			logger.Debug("close parsing log failed", logging.Error(err))
		}
	}, nil
}

func (p *Processor) ensureSource(ctx context.Context, logger *slog.Logger, sub catalog.Submission) error {
	if strings.TrimSpace(sub.PullLocation()) == "" || sourcePresent(sub.UploadFilePath()) {
		return nil
	}
	logger.Debug("pull location found but no uploaded file; retrying download",
		logging.String("pull_location", sub.PullLocation()),
	)
	if err := sub.Download(ctx); err != nil {
		return fmt.Errorf("download %s: %w", sub.PullLocation(), err)
	}
	logger.Debug("download complete", logging.String("path", sub.UploadFilePath()))
	return nil
}

func (p *Processor) processAnnotator(ctx context.Context, logger *slog.Logger, sub catalog.Submission) {
	if p.annotator == nil {
		logging.WarnWithContext(logger, "annotator requested but not enabled", "annotator_disabled",
			logging.String(logging.FieldImpact, "term cache not rebuilt for this submission"),
			logging.String(logging.FieldErrorHint, "set annotator.enabled in the config"),
		)
		return
	}
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("annotator panic: %v", r)
			}
		}()
		if _, err := p.annotator.CreateTermCache(ctx, logger, sub); err != nil {
			return err
		}
		_, err = p.annotator.GenerateDictionary(ctx, logger)
		return err
	}()
	if err != nil {
		logging.WarnWithContext(logger, "annotator term cache failed", "annotator_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "annotator results for this ontology may be stale"),
			logging.String(logging.FieldErrorHint, "check the annotator redis instance"),
		)
	}
}

func (p *Processor) refreshReport(ctx context.Context, logger *slog.Logger, sub catalog.Submission) {
	if p.report == nil {
		return
	}
	if err := p.report.Refresh(ctx, sub.Acronym()); err != nil {
		logging.WarnWithContext(logger, "ontologies report refresh failed", "report_refresh_failed",
			logging.String(logging.FieldAcronym, sub.Acronym()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "report entry is stale until the next refresh"),
		)
	}
}

func sourcePresent(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}

func statusStrings(statuses []catalog.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
