package stageexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"catalogcron/internal/actions"
	"catalogcron/internal/catalog"
	"catalogcron/internal/config"
	"catalogcron/internal/graphstore"
	"catalogcron/internal/logging"
	"catalogcron/internal/services"
)

const (
	diffFileName  = "diff.json"
	labelPageSize = 500
)

// Stage names used in logs and context.
const (
	StageArchive     = "archive"
	StageProcessRDF  = "process_rdf"
	StageIndexSearch = "index_search"
	StageRunMetrics  = "run_metrics"
	StageDiff        = "diff"
)

// Options configures a Runner.
type Options struct {
	Store         graphstore.Store
	ParserCommand []string
	IndexCommand  []string
	ManifestName  string
	// Command overrides external command execution, mostly for tests.
	Command CommandRunner
}

// Runner executes pipeline stages against submissions.
type Runner struct {
	store         graphstore.Store
	parserCommand []string
	indexCommand  []string
	manifestName  string
	command       CommandRunner
}

// NewRunner builds a Runner from opts.
func NewRunner(opts Options) *Runner {
	manifest := strings.TrimSpace(opts.ManifestName)
	if manifest == "" {
		manifest = "classes.jsonl"
	}
	command := opts.Command
	if command == nil {
		command = runCommand
	}
	return &Runner{
		store:         opts.Store,
		parserCommand: append([]string(nil), opts.ParserCommand...),
		indexCommand:  append([]string(nil), opts.IndexCommand...),
		manifestName:  manifest,
		command:       command,
	}
}

// NewRunnerFromConfig wires a Runner to the configured pipeline commands.
func NewRunnerFromConfig(cfg *config.Config, store graphstore.Store) *Runner {
	return NewRunner(Options{
		Store:         store,
		ParserCommand: cfg.Pipeline.ParserCommand,
		IndexCommand:  cfg.Pipeline.IndexCommand,
		ManifestName:  cfg.Pipeline.ManifestName,
	})
}

type stage struct {
	name    string
	action  actions.Name
	status  catalog.Status
	fatal   bool
	execute func(context.Context, *slog.Logger, Target, actions.Set) error
}

func (r *Runner) stages() []stage {
	return []stage{
		{name: StageProcessRDF, action: actions.ProcessRDF, status: catalog.StatusRDF, fatal: true, execute: r.processRDF},
		{name: StageIndexSearch, action: actions.IndexSearch, status: catalog.StatusIndexed, execute: r.indexSearch},
		{name: StageRunMetrics, action: actions.RunMetrics, status: catalog.StatusMetrics, execute: r.runMetrics},
		{name: StageDiff, action: actions.Diff, status: catalog.StatusDiff, execute: r.diff},
	}
}

// Run executes the stages enabled in set against target.
func (r *Runner) Run(ctx context.Context, logger *slog.Logger, target Target, set actions.Set) error {
	if r.store == nil {
		return services.Wrap(services.ErrConfiguration, "stageexec", "run", "graph store is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx = services.WithSubmissionID(ctx, target.ID())

	if set.Enabled(actions.Archive) {
		return r.runStage(ctx, logger, target, set, stage{
			name:    StageArchive,
			action:  actions.Archive,
			status:  catalog.StatusArchived,
			fatal:   true,
			execute: r.archive,
		})
	}

	for _, st := range r.stages() {
		if !set.Enabled(st.action) {
			continue
		}
		if err := r.runStage(ctx, logger, target, set, st); err != nil && st.fatal {
			return err
		}
	}
	return nil
}

func (r *Runner) runStage(ctx context.Context, logger *slog.Logger, target Target, set actions.Set, st stage) error {
	stageCtx := services.WithStage(ctx, st.name)
	stageLogger := logging.WithContext(stageCtx, logger)
	stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	started := time.Now()

	errStatus := catalog.ErrorStatus(st.status)
	if err := target.RemoveStatus(stageCtx, errStatus); err != nil {
		stageLogger.Debug("clear stage error flag failed", logging.Error(err))
	}

	if err := st.execute(stageCtx, stageLogger, target, set); err != nil {
		if st.status != catalog.StatusArchived {
			if addErr := target.AddStatus(stageCtx, errStatus); addErr != nil {
				stageLogger.Error("failed to record stage error flag", logging.Error(addErr))
			}
		}
		impact := "stage output unavailable for this submission"
		if st.fatal {
			impact = "remaining stages skipped"
		}
		logging.ErrorWithContext(stageLogger, "stage failed", "stage_failure",
			logging.Error(err),
			logging.String("status_flag", string(errStatus)),
			logging.String(logging.FieldErrorHint, "inspect parsing.log in the submission data directory"),
			logging.String(logging.FieldImpact, impact),
		)
		return err
	}

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("status_flag", string(st.status)),
		logging.Duration("duration", time.Since(started)),
	)
	return nil
}

func (r *Runner) archive(ctx context.Context, logger *slog.Logger, target Target, _ actions.Set) error {
	if err := r.store.DeleteGraph(ctx, target.ID()); err != nil {
		return services.Wrap(services.ErrTransient, "stageexec", "archive", "delete derived graph", err)
	}
	removed := 0
	if dir := strings.TrimSpace(target.DataDir()); dir != "" {
		for _, name := range []string{r.manifestName, diffFileName} {
			err := os.Remove(filepath.Join(dir, name))
			switch {
			case err == nil:
				removed++
			case !errors.Is(err, os.ErrNotExist):
				return fmt.Errorf("prune %s: %w", name, err)
			}
		}
	}
	logger.Debug("generated files pruned", logging.Int("removed", removed))
	return target.AddStatus(ctx, catalog.StatusArchived)
}

func (r *Runner) processRDF(ctx context.Context, logger *slog.Logger, target Target, set actions.Set) error {
	if err := target.RemoveStatus(ctx, catalog.StatusRDF, catalog.StatusRDFLabels, catalog.ErrorStatus(catalog.StatusRDFLabels)); err != nil {
		return err
	}
	source := strings.TrimSpace(target.UploadFilePath())
	if source == "" {
		return services.Wrap(services.ErrValidation, "stageexec", StageProcessRDF, "submission has no uploaded file", nil)
	}
	if _, err := os.Stat(source); err != nil {
		return services.Wrap(services.ErrValidation, "stageexec", StageProcessRDF, "uploaded file missing", err)
	}

	manifest := source
	if len(r.parserCommand) > 0 {
		outputDir := target.DataDir()
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return fmt.Errorf("ensure output dir: %w", err)
		}
		name, args := expandArgs(r.parserCommand, map[string]string{
			"file":      source,
			"output":    outputDir,
			"reasoning": strconv.FormatBool(set.Enabled(actions.Reasoning)),
		})
		logger.Debug("running parser", logging.String("command", name), logging.Strings("args", args))
		if err := r.command(ctx, name, args...); err != nil {
			return services.Wrap(services.ErrExternalTool, "stageexec", StageProcessRDF, "parser command failed", err)
		}
		manifest = filepath.Join(outputDir, r.manifestName)
	}

	classes, err := readManifest(manifest)
	if err != nil {
		return services.Wrap(services.ErrValidation, "stageexec", StageProcessRDF, "invalid class manifest", err)
	}
	if err := r.store.PutClasses(ctx, target.ID(), classes); err != nil {
		return fmt.Errorf("store classes: %w", err)
	}
	if err := target.AddStatus(ctx, catalog.StatusRDF); err != nil {
		return err
	}
	logger.Info("classes imported", logging.Int("classes", len(classes)))

	generated, err := r.generateLabels(ctx, target.ID())
	if err != nil {
		if addErr := target.AddStatus(ctx, catalog.ErrorStatus(catalog.StatusRDFLabels)); addErr != nil {
			logger.Error("failed to record label error flag", logging.Error(addErr))
		}
		return fmt.Errorf("generate labels: %w", err)
	}
	logger.Info("missing labels generated", logging.Int("generated", generated))
	return target.AddStatus(ctx, catalog.StatusRDFLabels)
}

func (r *Runner) generateLabels(ctx context.Context, graph string) (int, error) {
	labels := map[string]string{}
	for page := 1; ; page++ {
		classes, err := r.store.Classes(ctx, graph, page, labelPageSize)
		if err != nil {
			return 0, err
		}
		for _, c := range classes {
			if strings.TrimSpace(c.Label) == "" {
				labels[c.ID] = generateLabel(c.ID)
			}
		}
		if len(classes) < labelPageSize {
			break
		}
	}
	if err := r.store.SetLabels(ctx, graph, labels); err != nil {
		return 0, err
	}
	return len(labels), nil
}

func (r *Runner) indexSearch(ctx context.Context, logger *slog.Logger, target Target, set actions.Set) error {
	if !target.HasStatus(catalog.StatusRDF) {
		return services.Wrap(services.ErrValidation, "stageexec", StageIndexSearch, "submission has no parsed classes", nil)
	}
	if len(r.indexCommand) == 0 {
		logger.Debug("no index command configured; marking indexed")
	} else {
		name, args := expandArgs(r.indexCommand, map[string]string{
			"graph":   target.ID(),
			"acronym": target.Acronym(),
			"commit":  strconv.FormatBool(set.Enabled(actions.IndexCommit)),
		})
		if err := r.command(ctx, name, args...); err != nil {
			return services.Wrap(services.ErrExternalTool, "stageexec", StageIndexSearch, "index command failed", err)
		}
	}
	return target.AddStatus(ctx, catalog.StatusIndexed)
}

func (r *Runner) runMetrics(ctx context.Context, logger *slog.Logger, target Target, _ actions.Set) error {
	classes, err := r.store.CountClasses(ctx, target.ID())
	if err != nil {
		return err
	}
	mappings, err := r.store.CountMappings(ctx, target.ID())
	if err != nil {
		return err
	}
	m := Metrics{Classes: classes, Mappings: mappings}
	if err := target.SetMetrics(ctx, m); err != nil {
		return err
	}
	logger.Info("metrics recorded", logging.Int("classes", classes), logging.Int("mappings", mappings))
	return target.AddStatus(ctx, catalog.StatusMetrics)
}

// DiffReport is written to diff.json by the diff stage.
type DiffReport struct {
	Current  string   `json:"current"`
	Previous string   `json:"previous,omitempty"`
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
}

func (r *Runner) diff(ctx context.Context, logger *slog.Logger, target Target, _ actions.Set) error {
	previous, ok, err := target.PreviousGraph(ctx)
	if err != nil {
		return err
	}
	current, err := r.classIDs(ctx, target.ID())
	if err != nil {
		return err
	}
	report := DiffReport{Current: target.ID(), Added: []string{}, Removed: []string{}}
	if ok {
		report.Previous = previous
		before, err := r.classIDs(ctx, previous)
		if err != nil {
			return err
		}
		for id := range current {
			if _, found := before[id]; !found {
				report.Added = append(report.Added, id)
			}
		}
		for id := range before {
			if _, found := current[id]; !found {
				report.Removed = append(report.Removed, id)
			}
		}
	} else {
		for id := range current {
			report.Added = append(report.Added, id)
		}
	}
	sort.Strings(report.Added)
	sort.Strings(report.Removed)

	if err := os.MkdirAll(target.DataDir(), 0o755); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(target.DataDir(), diffFileName), data, 0o644); err != nil {
		return fmt.Errorf("write diff: %w", err)
	}
	logger.Info("diff written",
		logging.String("previous", previous),
		logging.Int("added", len(report.Added)),
		logging.Int("removed", len(report.Removed)),
	)
	return target.AddStatus(ctx, catalog.StatusDiff)
}

func (r *Runner) classIDs(ctx context.Context, graph string) (map[string]struct{}, error) {
	ids := map[string]struct{}{}
	for page := 1; ; page++ {
		classes, err := r.store.Classes(ctx, graph, page, labelPageSize)
		if err != nil {
			return nil, err
		}
		for _, c := range classes {
			ids[c.ID] = struct{}{}
		}
		if len(classes) < labelPageSize {
			return ids, nil
		}
	}
}
