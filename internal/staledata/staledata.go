// Package staledata finds and removes derived graphs that no longer serve
// any purpose: graphs of archived or superseded submissions (cleanup pass)
// and graphs whose owning ontology is gone (orphan pass, report only).
package staledata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"catalogcron/internal/catalog"
	"catalogcron/internal/logging"
)

// GraphLister enumerates graph names in the derived graph store.
type GraphLister interface {
	Graphs(ctx context.Context) ([]string, error)
}

// Options configures a Detector.
type Options struct {
	Window      int
	Threshold   int
	SettleDelay time.Duration
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Detector runs the cleanup and orphan passes.
type Detector struct {
	catalog   catalog.Catalog
	graphs    GraphLister
	window    int
	threshold int
	settle    time.Duration
	sleep     func(context.Context, time.Duration) error
	logger    *slog.Logger
}

// New builds a Detector.
func New(cat catalog.Catalog, graphs GraphLister, opts Options) *Detector {
	window := opts.Window
	if window <= 0 {
		window = 11
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Detector{
		catalog:   cat,
		graphs:    graphs,
		window:    window,
		threshold: opts.Threshold,
		settle:    opts.SettleDelay,
		sleep:     sleep,
		logger:    logging.NewComponentLogger(opts.Logger, "staledata"),
	}
}

// FlushResult is what one FlushClasses run found.
type FlushResult struct {
	// Deleted holds the submissions whose derived graph was deleted.
	Deleted []catalog.Submission
	// Zombies holds orphan graphs; they are reported, never deleted.
	Zombies []string
}

// FlushClasses runs the cleanup pass, then the orphan pass, logging every
// orphan graph.
//
// A superseded submission has its graph deleted before it is marked
// archived; an interruption between the two leaves it active with no graph.
// Later flushes skip it since it has no classes left.
func (d *Detector) FlushClasses(ctx context.Context) (FlushResult, error) {
	var res FlushResult
	onts, err := d.catalog.Ontologies(ctx)
	if err != nil {
		return res, fmt.Errorf("list ontologies: %w", err)
	}

	for _, ont := range catalog.SortOntologies(onts) {
		if ont.SummaryOnly() {
			continue
		}
		removed, err := d.flushOntology(ctx, ont)
		res.Deleted = append(res.Deleted, removed...)
		if err != nil {
			return res, err
		}
	}

	res.Zombies, err = d.ZombieGraphs(ctx)
	if err != nil {
		return res, err
	}
	for _, graph := range res.Zombies {
		logging.WarnWithContext(d.logger, "zombie class graph", "zombie_graph",
			logging.String("graph", graph),
			logging.String(logging.FieldImpact, "graph occupies store space with no owning ontology"),
			logging.String(logging.FieldErrorHint, "verify ownership and delete the graph manually"),
		)
	}
	d.logger.Info("flush classes finished",
		logging.Int("deleted", len(res.Deleted)),
		logging.Int("zombies", len(res.Zombies)),
		logging.String(logging.FieldEventType, "flush_complete"),
	)
	return res, nil
}

func (d *Detector) flushOntology(ctx context.Context, ont catalog.Ontology) ([]catalog.Submission, error) {
	logger := d.logger.With(logging.String(logging.FieldAcronym, ont.Acronym()))
	logger.Info("checking graphs to delete", logging.String("ontology", ont.ID()))

	subs, err := ont.Submissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list submissions of %s: %w", ont.Acronym(), err)
	}
	latestReady, err := ont.LatestReady(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest ready of %s: %w", ont.Acronym(), err)
	}
	if latestReady == nil {
		logger.Debug("no ready submission; skipping ontology")
		return nil, nil
	}

	var deleted []catalog.Submission
	for _, sub := range catalog.Recent(subs, d.window) {
		count, err := sub.ClassCount(ctx)
		if err != nil {
			return deleted, fmt.Errorf("count classes of %s: %w", sub.ID(), err)
		}
		if count <= d.threshold {
			continue
		}
		switch {
		case sub.ID() == latestReady.ID():
			continue
		case catalog.IsArchived(sub):
			if err := d.deleteGraph(ctx, logger, sub); err != nil {
				return deleted, err
			}
			deleted = append(deleted, sub)
		default:
			if err := d.deleteGraph(ctx, logger, sub); err != nil {
				return deleted, err
			}
			deleted = append(deleted, sub)
			if err := sub.MarkArchived(ctx); err != nil {
				return deleted, fmt.Errorf("archive %s: %w", sub.ID(), err)
			}
			logger.Info("superseded submission archived",
				logging.String(logging.FieldSubmissionID, sub.ID()),
				logging.String(logging.FieldEventType, "submission_archived"),
			)
		}
	}
	return deleted, nil
}

func (d *Detector) deleteGraph(ctx context.Context, logger *slog.Logger, sub catalog.Submission) error {
	if err := d.sleep(ctx, d.settle); err != nil {
		return err
	}
	started := time.Now()
	if err := sub.DeleteDerivedGraph(ctx); err != nil {
		return fmt.Errorf("delete graph %s: %w", sub.ID(), err)
	}
	logger.Info("graph deleted",
		logging.String(logging.FieldSubmissionID, sub.ID()),
		logging.Bool("was_archived", catalog.IsArchived(sub)),
		logging.Duration("duration", time.Since(started)),
		logging.String(logging.FieldEventType, "graph_deleted"),
	)
	return nil
}

// ZombieGraphs returns submission graphs whose owning ontology is not a
// known, non-summary ontology. Nothing is deleted.
func (d *Detector) ZombieGraphs(ctx context.Context) ([]string, error) {
	graphs, err := d.graphs.Graphs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list graphs: %w", err)
	}
	onts, err := d.catalog.Ontologies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ontologies: %w", err)
	}
	live := make(map[string]struct{}, len(onts))
	for _, ont := range onts {
		if !ont.SummaryOnly() {
			live[ont.ID()] = struct{}{}
		}
	}

	seen := map[string]struct{}{}
	var zombies []string
	for _, graph := range graphs {
		owner, ok := catalog.GraphOwner(graph)
		if !ok {
			continue
		}
		if _, known := live[owner]; known {
			continue
		}
		if _, dup := seen[graph]; dup {
			continue
		}
		seen[graph] = struct{}{}
		zombies = append(zombies, graph)
	}
	sort.Strings(zombies)
	return zombies, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
