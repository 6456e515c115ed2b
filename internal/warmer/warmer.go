// Package warmer refreshes aggregate mapping counts and reads the first page
// of classes of each ontology's latest submission so downstream caches are
// populated before users hit them.
package warmer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"catalogcron/internal/catalog"
	"catalogcron/internal/graphstore"
	"catalogcron/internal/logging"
	"catalogcron/internal/services"
)

// Status filters for LatestSubmissions.
const (
	StatusRDF   = "RDF"
	StatusReady = "READY"
	StatusAny   = "ANY"
)

// DataLayer performs the aggregate refreshes and page reads.
type DataLayer interface {
	RefreshMappingCounts(ctx context.Context) (int, error)
	RefreshOntologyMappingCounts(ctx context.Context) (int, error)
	FirstPage(ctx context.Context, sub catalog.Submission, size int) ([]graphstore.Class, error)
}

// Filter selects which submissions count as "latest".
type Filter struct {
	Status       string
	IncludeViews bool
}

// Options configures a Warmer.
type Options struct {
	Filter   Filter
	PageSize int
	Logger   *slog.Logger
}

// Warmer runs the cache warming routine.
type Warmer struct {
	catalog  catalog.Catalog
	data     DataLayer
	filter   Filter
	pageSize int
	logger   *slog.Logger
}

// New builds a Warmer.
func New(cat catalog.Catalog, data DataLayer, opts Options) *Warmer {
	size := opts.PageSize
	if size <= 0 {
		size = 100
	}
	return &Warmer{
		catalog:  cat,
		data:     data,
		filter:   opts.Filter,
		pageSize: size,
		logger:   logging.NewComponentLogger(opts.Logger, "warmer"),
	}
}

// Run refreshes mapping counts and warms the first class page of each
// latest submission. The result counts one operation per ontology count
// refresh and one per page read. A failed page read is logged, not counted,
// and the remaining ontologies are still warmed.
func (w *Warmer) Run(ctx context.Context) (int, error) {
	w.logger.Info("refreshing global mapping counts")
	total, err := w.data.RefreshMappingCounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("refresh mapping counts: %w", err)
	}
	w.logger.Debug("global mapping counts refreshed", logging.Int("mappings", total))

	iterations, err := w.data.RefreshOntologyMappingCounts(ctx)
	if err != nil {
		return iterations, fmt.Errorf("refresh ontology mapping counts: %w", err)
	}
	w.logger.Info("ontology mapping counts refreshed", logging.Int("ontologies", iterations))

	latest, err := w.LatestSubmissions(ctx, w.filter)
	if err != nil {
		return iterations, err
	}
	acronyms := make([]string, 0, len(latest))
	for acr := range latest {
		acronyms = append(acronyms, acr)
	}
	sort.Strings(acronyms)

	for _, acr := range acronyms {
		if err := ctx.Err(); err != nil {
			return iterations, err
		}
		sub := latest[acr]
		classes, err := w.data.FirstPage(ctx, sub, w.pageSize)
		if err != nil {
			logging.WarnWithContext(w.logger, "first page read failed", "warm_page_failed",
				logging.String(logging.FieldSubmissionID, sub.ID()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "first request for this ontology will be slow"),
				logging.String(logging.FieldErrorHint, "check the graph store"),
			)
			continue
		}
		iterations++
		w.logger.Debug("first page warmed",
			logging.String(logging.FieldSubmissionID, sub.ID()),
			logging.Int("classes", len(classes)),
		)
	}
	w.logger.Info("cache warm finished",
		logging.Int("operations", iterations),
		logging.String(logging.FieldEventType, "warm_complete"),
	)
	return iterations, nil
}

// LatestSubmissions returns, per acronym, the highest-version submission
// matching f. On equal versions the first one encountered is kept.
func (w *Warmer) LatestSubmissions(ctx context.Context, f Filter) (map[string]catalog.Submission, error) {
	status := strings.ToUpper(strings.TrimSpace(f.Status))
	if status == "" {
		status = StatusRDF
	}
	var match func(catalog.Submission) bool
	switch status {
	case StatusAny:
		match = func(catalog.Submission) bool { return true }
	case StatusReady:
		match = func(s catalog.Submission) bool { return catalog.IsReady(s) }
	default:
		code := catalog.Status(status)
		if code.IsError() || !knownStatus(code) {
			return nil, services.Wrap(services.ErrValidation, "warmer", "latest submissions", "unknown status filter "+status, nil)
		}
		match = func(s catalog.Submission) bool { return s.HasStatus(code) }
	}

	onts, err := w.catalog.Ontologies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ontologies: %w", err)
	}
	latest := map[string]catalog.Submission{}
	for _, ont := range catalog.SortOntologies(onts) {
		if ont.IsView() && !f.IncludeViews {
			continue
		}
		subs, err := ont.Submissions(ctx)
		if err != nil {
			return nil, fmt.Errorf("list submissions of %s: %w", ont.Acronym(), err)
		}
		for _, sub := range subs {
			if !match(sub) {
				continue
			}
			if current, ok := latest[ont.Acronym()]; !ok || sub.Version() > current.Version() {
				latest[ont.Acronym()] = sub
			}
		}
	}
	return latest, nil
}

func knownStatus(s catalog.Status) bool {
	switch s {
	case catalog.StatusUploaded, catalog.StatusRDF, catalog.StatusRDFLabels, catalog.StatusIndexed,
		catalog.StatusMetrics, catalog.StatusDiff, catalog.StatusAnnotator, catalog.StatusArchived:
		return true
	}
	return false
}
