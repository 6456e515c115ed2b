// Package report keeps the per-ontology health report used by the catalog
// UI. Processing refreshes single ontologies; a full refresh rebuilds all.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"catalogcron/internal/catalog"
	"catalogcron/internal/fileutil"
	"catalogcron/internal/logging"
)

// Problem codes recorded per ontology.
const (
	ProblemNoSubmissions     = "no_submissions"
	ProblemNoReadySubmission = "no_ready_submission"
	ProblemLatestHasErrors   = "latest_has_errors"
	ProblemNoClasses         = "no_classes"
	ProblemSummaryOnly       = "summary_only"
)

// Entry is the report line for one ontology.
type Entry struct {
	Acronym            string    `json:"acronym"`
	Problems           []string  `json:"problems"`
	LatestVersion      int       `json:"latest_version,omitempty"`
	LatestReadyVersion int       `json:"latest_ready_version,omitempty"`
	ClassCount         int       `json:"class_count"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Report is the on-disk document.
type Report struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Ontologies  map[string]Entry `json:"ontologies"`
}

// Refresher rebuilds report entries from the catalog.
type Refresher struct {
	catalog catalog.Catalog
	path    string
	logger  *slog.Logger
	now     func() time.Time
}

// New returns a Refresher writing to path.
func New(cat catalog.Catalog, path string, logger *slog.Logger) *Refresher {
	return &Refresher{
		catalog: cat,
		path:    path,
		logger:  logging.NewComponentLogger(logger, "report"),
		now:     time.Now,
	}
}

// Load reads the report at path. A missing file yields an empty report.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Report{Ontologies: map[string]Entry{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	if rep.Ontologies == nil {
		rep.Ontologies = map[string]Entry{}
	}
	return &rep, nil
}

// Refresh recomputes the entries for acronyms, or for every ontology when
// none are given, and rewrites the report. Entries for other ontologies are
// left as they were.
func (r *Refresher) Refresh(ctx context.Context, acronyms ...string) error {
	rep, err := Load(r.path)
	if err != nil {
		return err
	}
	onts, err := r.catalog.Ontologies(ctx)
	if err != nil {
		return fmt.Errorf("list ontologies: %w", err)
	}

	full := len(acronyms) == 0
	if full {
		rep.Ontologies = map[string]Entry{}
	}
	seen := map[string]bool{}
	for _, ont := range onts {
		if !full && !slices.Contains(acronyms, ont.Acronym()) {
			continue
		}
		entry, err := r.entryFor(ctx, ont)
		if err != nil {
			return fmt.Errorf("report %s: %w", ont.Acronym(), err)
		}
		rep.Ontologies[ont.Acronym()] = entry
		seen[ont.Acronym()] = true
	}
	for _, acr := range acronyms {
		if !seen[acr] {
			delete(rep.Ontologies, acr)
		}
	}

	rep.GeneratedAt = r.now().UTC()
	if err := writeAtomic(r.path, rep); err != nil {
		return err
	}
	r.logger.Debug("ontologies report refreshed",
		logging.Strings("acronyms", acronyms),
		logging.Int("entries", len(rep.Ontologies)),
		logging.String(logging.FieldEventType, "report_refreshed"),
	)
	return nil
}

func (r *Refresher) entryFor(ctx context.Context, ont catalog.Ontology) (Entry, error) {
	entry := Entry{Acronym: ont.Acronym(), Problems: []string{}, UpdatedAt: r.now().UTC()}
	if ont.SummaryOnly() {
		entry.Problems = append(entry.Problems, ProblemSummaryOnly)
		return entry, nil
	}
	subs, err := ont.Submissions(ctx)
	if err != nil {
		return entry, err
	}
	if len(subs) == 0 {
		entry.Problems = append(entry.Problems, ProblemNoSubmissions)
		return entry, nil
	}
	latest := catalog.SortByVersionDesc(subs)[0]
	entry.LatestVersion = latest.Version()
	if catalog.HasErrors(latest) {
		entry.Problems = append(entry.Problems, ProblemLatestHasErrors)
	}
	ready := catalog.LatestReadyOf(subs)
	if ready == nil {
		entry.Problems = append(entry.Problems, ProblemNoReadySubmission)
		return entry, nil
	}
	entry.LatestReadyVersion = ready.Version()
	count, err := ready.ClassCount(ctx)
	if err != nil {
		return entry, err
	}
	entry.ClassCount = count
	if count == 0 {
		entry.Problems = append(entry.Problems, ProblemNoClasses)
	}
	return entry, nil
}

func writeAtomic(path string, rep *Report) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return fileutil.WriteAtomic(path, data)
}
