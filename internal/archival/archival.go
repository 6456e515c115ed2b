// Package archival retires superseded submissions after a newer one finishes
// RDF processing.
package archival

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"catalogcron/internal/actions"
	"catalogcron/internal/catalog"
	"catalogcron/internal/logging"
	"catalogcron/internal/services"
)

// DefaultWindow is how many of the most recent submissions are considered.
const DefaultWindow = 11

// Manager archives older siblings of a freshly processed submission.
type Manager struct {
	catalog catalog.Catalog
	window  int
	logger  *slog.Logger
}

// New returns a Manager. A non-positive window falls back to DefaultWindow.
func New(cat catalog.Catalog, window int, logger *slog.Logger) *Manager {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Manager{catalog: cat, window: window, logger: logging.NewComponentLogger(logger, "archival")}
}

// ArchivePrevious runs the archive-only pipeline on every non-archived
// sibling of current that is among the most recent submissions and not newer
// than current. It returns the number archived. A failure on one sibling does
// not stop the others; all failures are returned joined.
func (m *Manager) ArchivePrevious(ctx context.Context, logger *slog.Logger, current catalog.Submission) (int, error) {
	if logger == nil {
		logger = m.logger
	}
	ont, err := m.ontologyOf(ctx, current)
	if err != nil {
		return 0, err
	}
	siblings, err := ont.Submissions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list submissions of %s: %w", ont.Acronym(), err)
	}

	logger.Debug("archiving submissions previous to current",
		logging.String(logging.FieldSubmissionID, current.ID()),
		logging.Int("window", m.window),
	)
	archived := 0
	var errs []error
	for _, sub := range catalog.Recent(siblings, m.window) {
		if sub.ID() == current.ID() || sub.Version() > current.Version() || catalog.IsArchived(sub) {
			continue
		}
		if err := sub.Pipeline(ctx, logger, actions.ArchiveOnly()); err != nil {
			logging.WarnWithContext(logger, "archiving superseded submission failed", "archive_failed",
				logging.String("archived_id", sub.ID()),
				logging.Int("version", sub.Version()),
				logging.Error(err),
				logging.String(logging.FieldImpact, "old derived graph remains until the next archive or flush"),
				logging.String(logging.FieldErrorHint, "run 'catalogcron flush' to retry cleanup"),
			)
			errs = append(errs, fmt.Errorf("archive %s: %w", sub.ID(), err))
			continue
		}
		archived++
		logger.Info("submission archived",
			logging.String("archived_id", sub.ID()),
			logging.Int("version", sub.Version()),
			logging.String(logging.FieldEventType, "submission_archived"),
		)
	}
	return archived, errors.Join(errs...)
}

func (m *Manager) ontologyOf(ctx context.Context, sub catalog.Submission) (catalog.Ontology, error) {
	onts, err := m.catalog.Ontologies(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ontologies: %w", err)
	}
	for _, ont := range onts {
		if ont.ID() == sub.OntologyID() {
			return ont, nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "archival", "lookup ontology", sub.OntologyID(), nil)
}
