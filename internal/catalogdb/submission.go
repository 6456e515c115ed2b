package catalogdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"

	"catalogcron/internal/actions"
	"catalogcron/internal/catalog"
	"catalogcron/internal/stageexec"
)

const submissionSelect = `SELECT s.id, s.ontology_id, o.acronym, s.version, s.pull_location, s.upload_file_path, s.statuses_json, s.metrics_json
FROM submissions s JOIN ontologies o ON o.id = s.ontology_id`

// Submission is a catalog row. It satisfies both catalog.Submission and
// stageexec.Target; every mutation is written through immediately.
type Submission struct {
	db       *DB
	id       string
	ontology string
	acronym  string
	version  int
	pull     string
	upload   string
	statuses []catalog.Status
	metrics  stageexec.Metrics
}

func (s *Submission) ID() string             { return s.id }
func (s *Submission) OntologyID() string     { return s.ontology }
func (s *Submission) Acronym() string        { return s.acronym }
func (s *Submission) Version() int           { return s.version }
func (s *Submission) PullLocation() string   { return s.pull }
func (s *Submission) UploadFilePath() string { return s.upload }

// Metrics returns the counts recorded by the last run_metrics stage.
func (s *Submission) Metrics() stageexec.Metrics { return s.metrics }

// DataDir is <repository_dir>/<ACRONYM>/<version>.
func (s *Submission) DataDir() string {
	return filepath.Join(s.db.repoDir, s.acronym, strconv.Itoa(s.version))
}

func (s *Submission) Statuses() []catalog.Status {
	return append([]catalog.Status(nil), s.statuses...)
}

func (s *Submission) HasStatus(status catalog.Status) bool {
	return slices.Contains(s.statuses, status)
}

// AddStatus adds flags and persists the result.
func (s *Submission) AddStatus(ctx context.Context, statuses ...catalog.Status) error {
	next := dedupeStatuses(append(s.Statuses(), statuses...))
	return s.saveStatuses(ctx, next)
}

// RemoveStatus clears flags and persists the result.
func (s *Submission) RemoveStatus(ctx context.Context, statuses ...catalog.Status) error {
	next := slices.DeleteFunc(s.Statuses(), func(st catalog.Status) bool { return slices.Contains(statuses, st) })
	if len(next) == len(s.statuses) {
		return nil
	}
	return s.saveStatuses(ctx, next)
}

func (s *Submission) saveStatuses(ctx context.Context, statuses []catalog.Status) error {
	encoded, err := encodeStatuses(statuses)
	if err != nil {
		return err
	}
	if _, err := s.db.db.ExecWithRetry(ctx,
		"UPDATE submissions SET statuses_json = ?, updated_at = ? WHERE id = ?", encoded, now(), s.id); err != nil {
		return fmt.Errorf("update statuses for %s: %w", s.id, err)
	}
	s.statuses = statuses
	return nil
}

// SetMetrics implements stageexec.Target.
func (s *Submission) SetMetrics(ctx context.Context, m stageexec.Metrics) error {
	encoded, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if _, err := s.db.db.ExecWithRetry(ctx,
		"UPDATE submissions SET metrics_json = ?, updated_at = ? WHERE id = ?", string(encoded), now(), s.id); err != nil {
		return fmt.Errorf("update metrics for %s: %w", s.id, err)
	}
	s.metrics = m
	return nil
}

// PreviousGraph implements stageexec.Target.
func (s *Submission) PreviousGraph(ctx context.Context) (string, bool, error) {
	rows, err := s.db.db.QueryContext(ctx,
		"SELECT id FROM submissions WHERE ontology_id = ? AND version < ? ORDER BY version DESC", s.ontology, s.version)
	if err != nil {
		return "", false, fmt.Errorf("list previous submissions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return "", false, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return "", false, err
	}
	for _, id := range ids {
		n, err := s.db.graphs.CountClasses(ctx, id)
		if err != nil {
			return "", false, err
		}
		if n > 0 {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (s *Submission) setUploadPath(ctx context.Context, path string) error {
	if _, err := s.db.db.ExecWithRetry(ctx,
		"UPDATE submissions SET upload_file_path = ?, updated_at = ? WHERE id = ?", path, now(), s.id); err != nil {
		return fmt.Errorf("record upload path for %s: %w", s.id, err)
	}
	s.upload = path
	return nil
}

// ClassCount implements catalog.Submission.
func (s *Submission) ClassCount(ctx context.Context) (int, error) {
	return s.db.graphs.CountClasses(ctx, s.id)
}

// Pipeline implements catalog.Submission by running the stage runner.
func (s *Submission) Pipeline(ctx context.Context, logger *slog.Logger, set actions.Set) error {
	return s.db.runner.Run(ctx, logger, s, set)
}

// DeleteDerivedGraph implements catalog.Submission.
func (s *Submission) DeleteDerivedGraph(ctx context.Context) error {
	return s.db.graphs.DeleteGraph(ctx, s.id)
}

// MarkArchived implements catalog.Submission.
func (s *Submission) MarkArchived(ctx context.Context) error {
	return s.AddStatus(ctx, catalog.StatusArchived)
}

func (d *DB) scanSubmission(row rowScanner) (*Submission, error) {
	sub := &Submission{db: d}
	var statusJSON, metricsJSON string
	if err := row.Scan(&sub.id, &sub.ontology, &sub.acronym, &sub.version, &sub.pull, &sub.upload, &statusJSON, &metricsJSON); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(statusJSON), &sub.statuses); err != nil {
		return nil, fmt.Errorf("decode statuses for %s: %w", sub.id, err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &sub.metrics); err != nil {
		return nil, fmt.Errorf("decode metrics for %s: %w", sub.id, err)
	}
	return sub, nil
}

func encodeStatuses(statuses []catalog.Status) (string, error) {
	if statuses == nil {
		statuses = []catalog.Status{}
	}
	encoded, err := json.Marshal(statuses)
	if err != nil {
		return "", fmt.Errorf("encode statuses: %w", err)
	}
	return string(encoded), nil
}

func dedupeStatuses(in []catalog.Status) []catalog.Status {
	out := make([]catalog.Status, 0, len(in))
	for _, s := range in {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
