// Package catalogdb is the SQLite-backed ontology catalog. It implements
// catalog.Catalog, runs submission pipelines through stageexec, and keeps
// the aggregate mapping counts refreshed by the cache warmer.
package catalogdb

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"catalogcron/internal/catalog"
	"catalogcron/internal/config"
	"catalogcron/internal/fileutil"
	"catalogcron/internal/graphstore"
	"catalogcron/internal/logging"
	"catalogcron/internal/services"
	"catalogcron/internal/sqlitedb"
	"catalogcron/internal/stageexec"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

var acronymPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{0,63}$`)

// Options configures a DB.
type Options struct {
	Path          string
	BaseIRI       string
	RepositoryDir string
	Graphs        graphstore.Store
	Runner        *stageexec.Runner
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// DB is the catalog database.
type DB struct {
	db      *sqlitedb.DB
	baseIRI string
	repoDir string
	graphs  graphstore.Store
	runner  *stageexec.Runner
	client  *http.Client
	logger  *slog.Logger
}

// Open opens or creates the catalog database.
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.Graphs == nil {
		return nil, services.Wrap(services.ErrConfiguration, "catalogdb", "open", "graph store is required", nil)
	}
	db, err := sqlitedb.Open(ctx, opts.Path, schemaSQL, schemaVersion)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}
	runner := opts.Runner
	if runner == nil {
		runner = stageexec.NewRunner(stageexec.Options{Store: opts.Graphs})
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &DB{
		db:      db,
		baseIRI: strings.TrimRight(opts.BaseIRI, "/"),
		repoDir: opts.RepositoryDir,
		graphs:  opts.Graphs,
		runner:  runner,
		client:  client,
		logger:  logging.NewComponentLogger(opts.Logger, "catalogdb"),
	}, nil
}

// OpenFromConfig opens the catalog configured in cfg.
func OpenFromConfig(ctx context.Context, cfg *config.Config, graphs graphstore.Store, logger *slog.Logger) (*DB, error) {
	return Open(ctx, Options{
		Path:          cfg.Catalog.DBPath,
		BaseIRI:       cfg.Catalog.BaseIRI,
		RepositoryDir: cfg.Paths.RepositoryDir,
		Graphs:        graphs,
		Runner:        stageexec.NewRunnerFromConfig(cfg, graphs),
		Logger:        logger,
	})
}

// Close releases the database handle.
func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Graphs exposes the derived graph store the catalog writes to.
func (d *DB) Graphs() graphstore.Store {
	return d.graphs
}

// OntologyOptions describes a new ontology.
type OntologyOptions struct {
	Name        string
	SummaryOnly bool
	ViewOf      string
}

// AddOntology registers an ontology. Acronyms are upper-case.
func (d *DB) AddOntology(ctx context.Context, acronym string, opts OntologyOptions) (*Ontology, error) {
	acronym = strings.ToUpper(strings.TrimSpace(acronym))
	if !acronymPattern.MatchString(acronym) {
		return nil, services.Wrap(services.ErrValidation, "catalogdb", "add ontology", fmt.Sprintf("invalid acronym %q", acronym), nil)
	}
	viewOf := strings.ToUpper(strings.TrimSpace(opts.ViewOf))
	if viewOf != "" {
		parent, err := d.Ontology(ctx, viewOf)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, services.Wrap(services.ErrNotFound, "catalogdb", "add ontology", "view parent "+viewOf+" does not exist", nil)
		}
	}
	ont := &Ontology{
		db:      d,
		id:      catalog.OntologyIRI(d.baseIRI, acronym),
		acronym: acronym,
		name:    strings.TrimSpace(opts.Name),
		summary: opts.SummaryOnly,
		viewOf:  viewOf,
	}
	_, err := d.db.ExecWithRetry(ctx,
		"INSERT INTO ontologies (id, acronym, name, summary_only, view_of, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		ont.id, ont.acronym, ont.name, boolToInt(ont.summary), ont.viewOf, now())
	if err != nil {
		return nil, fmt.Errorf("insert ontology %s: %w", acronym, err)
	}
	return ont, nil
}

// Ontology returns the ontology with acronym, or nil when absent.
func (d *DB) Ontology(ctx context.Context, acronym string) (*Ontology, error) {
	row := d.db.QueryRowContext(ctx, ontologySelect+" WHERE acronym = ?", strings.ToUpper(strings.TrimSpace(acronym)))
	ont, err := d.scanOntology(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return ont, err
}

// Ontologies implements catalog.Catalog. Results are ordered by acronym.
func (d *DB) Ontologies(ctx context.Context) ([]catalog.Ontology, error) {
	rows, err := d.db.QueryContext(ctx, ontologySelect+" ORDER BY acronym")
	if err != nil {
		return nil, fmt.Errorf("list ontologies: %w", err)
	}
	defer rows.Close()
	var out []catalog.Ontology
	for rows.Next() {
		ont, err := d.scanOntology(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ont)
	}
	return out, rows.Err()
}

// SubmissionInput describes a new submission.
type SubmissionInput struct {
	PullLocation string
	// SourceFile is copied into the submission data directory when set.
	SourceFile string
	Statuses   []catalog.Status
}

// AddSubmission creates the next version for acronym.
func (d *DB) AddSubmission(ctx context.Context, acronym string, in SubmissionInput) (*Submission, error) {
	ont, err := d.Ontology(ctx, acronym)
	if err != nil {
		return nil, err
	}
	if ont == nil {
		return nil, services.Wrap(services.ErrNotFound, "catalogdb", "add submission", "ontology "+acronym+" does not exist", nil)
	}

	var next int
	if err := d.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) + 1 FROM submissions WHERE ontology_id = ?", ont.id).Scan(&next); err != nil {
		return nil, fmt.Errorf("next version for %s: %w", ont.acronym, err)
	}

	statuses := append([]catalog.Status{catalog.StatusUploaded}, in.Statuses...)
	sub := &Submission{
		db:       d,
		id:       catalog.SubmissionIRI(d.baseIRI, ont.acronym, next),
		ontology: ont.id,
		acronym:  ont.acronym,
		version:  next,
		pull:     strings.TrimSpace(in.PullLocation),
		statuses: dedupeStatuses(statuses),
		metrics:  stageexec.Metrics{},
	}
	if in.SourceFile != "" {
		dest, err := copyIntoRepository(in.SourceFile, sub.DataDir())
		if err != nil {
			return nil, err
		}
		sub.upload = dest
	}

	statusJSON, err := encodeStatuses(sub.statuses)
	if err != nil {
		return nil, err
	}
	ts := now()
	_, err = d.db.ExecWithRetry(ctx, `
INSERT INTO submissions (id, ontology_id, version, pull_location, upload_file_path, statuses_json, metrics_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, '{}', ?, ?)`,
		sub.id, sub.ontology, sub.version, sub.pull, sub.upload, statusJSON, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("insert submission %s: %w", sub.id, err)
	}
	return sub, nil
}

// FindSubmission implements catalog.Catalog.
func (d *DB) FindSubmission(ctx context.Context, id string) (catalog.Submission, error) {
	sub, err := d.Submission(ctx, id)
	if err != nil || sub == nil {
		return nil, err
	}
	return sub, nil
}

// Submission loads one submission by id, or nil when absent.
func (d *DB) Submission(ctx context.Context, id string) (*Submission, error) {
	row := d.db.QueryRowContext(ctx, submissionSelect+" WHERE s.id = ?", strings.TrimSpace(id))
	sub, err := d.scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

func (d *DB) submissionsFor(ctx context.Context, ontologyID string) ([]*Submission, error) {
	rows, err := d.db.QueryContext(ctx, submissionSelect+" WHERE s.ontology_id = ? ORDER BY s.version", ontologyID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()
	var out []*Submission
	for rows.Next() {
		sub, err := d.scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func copyIntoRepository(source, dir string) (string, error) {
	if _, err := os.Stat(source); err != nil {
		return "", services.Wrap(services.ErrValidation, "catalogdb", "copy source", "open source file", err)
	}
	dest, err := fileutil.CopyIntoDir(source, dir)
	if err != nil {
		return "", fmt.Errorf("copy %s: %w", source, err)
	}
	return dest, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
