// Package catalogtest provides an in-memory catalog for routine tests. It
// records every side-effecting call so tests can assert on ordering.
package catalogtest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"catalogcron/internal/actions"
	"catalogcron/internal/catalog"
)

// BaseIRI is the IRI prefix used for fake ontologies.
const BaseIRI = "http://data.example.org"

// Catalog is an in-memory catalog.Catalog.
type Catalog struct {
	mu         sync.Mutex
	ontologies []*Ontology
	events     []string

	// FindErr, when set, is returned by FindSubmission.
	FindErr error
	// OntologiesErr, when set, is returned by Ontologies.
	OntologiesErr error
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{}
}

// AddOntology registers an ontology named by acronym.
func (c *Catalog) AddOntology(acronym string) *Ontology {
	ont := NewOntology(catalog.OntologyIRI(BaseIRI, acronym), acronym)
	ont.cat = c
	c.mu.Lock()
	c.ontologies = append(c.ontologies, ont)
	c.mu.Unlock()
	return ont
}

// FindSubmission implements catalog.Catalog.
func (c *Catalog) FindSubmission(_ context.Context, id string) (catalog.Submission, error) {
	if c.FindErr != nil {
		return nil, c.FindErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ont := range c.ontologies {
		for _, sub := range ont.subs {
			if sub.id == id {
				return sub, nil
			}
		}
	}
	return nil, nil
}

// Ontologies implements catalog.Catalog.
func (c *Catalog) Ontologies(context.Context) ([]catalog.Ontology, error) {
	if c.OntologiesErr != nil {
		return nil, c.OntologiesErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]catalog.Ontology, 0, len(c.ontologies))
	for _, ont := range c.ontologies {
		out = append(out, ont)
	}
	return out, nil
}

// Events returns the recorded side effects in call order, formatted as
// "<op>:<ACR>/<version>".
func (c *Catalog) Events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

// EventsFor filters Events down to one operation.
func (c *Catalog) EventsFor(op string) []string {
	var out []string
	for _, e := range c.Events() {
		if strings.HasPrefix(e, op+":") {
			out = append(out, e)
		}
	}
	return out
}

func (c *Catalog) record(op string, sub *Submission) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.events = append(c.events, fmt.Sprintf("%s:%s/%d", op, sub.acronym, sub.version))
	c.mu.Unlock()
}

// Ontology is an in-memory catalog.Ontology.
type Ontology struct {
	id      string
	acronym string
	cat     *Catalog
	subs    []*Submission

	Summary bool
	View    bool
}

// NewOntology returns an ontology that is not attached to any catalog.
func NewOntology(id, acronym string) *Ontology {
	return &Ontology{id: id, acronym: acronym}
}

func (o *Ontology) ID() string        { return o.id }
func (o *Ontology) Acronym() string   { return o.acronym }
func (o *Ontology) SummaryOnly() bool { return o.Summary }
func (o *Ontology) IsView() bool      { return o.View }

// AddSubmission appends a submission with the given version and statuses.
// Ready submissions start with ten classes in their derived graph.
func (o *Ontology) AddSubmission(version int, statuses ...catalog.Status) *Submission {
	sub := &Submission{
		id:       catalog.SubmissionIRI(BaseIRI, o.acronym, version),
		ont:      o,
		acronym:  o.acronym,
		version:  version,
		statuses: append([]catalog.Status(nil), statuses...),
	}
	if slices.Contains(statuses, catalog.StatusRDF) {
		sub.classes = 10
	}
	o.subs = append(o.subs, sub)
	return sub
}

// All returns the submissions in insertion order.
func (o *Ontology) All() []catalog.Submission {
	out := make([]catalog.Submission, 0, len(o.subs))
	for _, s := range o.subs {
		out = append(out, s)
	}
	return out
}

// Submissions implements catalog.Ontology.
func (o *Ontology) Submissions(context.Context) ([]catalog.Submission, error) {
	return o.All(), nil
}

// LatestReady implements catalog.Ontology.
func (o *Ontology) LatestReady(context.Context) (catalog.Submission, error) {
	return catalog.LatestReadyOf(o.All()), nil
}

// Submission is an in-memory catalog.Submission.
type Submission struct {
	mu       sync.Mutex
	id       string
	ont      *Ontology
	acronym  string
	version  int
	statuses []catalog.Status
	classes  int
	pipeline []actions.Set

	Pull       string
	UploadPath string
	Dir        string

	// DownloadErr is returned by Download.
	DownloadErr error
	// OnPipeline replaces the default pipeline behaviour when set.
	OnPipeline func(ctx context.Context, sub *Submission, set actions.Set) error
}

func (s *Submission) ID() string             { return s.id }
func (s *Submission) OntologyID() string     { return s.ont.id }
func (s *Submission) Acronym() string        { return s.acronym }
func (s *Submission) Version() int           { return s.version }
func (s *Submission) PullLocation() string   { return s.Pull }
func (s *Submission) UploadFilePath() string { return s.UploadPath }
func (s *Submission) DataDir() string        { return s.Dir }

func (s *Submission) Statuses() []catalog.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]catalog.Status(nil), s.statuses...)
}

func (s *Submission) HasStatus(status catalog.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Contains(s.statuses, status)
}

// AddStatus sets a flag if it is not already present.
func (s *Submission) AddStatus(status catalog.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.statuses, status) {
		s.statuses = append(s.statuses, status)
	}
}

// SetClassCount overrides the derived-graph class count.
func (s *Submission) SetClassCount(n int) *Submission {
	s.mu.Lock()
	s.classes = n
	s.mu.Unlock()
	return s
}

// ClassCount implements catalog.Submission.
func (s *Submission) ClassCount(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.classes, nil
}

// Download records the call and fills UploadPath on success.
func (s *Submission) Download(context.Context) error {
	s.ont.cat.record("download", s)
	if s.DownloadErr != nil {
		return s.DownloadErr
	}
	s.UploadPath = fmt.Sprintf("%s/%s_%d.owl", s.Dir, s.acronym, s.version)
	return nil
}

// Pipeline records the action set and, by default, marks RDF parsing done or
// archives the submission.
func (s *Submission) Pipeline(ctx context.Context, _ *slog.Logger, set actions.Set) error {
	s.mu.Lock()
	s.pipeline = append(s.pipeline, set.Clone())
	s.mu.Unlock()
	s.ont.cat.record("pipeline", s)
	if s.OnPipeline != nil {
		return s.OnPipeline(ctx, s, set)
	}
	if set.Enabled(actions.Archive) {
		if err := s.DeleteDerivedGraph(ctx); err != nil {
			return err
		}
		return s.MarkArchived(ctx)
	}
	if set.Enabled(actions.ProcessRDF) {
		s.AddStatus(catalog.StatusRDF)
		s.AddStatus(catalog.StatusRDFLabels)
	}
	return nil
}

// PipelineCalls returns the action sets passed to Pipeline.
func (s *Submission) PipelineCalls() []actions.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]actions.Set(nil), s.pipeline...)
}

// DeleteDerivedGraph implements catalog.Submission.
func (s *Submission) DeleteDerivedGraph(context.Context) error {
	s.mu.Lock()
	s.classes = 0
	s.mu.Unlock()
	s.ont.cat.record("delete", s)
	return nil
}

// MarkArchived implements catalog.Submission.
func (s *Submission) MarkArchived(context.Context) error {
	s.AddStatus(catalog.StatusArchived)
	s.ont.cat.record("archive", s)
	return nil
}
