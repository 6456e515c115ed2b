package catalogdb

import (
	"context"

	"catalogcron/internal/catalog"
)

const ontologySelect = "SELECT id, acronym, name, summary_only, view_of FROM ontologies"

// Ontology is a catalog row.
type Ontology struct {
	db      *DB
	id      string
	acronym string
	name    string
	summary bool
	viewOf  string
}

func (o *Ontology) ID() string        { return o.id }
func (o *Ontology) Acronym() string   { return o.acronym }
func (o *Ontology) Name() string      { return o.name }
func (o *Ontology) SummaryOnly() bool { return o.summary }
func (o *Ontology) IsView() bool      { return o.viewOf != "" }

// ViewOf names the parent ontology for views.
func (o *Ontology) ViewOf() string { return o.viewOf }

// Submissions implements catalog.Ontology, ordered by ascending version.
func (o *Ontology) Submissions(ctx context.Context) ([]catalog.Submission, error) {
	subs, err := o.db.submissionsFor(ctx, o.id)
	if err != nil {
		return nil, err
	}
	out := make([]catalog.Submission, 0, len(subs))
	for _, s := range subs {
		out = append(out, s)
	}
	return out, nil
}

// LatestReady implements catalog.Ontology.
func (o *Ontology) LatestReady(ctx context.Context) (catalog.Submission, error) {
	subs, err := o.Submissions(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.LatestReadyOf(subs), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (d *DB) scanOntology(row rowScanner) (*Ontology, error) {
	ont := &Ontology{db: d}
	var summary int
	if err := row.Scan(&ont.id, &ont.acronym, &ont.name, &summary, &ont.viewOf); err != nil {
		return nil, err
	}
	ont.summary = summary != 0
	return ont, nil
}
