package warmer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogcron/internal/catalog"
	"catalogcron/internal/catalog/catalogtest"
	"catalogcron/internal/graphstore"
	"catalogcron/internal/logging"
	"catalogcron/internal/warmer"
)

type fakeData struct {
	globalCalls int
	ontologies  int
	pages       []string
	failPage    string
}

func (f *fakeData) RefreshMappingCounts(context.Context) (int, error) {
	f.globalCalls++
	return 42, nil
}

func (f *fakeData) RefreshOntologyMappingCounts(context.Context) (int, error) {
	return f.ontologies, nil
}

func (f *fakeData) FirstPage(_ context.Context, sub catalog.Submission, size int) ([]graphstore.Class, error) {
	if sub.ID() == f.failPage {
		return nil, errors.New("store timeout")
	}
	f.pages = append(f.pages, sub.ID())
	return make([]graphstore.Class, min(size, 3)), nil
}

func TestLatestSubmissionsPicksHighestVersion(t *testing.T) {
	cat := catalogtest.New()
	ont := cat.AddOntology("BRO")
	ont.AddSubmission(3, catalog.StatusRDF)
	v7 := ont.AddSubmission(7, catalog.StatusRDF)
	ont.AddSubmission(9, catalog.StatusUploaded)

	w := warmer.New(cat, &fakeData{}, warmer.Options{Logger: logging.NewNop()})
	latest, err := w.LatestSubmissions(context.Background(), warmer.Filter{Status: "RDF"})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, v7.ID(), latest["BRO"].ID())
}

func TestLatestSubmissionsFilters(t *testing.T) {
	cat := catalogtest.New()
	base := cat.AddOntology("BRO")
	rdfOnly := base.AddSubmission(2, catalog.StatusRDF)
	ready := base.AddSubmission(1, catalog.StatusRDF, catalog.StatusRDFLabels)
	view := cat.AddOntology("BRO-VIEW")
	view.View = true
	view.AddSubmission(1, catalog.StatusRDF)
	pending := cat.AddOntology("NEW")
	uploaded := pending.AddSubmission(1, catalog.StatusUploaded)

	w := warmer.New(cat, &fakeData{}, warmer.Options{})
	ctx := context.Background()

	got, err := w.LatestSubmissions(ctx, warmer.Filter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, rdfOnly.ID(), got["BRO"].ID())

	got, err = w.LatestSubmissions(ctx, warmer.Filter{Status: "ready"})
	require.NoError(t, err)
	assert.Equal(t, ready.ID(), got["BRO"].ID())

	got, err = w.LatestSubmissions(ctx, warmer.Filter{Status: "RDF", IncludeViews: true})
	require.NoError(t, err)
	assert.Contains(t, got, "BRO-VIEW")

	got, err = w.LatestSubmissions(ctx, warmer.Filter{Status: "ANY"})
	require.NoError(t, err)
	assert.Equal(t, uploaded.ID(), got["NEW"].ID())
	assert.NotContains(t, got, "BRO-VIEW")

	_, err = w.LatestSubmissions(ctx, warmer.Filter{Status: "BOGUS"})
	assert.Error(t, err)
}

func TestLatestSubmissionsTieKeepsFirstSeen(t *testing.T) {
	cat := catalogtest.New()
	ont := cat.AddOntology("BRO")
	first := ont.AddSubmission(4, catalog.StatusRDF)
	ont.AddSubmission(4, catalog.StatusRDF)

	got, err := warmer.New(cat, &fakeData{}, warmer.Options{}).LatestSubmissions(context.Background(), warmer.Filter{})
	require.NoError(t, err)
	assert.Same(t, first, got["BRO"])
}

func TestRunCountsOperations(t *testing.T) {
	cat := catalogtest.New()
	a := cat.AddOntology("A").AddSubmission(1, catalog.StatusRDF)
	b := cat.AddOntology("B").AddSubmission(2, catalog.StatusRDF)
	cat.AddOntology("C")
	data := &fakeData{ontologies: 3, failPage: b.ID()}

	n, err := warmer.New(cat, data, warmer.Options{PageSize: 100}).Run(context.Background())
	require.NoError(t, err)
	// Three ontology count refreshes plus one successful page read.
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, data.globalCalls)
	assert.Equal(t, []string{a.ID()}, data.pages)
}
