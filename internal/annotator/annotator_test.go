package annotator_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalogcron/internal/annotator"
	"catalogcron/internal/catalog"
	"catalogcron/internal/catalog/catalogtest"
	"catalogcron/internal/graphstore"
	"catalogcron/internal/logging"
)

func setup(t *testing.T) (*miniredis.Miniredis, graphstore.Store, *annotator.Annotator, string) {
	t.Helper()
	ctx := context.Background()
	srv, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	graphs, err := graphstore.OpenSQLite(ctx, filepath.Join(t.TempDir(), "graphs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = graphs.Close() })

	dict := filepath.Join(t.TempDir(), "dict", "dictionary.txt")
	ann, err := annotator.New(ctx, annotator.Options{
		RedisURL:       "redis://" + srv.Addr(),
		KeyPrefix:      "ann",
		DictionaryPath: dict,
		Graphs:         graphs,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ann.Close() })
	return srv, graphs, ann, dict
}

func TestTermCacheAndDictionary(t *testing.T) {
	ctx := context.Background()
	srv, graphs, ann, dict := setup(t)

	cat := catalogtest.New()
	bro := cat.AddOntology("BRO").AddSubmission(1, catalog.StatusRDF, catalog.StatusRDFLabels)
	go1 := cat.AddOntology("GO").AddSubmission(4, catalog.StatusRDF, catalog.StatusRDFLabels)

	require.NoError(t, graphs.PutClasses(ctx, bro.ID(), []graphstore.Class{
		{ID: "http://x/BRO#Neuron", Label: "Neuron"},
		{ID: "http://x/BRO#Cell", Label: "  Nerve   Cell "},
		{ID: "http://x/BRO#Blank"},
	}))
	require.NoError(t, graphs.PutClasses(ctx, go1.ID(), []graphstore.Class{
		{ID: "http://x/GO#0001", Label: "neuron"},
	}))

	n, err := ann.CreateTermCache(ctx, logging.NewNop(), bro)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = ann.CreateTermCache(ctx, nil, go1)
	require.NoError(t, err)

	assert.Equal(t, "http://x/BRO#Cell", srv.HGet("ann:term:nerve cell", "BRO|http://x/BRO#Cell"))
	assert.Equal(t, "http://x/GO#0001", srv.HGet("ann:term:neuron", "GO|http://x/GO#0001"))

	lines, err := ann.GenerateDictionary(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, lines)
	content, err := os.ReadFile(dict)
	require.NoError(t, err)
	assert.Equal(t, "nerve cell\thttp://x/BRO#Cell\nneuron\thttp://x/BRO#Neuron,http://x/GO#0001\n", string(content))
}

func TestTermCacheRebuildDropsStaleEntries(t *testing.T) {
	ctx := context.Background()
	srv, graphs, ann, _ := setup(t)

	cat := catalogtest.New()
	ont := cat.AddOntology("BRO")
	v1 := ont.AddSubmission(1, catalog.StatusRDF)
	v2 := ont.AddSubmission(2, catalog.StatusRDF)
	require.NoError(t, graphs.PutClasses(ctx, v1.ID(), []graphstore.Class{{ID: "http://x/BRO#Old", Label: "Old Term"}}))
	require.NoError(t, graphs.PutClasses(ctx, v2.ID(), []graphstore.Class{{ID: "http://x/BRO#New", Label: "New Term"}}))

	_, err := ann.CreateTermCache(ctx, nil, v1)
	require.NoError(t, err)
	_, err = ann.CreateTermCache(ctx, nil, v2)
	require.NoError(t, err)

	assert.Empty(t, srv.HGet("ann:term:old term", "BRO|http://x/BRO#Old"))
	assert.Equal(t, "http://x/BRO#New", srv.HGet("ann:term:new term", "BRO|http://x/BRO#New"))
}

func TestTermCacheSharedClassKeepsEachOwner(t *testing.T) {
	ctx := context.Background()
	srv, graphs, ann, dict := setup(t)

	cat := catalogtest.New()
	bro := cat.AddOntology("BRO").AddSubmission(1, catalog.StatusRDF)
	nif := cat.AddOntology("NIF")
	nif1 := nif.AddSubmission(1, catalog.StatusRDF)
	nif2 := nif.AddSubmission(2, catalog.StatusRDF)

	shared := graphstore.Class{ID: "http://x/shared#Neuron", Label: "Neuron"}
	require.NoError(t, graphs.PutClasses(ctx, bro.ID(), []graphstore.Class{shared}))
	require.NoError(t, graphs.PutClasses(ctx, nif1.ID(), []graphstore.Class{shared}))
	require.NoError(t, graphs.PutClasses(ctx, nif2.ID(), []graphstore.Class{{ID: "http://x/NIF#Axon", Label: "Axon"}}))

	_, err := ann.CreateTermCache(ctx, nil, bro)
	require.NoError(t, err)
	_, err = ann.CreateTermCache(ctx, nil, nif1)
	require.NoError(t, err)

	lines, err := ann.GenerateDictionary(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, lines)
	content, err := os.ReadFile(dict)
	require.NoError(t, err)
	assert.Equal(t, "neuron\thttp://x/shared#Neuron\n", string(content))

	// Rebuilding NIF without the shared class leaves BRO's entry in place.
	_, err = ann.CreateTermCache(ctx, nil, nif2)
	require.NoError(t, err)
	assert.Empty(t, srv.HGet("ann:term:neuron", "NIF|http://x/shared#Neuron"))
	assert.Equal(t, "http://x/shared#Neuron", srv.HGet("ann:term:neuron", "BRO|http://x/shared#Neuron"))
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "brain region", annotator.NormalizeLabel("  Brain\tREGION "))
	assert.Equal(t, "", annotator.NormalizeLabel("   "))
}
