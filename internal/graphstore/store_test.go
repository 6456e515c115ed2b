package graphstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"catalogcron/internal/graphstore"
)

const (
	graphA = "http://data.example.org/ontologies/BRO/submissions/1"
	graphB = "http://data.example.org/ontologies/BRO/submissions/2"
)

func TestSQLiteStoreContract(t *testing.T) {
	store, err := graphstore.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "graphs.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	exerciseStore(t, store)
}

func exerciseStore(t *testing.T, store graphstore.Store) {
	t.Helper()
	ctx := context.Background()

	classes := []graphstore.Class{
		{ID: graphA + "#c", Label: "", Mappings: []string{"x", "y"}},
		{ID: graphA + "#a", Label: "Alpha", Mappings: []string{"z"}},
		{ID: graphA + "#b", Label: "Beta"},
	}
	if err := store.PutClasses(ctx, graphA, classes); err != nil {
		t.Fatalf("PutClasses: %v", err)
	}
	if err := store.PutClasses(ctx, graphB, classes[:1]); err != nil {
		t.Fatalf("PutClasses B: %v", err)
	}

	graphs, err := store.Graphs(ctx)
	if err != nil {
		t.Fatalf("Graphs: %v", err)
	}
	if len(graphs) != 2 {
		t.Fatalf("expected 2 graphs, got %v", graphs)
	}

	if n, err := store.CountClasses(ctx, graphA); err != nil || n != 3 {
		t.Fatalf("CountClasses = %d, %v", n, err)
	}
	if n, err := store.CountMappings(ctx, graphA); err != nil || n != 3 {
		t.Fatalf("CountMappings = %d, %v", n, err)
	}

	page, err := store.Classes(ctx, graphA, 1, 2)
	if err != nil {
		t.Fatalf("Classes: %v", err)
	}
	if len(page) != 2 || page[0].ID != graphA+"#a" || page[1].ID != graphA+"#b" {
		t.Fatalf("unexpected first page: %+v", page)
	}
	second, err := store.Classes(ctx, graphA, 2, 2)
	if err != nil || len(second) != 1 || len(second[0].Mappings) != 2 {
		t.Fatalf("unexpected second page: %+v err=%v", second, err)
	}

	if err := store.SetLabels(ctx, graphA, map[string]string{graphA + "#c": "Gamma"}); err != nil {
		t.Fatalf("SetLabels: %v", err)
	}
	second, _ = store.Classes(ctx, graphA, 2, 2)
	if second[0].Label != "Gamma" {
		t.Fatalf("label not updated: %+v", second[0])
	}

	// Replacing a graph drops records that are no longer present.
	if err := store.PutClasses(ctx, graphA, classes[1:2]); err != nil {
		t.Fatalf("PutClasses replace: %v", err)
	}
	if n, _ := store.CountClasses(ctx, graphA); n != 1 {
		t.Fatalf("expected replacement to leave 1 class, got %d", n)
	}

	if err := store.DeleteGraph(ctx, graphA); err != nil {
		t.Fatalf("DeleteGraph: %v", err)
	}
	if err := store.DeleteGraph(ctx, graphA); err != nil {
		t.Fatalf("deleting a missing graph should succeed: %v", err)
	}
	if n, _ := store.CountClasses(ctx, graphA); n != 0 {
		t.Fatalf("expected empty graph after delete, got %d", n)
	}
	graphs, _ = store.Graphs(ctx)
	if len(graphs) != 1 || graphs[0] != graphB {
		t.Fatalf("expected only %s left, got %v", graphB, graphs)
	}
}
