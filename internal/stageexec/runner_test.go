package stageexec

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"catalogcron/internal/actions"
	"catalogcron/internal/catalog"
	"catalogcron/internal/graphstore"
	"catalogcron/internal/logging"
)

type fakeTarget struct {
	id       string
	version  int
	upload   string
	dir      string
	statuses []catalog.Status
	metrics  Metrics
	previous string
}

func (f *fakeTarget) ID() string             { return f.id }
func (f *fakeTarget) Acronym() string        { return "BRO" }
func (f *fakeTarget) Version() int           { return f.version }
func (f *fakeTarget) UploadFilePath() string { return f.upload }
func (f *fakeTarget) DataDir() string        { return f.dir }

func (f *fakeTarget) HasStatus(s catalog.Status) bool { return slices.Contains(f.statuses, s) }

func (f *fakeTarget) AddStatus(_ context.Context, statuses ...catalog.Status) error {
	for _, s := range statuses {
		if !f.HasStatus(s) {
			f.statuses = append(f.statuses, s)
		}
	}
	return nil
}

func (f *fakeTarget) RemoveStatus(_ context.Context, statuses ...catalog.Status) error {
	f.statuses = slices.DeleteFunc(f.statuses, func(s catalog.Status) bool { return slices.Contains(statuses, s) })
	return nil
}

func (f *fakeTarget) SetMetrics(_ context.Context, m Metrics) error {
	f.metrics = m
	return nil
}

func (f *fakeTarget) PreviousGraph(context.Context) (string, bool, error) {
	return f.previous, f.previous != "", nil
}

func newStore(t *testing.T) graphstore.Store {
	t.Helper()
	store, err := graphstore.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "graphs.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTarget(t *testing.T, version int, manifest string) *fakeTarget {
	t.Helper()
	dir := t.TempDir()
	upload := filepath.Join(dir, "upload.jsonl")
	if err := os.WriteFile(upload, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	return &fakeTarget{
		id:      catalog.SubmissionIRI("http://data.example.org", "BRO", version),
		version: version,
		upload:  upload,
		dir:     dir,
	}
}

const sampleManifest = `{"id":"http://x/BRO#Neuron","label":"Neuron","mappings":["http://y/N1"]}

{"id":"http://x/BRO#brainRegion_part"}
`

func TestProcessRDFImportsManifestAndLabels(t *testing.T) {
	store := newStore(t)
	target := newTarget(t, 1, sampleManifest)
	runner := NewRunner(Options{Store: store})

	if err := runner.Run(context.Background(), logging.NewNop(), target, actions.Set{actions.ProcessRDF: true}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !catalog.IsReady(target) {
		t.Fatalf("expected RDF and RDF_LABELS, got %v", target.statuses)
	}
	classes, err := store.Classes(context.Background(), target.ID(), 1, 10)
	if err != nil || len(classes) != 2 {
		t.Fatalf("unexpected classes %+v err=%v", classes, err)
	}
	if classes[0].Label != "Neuron" || classes[1].Label != "Brain Region Part" {
		t.Fatalf("unexpected labels: %q %q", classes[0].Label, classes[1].Label)
	}
}

func TestProcessRDFRunsParserCommand(t *testing.T) {
	store := newStore(t)
	target := newTarget(t, 2, "ignored")
	var gotName string
	var gotArgs []string
	runner := NewRunner(Options{
		Store:         store,
		ParserCommand: []string{"owlparse", "--in", "{file}", "--out", "{output}", "--reasoning={reasoning}"},
		Command: func(_ context.Context, name string, args ...string) error {
			gotName, gotArgs = name, args
			return os.WriteFile(filepath.Join(target.dir, "classes.jsonl"), []byte(`{"id":"http://x/BRO#A","label":"A"}`), 0o644)
		},
	})

	set := actions.Set{actions.ProcessRDF: true, actions.Reasoning: true}
	if err := runner.Run(context.Background(), nil, target, set); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"--in", target.upload, "--out", target.dir, "--reasoning=true"}
	if gotName != "owlparse" || !slices.Equal(gotArgs, want) {
		t.Fatalf("unexpected command %s %v", gotName, gotArgs)
	}
	if n, _ := store.CountClasses(context.Background(), target.ID()); n != 1 {
		t.Fatalf("expected 1 imported class, got %d", n)
	}
}

func TestProcessRDFFailureStopsRun(t *testing.T) {
	target := newTarget(t, 1, sampleManifest)
	runner := NewRunner(Options{
		Store:         newStore(t),
		ParserCommand: []string{"owlparse", "{file}"},
		Command: func(context.Context, string, ...string) error {
			return errors.New("exit status 2")
		},
	})
	err := runner.Run(context.Background(), nil, target, actions.All())
	if err == nil {
		t.Fatal("expected parser failure to be returned")
	}
	if !target.HasStatus(catalog.ErrorStatus(catalog.StatusRDF)) {
		t.Fatalf("expected ERROR_RDF, got %v", target.statuses)
	}
	if target.HasStatus(catalog.StatusMetrics) || target.HasStatus(catalog.ErrorStatus(catalog.StatusIndexed)) {
		t.Fatalf("later stages must not run: %v", target.statuses)
	}
}

func TestIndexFailureDoesNotStopMetrics(t *testing.T) {
	target := newTarget(t, 1, sampleManifest)
	runner := NewRunner(Options{
		Store:        newStore(t),
		IndexCommand: []string{"indexer", "{graph}", "{commit}"},
		Command: func(context.Context, string, ...string) error {
			return errors.New("solr unavailable")
		},
	})
	set := actions.Set{actions.ProcessRDF: true, actions.IndexSearch: true, actions.RunMetrics: true}
	if err := runner.Run(context.Background(), nil, target, set); err != nil {
		t.Fatalf("non-fatal stage failure should not fail the run: %v", err)
	}
	if !target.HasStatus(catalog.ErrorStatus(catalog.StatusIndexed)) || target.HasStatus(catalog.StatusIndexed) {
		t.Fatalf("expected ERROR_INDEXED only, got %v", target.statuses)
	}
	if !target.HasStatus(catalog.StatusMetrics) || target.metrics.Classes != 2 || target.metrics.Mappings != 1 {
		t.Fatalf("expected metrics recorded, got %v %+v", target.statuses, target.metrics)
	}
}

func TestArchiveIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	target := newTarget(t, 1, sampleManifest)
	runner := NewRunner(Options{Store: store})
	if err := runner.Run(ctx, nil, target, actions.Set{actions.ProcessRDF: true}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	manifest := filepath.Join(target.dir, "classes.jsonl")
	if err := os.WriteFile(manifest, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	set := actions.ArchiveOnly()
	set[actions.RunMetrics] = true
	if err := runner.Run(ctx, nil, target, set); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !catalog.IsArchived(target) {
		t.Fatalf("expected ARCHIVED, got %v", target.statuses)
	}
	if target.HasStatus(catalog.StatusMetrics) {
		t.Fatal("archive must not run other stages")
	}
	if n, _ := store.CountClasses(ctx, target.ID()); n != 0 {
		t.Fatalf("expected derived graph removed, %d classes left", n)
	}
	if _, err := os.Stat(manifest); !os.IsNotExist(err) {
		t.Fatalf("expected manifest pruned, stat err=%v", err)
	}
	if _, err := os.Stat(target.upload); err != nil {
		t.Fatalf("upload file must be kept: %v", err)
	}
}

func TestDiffWritesReport(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	runner := NewRunner(Options{Store: store})

	older := newTarget(t, 1, `{"id":"http://x/BRO#A"}`+"\n"+`{"id":"http://x/BRO#B"}`)
	if err := runner.Run(ctx, nil, older, actions.Set{actions.ProcessRDF: true}); err != nil {
		t.Fatalf("older: %v", err)
	}
	newer := newTarget(t, 2, `{"id":"http://x/BRO#B"}`+"\n"+`{"id":"http://x/BRO#C"}`)
	newer.previous = older.ID()
	if err := runner.Run(ctx, nil, newer, actions.Set{actions.ProcessRDF: true, actions.Diff: true}); err != nil {
		t.Fatalf("newer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(newer.dir, "diff.json"))
	if err != nil {
		t.Fatalf("read diff: %v", err)
	}
	var report DiffReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode diff: %v", err)
	}
	if report.Previous != older.ID() || !slices.Equal(report.Added, []string{"http://x/BRO#C"}) || !slices.Equal(report.Removed, []string{"http://x/BRO#A"}) {
		t.Fatalf("unexpected diff: %+v", report)
	}
	if !newer.HasStatus(catalog.StatusDiff) {
		t.Fatalf("expected DIFF flag, got %v", newer.statuses)
	}
}

func TestMissingUploadIsValidationFailure(t *testing.T) {
	target := newTarget(t, 1, "")
	target.upload = ""
	err := NewRunner(Options{Store: newStore(t)}).Run(context.Background(), nil, target, actions.Set{actions.ProcessRDF: true})
	if err == nil || !strings.Contains(err.Error(), "no uploaded file") {
		t.Fatalf("expected missing upload error, got %v", err)
	}
}

func TestGenerateLabel(t *testing.T) {
	cases := map[string]string{
		"http://x/BRO#brainRegion_part": "Brain Region Part",
		"http://x/onto/Cell":            "Cell",
		"http://x/onto/":                "Onto",
		"GO-0001":                       "Go 0001",
	}
	for in, want := range cases {
		if got := generateLabel(in); got != want {
			t.Fatalf("generateLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDecodeManifestRejectsMissingID(t *testing.T) {
	if _, err := decodeManifest(strings.NewReader(`{"label":"x"}`)); err == nil {
		t.Fatal("expected error for class without id")
	}
	if _, err := decodeManifest(strings.NewReader(`not json`)); err == nil {
		t.Fatal("expected error for invalid json")
	}
}
