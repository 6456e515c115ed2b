package staledata_test

import (
	"context"
	"slices"
	"strconv"
	"testing"
	"time"

	"catalogcron/internal/catalog"
	"catalogcron/internal/catalog/catalogtest"
	"catalogcron/internal/logging"
	"catalogcron/internal/staledata"
)

type staticGraphs []string

func (g staticGraphs) Graphs(context.Context) ([]string, error) { return g, nil }

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

func newDetector(cat *catalogtest.Catalog, graphs staticGraphs, sleeper *sleepRecorder) *staledata.Detector {
	return staledata.New(cat, graphs, staledata.Options{
		Window:      11,
		Threshold:   1,
		SettleDelay: 5 * time.Second,
		Sleep:       sleeper.sleep,
		Logger:      logging.NewNop(),
	})
}

func TestFlushClassesArchivesSupersededSubmissions(t *testing.T) {
	for _, readyArchived := range []bool{false, true} {
		cat := catalogtest.New()
		ont := cat.AddOntology("BRO")
		var older []*catalogtest.Submission
		for v := 1; v <= 4; v++ {
			older = append(older, ont.AddSubmission(v, catalog.StatusUploaded).SetClassCount(20))
		}
		statuses := []catalog.Status{catalog.StatusRDF, catalog.StatusRDFLabels}
		if readyArchived {
			statuses = append(statuses, catalog.StatusArchived)
		}
		ready := ont.AddSubmission(5, statuses...)

		sleeper := &sleepRecorder{}
		res, err := newDetector(cat, nil, sleeper).FlushClasses(context.Background())
		if err != nil {
			t.Fatalf("FlushClasses: %v", err)
		}
		deleted := res.Deleted
		if len(deleted) != 4 {
			t.Fatalf("expected 4 deletions, got %d", len(deleted))
		}
		for _, sub := range older {
			if !catalog.IsArchived(sub) {
				t.Fatalf("version %d should be archived", sub.Version())
			}
			if n, _ := sub.ClassCount(context.Background()); n != 0 {
				t.Fatalf("version %d graph should be gone", sub.Version())
			}
		}
		if n, _ := ready.ClassCount(context.Background()); n != 10 {
			t.Fatalf("latest ready graph must be untouched (archived=%v), has %d classes", readyArchived, n)
		}
		if len(sleeper.calls) != 4 || sleeper.calls[0] != 5*time.Second {
			t.Fatalf("expected one settle delay per deletion, got %v", sleeper.calls)
		}

		events := cat.Events()
		for _, sub := range older {
			del := slices.Index(events, "delete:BRO/"+strconv.Itoa(sub.Version()))
			arc := slices.Index(events, "archive:BRO/"+strconv.Itoa(sub.Version()))
			if del < 0 || arc < 0 || del > arc {
				t.Fatalf("graph must be deleted before archiving: %v", events)
			}
		}
	}
}

func TestFlushClassesDeletesArchivedGraphsWithoutRearchiving(t *testing.T) {
	cat := catalogtest.New()
	ont := cat.AddOntology("BRO")
	archived := ont.AddSubmission(1, catalog.StatusRDF, catalog.StatusRDFLabels, catalog.StatusArchived)
	ont.AddSubmission(2, catalog.StatusRDF, catalog.StatusRDFLabels)

	res, err := newDetector(cat, nil, &sleepRecorder{}).FlushClasses(context.Background())
	if err != nil {
		t.Fatalf("FlushClasses: %v", err)
	}
	deleted := res.Deleted
	if len(deleted) != 1 || deleted[0].ID() != archived.ID() {
		t.Fatalf("expected archived graph deleted, got %v", deleted)
	}
	if len(cat.EventsFor("archive")) != 0 {
		t.Fatalf("already archived submissions are not re-archived: %v", cat.Events())
	}
}

func TestFlushClassesSkipsTrivialAndUnreadyOntologies(t *testing.T) {
	cat := catalogtest.New()
	trivial := cat.AddOntology("AAA")
	trivial.AddSubmission(1).SetClassCount(1)
	trivial.AddSubmission(2, catalog.StatusRDF, catalog.StatusRDFLabels)
	unready := cat.AddOntology("BBB")
	unready.AddSubmission(1).SetClassCount(50)
	summary := cat.AddOntology("CCC")
	summary.Summary = true
	summary.AddSubmission(1).SetClassCount(50)
	summary.AddSubmission(2, catalog.StatusRDF, catalog.StatusRDFLabels)

	res, err := newDetector(cat, nil, &sleepRecorder{}).FlushClasses(context.Background())
	if err != nil {
		t.Fatalf("FlushClasses: %v", err)
	}
	deleted := res.Deleted
	if len(deleted) != 0 || len(cat.Events()) != 0 {
		t.Fatalf("expected no changes, got deleted=%v events=%v", deleted, cat.Events())
	}
}

func TestFlushClassesWindowLimitsCandidates(t *testing.T) {
	cat := catalogtest.New()
	ont := cat.AddOntology("BRO")
	for v := 1; v <= 13; v++ {
		ont.AddSubmission(v).SetClassCount(5)
	}
	ont.AddSubmission(14, catalog.StatusRDF, catalog.StatusRDFLabels)

	res, err := newDetector(cat, nil, &sleepRecorder{}).FlushClasses(context.Background())
	if err != nil {
		t.Fatalf("FlushClasses: %v", err)
	}
	deleted := res.Deleted
	// Window is versions 4..14; 14 is the latest ready.
	if len(deleted) != 10 {
		t.Fatalf("expected 10 deletions inside the window, got %d", len(deleted))
	}
	for _, sub := range deleted {
		if sub.Version() < 4 {
			t.Fatalf("version %d is outside the window", sub.Version())
		}
	}
}

func TestZombieGraphsReportsUnknownAndSummaryOwners(t *testing.T) {
	cat := catalogtest.New()
	live := cat.AddOntology("BRO")
	cat.AddOntology("SUM").Summary = true
	liveGraph := live.AddSubmission(1, catalog.StatusRDF, catalog.StatusRDFLabels).ID()

	graphs := staticGraphs{
		liveGraph,
		catalog.SubmissionIRI(catalogtest.BaseIRI, "GONE", 3),
		catalog.SubmissionIRI(catalogtest.BaseIRI, "SUM", 1),
		catalog.SubmissionIRI(catalogtest.BaseIRI, "GONE", 3),
		catalogtest.BaseIRI + "/metadata",
	}
	det := newDetector(cat, graphs, &sleepRecorder{})
	zombies, err := det.ZombieGraphs(context.Background())
	if err != nil {
		t.Fatalf("ZombieGraphs: %v", err)
	}
	want := []string{
		catalog.SubmissionIRI(catalogtest.BaseIRI, "GONE", 3),
		catalog.SubmissionIRI(catalogtest.BaseIRI, "SUM", 1),
	}
	if !slices.Equal(zombies, want) {
		t.Fatalf("zombies = %v, want %v", zombies, want)
	}

	if _, err := det.FlushClasses(context.Background()); err != nil {
		t.Fatalf("FlushClasses: %v", err)
	}
	if len(cat.EventsFor("delete")) != 0 {
		t.Fatalf("orphan graphs must never be deleted: %v", cat.Events())
	}
}

type countingGraphs struct {
	graphs []string
	calls  int
}

func (g *countingGraphs) Graphs(context.Context) ([]string, error) {
	g.calls++
	return g.graphs, nil
}

func TestFlushClassesReturnsZombiesFromSingleScan(t *testing.T) {
	cat := catalogtest.New()
	ont := cat.AddOntology("BRO")
	ont.AddSubmission(1).SetClassCount(5)
	ont.AddSubmission(2, catalog.StatusRDF, catalog.StatusRDFLabels)
	orphan := catalog.SubmissionIRI(catalogtest.BaseIRI, "GONE", 1)
	lister := &countingGraphs{graphs: []string{orphan}}

	det := staledata.New(cat, lister, staledata.Options{
		Window:    11,
		Threshold: 1,
		Sleep:     (&sleepRecorder{}).sleep,
		Logger:    logging.NewNop(),
	})
	res, err := det.FlushClasses(context.Background())
	if err != nil {
		t.Fatalf("FlushClasses: %v", err)
	}
	if len(res.Deleted) != 1 || res.Deleted[0].Version() != 1 {
		t.Fatalf("expected version 1 deleted, got %v", res.Deleted)
	}
	if !slices.Equal(res.Zombies, []string{orphan}) {
		t.Fatalf("zombies = %v, want [%s]", res.Zombies, orphan)
	}
	if lister.calls != 1 {
		t.Fatalf("expected one graph scan, got %d", lister.calls)
	}
}

func TestFlushClassesStopsWhenSettleIsCancelled(t *testing.T) {
	cat := catalogtest.New()
	ont := cat.AddOntology("BRO")
	ont.AddSubmission(1).SetClassCount(5)
	ont.AddSubmission(2, catalog.StatusRDF, catalog.StatusRDFLabels)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	det := staledata.New(cat, staticGraphs{}, staledata.Options{SettleDelay: time.Hour, Threshold: 1})
	if _, err := det.FlushClasses(ctx); err == nil {
		t.Fatal("expected cancellation error")
	}
	if len(cat.EventsFor("delete")) != 0 {
		t.Fatal("no graph may be deleted after cancellation")
	}
}
