package archival_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"catalogcron/internal/actions"
	"catalogcron/internal/archival"
	"catalogcron/internal/catalog"
	"catalogcron/internal/catalog/catalogtest"
	"catalogcron/internal/logging"
)

func TestArchivePreviousRespectsWindowAndVersion(t *testing.T) {
	ctx := context.Background()
	cat := catalogtest.New()
	ont := cat.AddOntology("BRO")
	subs := map[int]*catalogtest.Submission{}
	for v := 1; v <= 12; v++ {
		statuses := []catalog.Status{catalog.StatusRDF, catalog.StatusRDFLabels}
		if v == 3 {
			statuses = append(statuses, catalog.StatusArchived)
		}
		subs[v] = ont.AddSubmission(v, statuses...)
	}

	mgr := archival.New(cat, archival.DefaultWindow, logging.NewNop())
	archived, err := mgr.ArchivePrevious(ctx, nil, subs[9])
	if err != nil {
		t.Fatalf("ArchivePrevious: %v", err)
	}

	// Window of 11 newest is versions 2..12; 10..12 are newer than 9, 3 is already archived.
	wantArchived := []int{2, 4, 5, 6, 7, 8}
	if archived != len(wantArchived) {
		t.Fatalf("archived %d, want %d", archived, len(wantArchived))
	}
	for v, sub := range subs {
		calls := sub.PipelineCalls()
		if slices.Contains(wantArchived, v) {
			if len(calls) != 1 || !calls[0].Enabled(actions.Archive) || calls[0].Enabled(actions.ProcessRDF) {
				t.Fatalf("version %d: expected one archive-only call, got %v", v, calls)
			}
			if !catalog.IsArchived(sub) {
				t.Fatalf("version %d should be archived", v)
			}
			continue
		}
		if len(calls) != 0 {
			t.Fatalf("version %d must not be touched, got %v", v, calls)
		}
	}
	if catalog.IsArchived(subs[10]) || catalog.IsArchived(subs[1]) {
		t.Fatal("versions outside the candidate set must stay active")
	}
}

func TestArchivePreviousContinuesAfterFailure(t *testing.T) {
	ctx := context.Background()
	cat := catalogtest.New()
	ont := cat.AddOntology("BRO")
	failing := ont.AddSubmission(1)
	failing.OnPipeline = func(context.Context, *catalogtest.Submission, actions.Set) error {
		return errors.New("store unavailable")
	}
	second := ont.AddSubmission(2)
	current := ont.AddSubmission(3, catalog.StatusRDF, catalog.StatusRDFLabels)

	archived, err := archival.New(cat, 0, nil).ArchivePrevious(ctx, nil, current)
	if err == nil {
		t.Fatal("expected joined error")
	}
	if archived != 1 || !catalog.IsArchived(second) {
		t.Fatalf("expected version 2 archived despite version 1 failing, archived=%d", archived)
	}
}

func TestArchivePreviousUnknownOntology(t *testing.T) {
	other := catalogtest.New()
	sub := other.AddOntology("X").AddSubmission(1)
	if _, err := archival.New(catalogtest.New(), 11, nil).ArchivePrevious(context.Background(), nil, sub); err == nil {
		t.Fatal("expected lookup failure")
	}
}
