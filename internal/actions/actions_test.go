package actions

import (
	"reflect"
	"testing"
)

func TestAllEnablesEveryCanonicalAction(t *testing.T) {
	all := All()
	if len(all) != 5 {
		t.Fatalf("expected 5 canonical actions, got %d", len(all))
	}
	for _, name := range Canonical {
		if !all[name] {
			t.Fatalf("expected %s enabled", name)
		}
	}
	all[Diff] = false
	if !All()[Diff] {
		t.Fatal("All must return a fresh set")
	}
}

func TestFilterDropsUnknownKeysAndKeepsValues(t *testing.T) {
	got := Filter(Set{ProcessRDF: true, Diff: false, "bogus": true, Archive: true})
	want := Set{ProcessRDF: true, Diff: false}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Filter = %v, want %v", got, want)
	}
	if len(Filter(nil)) != 0 {
		t.Fatal("expected empty set for nil input")
	}
}

func TestFilterExpandsAllKey(t *testing.T) {
	if got := Filter(Set{AllKey: true}); !reflect.DeepEqual(got, All()) {
		t.Fatalf("Filter(all) = %v, want %v", got, All())
	}
	if got := Filter(Set{AllKey: true, Diff: false}); !reflect.DeepEqual(got, All()) {
		t.Fatalf("all must override other keys, got %v", got)
	}
	if got := Filter(Set{AllKey: false, Diff: true}); !reflect.DeepEqual(got, Set{Diff: true}) {
		t.Fatalf("false all must be ignored, got %v", got)
	}
}

func TestArchiveOnly(t *testing.T) {
	set := ArchiveOnly()
	if !set.Enabled(Archive) {
		t.Fatal("archive must be enabled")
	}
	for _, name := range []Name{ProcessRDF, IndexSearch, IndexCommit, RunMetrics, Reasoning} {
		enabled, present := set[name]
		if !present || enabled {
			t.Fatalf("%s should be present and false", name)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	raw, err := Encode(Set{ProcessRDF: true, Diff: false})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !decoded[ProcessRDF] || decoded[Diff] {
		t.Fatalf("unexpected decoded set: %v", decoded)
	}
	for _, bad := range []string{"{not json", "[1,2]", "null", `{"process_rdf":"yes"}`} {
		if _, err := Decode(bad); err == nil {
			t.Fatalf("expected decode error for %q", bad)
		}
	}
}

func TestParse(t *testing.T) {
	set, err := Parse([]string{"process_rdf, diff", "index_search"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := set.String(); got != "diff,index_search,process_rdf" {
		t.Fatalf("unexpected parse result %q", got)
	}
	all, err := Parse([]string{"all"})
	if err != nil || !reflect.DeepEqual(all, All()) {
		t.Fatalf("expected all actions, got %v (%v)", all, err)
	}
	if _, err := Parse([]string{"archive"}); err == nil {
		t.Fatal("pipeline-only toggles cannot be requested")
	}
}
