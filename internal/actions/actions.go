// Package actions defines the action sets that travel with queued submissions
// and select which processing stages run.
package actions

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Name identifies a processing stage toggle.
type Name string

// Canonical actions a caller may request when enqueueing.
const (
	ProcessRDF       Name = "process_rdf"
	IndexSearch      Name = "index_search"
	RunMetrics       Name = "run_metrics"
	ProcessAnnotator Name = "process_annotator"
	Diff             Name = "diff"
)

// Pipeline-only toggles. They are understood by the pipeline but are not part
// of the canonical set and are dropped by Filter.
const (
	IndexCommit Name = "index_commit"
	Reasoning   Name = "reasoning"
	Archive     Name = "archive"
)

// AllKey requests every canonical action. Filter expands it; it is never
// stored.
const AllKey Name = "all"

// Canonical lists the canonical actions in stable order.
var Canonical = []Name{ProcessRDF, IndexSearch, RunMetrics, ProcessAnnotator, Diff}

// Set maps action names to enabled flags. Absent and false are equivalent.
type Set map[Name]bool

// All returns a fresh set with every canonical action enabled.
func All() Set {
	s := make(Set, len(Canonical))
	for _, name := range Canonical {
		s[name] = true
	}
	return s
}

// ArchiveOnly is the set used to archive a superseded submission: archive on,
// every heavy stage explicitly off.
func ArchiveOnly() Set {
	return Set{
		ProcessRDF:  false,
		IndexSearch: false,
		IndexCommit: false,
		RunMetrics:  false,
		Reasoning:   false,
		Archive:     true,
	}
}

// IsCanonical reports whether name is one of the canonical actions.
func IsCanonical(name Name) bool {
	for _, c := range Canonical {
		if c == name {
			return true
		}
	}
	return false
}

// Filter keeps only canonical keys and preserves their boolean values.
// Unknown keys are dropped silently; an empty or nil input yields an empty set.
// A true AllKey yields All and ignores every other key.
func Filter(in Set) Set {
	if in[AllKey] {
		return All()
	}
	out := make(Set, len(in))
	for name, enabled := range in {
		if IsCanonical(name) {
			out[name] = enabled
		}
	}
	return out
}

// Enabled reports whether name is present and true.
func (s Set) Enabled(name Name) bool {
	return s[name]
}

// EnabledNames returns the enabled actions sorted by name.
func (s Set) EnabledNames() []string {
	names := make([]string, 0, len(s))
	for name, enabled := range s {
		if enabled {
			names = append(names, string(name))
		}
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// String renders the enabled actions as a comma separated list.
func (s Set) String() string {
	names := s.EnabledNames()
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ",")
}

// Encode serializes the set as a JSON object of name to boolean.
func Encode(s Set) (string, error) {
	if s == nil {
		s = Set{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode action set: %w", err)
	}
	return string(data), nil
}

// Decode parses a JSON object of name to boolean. Any other shape is an error.
func Decode(raw string) (Set, error) {
	var s Set
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode action set: %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("decode action set: value is not an object")
	}
	return s, nil
}

// Parse builds a set from names such as "process_rdf,diff". The word "all"
// expands to every canonical action. Unknown names are an error.
func Parse(values []string) (Set, error) {
	out := Set{}
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			name := strings.ToLower(strings.TrimSpace(part))
			switch {
			case name == "":
				continue
			case Name(name) == AllKey:
				for k, v := range All() {
					out[k] = v
				}
			case IsCanonical(Name(name)):
				out[Name(name)] = true
			default:
				return nil, fmt.Errorf("unknown action %q", name)
			}
		}
	}
	return out, nil
}
