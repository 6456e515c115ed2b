// Package catalog describes the ontology catalog the maintenance routines
// operate on: ontologies (collections), their versioned submissions
// (entities), status flags and derived class graphs.
//
// The routines depend only on the interfaces here. catalogdb provides the
// SQLite-backed implementation and catalogtest an in-memory one.
package catalog

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"catalogcron/internal/actions"
)

// Status is a processing flag recorded on a submission.
type Status string

const (
	StatusUploaded  Status = "UPLOADED"
	StatusRDF       Status = "RDF"
	StatusRDFLabels Status = "RDF_LABELS"
	StatusIndexed   Status = "INDEXED"
	StatusMetrics   Status = "METRICS"
	StatusDiff      Status = "DIFF"
	StatusAnnotator Status = "ANNOTATOR"
	StatusArchived  Status = "ARCHIVED"
)

const errorPrefix = "ERROR_"

// ErrorStatus returns the failure flag for s, e.g. ERROR_RDF.
func ErrorStatus(s Status) Status {
	return Status(errorPrefix + string(s))
}

// IsError reports whether s is a failure flag.
func (s Status) IsError() bool {
	return strings.HasPrefix(string(s), errorPrefix)
}

// ReadyStatuses are the flags a submission needs before it counts as ready.
var ReadyStatuses = []Status{StatusRDF, StatusRDFLabels}

// Submission is one version of an ontology.
type Submission interface {
	ID() string
	OntologyID() string
	Acronym() string
	Version() int
	Statuses() []Status
	HasStatus(Status) bool
	PullLocation() string
	UploadFilePath() string
	DataDir() string

	// ClassCount is the number of class records in the derived graph.
	ClassCount(ctx context.Context) (int, error)
	// Download re-fetches the source file from PullLocation.
	Download(ctx context.Context) error
	// Pipeline runs the stages enabled in set.
	Pipeline(ctx context.Context, logger *slog.Logger, set actions.Set) error
	// DeleteDerivedGraph drops the derived graph; missing graphs are not an error.
	DeleteDerivedGraph(ctx context.Context) error
	// MarkArchived adds the ARCHIVED flag and persists it.
	MarkArchived(ctx context.Context) error
}

// Ontology is a collection of submissions sharing an acronym.
type Ontology interface {
	ID() string
	Acronym() string
	SummaryOnly() bool
	IsView() bool
	Submissions(ctx context.Context) ([]Submission, error)
	// LatestReady returns the highest-version ready submission, or nil.
	LatestReady(ctx context.Context) (Submission, error)
}

// Catalog looks up ontologies and submissions.
type Catalog interface {
	// FindSubmission returns nil, nil when id does not exist.
	FindSubmission(ctx context.Context, id string) (Submission, error)
	Ontologies(ctx context.Context) ([]Ontology, error)
}

// IsReady reports whether sub carries every flag in required, defaulting to
// ReadyStatuses when none are given.
func IsReady(sub Submission, required ...Status) bool {
	if sub == nil {
		return false
	}
	if len(required) == 0 {
		required = ReadyStatuses
	}
	for _, s := range required {
		if !sub.HasStatus(s) {
			return false
		}
	}
	return true
}

// IsArchived reports whether sub carries the ARCHIVED flag.
func IsArchived(sub Submission) bool {
	return sub != nil && sub.HasStatus(StatusArchived)
}

// HasErrors reports whether any failure flag is set on sub.
func HasErrors(sub Submission) bool {
	if sub == nil {
		return false
	}
	for _, s := range sub.Statuses() {
		if s.IsError() {
			return true
		}
	}
	return false
}

// SortByVersionDesc returns a copy of subs ordered newest first. Equal
// versions keep their input order.
func SortByVersionDesc(subs []Submission) []Submission {
	out := append([]Submission(nil), subs...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Version() > out[j].Version()
	})
	return out
}

// Recent returns at most n submissions, newest first.
func Recent(subs []Submission, n int) []Submission {
	sorted := SortByVersionDesc(subs)
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// LatestReadyOf picks the highest-version ready submission in subs, or nil.
func LatestReadyOf(subs []Submission) Submission {
	var best Submission
	for _, s := range subs {
		if !IsReady(s) {
			continue
		}
		if best == nil || s.Version() > best.Version() {
			best = s
		}
	}
	return best
}

// SortOntologies returns a copy of onts ordered by acronym.
func SortOntologies(onts []Ontology) []Ontology {
	out := append([]Ontology(nil), onts...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Acronym() < out[j].Acronym()
	})
	return out
}
