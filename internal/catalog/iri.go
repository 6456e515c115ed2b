package catalog

import (
	"strconv"
	"strings"
)

const (
	ontologiesSegment  = "/ontologies/"
	submissionsSegment = "/submissions/"
)

// OntologyIRI builds <base>/ontologies/<ACRONYM>.
func OntologyIRI(base, acronym string) string {
	return strings.TrimRight(base, "/") + ontologiesSegment + acronym
}

// SubmissionIRI builds <base>/ontologies/<ACRONYM>/submissions/<version>.
// The same IRI names the submission's derived graph.
func SubmissionIRI(base, acronym string, version int) string {
	return OntologyIRI(base, acronym) + submissionsSegment + strconv.Itoa(version)
}

// IsSubmissionGraph reports whether a graph name follows the submission
// naming convention.
func IsSubmissionGraph(graph string) bool {
	return strings.Contains(graph, submissionsSegment) && strings.Contains(graph, ontologiesSegment)
}

// GraphOwner returns the ontology IRI that owns graph by dropping its last two
// path segments. ok is false for graphs outside the submission convention.
func GraphOwner(graph string) (string, bool) {
	if !IsSubmissionGraph(graph) {
		return "", false
	}
	parts := strings.Split(graph, "/")
	if len(parts) < 3 {
		return "", false
	}
	return strings.Join(parts[:len(parts)-2], "/"), true
}

// ParseSubmissionIRI extracts the acronym and version from a submission IRI.
func ParseSubmissionIRI(id string) (acronym string, version int, ok bool) {
	idx := strings.LastIndex(id, ontologiesSegment)
	if idx < 0 {
		return "", 0, false
	}
	rest := id[idx+len(ontologiesSegment):]
	acronym, tail, found := strings.Cut(rest, submissionsSegment)
	if !found || acronym == "" || strings.Contains(acronym, "/") {
		return "", 0, false
	}
	version, err := strconv.Atoi(tail)
	if err != nil || version < 1 {
		return "", 0, false
	}
	return acronym, version, true
}
