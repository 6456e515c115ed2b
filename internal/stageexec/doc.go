// Package stageexec runs the processing stages selected by an action set
// against one submission: RDF parsing and label generation, search
// indexing, metrics, version diffing, and archival.
//
// Stages run in a fixed order. An archive request is exclusive and skips
// every other stage. A process_rdf failure aborts the run; failures in the
// later stages are recorded as ERROR_<stage> flags and the run continues.
package stageexec
