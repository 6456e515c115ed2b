// Package logging assembles structured slog loggers and formatting helpers used
// across catalogcron.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so routine code can tag log
// lines with submission IDs, routines, stages, and correlation IDs. Per
// submission parsing logs are opened with NewFileLogger; secondary sinks are
// attached with TeeLogger. The package also provides a no-op logger for tests
// and wiring code that cannot fail.
package logging
