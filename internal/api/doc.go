// Package api defines the wire-format types served by the daemon's HTTP
// status API and read back by the CLI. It translates queue entries and
// routine state into transport-friendly DTOs so neither side couples to the
// other's internal types.
//
// DTOs use camelCase JSON tags. Timestamps are RFC3339 with milliseconds in
// UTC; zero times are omitted.
package api
