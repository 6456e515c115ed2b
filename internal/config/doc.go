// Package config loads, normalizes, and validates catalogcron configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for
// connection secrets such as CATALOGCRON_REDIS_URL. The Config type
// centralizes every knob the daemon and CLI need: queue backend, catalog and
// graph store locations, maintenance thresholds, and routine schedules.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical backend names, and clear validation errors.
package config
