// Package config loads, normalizes, and validates lectern configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// LECTERN_SYNC_TOKEN. The Config type centralizes every knob the CLI and the
// local player server need, so the data directory, scanner cadence, progress
// throttling, and the dormant remote sync settings are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical extension lists, and clear validation errors.
package config
