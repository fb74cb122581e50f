// Package config loads, normalizes, and validates castspc configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CASTSPC_API_TOKEN and CASTSPC_SOURCE_URL. The Config type centralizes every
// knob the daemon and CLI need: storage locations, the measurement source,
// SPC window and chart bounds, polling cadence, snapshot exports, and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
