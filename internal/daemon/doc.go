// Package daemon coordinates the long-running castspc process.
//
// It wires configuration, the SQLite store, the SPC engine, the poll loop,
// the snapshot exporter and the HTTP API into a single lifecycle with
// flock-based locking to prevent multiple instances. The daemon restores
// engine state on start, exposes chart operations to the API, and publishes
// engine counters as Prometheus metrics.
//
// Keep orchestration logic here: chart semantics live in spc, persistence in
// store, while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
