// Package api defines the wire-format types shared by the daemon's HTTP
// server and the CLI client, plus small converters and display helpers.
//
// # Key Types
//
// DaemonStatus: daemon runtime state, poll loop health and engine status.
//
// ChartResponse: chart samples, current limits and the zone summary.
//
// SampleResponse, UpdateResponse: a single defect-rate sample and the result
// of a forced chart update.
//
// StatsResponse: stored sample statistics over a trailing window of hours.
//
// # Design Notes
//
// DTOs use snake_case JSON tags to match the engine's own types, which are
// embedded directly rather than copied. Timestamps are RFC3339 with
// nanoseconds as encoding/json renders time.Time.
package api
