// Package store persists SPC state in SQLite.
//
// Two tables back the engine: realtime_buffer holds every admitted
// measurement (keyed by record identity, so re-saving a point replaces it)
// and control_chart_data holds every chart sample with the limits computed
// right after it was appended. Store implements spc.Persister and adds the
// read-side queries used by the CLI and API: verdict filters, 24 hour chart
// statistics, and health checks.
//
// Timestamps are stored as fixed-width UTC text so lexical order matches
// chronological order.
package store
