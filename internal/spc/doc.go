// Package spc implements the statistical process control engine.
//
// Admitted measurements flow through a fingerprint Gate into a bounded
// RollingBuffer. On the Scheduler's cadence the Engine computes the defect
// rate over a trailing window and appends it to the control chart History,
// which recomputes Shewhart limits (center line, 2σ warning and 3σ control
// bands) on every append. A Persister, when configured, receives every
// admitted point and every sample so state survives restarts.
//
// Only Engine is safe for concurrent use. The building blocks it owns are
// guarded by the engine mutex, except Gate which carries its own lock.
package spc
