// Package workflow drives the SPC engine from a background poll loop.
//
// The Manager calls Poller.Poll once per poll interval. Each cycle runs under
// its own panic guard so a misbehaving source or persister costs one cycle,
// never the daemon. Cycle counts, panics and the last error are exposed via
// Status for the API and metrics.
package workflow
