package preflight

import (
	"context"

	"castspc/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Snapshot.Enabled {
		results = append(results, CheckDirectoryAccess("Snapshot directory", cfg.Paths.SnapshotDir))
	}
	results = append(results, CheckDatabase(ctx, cfg.DatabasePath()))
	if cfg.Source.Kind == config.SourceWebSocket {
		results = append(results, CheckWebSocket(ctx, cfg.Source.WebSocketURL, cfg.SourceTimeout()))
	}
	return results
}

// Failed filters results down to failures.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
