package api

import (
	"time"

	"castspc/internal/spc"
	"castspc/internal/store"
)

// WorkflowStatus summarizes the poll loop.
type WorkflowStatus struct {
	Running   bool      `json:"running"`
	Cycles    uint64    `json:"cycles"`
	Panics    uint64    `json:"panics"`
	LastCycle time.Time `json:"last_cycle,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// SnapshotStatus reports the snapshot exporter's most recent output.
type SnapshotStatus struct {
	Enabled   bool      `json:"enabled"`
	Format    string    `json:"format,omitempty"`
	Dir       string    `json:"dir,omitempty"`
	LastPath  string    `json:"last_path,omitempty"`
	Written   int       `json:"written"`
	NextRun   time.Time `json:"next_run,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DBPath       string         `json:"db_path"`
	LockFilePath string         `json:"lock_file_path"`
	LogPath      string         `json:"log_path,omitempty"`
	Workflow     WorkflowStatus `json:"workflow"`
	Snapshot     SnapshotStatus `json:"snapshot"`
	Engine       spc.Status     `json:"engine"`
}

// ChartResponse wraps the control chart.
type ChartResponse struct {
	spc.ChartView
}

// SampleResponse is the defect rate over the rate window right now.
type SampleResponse struct {
	Sample spc.Sample `json:"sample"`
	Zone   spc.Zone   `json:"zone"`
}

// StatsResponse carries stored chart statistics and verdict counts for a window.
type StatsResponse struct {
	Hours  int               `json:"hours"`
	Since  time.Time         `json:"since"`
	Stats  store.SampleStats `json:"stats"`
	Passed int               `json:"passed"`
	Failed int               `json:"failed"`
}

// SamplesResponse lists stored chart samples for a window, oldest first.
type SamplesResponse struct {
	Hours   int          `json:"hours"`
	Since   time.Time    `json:"since"`
	Samples []spc.Sample `json:"samples"`
}

// UpdateResponse reports a forced chart update.
type UpdateResponse struct {
	Updated bool        `json:"updated"`
	Sample  *spc.Sample `json:"sample,omitempty"`
	Limits  spc.Limits  `json:"limits"`
	Zone    spc.Zone    `json:"zone,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ResetResponse acknowledges a reset.
type ResetResponse struct {
	Reset   bool      `json:"reset"`
	ResetAt time.Time `json:"reset_at"`
}

// CollectionRequest pauses or resumes collection.
type CollectionRequest struct {
	Enabled *bool `json:"enabled"`
}

// CollectionResponse reports the collection flag after a toggle.
type CollectionResponse struct {
	Collecting bool `json:"collecting"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
