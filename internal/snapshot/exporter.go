package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"castspc/internal/config"
	"castspc/internal/logging"
	"castspc/internal/measurement"
)

// BufferFunc returns the records to export, oldest first.
type BufferFunc func() []measurement.Record

// Exporter writes buffer snapshots on a cron schedule and prunes old files.
type Exporter struct {
	dir           string
	format        string
	retentionDays int
	schedule      cron.Schedule
	buffer        BufferFunc
	logger        *slog.Logger
	clock         func() time.Time

	mu       sync.Mutex
	lastPath string
	lastErr  error
	written  int
}

// NewExporter validates the configured schedule and returns an exporter for buffer.
func NewExporter(cfg *config.Config, buffer BufferFunc, logger *slog.Logger) (*Exporter, error) {
	if buffer == nil {
		return nil, fmt.Errorf("snapshot exporter requires a buffer source")
	}
	schedule, err := cron.ParseStandard(strings.TrimSpace(cfg.Snapshot.Schedule))
	if err != nil {
		return nil, fmt.Errorf("parse snapshot schedule %q: %w", cfg.Snapshot.Schedule, err)
	}
	return &Exporter{
		dir:           cfg.Paths.SnapshotDir,
		format:        cfg.Snapshot.Format,
		retentionDays: cfg.Snapshot.RetentionDays,
		schedule:      schedule,
		buffer:        buffer,
		logger:        logging.NewComponentLogger(logger, "snapshot"),
		clock:         time.Now,
	}, nil
}

// Next returns the first scheduled export after now.
func (e *Exporter) Next(now time.Time) time.Time {
	return e.schedule.Next(now)
}

// Run exports on schedule until ctx is cancelled.
func (e *Exporter) Run(ctx context.Context) {
	for {
		now := e.clock()
		next := e.schedule.Next(now)
		if next.IsZero() {
			e.logger.Warn("snapshot schedule has no future runs; exporter stopped",
				logging.String(logging.FieldEventType, "snapshot_schedule_exhausted"),
			)
			return
		}
		e.logger.Debug("next snapshot scheduled", logging.Time("next", next))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		_, _ = e.Export(e.clock())
	}
}

// Export writes one snapshot at now and prunes expired files. Empty buffers
// are skipped and return an empty path.
func (e *Exporter) Export(now time.Time) (string, error) {
	records := e.buffer()
	if len(records) == 0 {
		e.logger.Debug("snapshot skipped; buffer empty")
		return "", nil
	}
	path, err := Write(e.dir, e.format, records, now)

	e.mu.Lock()
	e.lastErr = err
	if err == nil {
		e.lastPath = path
		e.written++
	}
	e.mu.Unlock()

	if err != nil {
		logging.WarnWithContext(e.logger, "snapshot export failed", "snapshot_failed",
			logging.Error(err),
			logging.String("dir", e.dir),
			logging.String(logging.FieldErrorHint, "check snapshot_dir permissions and free space"),
			logging.String(logging.FieldImpact, "buffer snapshot not written this cycle"),
		)
		return "", err
	}
	e.logger.Info("buffer snapshot written",
		logging.String(logging.FieldEventType, "snapshot_written"),
		logging.String("path", path),
		logging.Int("records", len(records)),
	)

	if removed := logging.CleanupOldFiles(e.logger, now, e.retentionDays,
		logging.RetentionTarget{Dir: e.dir, Pattern: Pattern(), Exclude: []string{path}},
	); removed > 0 {
		e.logger.Info("old snapshots pruned",
			logging.String(logging.FieldEventType, "snapshot_pruned"),
			logging.Int("removed", removed),
		)
	}
	return path, nil
}

// LastExport reports the most recent file written and the last error.
func (e *Exporter) LastExport() (string, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPath, e.written, e.lastErr
}
