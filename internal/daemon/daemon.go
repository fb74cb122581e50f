package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"castspc/internal/api"
	"castspc/internal/config"
	"castspc/internal/logging"
	"castspc/internal/snapshot"
	"castspc/internal/spc"
	"castspc/internal/store"
	"castspc/internal/workflow"
)

// Daemon runs the poll loop, snapshot exporter and API server under a single-instance lock.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	engine   *spc.Engine
	workflow *workflow.Manager
	exporter *snapshot.Exporter
	api      *apiServer
	logPath  string
	clock    func() time.Time

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	bg      sync.WaitGroup
}

// Option configures optional Daemon behavior.
type Option func(*Daemon)

// WithClock overrides time.Now for every engine call the daemon makes.
func WithClock(clock func() time.Time) Option {
	return func(d *Daemon) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithLogPath records the daemon log file reported by Status.
func WithLogPath(path string) Option {
	return func(d *Daemon) {
		d.logPath = path
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, engine *spc.Engine, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || st == nil || engine == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, engine, and logger")
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		engine:   engine,
		logPath:  filepath.Join(cfg.Paths.LogDir, "castspc.log"),
		clock:    time.Now,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.workflow = workflow.NewManager(engine, cfg.PollInterval(), logger, workflow.WithClock(d.clock))

	if cfg.Snapshot.Enabled {
		exporter, err := snapshot.NewExporter(cfg, engine.Buffer, logger)
		if err != nil {
			return nil, fmt.Errorf("snapshot exporter: %w", err)
		}
		d.exporter = exporter
	}

	apiSrv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = apiSrv
	return d, nil
}

// Start acquires the daemon lock, restores engine state and launches the
// poll loop, snapshot exporter and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another castspc daemon instance is already running")
	}

	restored, err := d.engine.Restore(ctx, d.clock())
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("restore spc state: %w", err)
	}
	d.engine.SetCollecting(d.cfg.Workflow.CollectOnStart)

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}
	if d.exporter != nil {
		d.bg.Add(1)
		go func() {
			defer d.bg.Done()
			d.exporter.Run(d.ctx)
		}()
	}

	d.running.Store(true)
	d.logger.Info("castspc daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("api", d.APIAddress()),
		logging.Int("restored_points", restored.Points),
		logging.Int("restored_samples", restored.Samples),
		logging.Bool("collecting", d.cfg.Workflow.CollectOnStart),
	)
	return nil
}

func (d *Daemon) abortStart() {
	d.cancel()
	d.ctx = nil
	d.cancel = nil
	_ = d.lock.Unlock()
}

// Stop halts background work, writes a final snapshot and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.api.stop()
	d.bg.Wait()
	if d.exporter != nil {
		_, _ = d.exporter.Export(d.clock())
	}
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String("lock", d.lockPath),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("castspc daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddress returns the bound API address, or "" when the API is not listening.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Handler exposes the API routes without a listener.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler()
}

// Status returns the current daemon status.
func (d *Daemon) Status() api.DaemonStatus {
	wf := d.workflow.Status()
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DBPath:       d.store.Path(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Workflow: api.WorkflowStatus{
			Running:   wf.Running,
			Cycles:    wf.Cycles,
			Panics:    wf.Panics,
			LastCycle: wf.LastCycle,
			LastError: wf.LastError,
		},
		Snapshot: api.SnapshotStatus{Enabled: d.exporter != nil},
		Engine:   d.engine.Status(d.clock()),
	}
	if d.exporter != nil {
		last, written, err := d.exporter.LastExport()
		status.Snapshot.Format = d.cfg.Snapshot.Format
		status.Snapshot.Dir = d.cfg.Paths.SnapshotDir
		status.Snapshot.LastPath = last
		status.Snapshot.Written = written
		status.Snapshot.NextRun = d.exporter.Next(d.clock())
		if err != nil {
			status.Snapshot.LastError = err.Error()
		}
	}
	return status
}

// Chart returns the current control chart.
func (d *Daemon) Chart() spc.ChartView {
	return d.engine.Chart()
}

// CurrentSample computes the defect rate over the rate window without touching the chart.
func (d *Daemon) CurrentSample() (api.SampleResponse, bool) {
	sample, ok := d.engine.CurrentSample(d.clock())
	if !ok {
		return api.SampleResponse{}, false
	}
	return api.NewSampleResponse(sample, d.engine.Chart().Limits), true
}

// Stats summarizes stored chart samples and verdict counts over the last hours.
func (d *Daemon) Stats(ctx context.Context, hours int) (api.StatsResponse, error) {
	hours = api.ClampStatsHours(hours)
	since := d.clock().Add(-time.Duration(hours) * time.Hour)
	stats, err := d.store.SampleStats(ctx, since)
	if err != nil {
		return api.StatsResponse{}, err
	}
	passed, failed, err := d.store.VerdictCounts(ctx, since)
	if err != nil {
		return api.StatsResponse{}, err
	}
	return api.StatsResponse{Hours: hours, Since: since, Stats: stats, Passed: passed, Failed: failed}, nil
}

// Samples lists stored chart samples from the last hours, including those
// that have rotated out of the in-memory history.
func (d *Daemon) Samples(ctx context.Context, hours int) (api.SamplesResponse, error) {
	hours = api.ClampStatsHours(hours)
	since := d.clock().Add(-time.Duration(hours) * time.Hour)
	samples, err := d.store.SamplesSince(ctx, since)
	if err != nil {
		return api.SamplesResponse{}, err
	}
	if samples == nil {
		samples = []spc.Sample{}
	}
	return api.SamplesResponse{Hours: hours, Since: since, Samples: samples}, nil
}

// ForceUpdate appends a chart sample now regardless of the update interval.
func (d *Daemon) ForceUpdate(ctx context.Context) api.UpdateResponse {
	return api.FromUpdateResult(d.engine.ForceUpdate(ctx, d.clock()))
}

// Reset clears all SPC state, in memory and on disk.
func (d *Daemon) Reset(ctx context.Context) (api.ResetResponse, error) {
	now := d.clock()
	if err := d.engine.Reset(ctx, now); err != nil {
		return api.ResetResponse{}, err
	}
	return api.ResetResponse{Reset: true, ResetAt: now}, nil
}

// SetCollecting pauses or resumes measurement collection.
func (d *Daemon) SetCollecting(enabled bool) api.CollectionResponse {
	d.engine.SetCollecting(enabled)
	return api.CollectionResponse{Collecting: d.engine.Collecting()}
}
