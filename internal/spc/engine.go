package spc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"castspc/internal/config"
	"castspc/internal/logging"
	"castspc/internal/measurement"
)

// Options sizes the engine's windows and bounds.
type Options struct {
	BufferSize      int
	BufferMaxAge    time.Duration
	RateWindow      time.Duration
	HistorySize     int
	UpdateInterval  time.Duration
	MinSamples      int
	RestoreLookback time.Duration
	StoreTimeout    time.Duration
	// SessionID names this engine instance. Empty generates a uuid.
	SessionID string
}

// OptionsFromConfig maps the spc and workflow config sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BufferSize:      cfg.SPC.BufferSize,
		BufferMaxAge:    cfg.BufferMaxAge(),
		RateWindow:      cfg.RateWindow(),
		HistorySize:     cfg.SPC.HistorySize,
		UpdateInterval:  cfg.UpdateInterval(),
		MinSamples:      cfg.SPC.MinSamples,
		RestoreLookback: cfg.RestoreLookback(),
		StoreTimeout:    cfg.StoreTimeout(),
	}
}

// Counters are monotonic for the life of the process; Reset leaves them alone.
type Counters struct {
	Admitted        uint64 `json:"admitted"`
	Duplicates      uint64 `json:"duplicates"`
	Malformed       uint64 `json:"malformed"`
	SourceErrors    uint64 `json:"source_errors"`
	PersistFailures uint64 `json:"persist_failures"`
	Updates         uint64 `json:"updates"`
	SkippedUpdates  uint64 `json:"skipped_updates"`
}

// PollResult describes one collection cycle.
type PollResult struct {
	Record    *measurement.Record
	Admitted  bool
	Duplicate bool
	Malformed bool
	NoData    bool
	SourceErr error
	Update    UpdateResult
}

// UpdateResult describes one chart update attempt.
type UpdateResult struct {
	// Attempted is true when the scheduler allowed (or the operator forced) an update.
	Attempted bool
	// Updated is false when the rate window held no records.
	Updated bool
	Sample  Sample
	Limits  Limits
	Zone    Zone
}

// ChartView is a read-only copy of the chart for consumers.
type ChartView struct {
	Samples []Sample `json:"samples"`
	Limits  Limits   `json:"limits"`
	Summary Summary  `json:"summary"`
}

// Status is a point-in-time view of engine state.
type Status struct {
	SessionID       string    `json:"session_id"`
	StartedAt       time.Time `json:"started_at"`
	Source          string    `json:"source"`
	Collecting      bool      `json:"collecting"`
	BufferSize      int       `json:"buffer_size"`
	BufferCapacity  int       `json:"buffer_capacity"`
	AdmittedSetSize int       `json:"admitted_set_size"`
	HistoryLen      int       `json:"history_len"`
	HistoryCapacity int       `json:"history_capacity"`
	LastUpdate      time.Time `json:"last_update,omitzero"`
	NextUpdate      time.Time `json:"next_update"`
	Provisional     bool      `json:"provisional"`
	Zone            Zone      `json:"zone"`
	LastPoll        time.Time `json:"last_poll,omitzero"`
	Counters        Counters  `json:"counters"`
}

// RestoreResult reports what Restore reloaded.
type RestoreResult struct {
	Points  int
	Samples int
}

// Engine owns the gate, buffer, history and scheduler for one session.
type Engine struct {
	source    measurement.Source
	persister Persister
	opts      Options
	logger    *slog.Logger
	sessionID string
	startedAt time.Time

	gate *Gate

	// persistMu spans each in-memory change together with its storage write,
	// so Reset cannot truncate between the two. Acquired before mu.
	persistMu sync.Mutex

	mu         sync.Mutex
	buffer     *RollingBuffer
	history    *History
	scheduler  *Scheduler
	collecting bool
	lastPoll   time.Time
	counters   Counters
}

// NewEngine constructs an engine. persister may be nil for an in-memory session.
func NewEngine(source measurement.Source, persister Persister, opts Options, logger *slog.Logger, now time.Time) *Engine {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	return &Engine{
		source:     source,
		persister:  persister,
		opts:       opts,
		logger:     logging.NewComponentLogger(logger, "spc_engine"),
		sessionID:  opts.SessionID,
		startedAt:  now,
		gate:       NewGate(),
		buffer:     NewRollingBuffer(opts.BufferSize, opts.BufferMaxAge),
		history:    NewHistory(opts.HistorySize, opts.MinSamples),
		scheduler:  NewScheduler(opts.UpdateInterval, now),
		collecting: true,
	}
}

// Restore reloads buffer points from the lookback window and the newest chart
// samples with their limits. The scheduler baseline moves to the newest
// restored sample, or stays at now when none exist.
func (e *Engine) Restore(ctx context.Context, now time.Time) (RestoreResult, error) {
	if e.persister == nil {
		return RestoreResult{}, nil
	}

	pctx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
	points, err := e.persister.LoadRecentPoints(pctx, now.Add(-e.opts.RestoreLookback))
	cancel()
	if err != nil {
		return RestoreResult{}, fmt.Errorf("load recent points: %w", err)
	}
	pctx, cancel = context.WithTimeout(ctx, e.opts.StoreTimeout)
	samples, limits, err := e.persister.LoadRecentSamples(pctx, e.opts.HistorySize)
	cancel()
	if err != nil {
		return RestoreResult{}, fmt.Errorf("load recent samples: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range points {
		fp := p.Fingerprint
		if fp == "" {
			fp = Fingerprint(p.Record)
		}
		e.gate.Seed(fp)
		e.buffer.Push(p.Record)
	}
	e.history.Restore(samples, limits)
	if latest, ok := e.history.Latest(); ok {
		e.scheduler.Reset(latest.Timestamp)
	} else {
		e.scheduler.Reset(now)
	}

	result := RestoreResult{Points: len(points), Samples: e.history.Len()}
	e.logger.Info("spc state restored",
		logging.String(logging.FieldEventType, "spc_restored"),
		logging.Int("points", result.Points),
		logging.Int("buffer_size", e.buffer.Len()),
		logging.Int("samples", result.Samples),
		logging.Bool("provisional", e.history.CurrentLimits().Provisional),
	)
	return result, nil
}

// Poll runs one collection cycle: fetch, dedup, buffer, persist, then a
// scheduled chart update. Failures are logged and counted, never returned.
func (e *Engine) Poll(ctx context.Context, now time.Time) PollResult {
	var result PollResult
	if e.Collecting() {
		result = e.collect(ctx, now)
	} else {
		result.NoData = true
	}
	result.Update = e.update(ctx, now, false)
	return result
}

// ForceUpdate appends a sample now regardless of the interval.
func (e *Engine) ForceUpdate(ctx context.Context, now time.Time) UpdateResult {
	return e.update(ctx, now, true)
}

// Reset clears the admitted set, buffer and history, then truncates storage.
func (e *Engine) Reset(ctx context.Context, now time.Time) error {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.Lock()
	e.gate.Reset()
	e.buffer.Reset()
	e.history.Reset()
	e.scheduler.Reset(now)
	e.mu.Unlock()

	e.logger.Info("spc state reset", logging.String(logging.FieldEventType, "spc_reset"))
	if e.persister == nil {
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
	defer cancel()
	if err := e.persister.Truncate(pctx); err != nil {
		e.recordPersistFailure("truncate", "", err)
		return fmt.Errorf("truncate store: %w", err)
	}
	return nil
}

// CurrentSample computes the defect rate over the buffer without touching the chart.
func (e *Engine) CurrentSample(now time.Time) (Sample, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ComputeDefectRate(e.buffer.Records(), now, e.opts.RateWindow)
}

// Chart returns the history, its limits and a summary.
func (e *Engine) Chart() ChartView {
	e.mu.Lock()
	defer e.mu.Unlock()
	samples := e.history.Samples()
	limits := e.history.CurrentLimits()
	return ChartView{Samples: samples, Limits: limits, Summary: Summarize(samples, limits)}
}

// Buffer returns copies of the buffered records, oldest first.
func (e *Engine) Buffer() []measurement.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer.Records()
}

// Status reports engine state as of now.
func (e *Engine) Status(now time.Time) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	limits := e.history.CurrentLimits()
	st := Status{
		SessionID:       e.sessionID,
		StartedAt:       e.startedAt,
		Collecting:      e.collecting,
		BufferSize:      e.buffer.Len(),
		BufferCapacity:  e.buffer.Capacity(),
		AdmittedSetSize: e.gate.Len(),
		HistoryLen:      e.history.Len(),
		HistoryCapacity: e.history.Capacity(),
		NextUpdate:      e.scheduler.NextUpdate(),
		Provisional:     limits.Provisional,
		Zone:            ZoneNoData,
		LastPoll:        e.lastPoll,
		Counters:        e.counters,
	}
	if e.source != nil {
		st.Source = e.source.Name()
	}
	if latest, ok := e.history.Latest(); ok {
		st.LastUpdate = latest.Timestamp
		st.Zone = Classify(latest.DefectRate, limits)
	}
	return st
}

// SetCollecting pauses or resumes fetching from the source. Scheduled chart
// updates continue while paused.
func (e *Engine) SetCollecting(enabled bool) {
	e.mu.Lock()
	changed := e.collecting != enabled
	e.collecting = enabled
	e.mu.Unlock()
	if changed {
		e.logger.Info("collection toggled",
			logging.String(logging.FieldEventType, "collection_toggled"),
			logging.Bool("collecting", enabled),
		)
	}
}

// Collecting reports whether Poll fetches from the source.
func (e *Engine) Collecting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collecting
}

// SessionID identifies this engine instance.
func (e *Engine) SessionID() string { return e.sessionID }

func (e *Engine) collect(ctx context.Context, now time.Time) PollResult {
	var result PollResult
	if e.source == nil {
		result.NoData = true
		return result
	}

	rec, err := e.source.FetchNext(ctx)
	e.mu.Lock()
	e.lastPoll = now
	e.mu.Unlock()
	switch {
	case errors.Is(err, measurement.ErrMalformedRecord):
		result.Malformed = true
		e.bump(func(c *Counters) { c.Malformed++ })
		attrs := []logging.Attr{
			logging.Error(err),
			logging.String(logging.FieldSource, e.source.Name()),
			logging.String(logging.FieldErrorHint, "inspect upstream payload for missing verdict or non-numeric readings"),
			logging.String(logging.FieldImpact, "measurement skipped"),
		}
		var fieldErr *measurement.FieldError
		if errors.As(err, &fieldErr) {
			attrs = append(attrs, logging.String("field", fieldErr.Field))
		}
		logging.WarnWithContext(e.logger, "malformed measurement rejected", "measurement_malformed", attrs...)
		return result
	case err != nil:
		result.SourceErr = err
		result.NoData = true
		e.bump(func(c *Counters) { c.SourceErrors++ })
		logging.WarnWithContext(e.logger, "measurement source fetch failed", "source_unavailable",
			logging.Error(err),
			logging.String(logging.FieldSource, e.source.Name()),
			logging.String(logging.FieldErrorHint, "check that the prediction service is reachable"),
			logging.String(logging.FieldImpact, "no new measurement this cycle"),
		)
		return result
	case rec == nil:
		result.NoData = true
		e.logger.Debug("no new measurement")
		return result
	}

	admitted := rec.Clone()
	admitted.Timestamp = now
	fp := Fingerprint(admitted)
	result.Record = &admitted

	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.Lock()
	if !e.gate.Admit(fp) {
		e.counters.Duplicates++
		e.mu.Unlock()
		result.Duplicate = true
		e.logger.Debug("duplicate measurement dropped",
			logging.String(logging.FieldRecordID, admitted.ID),
			logging.String("fingerprint", fp),
		)
		return result
	}
	e.buffer.Push(admitted)
	e.counters.Admitted++
	e.mu.Unlock()
	result.Admitted = true
	e.logger.Debug("measurement admitted",
		logging.String(logging.FieldRecordID, admitted.ID),
		logging.String(logging.FieldMoldCode, admitted.MoldCode),
		logging.String("verdict", admitted.Verdict.String()),
	)

	if e.persister != nil {
		pctx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
		err := e.persister.SavePoint(pctx, admitted, fp)
		cancel()
		if err != nil {
			e.recordPersistFailure("save_point", admitted.ID, err, logging.String("fingerprint", fp))
		}
	}
	return result
}

func (e *Engine) update(ctx context.Context, now time.Time, force bool) UpdateResult {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	e.mu.Lock()
	if !force && !e.scheduler.ShouldUpdate(now) {
		e.mu.Unlock()
		return UpdateResult{}
	}
	result := UpdateResult{Attempted: true}
	sample, ok := ComputeDefectRate(e.buffer.Records(), now, e.opts.RateWindow)
	if !ok {
		e.counters.SkippedUpdates++
		result.Limits = e.history.CurrentLimits()
		e.mu.Unlock()
		e.logger.Debug("chart update skipped; no records in rate window",
			logging.Bool("forced", force),
			logging.Duration("window", e.opts.RateWindow),
		)
		return result
	}
	limits := e.history.Append(sample)
	e.scheduler.MarkUpdated(now)
	e.counters.Updates++
	e.mu.Unlock()

	result.Updated = true
	result.Sample = sample
	result.Limits = limits
	result.Zone = Classify(sample.DefectRate, limits)

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "chart_updated"),
		logging.Float64("defect_rate", sample.DefectRate),
		logging.Int("total_count", sample.TotalCount),
		logging.Int("defect_count", sample.DefectCount),
		logging.Float64("mean", limits.Mean),
		logging.Float64("ucl", limits.UCL),
		logging.Float64("lcl", limits.LCL),
		logging.Bool("provisional", limits.Provisional),
		logging.String(logging.FieldZone, string(result.Zone)),
		logging.Bool("forced", force),
	}
	if result.Zone == ZoneOutOfControl && !limits.Provisional {
		attrs = append(attrs, logging.Alert("defect rate outside control limits"))
		e.logger.Warn("chart updated", logging.Args(attrs...)...)
	} else {
		e.logger.Info("chart updated", logging.Args(attrs...)...)
	}

	if e.persister != nil {
		pctx, cancel := context.WithTimeout(ctx, e.opts.StoreTimeout)
		err := e.persister.SaveSample(pctx, sample, limits)
		cancel()
		if err != nil {
			e.recordPersistFailure("save_sample", "", err, logging.Time("sample_timestamp", sample.Timestamp))
		}
	}
	return result
}

func (e *Engine) bump(fn func(*Counters)) {
	e.mu.Lock()
	fn(&e.counters)
	e.mu.Unlock()
}

func (e *Engine) recordPersistFailure(op, recordID string, err error, extra ...logging.Attr) {
	e.bump(func(c *Counters) { c.PersistFailures++ })
	attrs := append([]logging.Attr{
		logging.String("operation", op),
		logging.String(logging.FieldRecordID, recordID),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check database path permissions and disk space"),
	}, extra...)
	logging.ErrorWithContext(e.logger, "spc persistence failed", "persist_failed", attrs...)
}
