package spc_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"castspc/internal/logging"
	"castspc/internal/measurement"
	"castspc/internal/spc"
)

type scriptedSource struct {
	mu    sync.Mutex
	queue []scripted
}

type scripted struct {
	rec *measurement.Record
	err error
}

func (s *scriptedSource) push(rec *measurement.Record, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, scripted{rec: rec, err: err})
}

func (s *scriptedSource) FetchNext(context.Context) (*measurement.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, nil
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	return next.rec, next.err
}

func (s *scriptedSource) Name() string { return "scripted" }
func (s *scriptedSource) Close() error { return nil }

type memoryPersister struct {
	mu      sync.Mutex
	points  map[string]spc.StoredPoint
	samples []spc.Sample
	limits  []spc.Limits
	failAll error
}

func newMemoryPersister() *memoryPersister {
	return &memoryPersister{points: map[string]spc.StoredPoint{}}
}

func (m *memoryPersister) SavePoint(_ context.Context, rec measurement.Record, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	key := rec.ID
	if key == "" {
		key = fp
	}
	m.points[key] = spc.StoredPoint{Record: rec.Clone(), Fingerprint: fp}
	return nil
}

func (m *memoryPersister) SaveSample(_ context.Context, s spc.Sample, l spc.Limits) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll != nil {
		return m.failAll
	}
	m.samples = append(m.samples, s)
	m.limits = append(m.limits, l)
	return nil
}

func (m *memoryPersister) LoadRecentPoints(_ context.Context, since time.Time) ([]spc.StoredPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []spc.StoredPoint
	for _, p := range m.points {
		if !p.Record.Timestamp.Before(since) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Record.Timestamp.Before(out[j].Record.Timestamp) })
	return out, nil
}

func (m *memoryPersister) LoadRecentSamples(_ context.Context, limit int) ([]spc.Sample, *spc.Limits, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return nil, nil, nil
	}
	start := max(0, len(m.samples)-limit)
	out := append([]spc.Sample(nil), m.samples[start:]...)
	l := m.limits[len(m.limits)-1]
	return out, &l, nil
}

func (m *memoryPersister) Truncate(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = map[string]spc.StoredPoint{}
	m.samples = nil
	m.limits = nil
	return nil
}

func testOptions() spc.Options {
	return spc.Options{
		BufferSize:      100,
		BufferMaxAge:    24 * time.Hour,
		RateWindow:      time.Hour,
		HistorySize:     30,
		UpdateInterval:  180 * time.Second,
		MinSamples:      5,
		RestoreLookback: 24 * time.Hour,
		StoreTimeout:    time.Second,
	}
}

func measurementFor(i int, verdict measurement.Verdict) *measurement.Record {
	return &measurement.Record{
		ID:       fmt.Sprintf("DC_%d", i),
		MoldCode: "8412",
		Verdict:  verdict,
		Readings: map[string]float64{
			measurement.ReadingMoltenTemp:   700 + float64(i),
			measurement.ReadingCastPressure: 60,
		},
	}
}

func TestEngineEndToEndSevenPassThreeFail(t *testing.T) {
	src := &scriptedSource{}
	store := newMemoryPersister()
	engine := spc.NewEngine(src, store, testOptions(), logging.NewNop(), base)

	for i := 0; i < 10; i++ {
		verdict := measurement.Pass
		if i >= 7 {
			verdict = measurement.Fail
		}
		src.push(measurementFor(i, verdict), nil)
	}
	for i := 0; i < 10; i++ {
		res := engine.Poll(context.Background(), base.Add(time.Duration(i)*10*time.Second))
		if !res.Admitted {
			t.Fatalf("poll %d not admitted: %+v", i, res)
		}
		if res.Update.Attempted {
			t.Fatalf("poll %d should not reach the update interval", i)
		}
	}

	res := engine.Poll(context.Background(), base.Add(180*time.Second))
	if !res.NoData {
		t.Fatalf("expected no data on the final poll, got %+v", res)
	}
	if !res.Update.Updated {
		t.Fatalf("expected a chart update at 180s, got %+v", res.Update)
	}
	if res.Update.Sample.DefectRate != 30.0 || res.Update.Sample.TotalCount != 10 || res.Update.Sample.DefectCount != 3 {
		t.Fatalf("unexpected sample %+v", res.Update.Sample)
	}
	l := res.Update.Limits
	if l.Mean != 30 || l.Std != 0 || l.UCL != 30 || l.LCL != 30 || !l.Provisional {
		t.Fatalf("unexpected single-sample limits %+v", l)
	}

	if len(store.points) != 10 || len(store.samples) != 1 {
		t.Fatalf("expected 10 points and 1 sample persisted, got %d/%d", len(store.points), len(store.samples))
	}
	st := engine.Status(base.Add(180 * time.Second))
	if st.Counters.Admitted != 10 || st.Counters.Updates != 1 || st.HistoryLen != 1 || st.BufferSize != 10 {
		t.Fatalf("unexpected status %+v", st)
	}
	if !st.NextUpdate.Equal(base.Add(360 * time.Second)) {
		t.Fatalf("unexpected next update %s", st.NextUpdate)
	}
}

func TestEngineDropsDuplicatesAndMalformed(t *testing.T) {
	src := &scriptedSource{}
	engine := spc.NewEngine(src, nil, testOptions(), logging.NewNop(), base)

	rec := measurementFor(1, measurement.Pass)
	src.push(rec, nil)
	src.push(rec, nil)
	src.push(nil, &measurement.FieldError{Field: "verdict", Reason: "is missing"})
	src.push(nil, fmt.Errorf("%w: dial refused", measurement.ErrSourceUnavailable))

	first := engine.Poll(context.Background(), base)
	second := engine.Poll(context.Background(), base.Add(time.Second))
	third := engine.Poll(context.Background(), base.Add(2*time.Second))
	fourth := engine.Poll(context.Background(), base.Add(3*time.Second))

	if !first.Admitted || !second.Duplicate || !third.Malformed || fourth.SourceErr == nil || !fourth.NoData {
		t.Fatalf("unexpected results: %+v %+v %+v %+v", first, second, third, fourth)
	}
	st := engine.Status(base)
	if st.BufferSize != 1 || st.Counters.Duplicates != 1 || st.Counters.Malformed != 1 || st.Counters.SourceErrors != 1 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestEngineSchedulerDoesNotAdvanceOnEmptyWindow(t *testing.T) {
	src := &scriptedSource{}
	engine := spc.NewEngine(src, nil, testOptions(), logging.NewNop(), base)

	res := engine.Poll(context.Background(), base.Add(200*time.Second))
	if !res.Update.Attempted || res.Update.Updated {
		t.Fatalf("expected attempted but skipped update, got %+v", res.Update)
	}
	if st := engine.Status(base); !st.NextUpdate.Equal(base.Add(180*time.Second)) || st.Counters.SkippedUpdates != 1 {
		t.Fatalf("baseline must not advance on an empty window: %+v", st)
	}

	src.push(measurementFor(1, measurement.Fail), nil)
	res = engine.Poll(context.Background(), base.Add(201*time.Second))
	if !res.Update.Updated || res.Update.Sample.DefectRate != 100 {
		t.Fatalf("expected the next eligible poll to update, got %+v", res.Update)
	}
}

func TestEngineForceUpdateBypassesInterval(t *testing.T) {
	src := &scriptedSource{}
	engine := spc.NewEngine(src, nil, testOptions(), logging.NewNop(), base)
	src.push(measurementFor(1, measurement.Pass), nil)
	engine.Poll(context.Background(), base.Add(time.Second))

	res := engine.ForceUpdate(context.Background(), base.Add(2*time.Second))
	if !res.Updated || res.Sample.DefectRate != 0 {
		t.Fatalf("expected forced update, got %+v", res)
	}
	if st := engine.Status(base); !st.NextUpdate.Equal(base.Add(182 * time.Second)) {
		t.Fatalf("forced update should move the baseline, next=%s", st.NextUpdate)
	}
	empty := spc.NewEngine(&scriptedSource{}, nil, testOptions(), logging.NewNop(), base)
	if res := empty.ForceUpdate(context.Background(), base); res.Updated {
		t.Fatal("forced update on an empty buffer must not append")
	}
}

func TestEnginePersistFailureKeepsMemoryState(t *testing.T) {
	src := &scriptedSource{}
	store := newMemoryPersister()
	store.failAll = errors.New("disk full")
	engine := spc.NewEngine(src, store, testOptions(), logging.NewNop(), base)

	src.push(measurementFor(1, measurement.Fail), nil)
	res := engine.Poll(context.Background(), base.Add(180*time.Second))
	if !res.Admitted || !res.Update.Updated {
		t.Fatalf("expected admission and update despite store failure: %+v", res)
	}
	st := engine.Status(base)
	if st.BufferSize != 1 || st.HistoryLen != 1 || st.Counters.PersistFailures != 2 {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestEngineRestartRestoresPointsAndSamples(t *testing.T) {
	store := newMemoryPersister()
	src := &scriptedSource{}
	opts := testOptions()
	opts.UpdateInterval = time.Minute
	first := spc.NewEngine(src, store, opts, logging.NewNop(), base)

	now := base
	for i := 0; i < 5; i++ {
		verdict := measurement.Pass
		if i%2 == 0 {
			verdict = measurement.Fail
		}
		src.push(measurementFor(i, verdict), nil)
		now = base.Add(time.Duration(i+1) * time.Minute)
		if res := first.Poll(context.Background(), now); !res.Update.Updated {
			t.Fatalf("poll %d expected update: %+v", i, res.Update)
		}
	}
	before := first.Chart()
	beforeBuffer := first.Buffer()

	second := spc.NewEngine(src, store, opts, logging.NewNop(), now.Add(time.Second))
	restored, err := second.Restore(context.Background(), now.Add(time.Second))
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Points != 5 || restored.Samples != 5 {
		t.Fatalf("unexpected restore result %+v", restored)
	}

	after := second.Chart()
	if len(after.Samples) != len(before.Samples) {
		t.Fatalf("sample count mismatch: %d vs %d", len(after.Samples), len(before.Samples))
	}
	for i := range before.Samples {
		if !after.Samples[i].Timestamp.Equal(before.Samples[i].Timestamp) || after.Samples[i].DefectRate != before.Samples[i].DefectRate {
			t.Fatalf("sample %d differs: %+v vs %+v", i, after.Samples[i], before.Samples[i])
		}
	}
	if after.Limits.Mean != before.Limits.Mean || after.Limits.UCL != before.Limits.UCL || after.Limits.Provisional != before.Limits.Provisional {
		t.Fatalf("limits differ: %+v vs %+v", after.Limits, before.Limits)
	}
	afterBuffer := second.Buffer()
	for i := range beforeBuffer {
		if afterBuffer[i].ID != beforeBuffer[i].ID || !afterBuffer[i].Timestamp.Equal(beforeBuffer[i].Timestamp) {
			t.Fatalf("buffer %d differs: %+v vs %+v", i, afterBuffer[i], beforeBuffer[i])
		}
	}

	// Restored fingerprints keep rejecting the same upstream records.
	src.push(measurementFor(4, measurement.Fail), nil)
	if res := second.Poll(context.Background(), now.Add(2*time.Second)); !res.Duplicate {
		t.Fatalf("expected restored gate to reject duplicate, got %+v", res)
	}
	// The scheduler resumes from the newest restored sample.
	if st := second.Status(now); !st.NextUpdate.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected next update after restore: %s", st.NextUpdate)
	}
}

func TestEngineResetClearsStateAndStorage(t *testing.T) {
	src := &scriptedSource{}
	store := newMemoryPersister()
	engine := spc.NewEngine(src, store, testOptions(), logging.NewNop(), base)
	rec := measurementFor(1, measurement.Fail)
	src.push(rec, nil)
	engine.Poll(context.Background(), base.Add(180*time.Second))

	if err := engine.Reset(context.Background(), base.Add(181*time.Second)); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	st := engine.Status(base)
	if st.BufferSize != 0 || st.HistoryLen != 0 || st.AdmittedSetSize != 0 {
		t.Fatalf("expected empty state after reset: %+v", st)
	}
	if len(store.points) != 0 || len(store.samples) != 0 {
		t.Fatal("expected storage truncated")
	}
	src.push(rec, nil)
	if res := engine.Poll(context.Background(), base.Add(182*time.Second)); !res.Admitted {
		t.Fatalf("expected record to be admissible again after reset: %+v", res)
	}
}

// blockingPersister parks inside SavePoint until release is closed.
type blockingPersister struct {
	*memoryPersister
	entered chan struct{}
	release chan struct{}
}

func (b *blockingPersister) SavePoint(ctx context.Context, rec measurement.Record, fp string) error {
	close(b.entered)
	<-b.release
	return b.memoryPersister.SavePoint(ctx, rec, fp)
}

func TestEngineResetWaitsForInFlightSave(t *testing.T) {
	src := &scriptedSource{}
	store := &blockingPersister{
		memoryPersister: newMemoryPersister(),
		entered:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	engine := spc.NewEngine(src, store, testOptions(), logging.NewNop(), base)
	src.push(measurementFor(1, measurement.Fail), nil)

	polled := make(chan struct{})
	go func() {
		defer close(polled)
		engine.Poll(context.Background(), base.Add(time.Second))
	}()
	<-store.entered

	resetDone := make(chan error, 1)
	go func() {
		resetDone <- engine.Reset(context.Background(), base.Add(2*time.Second))
	}()
	select {
	case err := <-resetDone:
		t.Fatalf("reset finished while a save was in flight (err=%v)", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	<-polled
	if err := <-resetDone; err != nil {
		t.Fatalf("Reset: %v", err)
	}

	if n := len(store.points); n != 0 {
		t.Fatalf("expected no stored points after reset, got %d", n)
	}
	restarted := spc.NewEngine(&scriptedSource{}, store.memoryPersister, testOptions(), logging.NewNop(), base)
	if _, err := restarted.Restore(context.Background(), base.Add(3*time.Second)); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if st := restarted.Status(base.Add(3 * time.Second)); st.BufferSize != 0 {
		t.Fatalf("reset points came back after restart: buffer=%d", st.BufferSize)
	}
}

func TestEnginePausedCollectionSkipsFetch(t *testing.T) {
	src := &scriptedSource{}
	engine := spc.NewEngine(src, nil, testOptions(), logging.NewNop(), base)
	engine.SetCollecting(false)
	src.push(measurementFor(1, measurement.Pass), nil)

	res := engine.Poll(context.Background(), base.Add(time.Second))
	if res.Admitted || !res.NoData {
		t.Fatalf("expected paused poll to skip fetch: %+v", res)
	}
	engine.SetCollecting(true)
	if res := engine.Poll(context.Background(), base.Add(2*time.Second)); !res.Admitted {
		t.Fatalf("expected resumed poll to admit: %+v", res)
	}
}

func TestEngineCurrentSampleDoesNotMutateChart(t *testing.T) {
	src := &scriptedSource{}
	engine := spc.NewEngine(src, nil, testOptions(), logging.NewNop(), base)
	if _, ok := engine.CurrentSample(base); ok {
		t.Fatal("expected no current sample on an empty buffer")
	}
	src.push(measurementFor(1, measurement.Fail), nil)
	src.push(measurementFor(2, measurement.Pass), nil)
	engine.Poll(context.Background(), base.Add(time.Second))
	engine.Poll(context.Background(), base.Add(2*time.Second))

	sample, ok := engine.CurrentSample(base.Add(3 * time.Second))
	if !ok || sample.DefectRate != 50 {
		t.Fatalf("unexpected current sample %+v", sample)
	}
	if engine.Chart().Summary.Samples != 0 {
		t.Fatal("CurrentSample must not append to the chart")
	}
}
