package spc_test

import (
	"math"
	"sync"
	"testing"
	"time"

	"castspc/internal/measurement"
	"castspc/internal/spc"
)

var base = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func record(id string, verdict measurement.Verdict, ts time.Time) measurement.Record {
	return measurement.Record{
		ID:        id,
		Timestamp: ts,
		MoldCode:  "8412",
		Verdict:   verdict,
		Readings: map[string]float64{
			measurement.ReadingMoltenTemp:   700,
			measurement.ReadingCastPressure: 60.5,
		},
	}
}

func TestFingerprintIgnoresTimestampAndUnrelatedReadings(t *testing.T) {
	a := record("r1", measurement.Pass, base)
	b := a.Clone()
	b.Timestamp = base.Add(time.Hour)
	b.Readings[measurement.ReadingSleeveTemperature] = 200
	b.RegistrationTime = "later"
	if spc.Fingerprint(a) != spc.Fingerprint(b) {
		t.Fatal("expected fingerprint to ignore timestamp and non-identity fields")
	}

	for name, mutate := range map[string]func(*measurement.Record){
		"id":            func(r *measurement.Record) { r.ID = "r2" },
		"mold":          func(r *measurement.Record) { r.MoldCode = "8573" },
		"verdict":       func(r *measurement.Record) { r.Verdict = measurement.Fail },
		"molten_temp":   func(r *measurement.Record) { r.Readings[measurement.ReadingMoltenTemp] = 700.1 },
		"cast_pressure": func(r *measurement.Record) { r.Readings[measurement.ReadingCastPressure] = 60 },
	} {
		c := a.Clone()
		mutate(&c)
		if spc.Fingerprint(a) == spc.Fingerprint(c) {
			t.Fatalf("expected %s to change the fingerprint", name)
		}
	}
	if len(spc.Fingerprint(a)) != 32 {
		t.Fatalf("expected md5 hex digest, got %q", spc.Fingerprint(a))
	}
}

func TestGateAdmitIsIdempotent(t *testing.T) {
	g := spc.NewGate()
	if !g.Admit("fp") {
		t.Fatal("first admit should succeed")
	}
	for i := 0; i < 3; i++ {
		if g.Admit("fp") {
			t.Fatal("repeat admit should be rejected")
		}
	}
	if g.Len() != 1 {
		t.Fatalf("expected 1 fingerprint, got %d", g.Len())
	}
	g.Seed("a", "b", "")
	if !g.Contains("a") || g.Len() != 3 {
		t.Fatalf("unexpected seeded gate len %d", g.Len())
	}
	g.Reset()
	if g.Len() != 0 || !g.Admit("fp") {
		t.Fatal("expected reset to forget fingerprints")
	}
}

func TestGateConcurrentAdmitSingleWinner(t *testing.T) {
	g := spc.NewGate()
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Admit("same") {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one admit, got %d", wins)
	}
}

func TestRollingBufferBoundAndFIFO(t *testing.T) {
	buf := spc.NewRollingBuffer(3, 0)
	for i := 0; i < 5; i++ {
		buf.Push(record(string(rune('a'+i)), measurement.Pass, base.Add(time.Duration(i)*time.Second)))
		if buf.Len() > 3 {
			t.Fatalf("buffer exceeded bound: %d", buf.Len())
		}
	}
	got := buf.Records()
	want := []string{"c", "d", "e"}
	for i, rec := range got {
		if rec.ID != want[i] {
			t.Fatalf("position %d: got %q want %q", i, rec.ID, want[i])
		}
	}
}

func TestRollingBufferEvictsByAge(t *testing.T) {
	buf := spc.NewRollingBuffer(10, time.Hour)
	buf.Push(record("old", measurement.Pass, base))
	buf.Push(record("mid", measurement.Pass, base.Add(30*time.Minute)))
	evicted := buf.Push(record("new", measurement.Pass, base.Add(90*time.Minute)))
	if evicted != 1 || buf.Len() != 2 {
		t.Fatalf("expected old record evicted, evicted=%d len=%d", evicted, buf.Len())
	}
	if buf.Records()[0].ID != "mid" {
		t.Fatalf("unexpected head %q", buf.Records()[0].ID)
	}
}

func TestRollingBufferSnapshotIsReadOnlyCopy(t *testing.T) {
	buf := spc.NewRollingBuffer(5, 0)
	buf.Push(record("a", measurement.Pass, base))
	buf.Push(record("b", measurement.Pass, base.Add(2*time.Hour)))

	snap := buf.Snapshot(base.Add(2*time.Hour), time.Hour)
	if len(snap) != 1 || snap[0].ID != "b" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	snap[0].Readings[measurement.ReadingMoltenTemp] = -1
	if buf.Records()[1].Reading(measurement.ReadingMoltenTemp) != 700 {
		t.Fatal("snapshot mutation leaked into buffer")
	}
	if buf.Len() != 2 {
		t.Fatal("snapshot must not evict")
	}
}

func TestComputeDefectRate(t *testing.T) {
	now := base.Add(2 * time.Hour)
	records := []measurement.Record{
		record("stale", measurement.Fail, now.Add(-61*time.Minute)),
		record("a", measurement.Fail, now.Add(-60*time.Minute)),
		record("b", measurement.Pass, now.Add(-10*time.Minute)),
		record("c", measurement.Pass, now.Add(-time.Minute)),
		record("d", measurement.Fail, now),
		record("future", measurement.Fail, now.Add(time.Second)),
	}
	sample, ok := spc.ComputeDefectRate(records, now, time.Hour)
	if !ok {
		t.Fatal("expected a sample")
	}
	if sample.TotalCount != 5 || sample.DefectCount != 3 || sample.DefectRate != 60 {
		t.Fatalf("unexpected sample %+v", sample)
	}
	if !sample.Timestamp.Equal(now) {
		t.Fatalf("expected sample timestamp at now, got %s", sample.Timestamp)
	}

	if _, ok := spc.ComputeDefectRate(records[:1], now, time.Hour); ok {
		t.Fatal("expected no sample for empty window")
	}
	if _, ok := spc.ComputeDefectRate(nil, now, time.Hour); ok {
		t.Fatal("expected no sample for empty buffer")
	}
}

func TestComputeLimitsPopulationStdAndFloors(t *testing.T) {
	l := spc.ComputeLimits([]float64{10, 20, 30, 40}, 5)
	if l.Mean != 25 {
		t.Fatalf("unexpected mean %v", l.Mean)
	}
	wantStd := math.Sqrt(125)
	if math.Abs(l.Std-wantStd) > 1e-9 {
		t.Fatalf("expected population std %v, got %v", wantStd, l.Std)
	}
	if l.LCL != 0 || l.LSL != 25-2*wantStd {
		t.Fatalf("unexpected lower bands lcl=%v lsl=%v", l.LCL, l.LSL)
	}
	if math.Abs(l.UCL-(25+3*wantStd)) > 1e-9 || math.Abs(l.USL-(25+2*wantStd)) > 1e-9 {
		t.Fatalf("unexpected upper bands %+v", l)
	}
	if !l.Provisional || l.SampleCount != 4 {
		t.Fatalf("expected provisional with 4 samples: %+v", l)
	}

	for _, rates := range [][]float64{{0, 0, 100}, {5, 95}, {1}, {0, 0, 0, 0, 0, 100}} {
		l := spc.ComputeLimits(rates, 5)
		if l.LCL < 0 || l.LSL < 0 {
			t.Fatalf("negative lower band for %v: %+v", rates, l)
		}
	}
	if !spc.ComputeLimits(nil, 5).Provisional {
		t.Fatal("empty limits must be provisional")
	}
}

func TestHistoryKeepsMostRecent(t *testing.T) {
	h := spc.NewHistory(3, 2)
	for i := 1; i <= 5; i++ {
		h.Append(spc.Sample{Timestamp: base.Add(time.Duration(i) * time.Minute), DefectRate: float64(i * 10)})
	}
	samples := h.Samples()
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	for i, want := range []float64{30, 40, 50} {
		if samples[i].DefectRate != want {
			t.Fatalf("position %d: got %v want %v", i, samples[i].DefectRate, want)
		}
	}
	limits := h.CurrentLimits()
	if limits.Mean != 40 || limits.SampleCount != 3 || limits.Provisional {
		t.Fatalf("limits should cover retained samples only: %+v", limits)
	}
	h.Reset()
	if h.Len() != 0 || !h.CurrentLimits().Provisional {
		t.Fatal("expected reset history to be empty and provisional")
	}
}

func TestHistoryRestoreUsesStoredLimits(t *testing.T) {
	h := spc.NewHistory(30, 5)
	samples := []spc.Sample{
		{Timestamp: base, DefectRate: 10},
		{Timestamp: base.Add(time.Minute), DefectRate: 20},
	}
	stored := spc.Limits{Mean: 15, Std: 5, UCL: 30, LCL: 0, USL: 25, LSL: 5}
	h.Restore(samples, &stored)
	got := h.CurrentLimits()
	if got.Mean != 15 || got.UCL != 30 || got.SampleCount != 2 || !got.Provisional {
		t.Fatalf("unexpected restored limits %+v", got)
	}

	h.Restore(samples, nil)
	if h.CurrentLimits().Mean != 15 || h.CurrentLimits().Std != 5 {
		t.Fatalf("expected recomputed limits, got %+v", h.CurrentLimits())
	}
}

func TestClassifyAndSummarize(t *testing.T) {
	l := spc.Limits{Mean: 20, Std: 5, UCL: 35, LCL: 5, USL: 30, LSL: 10, SampleCount: 10}
	cases := map[float64]spc.Zone{
		20: spc.ZoneInControl,
		30: spc.ZoneInControl,
		31: spc.ZoneWarning,
		8:  spc.ZoneWarning,
		36: spc.ZoneOutOfControl,
		4:  spc.ZoneOutOfControl,
	}
	for rate, want := range cases {
		if got := spc.Classify(rate, l); got != want {
			t.Fatalf("Classify(%v) = %s, want %s", rate, got, want)
		}
	}
	if spc.Classify(10, spc.Limits{}) != spc.ZoneNoData {
		t.Fatal("expected no_data zone without samples")
	}

	summary := spc.Summarize([]spc.Sample{{DefectRate: 20}, {DefectRate: 31}, {DefectRate: 40}}, l)
	if summary.OutOfControl != 1 || summary.Warning != 1 || summary.CurrentZone != spc.ZoneOutOfControl {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.MinRate != 20 || summary.MaxRate != 40 || summary.AverageRate != 91.0/3 {
		t.Fatalf("unexpected summary stats %+v", summary)
	}
	if empty := spc.Summarize(nil, spc.Limits{}); empty.CurrentZone != spc.ZoneNoData || empty.Samples != 0 {
		t.Fatalf("unexpected empty summary %+v", empty)
	}
}

func TestSchedulerIntervalBoundary(t *testing.T) {
	s := spc.NewScheduler(180*time.Second, base)
	if s.ShouldUpdate(base.Add(179 * time.Second)) {
		t.Fatal("179s must not trigger")
	}
	if !s.ShouldUpdate(base.Add(180 * time.Second)) {
		t.Fatal("180s must trigger")
	}
	s.MarkUpdated(base.Add(200 * time.Second))
	if s.ShouldUpdate(base.Add(379 * time.Second)) {
		t.Fatal("baseline should have moved to the update time")
	}
	if !s.NextUpdate().Equal(base.Add(380 * time.Second)) {
		t.Fatalf("unexpected next update %s", s.NextUpdate())
	}
}
