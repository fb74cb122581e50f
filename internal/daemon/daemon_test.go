package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"castspc/internal/api"
	"castspc/internal/config"
	"castspc/internal/logging"
	"castspc/internal/measurement"
	"castspc/internal/spc"
	"castspc/internal/testsupport"
)

var epoch = time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestDaemon(t *testing.T, cfg *config.Config, clock *testClock) *Daemon {
	t.Helper()
	st := testsupport.MustOpenStore(t, cfg)
	source := measurement.NewSimulatedSource(measurement.SimulatedOptions{
		FailRatio: cfg.Source.FailRatio,
		Seed:      cfg.Source.Seed,
		MoldCodes: cfg.Source.MoldCodes,
	})
	engine := spc.NewEngine(source, st, spc.OptionsFromConfig(cfg), logging.NewNop(), clock.Now())
	d, err := New(cfg, st, engine, logging.NewNop(), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Stop() })
	return d
}

func serve(t *testing.T, d *Daemon, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	d.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %T: %v (body=%s)", out, err, w.Body.String())
	}
	return out
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := &testClock{now: epoch}
	d := newTestDaemon(t, cfg, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !d.Status().Running {
		t.Fatal("expected daemon to report running")
	}
	if d.APIAddress() == "" {
		t.Fatal("expected api listener")
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	other := newTestDaemon(t, cfg, clock)
	if err := other.Start(ctx); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
	if err := other.Start(ctx); err != nil {
		t.Fatalf("start after release: %v", err)
	}
}

func TestAPIChartLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithFailRatio(1))
	clock := &testClock{now: epoch}
	d := newTestDaemon(t, cfg, clock)
	ctx := context.Background()

	if w := serve(t, d, http.MethodGet, "/api/sample", "", ""); w.Code != http.StatusNoContent {
		t.Fatalf("sample before data = %d", w.Code)
	}
	skipped := decode[api.UpdateResponse](t, serve(t, d, http.MethodPost, "/api/chart/update", "", ""))
	if skipped.Updated || skipped.Message == "" {
		t.Fatalf("expected skipped update, got %+v", skipped)
	}

	for range 3 {
		clock.now = clock.now.Add(5 * time.Second)
		if _, err := d.workflow.RunCycle(ctx); err != nil {
			t.Fatalf("RunCycle: %v", err)
		}
	}

	w := serve(t, d, http.MethodGet, "/api/sample", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("sample = %d", w.Code)
	}
	sample := decode[api.SampleResponse](t, w)
	if sample.Sample.TotalCount != 3 || sample.Sample.DefectRate != 100 {
		t.Fatalf("unexpected sample %+v", sample)
	}

	updated := decode[api.UpdateResponse](t, serve(t, d, http.MethodPost, "/api/chart/update", "", ""))
	if !updated.Updated || updated.Sample == nil || updated.Sample.DefectRate != 100 {
		t.Fatalf("unexpected update %+v", updated)
	}

	chart := decode[api.ChartResponse](t, serve(t, d, http.MethodGet, "/api/chart", "", ""))
	if len(chart.Samples) != 1 || chart.Limits.Mean != 100 || !chart.Limits.Provisional {
		t.Fatalf("unexpected chart %+v", chart)
	}

	stats := decode[api.StatsResponse](t, serve(t, d, http.MethodGet, "/api/stats?hours=1", "", ""))
	if stats.Hours != 1 || stats.Stats.Count != 1 || stats.Failed != 3 || stats.Passed != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	listed := decode[api.SamplesResponse](t, serve(t, d, http.MethodGet, "/api/samples?hours=1", "", ""))
	if listed.Hours != 1 || len(listed.Samples) != 1 || listed.Samples[0].DefectRate != 100 {
		t.Fatalf("unexpected samples %+v", listed)
	}

	status := decode[api.DaemonStatus](t, serve(t, d, http.MethodGet, "/api/status", "", ""))
	if status.Engine.BufferSize != 3 || status.Engine.HistoryLen != 1 || status.Workflow.Cycles != 3 {
		t.Fatalf("unexpected status %+v", status)
	}
	if !status.Snapshot.Enabled || status.Snapshot.NextRun.IsZero() {
		t.Fatalf("expected snapshot status, got %+v", status.Snapshot)
	}

	reset := decode[api.ResetResponse](t, serve(t, d, http.MethodPost, "/api/reset", "", ""))
	if !reset.Reset {
		t.Fatalf("unexpected reset %+v", reset)
	}
	chart = decode[api.ChartResponse](t, serve(t, d, http.MethodGet, "/api/chart", "", ""))
	if len(chart.Samples) != 0 {
		t.Fatalf("expected empty chart after reset, got %d samples", len(chart.Samples))
	}
}

func TestAPICollectionToggle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg, &testClock{now: epoch})

	resp := decode[api.CollectionResponse](t, serve(t, d, http.MethodPost, "/api/collection", `{"enabled":false}`, ""))
	if resp.Collecting {
		t.Fatal("expected collection paused")
	}
	if d.engine.Collecting() {
		t.Fatal("engine still collecting")
	}
	for _, body := range []string{`{}`, `not json`, `{"enabled":true,"extra":1}`} {
		if w := serve(t, d, http.MethodPost, "/api/collection", body, ""); w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: code %d", body, w.Code)
		}
	}
}

func TestAPIAuthOnMutatingEndpoints(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("s3cret"))
	d := newTestDaemon(t, cfg, &testClock{now: epoch})

	w := serve(t, d, http.MethodPost, "/api/reset", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("reset without token = %d", w.Code)
	}
	errResp := decode[api.ErrorResponse](t, w)
	if errResp.Error != "unauthorized" || errResp.RequestID == "" {
		t.Fatalf("unexpected error body %+v", errResp)
	}
	if w := serve(t, d, http.MethodPost, "/api/reset", "", "wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("reset with wrong token = %d", w.Code)
	}
	if w := serve(t, d, http.MethodPost, "/api/reset", "", "s3cret"); w.Code != http.StatusOK {
		t.Fatalf("reset with token = %d", w.Code)
	}
	if w := serve(t, d, http.MethodGet, "/api/status", "", ""); w.Code != http.StatusOK {
		t.Fatalf("status should not require auth, got %d", w.Code)
	}
}

func TestAPIRejectsBadInput(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg, &testClock{now: epoch})

	if w := serve(t, d, http.MethodGet, "/api/stats?hours=abc", "", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad hours = %d", w.Code)
	}
	if w := serve(t, d, http.MethodGet, "/api/samples?hours=-2", "", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("negative hours = %d", w.Code)
	}
	listed := decode[api.SamplesResponse](t, serve(t, d, http.MethodGet, "/api/samples", "", ""))
	if listed.Hours != api.DefaultStatsHours || listed.Samples == nil || len(listed.Samples) != 0 {
		t.Fatalf("expected empty sample list for a day, got %+v", listed)
	}
	if w := serve(t, d, http.MethodGet, "/api/reset", "", ""); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET reset = %d", w.Code)
	}
	w := serve(t, d, http.MethodGet, "/api/status", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := newTestDaemon(t, cfg, &testClock{now: epoch})
	if _, err := d.workflow.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	w := serve(t, d, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		"castspc_buffer_records 1",
		`castspc_events_total{event="admitted"} 1`,
		`castspc_chart_zone{zone="no_data"} 1`,
		"castspc_poll_cycles_total 1",
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Metrics.Enabled = false
	d := newTestDaemon(t, cfg, &testClock{now: epoch})
	if w := serve(t, d, http.MethodGet, "/metrics", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("metrics disabled = %d", w.Code)
	}
}
