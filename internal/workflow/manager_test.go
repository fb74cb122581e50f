package workflow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"castspc/internal/logging"
	"castspc/internal/spc"
)

type pollerFunc func(ctx context.Context, now time.Time) spc.PollResult

func (f pollerFunc) Poll(ctx context.Context, now time.Time) spc.PollResult { return f(ctx, now) }

func TestRunCycleRecoversPanic(t *testing.T) {
	calls := 0
	poller := pollerFunc(func(context.Context, time.Time) spc.PollResult {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return spc.PollResult{Admitted: true}
	})
	fixed := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	m := NewManager(poller, time.Second, logging.NewNop(), WithClock(func() time.Time { return fixed }))

	if _, err := m.RunCycle(context.Background()); err == nil {
		t.Fatal("expected panic to surface as error")
	}
	res, err := m.RunCycle(context.Background())
	if err != nil || !res.Admitted {
		t.Fatalf("second cycle = %+v, %v", res, err)
	}
	status := m.Status()
	if status.Cycles != 2 || status.Panics != 1 {
		t.Fatalf("unexpected status %+v", status)
	}
	if status.LastError != "" {
		t.Fatalf("last error should clear after a clean cycle, got %q", status.LastError)
	}
	if !status.LastCycle.Equal(fixed) {
		t.Fatalf("last cycle = %v", status.LastCycle)
	}
}

func TestRunCycleReportsSourceError(t *testing.T) {
	sourceErr := errors.New("upstream down")
	m := NewManager(pollerFunc(func(context.Context, time.Time) spc.PollResult {
		return spc.PollResult{NoData: true, SourceErr: sourceErr}
	}), time.Second, logging.NewNop())

	if _, err := m.RunCycle(context.Background()); !errors.Is(err, sourceErr) {
		t.Fatalf("expected source error, got %v", err)
	}
	if got := m.Status().LastError; got != "upstream down" {
		t.Fatalf("last error = %q", got)
	}
}

func TestStartStop(t *testing.T) {
	var polls atomic.Int64
	m := NewManager(pollerFunc(func(context.Context, time.Time) spc.PollResult {
		polls.Add(1)
		return spc.PollResult{}
	}), 10*time.Millisecond, logging.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	deadline := time.Now().Add(2 * time.Second)
	for polls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if polls.Load() < 3 {
		t.Fatalf("expected at least 3 polls, got %d", polls.Load())
	}
	if !m.Status().Running {
		t.Fatal("expected running status")
	}

	m.Stop()
	if m.Status().Running {
		t.Fatal("expected stopped status")
	}
	after := polls.Load()
	time.Sleep(30 * time.Millisecond)
	if polls.Load() != after {
		t.Fatal("poller ran after Stop returned")
	}
}

func TestStartWithoutPoller(t *testing.T) {
	m := NewManager(nil, time.Second, logging.NewNop())
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected error without poller")
	}
}
