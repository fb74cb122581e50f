package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"castspc/internal/logging"
	"castspc/internal/spc"
)

// Poller runs one collection cycle at now.
type Poller interface {
	Poll(ctx context.Context, now time.Time) spc.PollResult
}

// StatusSummary represents lightweight poll loop diagnostics.
type StatusSummary struct {
	Running   bool
	Cycles    uint64
	Panics    uint64
	LastCycle time.Time
	LastError string
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithClock overrides time.Now for cycle timestamps.
func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// Manager owns the poll loop goroutine.
type Manager struct {
	poller       Poller
	logger       *slog.Logger
	pollInterval time.Duration
	clock        func() time.Time

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	cycles    uint64
	panics    uint64
	lastCycle time.Time
	lastErr   error
}

// NewManager constructs a poll loop for poller.
func NewManager(poller Poller, pollInterval time.Duration, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	m := &Manager{
		poller:       poller,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		pollInterval: pollInterval,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins background polling.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.poller == nil {
		m.mu.Unlock()
		return errors.New("workflow poller not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx)
	m.logger.Info("poll loop started",
		logging.String(logging.FieldEventType, "workflow_started"),
		logging.Duration("poll_interval", m.pollInterval),
	)
	return nil
}

// Stop terminates background polling and waits for the current cycle.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("poll loop stopped", logging.String(logging.FieldEventType, "workflow_stopped"))
}

// Status returns the latest poll loop information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summary := StatusSummary{
		Running:   m.running,
		Cycles:    m.cycles,
		Panics:    m.panics,
		LastCycle: m.lastCycle,
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	return summary
}

// RunCycle performs a single guarded poll. A recovered panic is returned as an error.
func (m *Manager) RunCycle(ctx context.Context) (result spc.PollResult, err error) {
	now := m.clock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll cycle panic: %v", r)
			m.mu.Lock()
			m.panics++
			m.mu.Unlock()
			logging.ErrorWithContext(m.logger, "poll cycle panicked; continuing", "poll_panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "report this stack trace; the daemon keeps polling"),
				logging.String(logging.FieldImpact, "measurement for this cycle may be lost"),
			)
		}
		m.mu.Lock()
		m.cycles++
		m.lastCycle = now
		m.lastErr = err
		m.mu.Unlock()
	}()

	result = m.poller.Poll(ctx, now)
	if result.SourceErr != nil {
		err = result.SourceErr
	}
	return result, err
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return
		}
		_, _ = m.RunCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
