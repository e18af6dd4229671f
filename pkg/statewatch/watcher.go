package statewatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Checker probes the firewalld daemon state.
// This abstraction decouples the watcher from the firewall package and
// allows test doubles to simulate daemon restarts.
type Checker interface {
	Check() error
}

// Manager periodically probes the firewalld daemon. A daemon restart
// discards all runtime rules, so when the daemon transitions from down
// back to up the onRecover callback is invoked to let the caller
// re-apply its desired state.
type Manager struct {
	checker   Checker
	onRecover func()
	logger    *zap.Logger

	mu       sync.Mutex
	up       bool
	probed   bool
	interval time.Duration
	cancel   context.CancelFunc
	stopped  chan struct{}
}

// NewManager creates a new daemon state watcher.
// The onRecover callback is invoked whenever the daemon comes back up
// after having been observed down.
func NewManager(checker Checker, onRecover func(), logger *zap.Logger) *Manager {
	return &Manager{
		checker:   checker,
		onRecover: onRecover,
		logger:    logger,
	}
}

// Start begins probing the daemon at the given interval until the context
// is cancelled or Stop is called. A non-positive interval would panic
// time.NewTicker, so it is floored to one second.
func (m *Manager) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}

	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	watchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.stopped = make(chan struct{})
	m.interval = interval
	m.mu.Unlock()

	go func() {
		defer close(m.stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.Probe()
			case <-watchCtx.Done():
				return
			}
		}
	}()

	m.logger.Info("daemon state watcher started", zap.Duration("interval", interval))
}

// Probe checks the daemon once and handles state transitions.
func (m *Manager) Probe() {
	err := m.checker.Check()
	up := err == nil

	m.mu.Lock()
	wasUp, probed := m.up, m.probed
	m.up, m.probed = up, true
	m.mu.Unlock()

	switch {
	case up && probed && !wasUp:
		m.logger.Info("firewalld daemon recovered, runtime state may be stale")
		if m.onRecover != nil {
			m.onRecover()
		}
	case !up && (!probed || wasUp):
		m.logger.Warn("firewalld daemon is down", zap.Error(err))
	}
}

// IsUp returns the last observed daemon state. Before the first probe the
// daemon is assumed up.
func (m *Manager) IsUp() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.probed {
		return true
	}
	return m.up
}

// Interval returns the probe interval of the current or most recent run.
func (m *Manager) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

// Stop halts probing. It is safe to call Stop without a prior Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, stopped := m.cancel, m.stopped
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-stopped
	}
	m.logger.Info("daemon state watcher stopped")
}
