package statewatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// mockChecker is a controllable test double for the Checker interface.
type mockChecker struct {
	mu  sync.Mutex
	err error
}

func (m *mockChecker) Check() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *mockChecker) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func TestProbe_UpStaysUp(t *testing.T) {
	checker := &mockChecker{}
	recovered := 0
	mgr := NewManager(checker, func() { recovered++ }, zap.NewNop())

	mgr.Probe()
	mgr.Probe()

	if !mgr.IsUp() {
		t.Error("expected daemon to be reported up")
	}
	if recovered != 0 {
		t.Errorf("expected no recovery callbacks, got %d", recovered)
	}
}

func TestProbe_DownThenUpTriggersRecovery(t *testing.T) {
	checker := &mockChecker{}
	recovered := 0
	mgr := NewManager(checker, func() { recovered++ }, zap.NewNop())

	checker.setErr(errors.New("daemon not running"))
	mgr.Probe()
	if mgr.IsUp() {
		t.Error("expected daemon to be reported down")
	}

	checker.setErr(nil)
	mgr.Probe()
	if !mgr.IsUp() {
		t.Error("expected daemon to be reported up after recovery")
	}
	if recovered != 1 {
		t.Errorf("expected exactly one recovery callback, got %d", recovered)
	}

	// Staying up does not fire again.
	mgr.Probe()
	if recovered != 1 {
		t.Errorf("expected no further recovery callbacks, got %d", recovered)
	}
}

func TestProbe_InitialUpDoesNotTriggerRecovery(t *testing.T) {
	checker := &mockChecker{}
	recovered := 0
	mgr := NewManager(checker, func() { recovered++ }, zap.NewNop())

	// First observation up is not a recovery.
	mgr.Probe()
	if recovered != 0 {
		t.Errorf("expected no recovery callback on first probe, got %d", recovered)
	}
}

func TestIsUp_BeforeFirstProbe(t *testing.T) {
	mgr := NewManager(&mockChecker{}, nil, zap.NewNop())
	if !mgr.IsUp() {
		t.Error("expected daemon assumed up before first probe")
	}
}

func TestStartStop(t *testing.T) {
	checker := &mockChecker{}
	var mu sync.Mutex
	recovered := 0
	mgr := NewManager(checker, func() {
		mu.Lock()
		recovered++
		mu.Unlock()
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr.Start(ctx, 10*time.Millisecond)

	// Drive a down/up cycle through the ticker loop.
	checker.setErr(errors.New("daemon not running"))
	time.Sleep(50 * time.Millisecond)
	checker.setErr(nil)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := recovered > 0
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for recovery callback")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mgr.Stop()
}

func TestStop_WithoutStart(t *testing.T) {
	mgr := NewManager(&mockChecker{}, nil, zap.NewNop())
	mgr.Stop() // must not panic or block
}

func TestStart_NonPositiveIntervalDoesNotPanic(t *testing.T) {
	mgr := NewManager(&mockChecker{}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A zero interval would panic time.NewTicker; Start must floor it.
	mgr.Start(ctx, 0)
	if mgr.Interval() <= 0 {
		t.Errorf("expected floored positive interval, got %v", mgr.Interval())
	}
	mgr.Stop()
}

func TestStartStop_RestartWithNewInterval(t *testing.T) {
	mgr := NewManager(&mockChecker{}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr.Start(ctx, 10*time.Millisecond)
	if mgr.Interval() != 10*time.Millisecond {
		t.Errorf("expected interval 10ms, got %v", mgr.Interval())
	}

	mgr.Stop()
	mgr.Start(ctx, 25*time.Millisecond)
	if mgr.Interval() != 25*time.Millisecond {
		t.Errorf("expected interval 25ms after restart, got %v", mgr.Interval())
	}
	mgr.Stop()
}
