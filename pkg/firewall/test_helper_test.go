package firewall

import (
	"testing"

	"go.uber.org/zap"
)

// newTestManager creates a Manager backed by the in-memory firewalld handle.
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	mgr, err := NewManager(zap.NewNop())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return mgr
}
