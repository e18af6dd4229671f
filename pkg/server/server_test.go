package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fwsync/fwsync/pkg/firewall"
	"go.uber.org/zap"
)

// writeYAMLFile writes YAML content to a file and returns the path.
func writeYAMLFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "fwsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write YAML file: %v", err)
	}
	return path
}

// newTestServer creates a Server backed by the in-memory firewalld handle.
func newTestServer(t *testing.T, configPath string) *Server {
	t.Helper()
	logger := zap.NewNop()

	fwMgr, err := firewall.NewManager(logger)
	if err != nil {
		t.Fatalf("firewall.NewManager failed: %v", err)
	}

	srv, err := newServerWithManager(configPath, fwMgr, logger)
	if err != nil {
		t.Fatalf("newServerWithManager failed: %v", err)
	}
	return srv
}

func TestServer_InitialApply(t *testing.T) {
	configYAML := `
global:
  log_level: info
rules:
  - name: open-https
    zone: public
    service: https
    state: enabled
  - name: dmz-masquerade
    zone: dmz
    masquerade: true
    state: enabled
`
	path := writeYAMLFile(t, t.TempDir(), configYAML)
	srv := newTestServer(t, path)

	if err := srv.apply(srv.configMgr.GetConfig()); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	enabled, err := srv.fwMgr.IsEnabled("public",
		firewall.Entry{Kind: firewall.KindService, Value: "https"}, firewall.RuntimeStore)
	if err != nil {
		t.Fatalf("IsEnabled failed: %v", err)
	}
	if !enabled {
		t.Error("expected https service enabled in public zone")
	}

	enabled, err = srv.fwMgr.IsEnabled("dmz",
		firewall.Entry{Kind: firewall.KindMasquerade}, firewall.RuntimeStore)
	if err != nil {
		t.Fatalf("IsEnabled failed: %v", err)
	}
	if !enabled {
		t.Error("expected masquerade enabled in dmz zone")
	}
}

func TestServer_ApplyIsIdempotent(t *testing.T) {
	configYAML := `
rules:
  - zone: public
    port: 8081/tcp
    state: enabled
`
	path := writeYAMLFile(t, t.TempDir(), configYAML)
	srv := newTestServer(t, path)

	if err := srv.apply(srv.configMgr.GetConfig()); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	if err := srv.apply(srv.configMgr.GetConfig()); err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
}

func TestServer_ApplyReportsRuleErrors(t *testing.T) {
	configYAML := `
rules:
  - name: broken
    zone: public
    port: "8081"
    state: enabled
`
	path := writeYAMLFile(t, t.TempDir(), configYAML)
	srv := newTestServer(t, path)

	if err := srv.apply(srv.configMgr.GetConfig()); err == nil {
		t.Fatal("expected apply to report the invalid rule, got nil")
	}
}

func TestServer_RunAppliesConfigChange(t *testing.T) {
	configYAML := `
rules:
  - name: open-https
    zone: public
    service: https
    state: enabled
`
	dir := t.TempDir()
	path := writeYAMLFile(t, dir, configYAML)
	srv := newTestServer(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	// Wait for the initial apply to land.
	waitForEntry(t, srv, "public", firewall.Entry{Kind: firewall.KindService, Value: "https"}, true)

	updated := `
rules:
  - name: open-https
    zone: public
    service: https
    state: disabled
`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	// The watcher should pick up the change and remove the service.
	waitForEntry(t, srv, "public", firewall.Entry{Kind: firewall.KindService, Value: "https"}, false)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to stop")
	}
}

func TestServer_RunRestartsWatcherOnIntervalChange(t *testing.T) {
	configYAML := `
global:
  check_interval: 15s
rules:
  - name: open-https
    zone: public
    service: https
    state: enabled
`
	dir := t.TempDir()
	path := writeYAMLFile(t, dir, configYAML)
	srv := newTestServer(t, path)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	waitForEntry(t, srv, "public", firewall.Entry{Kind: firewall.KindService, Value: "https"}, true)
	if srv.stateMgr.Interval() != 15*time.Second {
		t.Errorf("expected initial probe interval 15s, got %v", srv.stateMgr.Interval())
	}

	updated := `
global:
  check_interval: 30s
rules:
  - name: open-https
    zone: public
    service: https
    state: enabled
`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	// The reload should restart the watcher with the new interval.
	deadline := time.After(5 * time.Second)
	for srv.stateMgr.Interval() != 30*time.Second {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for probe interval change, still %v", srv.stateMgr.Interval())
		case <-time.After(50 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Run to stop")
	}
}

func TestServer_RunOnce(t *testing.T) {
	configYAML := `
rules:
  - zone: internal
    source: 192.0.2.0/24
    state: enabled
    permanent: true
`
	path := writeYAMLFile(t, t.TempDir(), configYAML)
	srv := newTestServer(t, path)

	if err := srv.RunOnce(); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
}

// waitForEntry polls until the entry reaches the wanted presence or times out.
func waitForEntry(t *testing.T, srv *Server, zone string, entry firewall.Entry, want bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		enabled, err := srv.fwMgr.IsEnabled(zone, entry, firewall.RuntimeStore)
		if err == nil && enabled == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s in zone %s to be %v", entry, zone, want)
		case <-time.After(50 * time.Millisecond):
		}
	}
}
