//go:build integration

package e2e

import (
	"strings"
	"testing"
)

// --- Once mode: open a runtime port ---

func TestE2E_OnceMode_RuntimePort(t *testing.T) {
	const zone, port = "public", "8081/tcp"
	cleanupPort(t, zone, port)
	defer cleanupPort(t, zone, port)

	configYAML := `
global:
  log_level: info
rules:
  - name: open-8081
    zone: public
    port: 8081/tcp
    state: enabled
`
	dir := t.TempDir()
	configPath := writeTestConfig(t, dir, configYAML)

	runFwsyncOnce(t, configPath)

	if !zonePortEnabled(t, zone, port) {
		t.Fatal("expected port 8081/tcp enabled in public zone")
	}

	// Runtime-only: the permanent store must be untouched.
	permanent := firewallCmd(t, "--permanent", "--zone", zone, "--list-ports")
	for _, entry := range strings.Fields(permanent) {
		if entry == port {
			t.Error("expected permanent store untouched by runtime-only rule")
		}
	}
}

// --- Once mode: idempotence across runs ---

func TestE2E_OnceMode_Idempotent(t *testing.T) {
	const zone, port = "public", "8082/tcp"
	cleanupPort(t, zone, port)
	defer cleanupPort(t, zone, port)

	configYAML := `
rules:
  - name: open-8082
    zone: public
    port: 8082/tcp
    state: enabled
`
	dir := t.TempDir()
	configPath := writeTestConfig(t, dir, configYAML)

	runFwsyncOnce(t, configPath)
	// A second run against converged state must also exit zero.
	runFwsyncOnce(t, configPath)

	if !zonePortEnabled(t, zone, port) {
		t.Fatal("expected port 8082/tcp still enabled after second run")
	}
}

// --- Once mode: disable removes the entry ---

func TestE2E_OnceMode_Disable(t *testing.T) {
	const zone, port = "public", "8083/tcp"
	cleanupPort(t, zone, port)
	defer cleanupPort(t, zone, port)

	enableYAML := `
rules:
  - zone: public
    port: 8083/tcp
    state: enabled
`
	disableYAML := `
rules:
  - zone: public
    port: 8083/tcp
    state: disabled
`
	dir := t.TempDir()

	runFwsyncOnce(t, writeTestConfig(t, dir, enableYAML))
	if !zonePortEnabled(t, zone, port) {
		t.Fatal("expected port 8083/tcp enabled")
	}

	runFwsyncOnce(t, writeTestConfig(t, dir, disableYAML))
	if zonePortEnabled(t, zone, port) {
		t.Fatal("expected port 8083/tcp removed")
	}
}

// --- Once mode: invalid declarations fail the run ---

func TestE2E_OnceMode_InvalidRuleFails(t *testing.T) {
	configYAML := `
rules:
  - name: broken
    zone: public
    port: "8081"
    state: enabled
`
	dir := t.TempDir()
	configPath := writeTestConfig(t, dir, configYAML)

	_, stderr := runFwsyncOnceExpectFailure(t, configPath)
	if !strings.Contains(stderr+"\n", "improper port format") {
		t.Errorf("expected port format error in output, got: %s", stderr)
	}
}

func TestE2E_OnceMode_MissingConfigFails(t *testing.T) {
	runFwsyncOnceExpectFailure(t, "/nonexistent/fwsync.yaml")
}
