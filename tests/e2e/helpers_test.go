//go:build integration

package e2e

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// runFwsyncOnce executes `fwsync once -c configPath` and asserts a successful exit.
// Returns the combined stdout and stderr output.
func runFwsyncOnce(t *testing.T, configPath string) string {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(fwsyncBinary, "once", "-c", configPath)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("fwsync once failed: %v\nstdout: %s\nstderr: %s", err, stdout.String(), stderr.String())
	}
	return stdout.String() + stderr.String()
}

// runFwsyncOnceExpectFailure executes `fwsync once -c configPath` and expects
// a non-zero exit code. Returns stdout and stderr.
func runFwsyncOnceExpectFailure(t *testing.T, configPath string) (string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(fwsyncBinary, "once", "-c", configPath)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err == nil {
		t.Fatalf("expected fwsync once to fail, but it succeeded\nstdout: %s\nstderr: %s", stdout.String(), stderr.String())
	}
	return stdout.String(), stderr.String()
}

// writeTestConfig writes YAML content to a config file in the given directory.
func writeTestConfig(t *testing.T, dir, content string) string {
	t.Helper()
	configPath := filepath.Join(dir, "fwsync.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configPath
}

// firewallCmd runs firewall-cmd with the given arguments and returns trimmed output.
func firewallCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := exec.Command("firewall-cmd", args...).CombinedOutput()
	if err != nil {
		t.Fatalf("firewall-cmd %v failed: %v\noutput: %s", args, err, out)
	}
	return strings.TrimSpace(string(out))
}

// zonePortEnabled reports whether firewall-cmd lists the exact port entry
// in the zone's runtime configuration.
func zonePortEnabled(t *testing.T, zone, port string) bool {
	t.Helper()
	listed := firewallCmd(t, "--zone", zone, "--list-ports")
	for _, entry := range strings.Fields(listed) {
		if entry == port {
			return true
		}
	}
	return false
}

// cleanupPort removes a port from the zone's runtime and permanent stores,
// ignoring failures for entries that were never added.
func cleanupPort(t *testing.T, zone, port string) {
	t.Helper()
	exec.Command("firewall-cmd", "--zone", zone, "--remove-port", port).Run()
	exec.Command("firewall-cmd", "--permanent", "--zone", zone, "--remove-port", port).Run()
}
