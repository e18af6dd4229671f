//go:build integration

package firewall

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// firewallCmdBinary is the firewalld command-line client used as the
// backend transport.
const firewallCmdBinary = "firewall-cmd"

// cmdHandle drives a real firewalld daemon through firewall-cmd.
type cmdHandle struct{}

// NewHandle verifies firewall-cmd is available and returns a handle backed
// by the real daemon.
func NewHandle() (Handle, error) {
	if _, err := exec.LookPath(firewallCmdBinary); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return &cmdHandle{}, nil
}

func (h *cmdHandle) Close() {}

// run executes firewall-cmd and returns its trimmed combined output.
// A daemon that is down is reported as ErrBackendUnavailable, never as an
// empty rule listing.
func (h *cmdHandle) run(args ...string) (string, error) {
	out, err := exec.Command(firewallCmdBinary, args...).CombinedOutput()
	output := strings.TrimSpace(string(out))
	if err != nil {
		if strings.Contains(output, "not running") ||
			strings.Contains(output, "Failed to connect") {
			return output, fmt.Errorf("%w: %s", ErrBackendUnavailable, output)
		}
		return output, err
	}
	return output, nil
}

// storeArgs returns the flag selecting the permanent store, if any.
func storeArgs(store Store) []string {
	if store == PermanentStore {
		return []string{"--permanent"}
	}
	return nil
}

func (h *cmdHandle) Running() (bool, error) {
	out, err := h.run("--state")
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			return false, nil
		}
		return false, err
	}
	return out == "running", nil
}

func (h *cmdHandle) DefaultZone() (string, error) {
	out, err := h.run("--get-default-zone")
	if err != nil {
		return "", err
	}
	return out, nil
}

func (h *cmdHandle) Zones(store Store) ([]string, error) {
	args := append(storeArgs(store), "--get-zones")
	out, err := h.run(args...)
	if err != nil {
		return nil, err
	}
	return strings.Fields(out), nil
}

func (h *cmdHandle) AddZone(zone string) error {
	out, err := h.run("--permanent", "--new-zone="+zone)
	return wrapCommandError("new-zone", zone, out, err)
}

func (h *cmdHandle) RemoveZone(zone string) error {
	out, err := h.run("--permanent", "--delete-zone="+zone)
	return wrapCommandError("delete-zone", zone, out, err)
}

func (h *cmdHandle) Target(zone string) (string, error) {
	out, err := h.run("--permanent", "--zone="+zone, "--get-target")
	if err != nil {
		return "", wrapCommandError("get-target", zone, out, err)
	}
	return out, nil
}

func (h *cmdHandle) SetTarget(zone, target string) error {
	out, err := h.run("--permanent", "--zone="+zone, "--set-target="+target)
	return wrapCommandError("set-target", zone, out, err)
}

// listFlags maps list-style kinds to their firewall-cmd query flag and
// whether output is one entry per line rather than space-separated.
var listFlags = map[RuleKind]struct {
	flag    string
	byLines bool
}{
	KindService:     {"--list-services", false},
	KindProtocol:    {"--list-protocols", false},
	KindPort:        {"--list-ports", false},
	KindSourcePort:  {"--list-source-ports", false},
	KindSource:      {"--list-sources", false},
	KindInterface:   {"--list-interfaces", false},
	KindICMPBlock:   {"--list-icmp-blocks", false},
	KindRichRule:    {"--list-rich-rules", true},
	KindPortForward: {"--list-forward-ports", true},
}

// queryFlags maps flag kinds to their firewall-cmd query option.
var queryFlags = map[RuleKind]string{
	KindMasquerade:         "--query-masquerade",
	KindForward:            "--query-forward",
	KindICMPBlockInversion: "--query-icmp-block-inversion",
}

func (h *cmdHandle) ListEntries(zone string, kind RuleKind, store Store) ([]Entry, error) {
	if flag, ok := queryFlags[kind]; ok {
		enabled, err := h.queryFlag(zone, flag, store)
		if err != nil {
			return nil, err
		}
		if !enabled {
			return nil, nil
		}
		return []Entry{{Kind: kind}}, nil
	}

	list, ok := listFlags[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported rule kind %q", kind)
	}

	args := append(storeArgs(store), "--zone="+zone, list.flag)
	out, err := h.run(args...)
	if err != nil {
		return nil, wrapCommandError(strings.TrimPrefix(list.flag, "--"), zone, out, err)
	}

	var values []string
	if list.byLines {
		for _, line := range strings.Split(out, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				values = append(values, line)
			}
		}
	} else {
		values = strings.Fields(out)
	}

	entries := make([]Entry, len(values))
	for i, value := range values {
		entries[i] = Entry{Kind: kind, Value: value}
	}
	return entries, nil
}

// queryFlag runs a --query-* option. firewall-cmd exits 1 with "no" when
// the flag is unset, which is a negative answer rather than a failure.
func (h *cmdHandle) queryFlag(zone, flag string, store Store) (bool, error) {
	args := append(storeArgs(store), "--zone="+zone, flag)
	out, err := h.run(args...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return false, nil
		}
		return false, wrapCommandError(strings.TrimPrefix(flag, "--"), zone, out, err)
	}
	return out == "yes", nil
}

func (h *cmdHandle) AddEntry(zone string, entry Entry, store Store, timeout int) error {
	args := append(storeArgs(store), "--zone="+zone, addFlag(entry))
	if store == RuntimeStore && timeout > 0 && entry.Kind != KindInterface {
		args = append(args, fmt.Sprintf("--timeout=%d", timeout))
	}
	out, err := h.run(args...)
	return wrapCommandError("add-"+string(entry.Kind), zone, out, err)
}

func (h *cmdHandle) RemoveEntry(zone string, entry Entry, store Store) error {
	args := append(storeArgs(store), "--zone="+zone, removeFlag(entry))
	out, err := h.run(args...)
	return wrapCommandError("remove-"+string(entry.Kind), zone, out, err)
}

// addFlag builds the firewall-cmd option that enables an entry.
func addFlag(entry Entry) string {
	switch entry.Kind {
	case KindService:
		return "--add-service=" + entry.Value
	case KindProtocol:
		return "--add-protocol=" + entry.Value
	case KindPort:
		return "--add-port=" + entry.Value
	case KindSourcePort:
		return "--add-source-port=" + entry.Value
	case KindSource:
		return "--add-source=" + entry.Value
	case KindICMPBlock:
		return "--add-icmp-block=" + entry.Value
	case KindRichRule:
		return "--add-rich-rule=" + entry.Value
	case KindPortForward:
		return "--add-forward-port=" + strings.TrimSuffix(entry.Value, ":toaddr=")
	case KindInterface:
		// Assigning an interface moves it from its previous zone.
		return "--change-interface=" + entry.Value
	case KindMasquerade:
		return "--add-masquerade"
	case KindForward:
		return "--add-forward"
	case KindICMPBlockInversion:
		return "--add-icmp-block-inversion"
	default:
		return ""
	}
}

// removeFlag builds the firewall-cmd option that disables an entry.
func removeFlag(entry Entry) string {
	switch entry.Kind {
	case KindInterface:
		return "--remove-interface=" + entry.Value
	case KindPortForward:
		return "--remove-forward-port=" + strings.TrimSuffix(entry.Value, ":toaddr=")
	case KindMasquerade:
		return "--remove-masquerade"
	case KindForward:
		return "--remove-forward"
	case KindICMPBlockInversion:
		return "--remove-icmp-block-inversion"
	default:
		return strings.Replace(addFlag(entry), "--add-", "--remove-", 1)
	}
}

func (h *cmdHandle) Reload() error {
	out, err := h.run("--reload")
	return wrapCommandError("reload", "", out, err)
}

// wrapCommandError converts a failed firewall-cmd invocation into a
// CommandError carrying the daemon's message, keeping daemon-unavailable
// errors distinguishable via errors.Is.
func wrapCommandError(op, zone, output string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return &CommandError{Op: op, Zone: zone, Output: output, Err: err}
}
