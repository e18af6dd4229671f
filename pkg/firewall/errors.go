package firewall

import (
	"errors"
	"fmt"
)

// mutuallyExclusiveMsg is the exact failure message produced when more than
// one rule parameter is set on a single declaration.
const mutuallyExclusiveMsg = "parameters are mutually exclusive: " +
	"icmp_block|icmp_block_inversion|service|protocol|port|source_port|" +
	"port_forward|rich_rule|interface|forward|masquerade|source|target"

// zoneOpNotPermanentMsg is the failure message for zone and target
// operations attempted against the runtime store.
const zoneOpNotPermanentMsg = "Zone operations must be permanent. " +
	"Make sure you didn't set the 'permanent' flag to 'false' or the 'immediate' flag to 'true'."

// ErrBackendUnavailable indicates the firewalld daemon cannot be reached.
// It is always surfaced to the caller, never treated as "rule absent".
var ErrBackendUnavailable = errors.New("firewalld is not running or not reachable")

// ValidationError reports a rule declaration that cannot be turned into a
// valid RuleSpec. It is local, deterministic, and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// validationErrorf builds a ValidationError from a format string.
func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// CommandError reports a backend command that firewalld rejected,
// preserving the backend's own message where available.
type CommandError struct {
	Op     string // the attempted operation, e.g. "add-port"
	Zone   string
	Output string // backend message, if any
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("firewalld command %s failed for zone %q", e.Op, e.Zone)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
