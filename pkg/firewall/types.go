package firewall

import (
	"fmt"
	"strconv"
	"strings"
)

// RuleKind identifies which firewalld zone setting a rule manipulates.
type RuleKind string

const (
	KindICMPBlock          RuleKind = "icmp_block"
	KindICMPBlockInversion RuleKind = "icmp_block_inversion"
	KindService            RuleKind = "service"
	KindProtocol           RuleKind = "protocol"
	KindPort               RuleKind = "port"
	KindSourcePort         RuleKind = "source_port"
	KindPortForward        RuleKind = "port_forward"
	KindRichRule           RuleKind = "rich_rule"
	KindInterface          RuleKind = "interface"
	KindForward            RuleKind = "forward"
	KindMasquerade         RuleKind = "masquerade"
	KindSource             RuleKind = "source"
	KindTarget             RuleKind = "target"
	KindZone               RuleKind = "zone"
)

// Store selects one of firewalld's two rule stores.
// The runtime store is the active in-memory rule set; the permanent store
// is the persisted configuration that survives a reload.
type Store int

const (
	RuntimeStore Store = iota
	PermanentStore
)

// String returns a human-readable store name.
func (s Store) String() string {
	switch s {
	case RuntimeStore:
		return "runtime"
	case PermanentStore:
		return "permanent"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Entry is a canonical rule entry within a zone's store. Value is the
// kind-specific canonical string form (e.g. "5500-6850/tcp" for a port
// range, "192.0.2.0/24" for a source, "https" for a service). Flag kinds
// (forward, masquerade, icmp_block_inversion) carry an empty value;
// presence of the bare entry means the flag is set.
type Entry struct {
	Kind  RuleKind
	Value string
}

// String returns a human-readable representation of the Entry.
func (e Entry) String() string {
	if e.Value == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s %s", e.Kind, e.Value)
}

// validPortProtocols is the set of protocols accepted in PORT/PROTOCOL specs.
var validPortProtocols = map[string]bool{
	"tcp":  true,
	"udp":  true,
	"sctp": true,
	"dccp": true,
}

// PortRange is a parsed PORT/PROTOCOL or PORT-PORT/PROTOCOL spec.
// A single port yields Start == End. The range is one atomic unit:
// 5500-6850/tcp and 5500-6800/tcp are distinct entries.
type PortRange struct {
	Start uint16
	End   uint16
	Proto string
}

// String formats the range in firewalld's canonical PORT[-PORT]/PROTOCOL form.
func (p PortRange) String() string {
	if p.Start == p.End {
		return fmt.Sprintf("%d/%s", p.Start, p.Proto)
	}
	return fmt.Sprintf("%d-%d/%s", p.Start, p.End, p.Proto)
}

// Entry returns the canonical store entry for this range under the given kind.
func (p PortRange) Entry(kind RuleKind) Entry {
	return Entry{Kind: kind, Value: p.String()}
}

// ParsePortSpec parses a "PORT/PROTOCOL" or "PORT-PORT/PROTOCOL" spec.
// The option name ("port" or "source_port") appears in failure messages.
func ParsePortSpec(spec, option string) (PortRange, error) {
	spec = strings.TrimSpace(spec)
	portPart, proto, found := strings.Cut(spec, "/")
	if !found || proto == "" {
		return PortRange{}, validationErrorf("improper %s format (missing protocol?)", option)
	}
	if !validPortProtocols[proto] {
		return PortRange{}, validationErrorf("invalid %s protocol %q (supported: tcp, udp, sctp, dccp)", option, proto)
	}

	startStr, endStr, isRange := strings.Cut(portPart, "-")
	start, err := parsePortNumber(startStr)
	if err != nil {
		return PortRange{}, validationErrorf("invalid %s %q: %v", option, spec, err)
	}
	end := start
	if isRange {
		end, err = parsePortNumber(endStr)
		if err != nil {
			return PortRange{}, validationErrorf("invalid %s %q: %v", option, spec, err)
		}
		if end < start {
			return PortRange{}, validationErrorf("invalid %s range %q: end port below start port", option, spec)
		}
	}

	return PortRange{Start: start, End: end, Proto: proto}, nil
}

// parsePortNumber parses a single decimal port in the range 1-65535.
func parsePortNumber(s string) (uint16, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("port %q is not a number", s)
	}
	if n < 1 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", n)
	}
	return uint16(n), nil
}

// ForwardPort describes a single port forwarding rule.
type ForwardPort struct {
	Port   string
	Proto  string
	ToPort string
	ToAddr string
}

// String formats the forward in firewalld's canonical
// port=PORT:proto=PROTO:toport=TOPORT:toaddr=TOADDR form, which is also
// what firewall-cmd --list-forward-ports prints.
func (f ForwardPort) String() string {
	return fmt.Sprintf("port=%s:proto=%s:toport=%s:toaddr=%s",
		f.Port, f.Proto, f.ToPort, f.ToAddr)
}

// Entry returns the canonical store entry for this forward.
func (f ForwardPort) Entry() Entry {
	return Entry{Kind: KindPortForward, Value: f.String()}
}

// RuleSpec is the canonical desired-state form of a single rule
// declaration, produced by Normalize. Exactly one kind is set.
type RuleSpec struct {
	Kind RuleKind

	// Zone the rule applies to; empty means the backend's default zone.
	Zone string

	// Entry is the canonical store entry for membership kinds.
	// Unused for KindZone and KindTarget.
	Entry Entry

	// Target is the desired zone target for KindTarget.
	Target string

	// Enabled is the desired presence of the entry (or, for KindZone,
	// whether the zone should exist; for KindTarget, whether the target
	// is set rather than reset to default).
	Enabled bool

	// Flag is the declared bool for the flag kinds (forward, masquerade,
	// icmp_block_inversion), kept for change messages that echo the
	// declaration rather than the resolved action.
	Flag bool

	// Permanent and Runtime select the stores the spec applies to,
	// independently. Enabling permanent-only does not touch the runtime
	// store, and vice versa.
	Permanent bool
	Runtime   bool

	// Timeout, in seconds, limits the lifetime of runtime additions.
	// Zero means no timeout. Ignored for the permanent store.
	Timeout int
}

// stateWord renders the desired state the way change messages report it.
func (s RuleSpec) stateWord() string {
	if s.Kind == KindZone {
		if s.Enabled {
			return "present"
		}
		return "absent"
	}
	if s.Enabled {
		return "enabled"
	}
	return "disabled"
}

// stores returns the stores this spec targets, runtime first.
func (s RuleSpec) stores() []Store {
	var stores []Store
	if s.Runtime {
		stores = append(stores, RuntimeStore)
	}
	if s.Permanent {
		stores = append(stores, PermanentStore)
	}
	return stores
}
