package firewall

import (
	"strings"

	"github.com/fwsync/fwsync/pkg/config"
)

// validTargets is the set of accepted zone targets.
var validTargets = map[string]bool{
	"default":    true,
	"ACCEPT":     true,
	"DROP":       true,
	"%%REJECT%%": true,
}

// Normalize converts a raw rule declaration into its canonical RuleSpec.
// It enforces the single-parameter exclusivity invariant, parses compound
// port syntax, and resolves the permanent/immediate store selection.
// It has no side effects and never touches the backend.
func Normalize(rule config.RuleConfig) (RuleSpec, error) {
	state := rule.State
	if state != "enabled" && state != "disabled" && state != "present" && state != "absent" {
		return RuleSpec{}, validationErrorf("invalid state %q (supported: enabled, disabled, present, absent)", state)
	}

	kinds := setKinds(rule)
	if len(kinds) > 1 {
		return RuleSpec{}, &ValidationError{Reason: mutuallyExclusiveMsg}
	}

	// Rule parameters only accept enabled/disabled; present/absent are
	// reserved for zone-level operations (and zone targets).
	if len(kinds) == 1 && (state == "present" || state == "absent") && kinds[0] != KindTarget {
		return RuleSpec{}, validationErrorf("absent and present state can only be used in zone level operations")
	}

	// The runtime store is targeted by default unless the declaration is
	// explicitly permanent-only.
	permanent := rule.Permanent
	immediate := rule.Immediate
	if !permanent && !immediate {
		immediate = true
	}

	spec := RuleSpec{
		Zone:      rule.Zone,
		Enabled:   state == "enabled",
		Permanent: permanent,
		Runtime:   immediate,
		Timeout:   rule.Timeout,
	}

	if len(kinds) == 0 {
		// Nothing but zone and state: this is a zone transaction.
		if state != "present" && state != "absent" {
			return RuleSpec{}, validationErrorf("exactly one rule parameter is required when state is enabled or disabled")
		}
		if rule.Zone == "" {
			return RuleSpec{}, validationErrorf("missing parameter(s) required by 'state=%s': zone", state)
		}
		spec.Kind = KindZone
		spec.Enabled = state == "present"
		if err := checkZoneOpStores(spec); err != nil {
			return RuleSpec{}, err
		}
		return spec, nil
	}

	spec.Kind = kinds[0]
	switch spec.Kind {
	case KindService:
		spec.Entry = Entry{Kind: KindService, Value: rule.Service}

	case KindProtocol:
		spec.Entry = Entry{Kind: KindProtocol, Value: rule.Protocol}

	case KindPort:
		portRange, err := ParsePortSpec(rule.Port, "port")
		if err != nil {
			return RuleSpec{}, err
		}
		spec.Entry = portRange.Entry(KindPort)

	case KindSourcePort:
		portRange, err := ParsePortSpec(rule.SourcePort, "source_port")
		if err != nil {
			return RuleSpec{}, err
		}
		spec.Entry = portRange.Entry(KindSourcePort)

	case KindPortForward:
		forward, err := normalizePortForward(rule.PortForward)
		if err != nil {
			return RuleSpec{}, err
		}
		spec.Entry = forward.Entry()

	case KindRichRule:
		spec.Entry = Entry{Kind: KindRichRule, Value: strings.TrimSpace(rule.RichRule)}

	case KindSource:
		// Address correctness is delegated to the backend.
		if !rule.Permanent {
			return RuleSpec{}, validationErrorf("missing parameter(s) required by 'source': permanent")
		}
		spec.Entry = Entry{Kind: KindSource, Value: rule.Source}

	case KindInterface:
		if rule.Zone == "" {
			return RuleSpec{}, validationErrorf("missing parameter(s) required by 'interface': zone")
		}
		spec.Entry = Entry{Kind: KindInterface, Value: rule.Interface}

	case KindICMPBlock:
		spec.Entry = Entry{Kind: KindICMPBlock, Value: rule.ICMPBlock}

	case KindICMPBlockInversion:
		spec.Entry = Entry{Kind: KindICMPBlockInversion}
		spec.Flag = *rule.ICMPBlockInversion
		spec.Enabled = (state == "enabled") == spec.Flag

	case KindForward:
		spec.Entry = Entry{Kind: KindForward}
		spec.Flag = *rule.Forward
		spec.Enabled = (state == "enabled") == spec.Flag

	case KindMasquerade:
		spec.Entry = Entry{Kind: KindMasquerade}
		spec.Flag = *rule.Masquerade
		spec.Enabled = (state == "enabled") == spec.Flag

	case KindTarget:
		if rule.Zone == "" {
			return RuleSpec{}, validationErrorf("missing parameter(s) required by 'target': zone")
		}
		if !validTargets[rule.Target] {
			return RuleSpec{}, validationErrorf("invalid target %q (supported: default, ACCEPT, DROP, %%%%REJECT%%%%)", rule.Target)
		}
		spec.Target = rule.Target
		spec.Enabled = state == "enabled" || state == "present"
		if err := checkZoneOpStores(spec); err != nil {
			return RuleSpec{}, err
		}
	}

	return spec, nil
}

// setKinds returns the rule parameters set on the declaration, in the
// canonical exclusivity order.
func setKinds(rule config.RuleConfig) []RuleKind {
	var kinds []RuleKind
	if rule.ICMPBlock != "" {
		kinds = append(kinds, KindICMPBlock)
	}
	if rule.ICMPBlockInversion != nil {
		kinds = append(kinds, KindICMPBlockInversion)
	}
	if rule.Service != "" {
		kinds = append(kinds, KindService)
	}
	if rule.Protocol != "" {
		kinds = append(kinds, KindProtocol)
	}
	if rule.Port != "" {
		kinds = append(kinds, KindPort)
	}
	if rule.SourcePort != "" {
		kinds = append(kinds, KindSourcePort)
	}
	if len(rule.PortForward) > 0 {
		kinds = append(kinds, KindPortForward)
	}
	if rule.RichRule != "" {
		kinds = append(kinds, KindRichRule)
	}
	if rule.Interface != "" {
		kinds = append(kinds, KindInterface)
	}
	if rule.Forward != nil {
		kinds = append(kinds, KindForward)
	}
	if rule.Masquerade != nil {
		kinds = append(kinds, KindMasquerade)
	}
	if rule.Source != "" {
		kinds = append(kinds, KindSource)
	}
	if rule.Target != "" {
		kinds = append(kinds, KindTarget)
	}
	return kinds
}

// normalizePortForward validates the port_forward list and returns the
// single supported forward.
func normalizePortForward(forwards []config.PortForwardConfig) (ForwardPort, error) {
	if len(forwards) > 1 {
		return ForwardPort{}, validationErrorf("Only one port forward supported at a time")
	}
	forward := forwards[0]
	if forward.Port == "" {
		return ForwardPort{}, validationErrorf("port must be specified for port forward")
	}
	if forward.Proto != "tcp" && forward.Proto != "udp" {
		return ForwardPort{}, validationErrorf("proto udp/tcp must be specified for port forward")
	}
	if forward.ToPort == "" {
		return ForwardPort{}, validationErrorf("toport must be specified for port forward")
	}
	return ForwardPort{
		Port:   forward.Port,
		Proto:  forward.Proto,
		ToPort: forward.ToPort,
		ToAddr: forward.ToAddr,
	}, nil
}

// checkZoneOpStores rejects zone and target operations aimed at the
// runtime store: firewalld only supports them permanently.
func checkZoneOpStores(spec RuleSpec) error {
	if !spec.Permanent || spec.Runtime {
		return &ValidationError{Reason: zoneOpNotPermanentMsg}
	}
	return nil
}
