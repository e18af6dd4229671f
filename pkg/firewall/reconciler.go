package firewall

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fwsync/fwsync/pkg/config"
	"go.uber.org/zap"
)

// Result is the outcome of reconciling a single rule declaration.
// Changed is true only when a backend mutation was actually issued and
// succeeded; a validation failure or backend error always reports
// Changed false.
type Result struct {
	Name    string
	Changed bool
	Msg     string
	Err     error
}

// Report aggregates per-rule results of a reconcile pass. Items are
// reported independently: one rule's no-op or failure never short-circuits
// the rest of the batch.
type Report struct {
	Results []Result
}

// Changed reports whether any rule in the batch changed backend state.
func (r Report) Changed() bool {
	for _, result := range r.Results {
		if result.Changed {
			return true
		}
	}
	return false
}

// Message joins the non-empty per-rule messages.
func (r Report) Message() string {
	var msgs []string
	for _, result := range r.Results {
		if result.Msg != "" {
			msgs = append(msgs, result.Msg)
		}
	}
	return strings.Join(msgs, ", ")
}

// Err joins all per-rule errors, or returns nil if every rule succeeded.
func (r Report) Err() error {
	var errs []error
	for _, result := range r.Results {
		if result.Err != nil {
			errs = append(errs, result.Err)
		}
	}
	return errors.Join(errs...)
}

// Reconciler implements declarative reconciliation between desired rule
// state and the actual firewalld configuration. Each rule is applied
// exactly once: the current state is read first and the backend is only
// mutated on a mismatch, so re-applying an identical declaration is a
// no-op.
type Reconciler struct {
	manager *Manager
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewReconciler creates a new Reconciler.
func NewReconciler(manager *Manager, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		manager: manager,
		logger:  logger,
	}
}

// ReconcileAll normalizes and applies every rule declaration in order.
// A failure partway through leaves prior items applied; there is no
// cross-batch rollback.
func (r *Reconciler) ReconcileAll(rules []config.RuleConfig) Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Info("starting reconcile", zap.Int("desired_rules", len(rules)))

	report := Report{Results: make([]Result, 0, len(rules))}
	for i, rule := range rules {
		name := rule.Name
		if name == "" {
			name = fmt.Sprintf("rule[%d]", i)
		}

		spec, err := Normalize(rule)
		if err != nil {
			report.Results = append(report.Results, Result{
				Name: name,
				Msg:  err.Error(),
				Err:  err,
			})
			continue
		}

		result := r.reconcile(spec)
		result.Name = name
		report.Results = append(report.Results, result)
	}

	changedCount := 0
	for _, result := range report.Results {
		if result.Changed {
			changedCount++
		}
	}
	if err := report.Err(); err != nil {
		r.logger.Error("reconcile completed with errors",
			zap.Int("changed", changedCount),
			zap.Error(err),
		)
	} else {
		r.logger.Info("reconcile completed",
			zap.Int("changed", changedCount),
			zap.Int("rules", len(rules)),
		)
	}
	return report
}

// Reconcile applies a single normalized RuleSpec.
func (r *Reconciler) Reconcile(spec RuleSpec) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconcile(spec)
}

func (r *Reconciler) reconcile(spec RuleSpec) Result {
	zone := spec.Zone
	if zone == "" {
		defaultZone, err := r.manager.DefaultZone()
		if err != nil {
			return Result{Msg: err.Error(), Err: err}
		}
		zone = defaultZone
	}

	switch spec.Kind {
	case KindZone:
		return r.reconcileZone(zone, spec)
	case KindTarget:
		return r.reconcileTarget(zone, spec)
	default:
		return r.reconcileEntry(zone, spec)
	}
}

// reconcileEntry diffs and applies a membership entry against each store
// the spec targets. The stores are independent: enabling permanent-only
// never touches the runtime rule set, and vice versa.
func (r *Reconciler) reconcileEntry(zone string, spec RuleSpec) Result {
	changed := false
	for _, store := range spec.stores() {
		present, err := r.manager.IsEnabled(zone, spec.Entry, store)
		if err != nil {
			return Result{Msg: err.Error(), Err: err}
		}
		if present == spec.Enabled {
			continue
		}

		if spec.Enabled {
			err = r.manager.AddEntry(zone, spec.Entry, store, spec.Timeout)
		} else {
			err = r.manager.RemoveEntry(zone, spec.Entry, store)
		}
		if err != nil {
			return Result{Msg: err.Error(), Err: err}
		}
		changed = true
	}

	result := Result{Changed: changed}
	if changed {
		result.Msg = changeMessage(zone, spec)
	}
	return result
}

// reconcileZone creates or deletes the zone itself in the permanent store.
func (r *Reconciler) reconcileZone(zone string, spec RuleSpec) Result {
	present, err := r.manager.ZoneExists(zone, PermanentStore)
	if err != nil {
		return Result{Msg: err.Error(), Err: err}
	}
	if present == spec.Enabled {
		return Result{}
	}

	if spec.Enabled {
		err = r.manager.AddZone(zone)
	} else {
		err = r.manager.RemoveZone(zone)
	}
	if err != nil {
		return Result{Msg: err.Error(), Err: err}
	}

	return Result{
		Changed: true,
		Msg:     fmt.Sprintf("Changed zone %s to %s", zone, spec.stateWord()),
	}
}

// reconcileTarget sets or resets the zone's permanent target.
func (r *Reconciler) reconcileTarget(zone string, spec RuleSpec) Result {
	desired := "default"
	if spec.Enabled {
		desired = spec.Target
	}

	current, err := r.manager.Target(zone)
	if err != nil {
		return Result{Msg: err.Error(), Err: err}
	}
	if current == desired {
		return Result{}
	}

	if err := r.manager.SetTarget(zone, desired); err != nil {
		return Result{Msg: err.Error(), Err: err}
	}

	msg := fmt.Sprintf("Set zone %s target to %s", zone, desired)
	if !spec.Enabled {
		msg = fmt.Sprintf("Reset zone %s target to default", zone)
	}
	return Result{Changed: true, Msg: msg}
}

// changeMessage renders the informational message for a successful entry
// mutation.
func changeMessage(zone string, spec RuleSpec) string {
	switch spec.Kind {
	case KindSource:
		if spec.Enabled {
			return fmt.Sprintf("Added %s to zone %s", spec.Entry.Value, zone)
		}
		return fmt.Sprintf("Removed %s from zone %s", spec.Entry.Value, zone)
	case KindInterface:
		if spec.Enabled {
			return fmt.Sprintf("Changed %s to zone %s", spec.Entry.Value, zone)
		}
		return fmt.Sprintf("Removed %s from zone %s", spec.Entry.Value, zone)
	case KindForward:
		if spec.Enabled {
			return fmt.Sprintf("Added forward to zone %s", zone)
		}
		return fmt.Sprintf("Removed forward from zone %s", zone)
	case KindMasquerade:
		if spec.Enabled {
			return fmt.Sprintf("Added masquerade to zone %s", zone)
		}
		return fmt.Sprintf("Removed masquerade from zone %s", zone)
	case KindICMPBlock:
		return fmt.Sprintf("Changed icmp-block %s to %s", spec.Entry.Value, spec.stateWord())
	case KindICMPBlockInversion:
		// Echoes the declared value and state, not the resolved action.
		// declared state == enabled exactly when Enabled and Flag agree.
		state := "disabled"
		if spec.Enabled == spec.Flag {
			state = "enabled"
		}
		return fmt.Sprintf("Changed icmp-block-inversion %t to %s", spec.Flag, state)
	default:
		return fmt.Sprintf("Changed %s %s to %s", spec.Kind, spec.Entry.Value, spec.stateWord())
	}
}
