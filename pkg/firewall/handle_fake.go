//go:build !integration

package firewall

import (
	"fmt"
	"sort"
	"sync"
)

// defaultZoneNames are the zones firewalld ships out of the box.
var defaultZoneNames = []string{
	"block", "dmz", "drop", "external", "home",
	"internal", "public", "trusted", "work",
}

// fakeZone holds one zone's settings within a single store.
type fakeZone struct {
	target  string
	entries map[Entry]bool
}

func newFakeZone() *fakeZone {
	return &fakeZone{
		target:  "default",
		entries: make(map[Entry]bool),
	}
}

func (z *fakeZone) clone() *fakeZone {
	cloned := &fakeZone{
		target:  z.target,
		entries: make(map[Entry]bool, len(z.entries)),
	}
	for entry := range z.entries {
		cloned.entries[entry] = true
	}
	return cloned
}

// fakeHandle provides an in-memory firewalld implementation for systems
// without a firewalld daemon. It models the runtime and permanent stores
// as two independent zone maps; Reload replaces the runtime store with a
// copy of the permanent one, mirroring daemon behavior.
type fakeHandle struct {
	mu          sync.Mutex
	defaultZone string
	runtime     map[string]*fakeZone
	permanent   map[string]*fakeZone
}

// NewHandle creates a fake in-memory firewalld handle seeded with the
// standard zone set.
func NewHandle() (Handle, error) {
	handle := &fakeHandle{
		defaultZone: "public",
		runtime:     make(map[string]*fakeZone),
		permanent:   make(map[string]*fakeZone),
	}
	for _, zone := range defaultZoneNames {
		handle.runtime[zone] = newFakeZone()
		handle.permanent[zone] = newFakeZone()
	}
	return handle, nil
}

func (h *fakeHandle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runtime = nil
	h.permanent = nil
}

func (h *fakeHandle) Running() (bool, error) {
	return true, nil
}

func (h *fakeHandle) DefaultZone() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.defaultZone, nil
}

// storeZones selects the zone map for a store. Caller holds the lock.
func (h *fakeHandle) storeZones(store Store) map[string]*fakeZone {
	if store == PermanentStore {
		return h.permanent
	}
	return h.runtime
}

func (h *fakeHandle) Zones(store Store) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	zones := h.storeZones(store)
	names := make([]string, 0, len(zones))
	for name := range zones {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// AddZone creates a zone in the permanent store. New zones become visible
// in the runtime store only after a reload, as with the real daemon.
func (h *fakeHandle) AddZone(zone string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.permanent[zone]; exists {
		return fmt.Errorf("zone %q already exists", zone)
	}
	h.permanent[zone] = newFakeZone()
	return nil
}

func (h *fakeHandle) RemoveZone(zone string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.permanent[zone]; !exists {
		return fmt.Errorf("zone %q not found", zone)
	}
	delete(h.permanent, zone)
	return nil
}

// Target returns the permanent-store target of a zone.
func (h *fakeHandle) Target(zone string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, exists := h.permanent[zone]
	if !exists {
		return "", fmt.Errorf("zone %q not found", zone)
	}
	return state.target, nil
}

func (h *fakeHandle) SetTarget(zone, target string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, exists := h.permanent[zone]
	if !exists {
		return fmt.Errorf("zone %q not found", zone)
	}
	state.target = target
	return nil
}

func (h *fakeHandle) ListEntries(zone string, kind RuleKind, store Store) ([]Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, exists := h.storeZones(store)[zone]
	if !exists {
		return nil, fmt.Errorf("zone %q not found in %s store", zone, store)
	}

	var entries []Entry
	for entry := range state.entries {
		if entry.Kind == kind {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Value < entries[j].Value })
	return entries, nil
}

// AddEntry records an entry in the given store. The runtime timeout is
// accepted but not aged out; the fake never expires entries.
func (h *fakeHandle) AddEntry(zone string, entry Entry, store Store, timeout int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, exists := h.storeZones(store)[zone]
	if !exists {
		return fmt.Errorf("zone %q not found in %s store", zone, store)
	}
	if state.entries[entry] {
		return fmt.Errorf("%s already enabled in zone %q (%s store)", entry, zone, store)
	}
	state.entries[entry] = true
	return nil
}

func (h *fakeHandle) RemoveEntry(zone string, entry Entry, store Store) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	state, exists := h.storeZones(store)[zone]
	if !exists {
		return fmt.Errorf("zone %q not found in %s store", zone, store)
	}
	if !state.entries[entry] {
		return fmt.Errorf("%s not enabled in zone %q (%s store)", entry, zone, store)
	}
	delete(state.entries, entry)
	return nil
}

// Reload replaces the runtime store with a deep copy of the permanent
// store, discarding runtime-only entries.
func (h *fakeHandle) Reload() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	runtime := make(map[string]*fakeZone, len(h.permanent))
	for name, state := range h.permanent {
		runtime[name] = state.clone()
	}
	h.runtime = runtime
	return nil
}
