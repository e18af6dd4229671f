package firewall

import (
	"fmt"

	"go.uber.org/zap"
)

// Manager wraps the firewalld Handle and provides store-aware query and
// mutation operations with logging.
type Manager struct {
	handle Handle
	logger *zap.Logger
}

// NewManager creates a new firewalld Manager by initializing a
// platform-specific handle.
func NewManager(logger *zap.Logger) (*Manager, error) {
	handle, err := NewHandle()
	if err != nil {
		return nil, fmt.Errorf("failed to create firewalld handle: %w", err)
	}

	logger.Info("firewalld manager initialized")
	return &Manager{
		handle: handle,
		logger: logger,
	}, nil
}

// newManagerWithHandle creates a Manager with a pre-initialized Handle.
// This is used in tests to inject a specific handle implementation.
func newManagerWithHandle(handle Handle, logger *zap.Logger) *Manager {
	return &Manager{
		handle: handle,
		logger: logger,
	}
}

// Close releases the firewalld handle.
func (m *Manager) Close() {
	m.handle.Close()
	m.logger.Info("firewalld manager closed")
}

// Running reports whether the firewalld daemon is up.
func (m *Manager) Running() (bool, error) {
	return m.handle.Running()
}

// DefaultZone returns the daemon's configured default zone.
func (m *Manager) DefaultZone() (string, error) {
	zone, err := m.handle.DefaultZone()
	if err != nil {
		return "", fmt.Errorf("failed to get default zone: %w", err)
	}
	return zone, nil
}

// ZoneExists reports whether a zone is defined in the given store.
func (m *Manager) ZoneExists(zone string, store Store) (bool, error) {
	zones, err := m.handle.Zones(store)
	if err != nil {
		return false, fmt.Errorf("failed to list %s zones: %w", store, err)
	}
	for _, name := range zones {
		if name == zone {
			return true, nil
		}
	}
	return false, nil
}

// AddZone creates a zone in the permanent store.
func (m *Manager) AddZone(zone string) error {
	if err := m.handle.AddZone(zone); err != nil {
		return fmt.Errorf("failed to create zone %q: %w", zone, err)
	}
	m.logger.Info("created zone", zap.String("zone", zone))
	return nil
}

// RemoveZone deletes a zone from the permanent store.
func (m *Manager) RemoveZone(zone string) error {
	if err := m.handle.RemoveZone(zone); err != nil {
		return fmt.Errorf("failed to delete zone %q: %w", zone, err)
	}
	m.logger.Info("deleted zone", zap.String("zone", zone))
	return nil
}

// Target returns a zone's permanent target.
func (m *Manager) Target(zone string) (string, error) {
	target, err := m.handle.Target(zone)
	if err != nil {
		return "", fmt.Errorf("failed to get target for zone %q: %w", zone, err)
	}
	return target, nil
}

// SetTarget sets a zone's permanent target.
func (m *Manager) SetTarget(zone, target string) error {
	if err := m.handle.SetTarget(zone, target); err != nil {
		return fmt.Errorf("failed to set target for zone %q: %w", zone, err)
	}
	m.logger.Info("set zone target",
		zap.String("zone", zone),
		zap.String("target", target),
	)
	return nil
}

// IsEnabled reports whether the exact entry is present in the zone's
// store. Matching is structural: a port range entry matches only the same
// boundaries and protocol, never a partial overlap.
func (m *Manager) IsEnabled(zone string, entry Entry, store Store) (bool, error) {
	entries, err := m.handle.ListEntries(zone, entry.Kind, store)
	if err != nil {
		return false, fmt.Errorf("failed to query %s in zone %q (%s store): %w",
			entry.Kind, zone, store, err)
	}
	for _, existing := range entries {
		if existing == entry {
			return true, nil
		}
	}
	return false, nil
}

// AddEntry enables an entry in the zone's store.
func (m *Manager) AddEntry(zone string, entry Entry, store Store, timeout int) error {
	if err := m.handle.AddEntry(zone, entry, store, timeout); err != nil {
		return fmt.Errorf("failed to add %s to zone %q (%s store): %w",
			entry, zone, store, err)
	}
	m.logger.Info("added firewalld entry",
		zap.String("zone", zone),
		zap.String("entry", entry.String()),
		zap.String("store", store.String()),
	)
	return nil
}

// RemoveEntry disables an entry in the zone's store.
func (m *Manager) RemoveEntry(zone string, entry Entry, store Store) error {
	if err := m.handle.RemoveEntry(zone, entry, store); err != nil {
		return fmt.Errorf("failed to remove %s from zone %q (%s store): %w",
			entry, zone, store, err)
	}
	m.logger.Info("removed firewalld entry",
		zap.String("zone", zone),
		zap.String("entry", entry.String()),
		zap.String("store", store.String()),
	)
	return nil
}

// Reload asks the daemon to reload, replacing runtime state with the
// permanent configuration.
func (m *Manager) Reload() error {
	if err := m.handle.Reload(); err != nil {
		return fmt.Errorf("failed to reload firewalld: %w", err)
	}
	m.logger.Info("reloaded firewalld")
	return nil
}
