package firewall

// Handle abstracts the firewalld command/query surface, allowing
// platform-specific implementations.
// With the integration build tag it shells out to the real firewall-cmd
// binary; otherwise it provides an in-memory dual-store implementation for
// development and testing.
//
// All rule queries and mutations address one store explicitly. The two
// stores are never synchronized implicitly; only Reload copies the
// permanent configuration into the runtime store.
type Handle interface {
	Close()
	Running() (bool, error)
	DefaultZone() (string, error)
	Zones(store Store) ([]string, error)
	AddZone(zone string) error
	RemoveZone(zone string) error
	Target(zone string) (string, error)
	SetTarget(zone, target string) error
	ListEntries(zone string, kind RuleKind, store Store) ([]Entry, error)
	AddEntry(zone string, entry Entry, store Store, timeout int) error
	RemoveEntry(zone string, entry Entry, store Store) error
	Reload() error
}
