package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config represents the top-level configuration structure.
type Config struct {
	Global GlobalConfig `yaml:"global" mapstructure:"global"`
	Rules  []RuleConfig `yaml:"rules"  mapstructure:"rules"`
}

// GlobalConfig holds global settings.
type GlobalConfig struct {
	LogLevel      string `yaml:"log_level"      mapstructure:"log_level"`
	CheckInterval string `yaml:"check_interval" mapstructure:"check_interval"`
}

// GetCheckInterval parses and returns the daemon state probe interval.
// Defaults to 15s if not set, invalid, or non-positive.
func (g GlobalConfig) GetCheckInterval() time.Duration {
	if g.CheckInterval == "" {
		return 15 * time.Second
	}
	duration, err := time.ParseDuration(g.CheckInterval)
	if err != nil || duration <= 0 {
		return 15 * time.Second
	}
	return duration
}

// RuleConfig is a single declarative firewalld rule request. At most one of
// the rule parameters (service, protocol, port, source_port, port_forward,
// rich_rule, source, interface, icmp_block, icmp_block_inversion, forward,
// masquerade, target) may be set; a declaration with none of them set and
// state present/absent operates on the zone itself.
type RuleConfig struct {
	Name      string `yaml:"name"      mapstructure:"name"`
	Zone      string `yaml:"zone"      mapstructure:"zone"`
	State     string `yaml:"state"     mapstructure:"state"`
	Permanent bool   `yaml:"permanent" mapstructure:"permanent"`
	Immediate bool   `yaml:"immediate" mapstructure:"immediate"`
	Timeout   int    `yaml:"timeout"   mapstructure:"timeout"`

	Service            string              `yaml:"service"              mapstructure:"service"`
	Protocol           string              `yaml:"protocol"             mapstructure:"protocol"`
	Port               string              `yaml:"port"                 mapstructure:"port"`
	SourcePort         string              `yaml:"source_port"          mapstructure:"source_port"`
	PortForward        []PortForwardConfig `yaml:"port_forward"         mapstructure:"port_forward"`
	RichRule           string              `yaml:"rich_rule"            mapstructure:"rich_rule"`
	Source             string              `yaml:"source"               mapstructure:"source"`
	Interface          string              `yaml:"interface"            mapstructure:"interface"`
	ICMPBlock          string              `yaml:"icmp_block"           mapstructure:"icmp_block"`
	ICMPBlockInversion *bool               `yaml:"icmp_block_inversion" mapstructure:"icmp_block_inversion"`
	Forward            *bool               `yaml:"forward"              mapstructure:"forward"`
	Masquerade         *bool               `yaml:"masquerade"           mapstructure:"masquerade"`
	Target             string              `yaml:"target"               mapstructure:"target"`
}

// PortForwardConfig defines a single port forwarding declaration.
type PortForwardConfig struct {
	Port   string `yaml:"port"   mapstructure:"port"`
	Proto  string `yaml:"proto"  mapstructure:"proto"`
	ToPort string `yaml:"toport" mapstructure:"toport"`
	ToAddr string `yaml:"toaddr" mapstructure:"toaddr"`
}

// validStates is the set of accepted state values.
var validStates = map[string]bool{
	"enabled":  true,
	"disabled": true,
	"present":  true,
	"absent":   true,
}

// Manager handles configuration loading, validation, and hot-reload.
type Manager struct {
	viper      *viper.Viper
	configPath string
	current    *Config
	mu         sync.RWMutex
	onChange   chan struct{}
	logger     *zap.Logger
}

// NewManager creates a config Manager, loads and validates the initial configuration.
func NewManager(configPath string, logger *zap.Logger) (*Manager, error) {
	viperInstance := viper.New()
	viperInstance.SetConfigFile(configPath)

	// Set defaults
	viperInstance.SetDefault("global.log_level", "info")
	viperInstance.SetDefault("global.check_interval", "15s")

	manager := &Manager{
		viper:      viperInstance,
		configPath: configPath,
		onChange:   make(chan struct{}, 1),
		logger:     logger,
	}

	cfg, err := manager.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	manager.current = cfg

	return manager, nil
}

// Load reads the config file, unmarshals it, and validates.
func (m *Manager) Load() (*Config, error) {
	if err := m.viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := m.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for structural correctness. Rule
// semantics (parameter exclusivity, port syntax, zone/target permanence)
// are validated per rule by the firewall normalizer at apply time.
func Validate(cfg *Config) error {
	if len(cfg.Rules) == 0 {
		return fmt.Errorf("at least one rule must be defined")
	}

	if cfg.Global.CheckInterval != "" {
		duration, err := time.ParseDuration(cfg.Global.CheckInterval)
		if err != nil {
			return fmt.Errorf("invalid global.check_interval %q: %w", cfg.Global.CheckInterval, err)
		}
		if duration <= 0 {
			return fmt.Errorf("global.check_interval must be positive, got %q", cfg.Global.CheckInterval)
		}
	}

	nameSet := make(map[string]bool)
	for i, rule := range cfg.Rules {
		if rule.State == "" {
			return fmt.Errorf("rule[%d]: state is required", i)
		}
		if !validStates[rule.State] {
			return fmt.Errorf("rule[%d]: invalid state %q (supported: enabled, disabled, present, absent)", i, rule.State)
		}
		if rule.Timeout < 0 {
			return fmt.Errorf("rule[%d]: timeout must not be negative", i)
		}
		if rule.Name != "" {
			if nameSet[rule.Name] {
				return fmt.Errorf("rule[%d]: duplicate rule name %q", i, rule.Name)
			}
			nameSet[rule.Name] = true
		}
	}

	return nil
}

// WatchConfig starts watching the config file for changes.
// On change, it reloads and validates; if valid, updates current config and notifies via onChange channel.
func (m *Manager) WatchConfig() {
	m.viper.OnConfigChange(func(event fsnotify.Event) {
		m.logger.Info("config file changed", zap.String("file", event.Name))

		cfg, err := m.Load()
		if err != nil {
			m.logger.Error("failed to reload config, keeping previous config", zap.Error(err))
			return
		}

		m.mu.Lock()
		m.current = cfg
		m.mu.Unlock()

		m.logger.Info("config reloaded successfully")

		// Non-blocking send to notify listeners
		select {
		case m.onChange <- struct{}{}:
		default:
		}
	})

	m.viper.WatchConfig()
}

// GetConfig returns a snapshot of the current configuration.
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnChange returns a read-only channel that signals when config has changed.
func (m *Manager) OnChange() <-chan struct{} {
	return m.onChange
}
