package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/lunar-bby/AgoraAI/internal/network"
)

// Duration wraps time.Duration so values like "10s" parse from YAML.
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config represents the application configuration.
type Config struct {
	NodeID     string         `yaml:"node_id"`
	ListenAddr string         `yaml:"listen_addr"`
	Seeds      []network.Seed `yaml:"seeds"`
	Ledger     LedgerConfig   `yaml:"ledger"`
	Network    NetworkConfig  `yaml:"network"`
	Registry   RegistryConfig `yaml:"registry"`
}

// LedgerConfig represents the ledger configuration.
type LedgerConfig struct {
	Difficulty   int      `yaml:"difficulty"`
	MiningReward float64  `yaml:"mining_reward"`
	MineInterval Duration `yaml:"mine_interval"`
	MinPending   int      `yaml:"min_pending"`
}

// NetworkConfig represents the networking configuration.
type NetworkConfig struct {
	DiscoveryInterval Duration `yaml:"discovery_interval"`
	RequestTimeout    Duration `yaml:"request_timeout"`
}

// RegistryConfig represents the agent registry configuration.
type RegistryConfig struct {
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		NodeID:     "node-1",
		ListenAddr: "127.0.0.1:8000",
		Ledger: LedgerConfig{
			Difficulty:   4,
			MiningReward: 1.0,
			MineInterval: Duration(10 * time.Second),
			MinPending:   5,
		},
		Network: NetworkConfig{
			DiscoveryInterval: Duration(60 * time.Second),
			RequestTimeout:    Duration(30 * time.Second),
		},
		Registry: RegistryConfig{
			HeartbeatInterval: Duration(30 * time.Second),
		},
	}
}

// LoadConfig loads the configuration from a file, filling unset fields from
// the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}
