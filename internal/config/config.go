// Package config loads and validates the habsync YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration loaded from YAML.
// Per-tenant sync settings (endpoint, mappings) live in the database; this
// file only configures the service process itself.
type Config struct {
	// ListenAddr is the HTTP bind address. Defaults to ":8484".
	ListenAddr string `yaml:"listen_addr"`

	// DatabasePath is the SQLite file shared with the dashboard
	// application. Defaults to ~/.local/share/habsync/habsync.db.
	DatabasePath string `yaml:"database_path"`

	// APIToken authenticates operator requests (test-connection,
	// fetch-items, sync-data). Empty disables the check, for local
	// development only.
	APIToken string `yaml:"api_token"`

	// CronToken authenticates the external scheduler's auto-sync calls.
	// Kept separate from APIToken so the scheduler credential never grants
	// the operator surface.
	CronToken string `yaml:"cron_token"`

	// SyncConcurrency bounds the parallel per-item fetches within one sync
	// run. Minimum 1, maximum 8. Defaults to 4.
	SyncConcurrency int `yaml:"sync_concurrency"`

	// Discovery tunes item discovery.
	Discovery DiscoveryConfig `yaml:"discovery"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// DiscoveryConfig holds item-discovery settings.
type DiscoveryConfig struct {
	// ItemTypes is the allow-list of item type prefixes considered
	// sensor-compatible. Empty means the built-in numeric defaults.
	ItemTypes []string `yaml:"item_types,omitempty"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "habsync".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request, e.g. Authorization: "Bearer <token>".
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/habsync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "habsync", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// validate checks the fields and fills in defaults.
func (c *Config) validate() error {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8484"
	}

	if c.DatabasePath == "" {
		path, err := defaultDBPath()
		if err != nil {
			return err
		}
		c.DatabasePath = path
	}

	if c.SyncConcurrency == 0 {
		c.SyncConcurrency = 4
	}
	if c.SyncConcurrency < 1 || c.SyncConcurrency > 8 {
		return fmt.Errorf("sync_concurrency %d is out of range (1-8)", c.SyncConcurrency)
	}

	for _, t := range c.Discovery.ItemTypes {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("discovery.item_types contains an empty entry")
		}
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}

func defaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "habsync", "habsync.db"), nil
}
