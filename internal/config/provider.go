package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

const (
	// DefaultTTL is the TTL every submitted change carries.
	DefaultTTL = 30
	// DefaultRelaxedTTL is used when a rejected DELETE is retried and the live TTL is unknown.
	DefaultRelaxedTTL = 300
)

// ProfileEntry pins the credential (and optionally the backend zone id) used for a zone.
type ProfileEntry struct {
	Credential string `yaml:"credential"`
	ZoneID     string `yaml:"zone_id"`
}

// ProviderConfig holds the DNS provider type, app-level options, and
// provider-specific connection settings.
type ProviderConfig struct {
	Provider   string                  `yaml:"provider"`
	TTL        int64                   `yaml:"ttl"`
	RelaxedTTL int64                   `yaml:"relaxed_ttl"`
	Domains    []string                `yaml:"domains"`
	Profiles   map[string]ProfileEntry `yaml:"profiles"`
	Settings   map[string]string       `yaml:"settings"`
}

// ProfileMap returns the configured zone profiles.
func (c *ProviderConfig) ProfileMap() *ProfileMap {
	return NewProfileMap(c.Profiles)
}

// LoadProviderConfig reads the DNS provider configuration from path, falling
// back to the DNS_PROVIDER_PATH environment variable and then to
// "configs/dns-provider.yaml".
func LoadProviderConfig(path string) (*ProviderConfig, error) {
	if path == "" {
		path = os.Getenv("DNS_PROVIDER_PATH")
	}
	if path == "" {
		path = "configs/dns-provider.yaml"
	}
	return LoadProviderConfigFromPath(path)
}

// LoadProviderConfigFromPath reads the DNS provider configuration from the
// given file path.
func LoadProviderConfigFromPath(path string) (*ProviderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading provider config file: %w", err)
	}

	var cfg ProviderConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing provider config file: %w", err)
	}

	if cfg.Provider == "" {
		return nil, fmt.Errorf("provider config: missing required field 'provider'")
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.RelaxedTTL == 0 {
		cfg.RelaxedTTL = DefaultRelaxedTTL
	}
	if cfg.TTL < 0 || cfg.RelaxedTTL < 0 {
		return nil, fmt.Errorf("provider config: ttl values must be positive")
	}

	// Expand ${ENV_VAR} references in setting values.
	for k, v := range cfg.Settings {
		cfg.Settings[k] = os.ExpandEnv(v)
	}

	return &cfg, nil
}
