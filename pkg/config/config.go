package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvAPIKey is the environment variable consulted when the config file
// carries no API key.
const EnvAPIKey = "UNRAID_API_KEY"

// Collections toggles which entity categories the coordinator polls.
type Collections struct {
	Disks  bool `yaml:"disks"`
	Shares bool `yaml:"shares"`
	Docker bool `yaml:"docker"`
	VMs    bool `yaml:"vms"`
	UPS    bool `yaml:"ups"`
}

// Config is the unraidmon configuration.
type Config struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key"`

	// PollInterval is a Go duration string ("1m", "30s").
	PollInterval string `yaml:"poll_interval"`

	Collections Collections `yaml:"collections"`

	Log struct {
		Level string `yaml:"level"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	// MetricsListen enables the Prometheus endpoint when non-empty
	// (e.g. ":9110").
	MetricsListen string `yaml:"metrics_listen"`

	// StatePath enables persistent discovery state when non-empty.
	StatePath string `yaml:"state_path"`
}

// Default returns the configuration defaults.
func Default() Config {
	cfg := Config{
		PollInterval: "1m",
		Collections: Collections{
			Disks:  true,
			Shares: true,
			Docker: true,
			VMs:    true,
			UPS:    true,
		},
	}
	cfg.Log.Level = "info"
	return cfg
}

// Load reads the config file at path on top of the defaults. A missing
// file is not an error; the defaults plus environment are used. The API
// key falls back to the UNRAID_API_KEY environment variable.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Defaults only.
		case err != nil:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(EnvAPIKey)
	}

	if _, err := cfg.Interval(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Interval parses the poll interval string.
func (c Config) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid poll_interval %q: %w", c.PollInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid poll_interval %q: must be positive", c.PollInterval)
	}
	return d, nil
}

// Validate checks that the required connection settings are present.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (or set %s)", EnvAPIKey)
	}
	return nil
}
