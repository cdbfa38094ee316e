// Package config loads engine configuration from a YAML file with
// environment variable overrides and sane defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"cometguard/internal/domain"
	"cometguard/internal/provider"
)

// Config holds all application configuration.
type Config struct {
	// RPCURL is the Ethereum JSON-RPC endpoint. Empty selects the stub
	// provider (no network access).
	RPCURL string `yaml:"rpc_url"`

	// Markets are the Comet deployments to watch.
	Markets []provider.MarketConfig `yaml:"markets"`

	Risk domain.RiskParameters `yaml:"risk"`

	Cache struct {
		TTLSeconds  uint `yaml:"ttl_seconds"`
		MaxCapacity uint `yaml:"max_capacity"`
	} `yaml:"cache"`

	Assessment struct {
		Parallelism    uint `yaml:"parallelism"`
		TimeoutSeconds uint `yaml:"timeout_seconds"`
	} `yaml:"assessment"`

	Monitor struct {
		// Cron is a robfig/cron spec with seconds field.
		Cron        string `yaml:"cron"`
		MetricsAddr string `yaml:"metrics_addr"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"monitor"`

	LogLevel string `yaml:"log_level"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("COMETGUARD_RPC_URL"); v != "" {
		cfg.RPCURL = v
	}
	if v := os.Getenv("COMETGUARD_POSTGRES_DSN"); v != "" {
		cfg.Monitor.PostgresDSN = v
	}
	if v := os.Getenv("COMETGUARD_METRICS_ADDR"); v != "" {
		cfg.Monitor.MetricsAddr = v
	}
	if v := os.Getenv("COMETGUARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("COMETGUARD_PARALLELISM"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Assessment.Parallelism = uint(n)
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Risk == (domain.RiskParameters{}) {
		c.Risk = domain.DefaultRiskParameters()
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 60
	}
	if c.Cache.MaxCapacity == 0 {
		c.Cache.MaxCapacity = 32
	}
	if c.Assessment.Parallelism == 0 {
		c.Assessment.Parallelism = 4
	}
	if c.Assessment.TimeoutSeconds == 0 {
		c.Assessment.TimeoutSeconds = 30
	}
	if c.Monitor.Cron == "" {
		c.Monitor.Cron = "0 */5 * * * *" // every five minutes
	}
	if c.Monitor.MetricsAddr == "" {
		c.Monitor.MetricsAddr = ":9090"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.Markets) == 0 {
		// Mainnet USDC Comet proxy.
		c.Markets = []provider.MarketConfig{{
			MarketID: "0xc3d688b66703497daa19211eedff47f25384cdc3",
			Name:     "USDC",
		}}
	}
}

// Validate checks ranges after defaults are applied.
func (c *Config) Validate() error {
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	for _, m := range c.Markets {
		if m.MarketID == "" {
			return fmt.Errorf("config: market %q missing comet_address", m.Name)
		}
	}
	return nil
}

// MarketIDs returns the configured market ids in declaration order.
func (c *Config) MarketIDs() []string {
	ids := make([]string, len(c.Markets))
	for i, m := range c.Markets {
		ids[i] = m.MarketID
	}
	return ids
}
