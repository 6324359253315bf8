// Package config loads the worldloom configuration file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/worldloom/worldloom/internal/genclient"
)

// Config is the full worldloom configuration.
type Config struct {
	Provider  Provider  `yaml:"provider"`
	Scheduler Scheduler `yaml:"scheduler"`

	// Prices maps model name to per-million-token cost for usage estimates.
	Prices map[string]genclient.Price `yaml:"prices,omitempty"`
}

// Provider configures the generation provider client.
type Provider struct {
	BaseURL          string        `yaml:"base_url"`
	Model            string        `yaml:"model"`
	TokensPerMinute  int           `yaml:"tokens_per_minute"`
	AvgTokensPerCall int           `yaml:"avg_tokens_per_call"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay    time.Duration `yaml:"retry_max_delay"`
}

// Scheduler configures the regeneration worker pool.
type Scheduler struct {
	Workers int `yaml:"workers"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Provider: Provider{
			BaseURL:          "https://api.worldloom.dev",
			Model:            "loom-large",
			TokensPerMinute:  30000,
			AvgTokensPerCall: 1500,
			MaxRetries:       5,
			RetryBaseDelay:   2 * time.Second,
			RetryMaxDelay:    time.Minute,
		},
		Scheduler: Scheduler{Workers: 3},
	}
}

// Load reads a YAML config file over the defaults. Unknown fields are
// rejected to catch typos early.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model must be set")
	}
	if c.Provider.TokensPerMinute < 0 || c.Provider.AvgTokensPerCall < 0 {
		return fmt.Errorf("provider token budgets must be non-negative")
	}
	if c.Provider.MaxRetries < 1 {
		return fmt.Errorf("provider.max_retries must be at least 1")
	}
	if c.Scheduler.Workers < 1 {
		return fmt.Errorf("scheduler.workers must be at least 1")
	}
	return nil
}

// APIKey reads the provider credential from the environment. The key never
// lives in the config file.
func APIKey() string {
	return os.Getenv("WORLDLOOM_API_KEY")
}

// ClientConfig assembles the generation client configuration.
func (c *Config) ClientConfig() genclient.Config {
	return genclient.Config{
		BaseURL:          c.Provider.BaseURL,
		APIKey:           APIKey(),
		Model:            c.Provider.Model,
		TokensPerMinute:  c.Provider.TokensPerMinute,
		AvgTokensPerCall: c.Provider.AvgTokensPerCall,
		Retry: genclient.RetryPolicy{
			MaxAttempts: c.Provider.MaxRetries,
			BaseDelay:   c.Provider.RetryBaseDelay,
			MaxDelay:    c.Provider.RetryMaxDelay,
		},
	}
}
