// Package config holds tokenctl settings: defaults, an optional JSON file
// and TOKENKEEPER_* environment variables. Command-line flags are applied
// on top by the cobra commands.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/dmitrijs2005/tokenkeeper/internal/timex"
)

const EnvPrefix = "TOKENKEEPER_"

// Config holds runtime settings for tokenctl.
//
// Fields:
//   - ServerURL: base URL of the tokenkeeper HTTP API.
//   - Token: bearer credential for authenticated commands.
//   - Timeout: per-request HTTP timeout.
type Config struct {
	ServerURL string        `env:"SERVER_URL"`
	Token     string        `env:"TOKEN"`
	Timeout   time.Duration `env:"TIMEOUT"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.Timeout = 10 * time.Second
}

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	ServerURL string          `json:"server_url"`
	Timeout   *timex.Duration `json:"timeout"`
}

// LoadJSON overlays c with the values present in the file at path.
func (c *Config) LoadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if jc.ServerURL != "" {
		c.ServerURL = jc.ServerURL
	}
	if jc.Timeout != nil {
		c.Timeout = jc.Timeout.Duration
	}
	return nil
}

// LoadEnv overlays c with TOKENKEEPER_* environment variables.
func (c *Config) LoadEnv() error {
	return env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix})
}

// Load applies defaults, the JSON file when path is set, then the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if path != "" {
		if err := cfg.LoadJSON(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}
