package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models aivora.yml.
type Config struct {
	API struct {
		BaseURL           string        `yaml:"base_url"`
		Timeout           time.Duration `yaml:"timeout"`
		GenerationTimeout time.Duration `yaml:"generation_timeout"`
	} `yaml:"api"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads and validates config from workspace. A missing file yields
// the defaults rather than an error; the CLI works out of the box.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config.api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("config.api.timeout must be positive")
	}
	if c.API.GenerationTimeout < c.API.Timeout {
		return fmt.Errorf("config.api.generation_timeout must be at least config.api.timeout")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be one of debug, info, warn, error")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "aivora.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	cfg.API.BaseURL = "http://localhost:5000/api"
	cfg.API.Timeout = 15 * time.Second
	cfg.API.GenerationTimeout = 2 * time.Minute
	cfg.Log.Level = "info"
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes. Fields left
// empty fall back to the defaults before validation.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = Default().API.Timeout
	}
	if cfg.API.GenerationTimeout <= 0 {
		cfg.API.GenerationTimeout = Default().API.GenerationTimeout
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = Default().Log.Level
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `api:
  base_url: http://localhost:5000/api
  timeout: 15s
  generation_timeout: 2m

log:
  level: info
`
