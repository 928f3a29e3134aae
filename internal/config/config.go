// Package config loads studyprogress.yml project settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults applied to any field left empty in the file.
const (
	DefaultRelayURL     = "http://127.0.0.1:8787"
	DefaultListenAddr   = ":8787"
	DefaultMetricsAddr  = ":9090"
	DefaultPrefix       = "workspace-"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "console"
	DefaultUpdateBuffer = 64
)

// Config holds settings loaded from studyprogress.yml.
type Config struct {
	// RelayURL is the base URL subscribers and publishers use.
	RelayURL      string `yaml:"relayURL,omitempty"`
	ChannelPrefix string `yaml:"channelPrefix,omitempty"`
	LogLevel      string `yaml:"logLevel,omitempty"`
	LogFormat     string `yaml:"logFormat,omitempty"`
	// MetricsAddr is where serve exposes /metrics; "-" disables it.
	MetricsAddr  string `yaml:"metricsAddr,omitempty"`
	ListenAddr   string `yaml:"listenAddr,omitempty"`
	UpdateBuffer int    `yaml:"updateBuffer,omitempty"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load attempts to read studyprogress.yml or studyprogress.yaml from the given
// directory. Returns the default config (not an error) if no config file
// exists.
func Load(dir string) (*Config, error) {
	for _, name := range []string{"studyprogress.yml", "studyprogress.yaml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return LoadFile(path)
	}
	return Default(), nil
}

// LoadFile reads the config at path. Unlike Load, a missing file is an error.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.UpdateBuffer < 0 {
		return nil, fmt.Errorf("config: %s: updateBuffer must be >= 0, got %d", path, cfg.UpdateBuffer)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RelayURL == "" {
		c.RelayURL = DefaultRelayURL
	}
	if c.ChannelPrefix == "" {
		c.ChannelPrefix = DefaultPrefix
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = DefaultMetricsAddr
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.UpdateBuffer == 0 {
		c.UpdateBuffer = DefaultUpdateBuffer
	}
}

// Save writes c to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
