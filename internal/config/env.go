package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvRelayURL      = "STUDYPROGRESS_RELAY_URL"
	EnvChannelPrefix = "STUDYPROGRESS_CHANNEL_PREFIX"
	EnvLogLevel      = "STUDYPROGRESS_LOG_LEVEL"
	EnvLogFormat     = "STUDYPROGRESS_LOG_FORMAT"
	EnvMetricsAddr   = "STUDYPROGRESS_METRICS_ADDR"
	EnvListenAddr    = "STUDYPROGRESS_LISTEN_ADDR"
	EnvUpdateBuffer  = "STUDYPROGRESS_UPDATE_BUFFER"
)

// LookupFunc reports the value of an environment variable.
type LookupFunc func(key string) (string, bool)

// Environ returns a lookup over the process environment, falling back to a
// .env file in dir. Process variables win over the file. A missing .env file
// is not an error.
func Environ(dir string) (LookupFunc, error) {
	file, err := godotenv.Read(filepath.Join(dir, ".env"))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: read .env: %w", err)
		}
		file = map[string]string{}
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}, nil
}

// ApplyEnv overrides fields from the variables lookup knows about.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	strs := []struct {
		key string
		dst *string
	}{
		{EnvRelayURL, &c.RelayURL},
		{EnvChannelPrefix, &c.ChannelPrefix},
		{EnvLogLevel, &c.LogLevel},
		{EnvLogFormat, &c.LogFormat},
		{EnvMetricsAddr, &c.MetricsAddr},
		{EnvListenAddr, &c.ListenAddr},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok && v != "" {
			*s.dst = v
		}
	}

	if v, ok := lookup(EnvUpdateBuffer); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("config: %s must be a positive integer, got %q", EnvUpdateBuffer, v)
		}
		c.UpdateBuffer = n
	}
	return nil
}
