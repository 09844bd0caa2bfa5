// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpusurf

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables read by Connect. They override options and
// configuration files.
const (
	EnvBackend       = "GPUSURF_BACKEND"
	EnvAdapter       = "GPUSURF_ADAPTER"
	EnvCurrentPolicy = "GPUSURF_CURRENT_POLICY"
)

const configFile = "config.toml"

// Config is the on-disk configuration. Empty fields leave the
// corresponding default untouched.
//
//	backend = "vulkan"
//	adapter = "low-power"
//	current_policy = "block"
//	sync_timeout = "2s"
//	log_level = "debug"
type Config struct {
	Backend       string   `toml:"backend"`
	Adapter       string   `toml:"adapter"`
	CurrentPolicy string   `toml:"current_policy"`
	SyncTimeout   Duration `toml:"sync_timeout"`
	LogLevel      string   `toml:"log_level"`
}

// Duration is a time.Duration written as a Go duration string in TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/gpusurf/config.toml or the
// platform equivalent.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "gpusurf", configFile), nil
}

// LoadConfig reads and validates a TOML configuration file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("gpusurf: read config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gpusurf: config %s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes cfg to path, creating the parent directory.
func (c *Config) Save(path string) error {
	var buffer bytes.Buffer
	if err := toml.NewEncoder(&buffer).Encode(c); err != nil {
		return fmt.Errorf("gpusurf: encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, buffer.Bytes(), 0o644)
}

// Validate reports the first field holding an unrecognized value.
func (c *Config) Validate() error {
	if _, err := ParseAdapterPreference(c.Adapter); err != nil {
		return err
	}
	if _, err := ParseCurrentPolicy(c.CurrentPolicy); err != nil {
		return err
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.SyncTimeout < 0 {
		return fmt.Errorf("gpusurf: negative sync_timeout %s", time.Duration(c.SyncTimeout))
	}
	return nil
}

// applyTo copies set, valid fields into o.
func (c *Config) applyTo(o *options) {
	if c.Backend != "" {
		o.backend = c.Backend
	}
	if p, err := ParseAdapterPreference(c.Adapter); err == nil && c.Adapter != "" {
		o.adapter = p
	}
	if p, err := ParseCurrentPolicy(c.CurrentPolicy); err == nil && c.CurrentPolicy != "" {
		o.policy = p
	}
	if c.SyncTimeout > 0 {
		o.syncTimeout = time.Duration(c.SyncTimeout)
	}
	if level, err := parseLevel(c.LogLevel); err == nil && c.LogLevel != "" {
		o.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
}

// EnvConfig returns the configuration carried by GPUSURF_* variables.
func EnvConfig() *Config {
	return &Config{
		Backend:       os.Getenv(EnvBackend),
		Adapter:       os.Getenv(EnvAdapter),
		CurrentPolicy: os.Getenv(EnvCurrentPolicy),
	}
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("gpusurf: unknown log level %q", s)
}
