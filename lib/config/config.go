// Copyright 2026 The Concord Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Concord chat
// service.
//
// Configuration is loaded from a single file specified by:
//   - CONCORD_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The config file may contain environment-specific sections
// (development, staging, production) that override base values when
// the environment matches.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for the chat service.
type Config struct {
	// Environment identifies the deployment type (development,
	// staging, production).
	Environment Environment `yaml:"environment"`

	// Listen configures the network listeners.
	Listen ListenConfig `yaml:"listen"`

	// Store configures the relational store.
	Store StoreConfig `yaml:"store"`

	// Gateway configures the websocket gateway.
	Gateway GatewayConfig `yaml:"gateway"`

	// LogLevel sets the slog level: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Listen   *ListenConfig  `yaml:"listen,omitempty"`
	Store    *StoreConfig   `yaml:"store,omitempty"`
	Gateway  *GatewayConfig `yaml:"gateway,omitempty"`
	LogLevel string         `yaml:"log_level,omitempty"`
}

// ListenConfig configures network listeners.
type ListenConfig struct {
	// Addr is the address the chat service listens on for websocket
	// upgrades. Default: 127.0.0.1:3001
	Addr string `yaml:"addr"`

	// MetricsAddr is the address the Prometheus /metrics endpoint
	// listens on. Empty disables metrics serving.
	// Default: 127.0.0.1:9090 in development, empty otherwise.
	MetricsAddr string `yaml:"metrics_addr"`
}

// StoreConfig configures the relational store.
type StoreConfig struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist.
	Path string `yaml:"path"`

	// PoolSize is the number of pooled connections. Default: 4.
	PoolSize int `yaml:"pool_size"`
}

// GatewayConfig configures the websocket gateway.
type GatewayConfig struct {
	// SendBuffer is the per-connection outbound event buffer. Events
	// beyond this are dropped for that connection (best-effort
	// delivery). Default: 64.
	SendBuffer int `yaml:"send_buffer"`

	// MaxEventBytes caps the size of a single inbound client event.
	// Default: 65536.
	MaxEventBytes int64 `yaml:"max_event_bytes"`

	// EventsPerSecond rate-limits inbound client events per
	// connection. Default: 25.
	EventsPerSecond float64 `yaml:"events_per_second"`

	// EventBurst is the rate limiter burst. Default: 50.
	EventBurst int `yaml:"event_burst"`

	// PingInterval is the keepalive ping cadence. Default: 25s.
	PingInterval time.Duration `yaml:"ping_interval"`
}

// Default returns the default configuration. These defaults ensure all
// fields have sensible zero-values — the config file is still
// required.
func Default() *Config {
	return &Config{
		Environment: Development,
		Listen: ListenConfig{
			Addr:        "127.0.0.1:3001",
			MetricsAddr: "127.0.0.1:9090",
		},
		Store: StoreConfig{
			Path:     filepath.Join(defaultRoot(), "chat.db"),
			PoolSize: 4,
		},
		Gateway: GatewayConfig{
			SendBuffer:      64,
			MaxEventBytes:   65536,
			EventsPerSecond: 25,
			EventBurst:      50,
			PingInterval:    25 * time.Second,
		},
		LogLevel: "info",
	}
}

func defaultRoot() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".cache", "concord")
}

// Load loads configuration from the CONCORD_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit
// path. There are no fallbacks — if CONCORD_CONFIG is not set, this
// fails.
func Load() (*Config, error) {
	configPath := os.Getenv("CONCORD_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CONCORD_CONFIG environment variable not set; " +
			"set it to the path of your concord.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnvironmentOverrides applies the environment-specific override
// section matching cfg.Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production default: metrics are opt-in per deployment.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Listen: &ListenConfig{MetricsAddr: ""},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Listen != nil {
		if overrides.Listen.Addr != "" {
			c.Listen.Addr = overrides.Listen.Addr
		}
		c.Listen.MetricsAddr = overrides.Listen.MetricsAddr
	}
	if overrides.Store != nil {
		if overrides.Store.Path != "" {
			c.Store.Path = overrides.Store.Path
		}
		if overrides.Store.PoolSize > 0 {
			c.Store.PoolSize = overrides.Store.PoolSize
		}
	}
	if overrides.Gateway != nil {
		if overrides.Gateway.SendBuffer > 0 {
			c.Gateway.SendBuffer = overrides.Gateway.SendBuffer
		}
		if overrides.Gateway.MaxEventBytes > 0 {
			c.Gateway.MaxEventBytes = overrides.Gateway.MaxEventBytes
		}
		if overrides.Gateway.EventsPerSecond > 0 {
			c.Gateway.EventsPerSecond = overrides.Gateway.EventsPerSecond
		}
		if overrides.Gateway.EventBurst > 0 {
			c.Gateway.EventBurst = overrides.Gateway.EventBurst
		}
		if overrides.Gateway.PingInterval > 0 {
			c.Gateway.PingInterval = overrides.Gateway.PingInterval
		}
	}
	if overrides.LogLevel != "" {
		c.LogLevel = overrides.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Listen.Addr == "" {
		return fmt.Errorf("listen.addr is required")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	return nil
}
