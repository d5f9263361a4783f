// Package config provides centralized configuration for skillbridge.
// Configuration merges three layers: built-in defaults, an optional YAML
// file, and SKILLBRIDGE_* environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the complete application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	Host    HostConfig    `mapstructure:"host"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the request bridge.
type ServerConfig struct {
	// PreferredPort pins the bridge to one port in the supported range;
	// zero means scan the range for the first free port.
	PreferredPort int `mapstructure:"preferred_port"`
	// AutoStart makes a restored instance resume serving after a host
	// reload when the bridge was running before it.
	AutoStart bool `mapstructure:"auto_start"`
	// InstanceName namespaces persisted state and the discovery registry.
	InstanceName string `mapstructure:"instance_name"`

	BodyLimit          int64         `mapstructure:"body_limit"`
	DispatchTimeout    time.Duration `mapstructure:"dispatch_timeout"`
	BatchSize          int           `mapstructure:"batch_size"`
	RateLimitPerSecond int           `mapstructure:"rate_limit_per_second"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval"`
}

// StoreConfig contains the durable keyed store (libsql) configuration.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// HostConfig controls the built-in loop host used by `skillbridge serve`.
type HostConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Default returns the built-in configuration layer.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			PreferredPort:      0,
			AutoStart:          true,
			InstanceName:       "default",
			BodyLimit:          10 << 20,
			DispatchTimeout:    60 * time.Second,
			BatchSize:          20,
			RateLimitPerSecond: 100,
			HeartbeatInterval:  30 * time.Second,
		},
		Store: StoreConfig{
			Driver: "libsql",
		},
		Host: HostConfig{
			TickInterval: 10 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate rejects configurations the bridge cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.Server.BodyLimit <= 0 {
		return fmt.Errorf("server.body_limit must be positive")
	}
	if c.Server.BatchSize <= 0 {
		return fmt.Errorf("server.batch_size must be positive")
	}
	if c.Server.DispatchTimeout <= 0 {
		return fmt.Errorf("server.dispatch_timeout must be positive")
	}
	if c.Server.RateLimitPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit_per_second must be positive")
	}
	if c.Server.InstanceName == "" {
		return fmt.Errorf("server.instance_name must not be empty")
	}
	return nil
}
