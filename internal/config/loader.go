package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const envPrefix = "SKILLBRIDGE"

// Load reads configuration from defaults, the config file (explicit path
// or the default location), and SKILLBRIDGE_* environment variables.
// A missing config file is not an error; a malformed one is.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultConfigDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	// Environment variables arrive as strings; decode them weakly.
	weak := func(dc *mapstructure.DecoderConfig) { dc.WeaklyTypedInput = true }
	if err := v.Unmarshal(cfg, decodeHook, weak); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfigDir returns the per-user config directory, honoring
// XDG_CONFIG_HOME.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "skillbridge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "skillbridge")
}

// WriteDefaultFile writes the built-in defaults as a YAML file at path,
// creating parent directories. It refuses to overwrite an existing file.
func WriteDefaultFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	doc := map[string]any{
		"server": map[string]any{
			"preferred_port":        0,
			"auto_start":            true,
			"instance_name":         "default",
			"body_limit":            10 << 20,
			"dispatch_timeout":      "60s",
			"batch_size":            20,
			"rate_limit_per_second": 100,
			"heartbeat_interval":    "30s",
		},
		"store": map[string]any{
			"driver": "libsql",
			"path":   filepath.Join(DefaultStateDir(), "skillbridge.db"),
		},
		"host": map[string]any{
			"tick_interval": "10ms",
		},
		"logging": map[string]any{
			"level": "info",
		},
	}

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode defaults: %w", err)
	}

	header := "# skillbridge configuration. Values here override built-in defaults;\n" +
		"# SKILLBRIDGE_* environment variables override both.\n"
	return os.WriteFile(path, append([]byte(header), raw...), 0o644)
}

// DefaultStateDir returns the per-user state directory used for the
// durable store when no explicit path is configured.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".skillbridge")
}

func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("server.preferred_port", def.Server.PreferredPort)
	v.SetDefault("server.auto_start", def.Server.AutoStart)
	v.SetDefault("server.instance_name", def.Server.InstanceName)
	v.SetDefault("server.body_limit", def.Server.BodyLimit)
	v.SetDefault("server.dispatch_timeout", def.Server.DispatchTimeout)
	v.SetDefault("server.batch_size", def.Server.BatchSize)
	v.SetDefault("server.rate_limit_per_second", def.Server.RateLimitPerSecond)
	v.SetDefault("server.heartbeat_interval", def.Server.HeartbeatInterval)
	v.SetDefault("store.driver", def.Store.Driver)
	v.SetDefault("store.path", filepath.Join(DefaultStateDir(), "skillbridge.db"))
	v.SetDefault("host.tick_interval", def.Host.TickInterval)
	v.SetDefault("logging.level", def.Logging.Level)
}
