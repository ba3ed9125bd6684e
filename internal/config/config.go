// Package config loads featurea runtime settings from defaults, an optional
// config file and FEATUREA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	featurea "github.com/featurea/featurea-go"
)

const (
	// AppName is the application name.
	AppName = "featurea"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "featurea"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "FEATUREA"
)

// Config is the effective runtime configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log" toml:"log"`
	Registry RegistryConfig `mapstructure:"registry" toml:"registry"`
	Manifest ManifestConfig `mapstructure:"manifest" toml:"manifest"`
	Ready    ReadyConfig    `mapstructure:"ready" toml:"ready"`
	Admin    AdminConfig    `mapstructure:"admin" toml:"admin"`
	Watch    WatchConfig    `mapstructure:"watch" toml:"watch"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" toml:"level"`
	Format string `mapstructure:"format" toml:"format"`
}

type RegistryConfig struct {
	// DuplicatePolicy is one of last-wins, first-wins or error.
	DuplicatePolicy string `mapstructure:"duplicate_policy" toml:"duplicate_policy"`
}

type ManifestConfig struct {
	Paths   []string `mapstructure:"paths" toml:"paths"`
	Root    string   `mapstructure:"root" toml:"root"`
	Modules []string `mapstructure:"modules" toml:"modules"`
	Lenient bool     `mapstructure:"lenient" toml:"lenient"`
}

type ReadyConfig struct {
	Timeout time.Duration `mapstructure:"timeout" toml:"timeout"`
}

type AdminConfig struct {
	Addr           string   `mapstructure:"addr" toml:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
}

type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled" toml:"enabled"`
	Patterns []string      `mapstructure:"patterns" toml:"patterns"`
	Ignore   []string      `mapstructure:"ignore" toml:"ignore"`
	Debounce time.Duration `mapstructure:"debounce" toml:"debounce"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Registry: RegistryConfig{
			DuplicatePolicy: featurea.DuplicateLastWins.String(),
		},
		Manifest: ManifestConfig{
			Paths:   []string{"."},
			Modules: []string{"main"},
		},
		Ready: ReadyConfig{
			Timeout: 30 * time.Second,
		},
		Admin: AdminConfig{
			Addr:           "127.0.0.1:7878",
			AllowedOrigins: []string{"http://localhost:*"},
		},
		Watch: WatchConfig{
			Enabled:  true,
			Patterns: []string{"**/*"},
			Ignore:   []string{"**/.git/**", "**/*.swp", "**/*~"},
			Debounce: 500 * time.Millisecond,
		},
	}
}

// LoadOptions selects where configuration is read from.
type LoadOptions struct {
	// ConfigFilePath is used exclusively when set.
	ConfigFilePath string
	// SearchDirs are searched for featurea.{toml,yaml,json} when no path is set.
	SearchDirs []string
}

// Load reads defaults, the config file and the environment, in increasing
// precedence.
func Load(opts LoadOptions) (*Config, string, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""
	if opts.ConfigFilePath != "" {
		if _, err := os.Stat(opts.ConfigFilePath); err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", opts.ConfigFilePath)
		}
		v.SetConfigFile(opts.ConfigFilePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("failed to read config %s: %w", opts.ConfigFilePath, err)
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		v.SetConfigName(ConfigFileName)
		dirs := opts.SearchDirs
		if len(dirs) == 0 {
			dirs = []string{"."}
		}
		for _, dir := range dirs {
			v.AddConfigPath(dir)
		}

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, "", fmt.Errorf("failed to read config: %w", err)
			}
		} else {
			resolvedPath = v.ConfigFileUsed()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}

	return &cfg, resolvedPath, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("registry.duplicate_policy", d.Registry.DuplicatePolicy)
	v.SetDefault("manifest.paths", d.Manifest.Paths)
	v.SetDefault("manifest.root", d.Manifest.Root)
	v.SetDefault("manifest.modules", d.Manifest.Modules)
	v.SetDefault("manifest.lenient", d.Manifest.Lenient)
	v.SetDefault("ready.timeout", d.Ready.Timeout)
	v.SetDefault("admin.addr", d.Admin.Addr)
	v.SetDefault("admin.allowed_origins", d.Admin.AllowedOrigins)
	v.SetDefault("watch.enabled", d.Watch.Enabled)
	v.SetDefault("watch.patterns", d.Watch.Patterns)
	v.SetDefault("watch.ignore", d.Watch.Ignore)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
}

// Validate checks values viper cannot type-check.
func (c *Config) Validate() error {
	if _, err := featurea.ParseDuplicatePolicy(c.Registry.DuplicatePolicy); err != nil {
		return fmt.Errorf("registry.duplicate_policy: %w", err)
	}
	if c.Ready.Timeout < 0 {
		return fmt.Errorf("ready.timeout must not be negative, got %s", c.Ready.Timeout)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", c.Watch.Debounce)
	}
	return nil
}

// Policy returns the parsed duplicate policy. Call Validate first.
func (c *Config) Policy() featurea.DuplicatePolicy {
	p, _ := featurea.ParseDuplicatePolicy(c.Registry.DuplicatePolicy)
	return p
}

// fileView mirrors Config with durations spelled the way a config file
// writes them.
type fileView struct {
	Log      LogConfig      `toml:"log"`
	Registry RegistryConfig `toml:"registry"`
	Manifest ManifestConfig `toml:"manifest"`
	Ready    struct {
		Timeout string `toml:"timeout"`
	} `toml:"ready"`
	Admin AdminConfig `toml:"admin"`
	Watch struct {
		Enabled  bool     `toml:"enabled"`
		Patterns []string `toml:"patterns"`
		Ignore   []string `toml:"ignore"`
		Debounce string   `toml:"debounce"`
	} `toml:"watch"`
}

// MarshalTOML renders the configuration as a loadable featurea.toml.
func (c *Config) MarshalTOML() ([]byte, error) {
	var view fileView
	view.Log = c.Log
	view.Registry = c.Registry
	view.Manifest = c.Manifest
	view.Ready.Timeout = c.Ready.Timeout.String()
	view.Admin = c.Admin
	view.Watch.Enabled = c.Watch.Enabled
	view.Watch.Patterns = c.Watch.Patterns
	view.Watch.Ignore = c.Watch.Ignore
	view.Watch.Debounce = c.Watch.Debounce.String()

	return toml.Marshal(view)
}
