// Package config provides configuration types, defaults and loading for
// the gemini command.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/knowfox/gemwire/internal/log"
	"github.com/knowfox/gemwire/internal/tracing"
)

// Config holds all configuration options.
type Config struct {
	Client  ClientConfig   `mapstructure:"client" yaml:"client"`
	Server  ServerConfig   `mapstructure:"server" yaml:"server"`
	Log     LogConfig      `mapstructure:"log" yaml:"log"`
	Tracing tracing.Config `mapstructure:"tracing" yaml:"tracing"`
}

// ClientConfig configures outgoing transactions.
type ClientConfig struct {
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	MaxMetaLength      int           `mapstructure:"max_meta_length" yaml:"max_meta_length"`
}

// ServerConfig configures the example capsule.
type ServerConfig struct {
	Addr        string         `mapstructure:"addr" yaml:"addr"`
	CertFile    string         `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile     string         `mapstructure:"key_file" yaml:"key_file"`
	Root        string         `mapstructure:"root" yaml:"root"`
	ReadTimeout time.Duration  `mapstructure:"read_timeout" yaml:"read_timeout"`
	SlowDown    SlowDownConfig `mapstructure:"slow_down" yaml:"slow_down"`
}

// SlowDownConfig limits requests per remote host. Burst 0 disables it.
type SlowDownConfig struct {
	Window time.Duration `mapstructure:"window" yaml:"window"`
	Burst  int           `mapstructure:"burst" yaml:"burst"`
}

// LogConfig configures the debug log.
type LogConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"` // empty means stderr
	Level   string `mapstructure:"level" yaml:"level"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		Client: ClientConfig{
			Timeout:       30 * time.Second,
			MaxMetaLength: 1024,
		},
		Server: ServerConfig{
			Addr:        "127.0.0.1:1965",
			CertFile:    "server.crt.pem",
			KeyFile:     "server.key.pem",
			Root:        ".",
			ReadTimeout: 10 * time.Second,
			SlowDown: SlowDownConfig{
				Window: time.Second,
			},
		},
		Log: LogConfig{
			Level: "debug",
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// SetDefaults registers Defaults with v so that every key is known to
// Unmarshal and to environment overrides.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("client.timeout", d.Client.Timeout)
	v.SetDefault("client.insecure_skip_verify", d.Client.InsecureSkipVerify)
	v.SetDefault("client.max_meta_length", d.Client.MaxMetaLength)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.cert_file", d.Server.CertFile)
	v.SetDefault("server.key_file", d.Server.KeyFile)
	v.SetDefault("server.root", d.Server.Root)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.slow_down.window", d.Server.SlowDown.Window)
	v.SetDefault("server.slow_down.burst", d.Server.SlowDown.Burst)
	v.SetDefault("log.enabled", d.Log.Enabled)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// NewViper returns a viper instance with defaults and GEMINI_ environment
// overrides, e.g. GEMINI_CLIENT_TIMEOUT=5s.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("gemini")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path into a Config. An empty path looks
// for .gemini/config.yaml and then ~/.config/gemini/config.yaml; a
// missing file is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else if _, err := os.Stat(filepath.Join(".gemini", "config.yaml")); err == nil {
		v.SetConfigFile(filepath.Join(".gemini", "config.yaml"))
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "gemini"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		log.Debug(log.CatConfig, "no config file, using defaults")
	} else {
		log.Debug(log.CatConfig, "loaded config", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Client.Timeout < 0 {
		return fmt.Errorf("client.timeout must not be negative")
	}
	if c.Client.MaxMetaLength < 0 {
		return fmt.Errorf("client.max_meta_length must not be negative")
	}
	if c.Server.SlowDown.Burst < 0 {
		return fmt.Errorf("server.slow_down.burst must not be negative")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// WriteDefaultConfig writes Defaults as yaml to path, creating parent
// directories. An existing file is left alone.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(durationsAsStrings(Defaults()))
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	log.Info(log.CatConfig, "wrote default config", "path", path)
	return nil
}

// durationsAsStrings renders the config with durations like "30s" so
// the file stays readable; yaml.v3 would otherwise write nanoseconds.
func durationsAsStrings(c Config) map[string]any {
	return map[string]any{
		"client": map[string]any{
			"timeout":              c.Client.Timeout.String(),
			"insecure_skip_verify": c.Client.InsecureSkipVerify,
			"max_meta_length":      c.Client.MaxMetaLength,
		},
		"server": map[string]any{
			"addr":         c.Server.Addr,
			"cert_file":    c.Server.CertFile,
			"key_file":     c.Server.KeyFile,
			"root":         c.Server.Root,
			"read_timeout": c.Server.ReadTimeout.String(),
			"slow_down": map[string]any{
				"window": c.Server.SlowDown.Window.String(),
				"burst":  c.Server.SlowDown.Burst,
			},
		},
		"log":     c.Log,
		"tracing": c.Tracing,
	}
}
