// Package config loads bridge configuration with layered sources:
// built-in defaults, an optional YAML config file, then environment
// variables (highest priority).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/gehbridge/config.yaml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// Config holds all bridge configuration. Immutable after Load and safe
// for concurrent reads.
type Config struct {
	IRC     IRCConfig     `koanf:"irc"`
	HTTP    HTTPConfig    `koanf:"http"`
	Logging LoggingConfig `koanf:"logging"`
}

// IRCConfig is the server-side IRC connection target. Clients never
// supply these; the bridge always dials the configured network.
type IRCConfig struct {
	Server  string `koanf:"server"`
	Port    int    `koanf:"port"`
	Channel string `koanf:"channel"`
}

// HTTPConfig holds the client-facing HTTP/WebSocket listener settings.
type HTTPConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Addr returns the IRC dial address.
func (c IRCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server, c.Port)
}

// ListenAddr returns the HTTP listen address.
func (c HTTPConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func defaultConfig() *Config {
	return &Config{
		IRC: IRCConfig{
			Server:  "slaugh.pl",
			Port:    6667,
			Channel: "#vorest",
		},
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the loaded configuration for malformed values.
func (c *Config) Validate() error {
	if c.IRC.Server == "" {
		return fmt.Errorf("irc.server must not be empty")
	}
	if c.IRC.Port <= 0 || c.IRC.Port > 65535 {
		return fmt.Errorf("irc.port %d out of range", c.IRC.Port)
	}
	if !strings.HasPrefix(c.IRC.Channel, "#") {
		return fmt.Errorf("irc.channel %q must start with #", c.IRC.Channel)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so unrelated environment noise cannot
// pollute the configuration.
func envTransformFunc(key string) string {
	mappings := map[string]string{
		"irc_server":   "irc.server",
		"irc_port":     "irc.port",
		"irc_channel":  "irc.channel",
		"backend_host": "http.host",
		"backend_port": "http.port",
		"http_host":    "http.host",
		"http_port":    "http.port",
		"log_level":    "logging.level",
		"log_format":   "logging.format",
	}
	if mapped, ok := mappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
