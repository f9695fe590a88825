// Package config loads and validates the bot's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// SASL holds credentials for SASL PLAIN authentication.
type SASL struct {
	Username string `yaml:"username" env:"WELCOMEBOT_SASL_USERNAME"`
	Password string `yaml:"password" env:"WELCOMEBOT_SASL_PASSWORD"`
}

// Config holds all configuration for the bot.
type Config struct {
	// Server is "host:port" for TCP, or a ws:// / wss:// gateway URL.
	Server string `yaml:"server" env:"WELCOMEBOT_SERVER"`

	// TLS wraps the TCP connection in TLS.
	TLS bool `yaml:"tls" env:"WELCOMEBOT_TLS"`

	Nickname string `yaml:"nickname" env:"WELCOMEBOT_NICKNAME"`
	Username string `yaml:"username" env:"WELCOMEBOT_USERNAME"`
	Realname string `yaml:"realname" env:"WELCOMEBOT_REALNAME"`

	// SASL is optional; when present both fields are required.
	SASL *SASL `yaml:"sasl"`

	// Database is the path to the SQLite seen store. A leading ~ expands
	// to the user's home directory.
	Database string `yaml:"database" env:"WELCOMEBOT_DATABASE"`

	// Channels maps each monitored channel to its greeting template.
	// Templates recognize the {nickname} and {channel} placeholders.
	Channels map[string]string `yaml:"channels"`
}

// Load reads the YAML file at path, applies environment overrides, fills
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// env.Parse does not descend into nil pointers; give it a target so
	// SASL credentials can come entirely from the environment.
	hadSASL := cfg.SASL != nil
	if cfg.SASL == nil {
		cfg.SASL = &SASL{}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment overrides: %w", err)
	}
	if !hadSASL && cfg.SASL.Username == "" && cfg.SASL.Password == "" {
		cfg.SASL = nil
	}

	if cfg.Username == "" {
		cfg.Username = cfg.Nickname
	}
	if cfg.Realname == "" {
		cfg.Realname = cfg.Nickname
	}

	if strings.HasPrefix(cfg.Database, "~"+string(os.PathSeparator)) || cfg.Database == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("expand database path: %w", err)
		}
		cfg.Database = filepath.Join(home, strings.TrimPrefix(cfg.Database, "~"))
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server == "" {
		return fmt.Errorf("server is required")
	}
	if c.Nickname == "" {
		return fmt.Errorf("nickname is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	for ch, tmpl := range c.Channels {
		if tmpl == "" {
			return fmt.Errorf("channel %s: greeting template is required", ch)
		}
	}
	if c.SASL != nil && (c.SASL.Username == "" || c.SASL.Password == "") {
		return fmt.Errorf("sasl requires both username and password")
	}
	return nil
}

// ChannelNames returns the configured channel identifiers.
func (c *Config) ChannelNames() []string {
	names := make([]string, 0, len(c.Channels))
	for ch := range c.Channels {
		names = append(names, ch)
	}
	return names
}
