// Package config provides configuration management for scopeintel.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultAddr       = ":8077"
	DefaultEmbedModel = "text-embedding-3-small"
	DefaultChatModel  = "gpt-4.1-mini"
	DefaultPeriodDays = 90
)

// Config holds all runtime settings.
type Config struct {
	Addr            string `yaml:"addr"`
	DBPath          string `yaml:"db_path"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	EmbedModel      string `yaml:"embed_model"`
	ChatModel       string `yaml:"chat_model"`
	EmbedDimensions int64  `yaml:"embed_dimensions"`
	PeriodDays      int    `yaml:"period_days"`
	MaxConns        int    `yaml:"max_conns"`
	Debug           bool   `yaml:"debug"`
}

// DataDir returns the scopeintel data directory (~/.scopeintel).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".scopeintel")
}

// DBPath returns the default database path.
func DBPath() string {
	return filepath.Join(DataDir(), "scopeintel.db")
}

// ConfigPath returns the configuration file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o750)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Addr:       DefaultAddr,
		DBPath:     DBPath(),
		EmbedModel: DefaultEmbedModel,
		ChatModel:  DefaultChatModel,
		PeriodDays: DefaultPeriodDays,
		MaxConns:   4,
	}
}

// Load builds the configuration: defaults, then the YAML file, then
// environment variables. A missing or unreadable config file falls back to
// defaults rather than failing.
func Load() (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(ConfigPath()); err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err == nil {
			cfg.merge(&fileCfg)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) merge(o *Config) {
	if o.Addr != "" {
		c.Addr = o.Addr
	}
	if o.DBPath != "" {
		c.DBPath = o.DBPath
	}
	if o.OpenAIAPIKey != "" {
		c.OpenAIAPIKey = o.OpenAIAPIKey
	}
	if o.EmbedModel != "" {
		c.EmbedModel = o.EmbedModel
	}
	if o.ChatModel != "" {
		c.ChatModel = o.ChatModel
	}
	if o.EmbedDimensions > 0 {
		c.EmbedDimensions = o.EmbedDimensions
	}
	if o.PeriodDays > 0 {
		c.PeriodDays = o.PeriodDays
	}
	if o.MaxConns > 0 {
		c.MaxConns = o.MaxConns
	}
	if o.Debug {
		c.Debug = true
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAIAPIKey = v
	}
	if v := os.Getenv("SCOPEINTEL_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("SCOPEINTEL_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("SCOPEINTEL_EMBED_MODEL"); v != "" {
		c.EmbedModel = v
	}
	if v := os.Getenv("SCOPEINTEL_CHAT_MODEL"); v != "" {
		c.ChatModel = v
	}
}
