package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	// Provider is a "provider" or "provider:model" identifier.
	Provider  string          `mapstructure:"provider"`
	Reasoning ReasoningConfig `mapstructure:"reasoning"`
	Session   SessionConfig   `mapstructure:"session"`
	Shell     ShellConfig     `mapstructure:"shell"`
	History   HistoryConfig   `mapstructure:"history"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
}

// ReasoningConfig is the user-facing extended-reasoning toggle. Effort
// is provider-specific: a token budget for Anthropic/Gemini 2.5, an
// effort level for OpenAI, a thinking level for Gemini 3.
type ReasoningConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Effort  string `mapstructure:"effort"`
}

// SessionConfig tunes the conversation loop.
type SessionConfig struct {
	MaxSteps int `mapstructure:"max_steps"`
}

// ShellConfig tunes the shell tool.
type ShellConfig struct {
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	Deny           []string `mapstructure:"deny"` // extra denied command patterns, glob syntax
}

// HistoryConfig configures conversation persistence.
type HistoryConfig struct {
	DataDir string `mapstructure:"data_dir"` // override the XDG data dir
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

func Load() (*Config, error) {
	configPath, err := GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath(".")

	viper.SetDefault("provider", "anthropic")
	viper.SetDefault("anthropic.model", "claude-sonnet-4-5")
	viper.SetDefault("openai.model", "gpt-5.2")
	viper.SetDefault("gemini.model", "gemini-3-flash-preview")
	viper.SetDefault("session.max_steps", 25)
	viper.SetDefault("shell.timeout_seconds", 30)

	// Config file is optional.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	resolveCredentials(&cfg)
	return &cfg, nil
}

// ApplyOverrides applies provider and model overrides to the config.
func (c *Config) ApplyOverrides(provider, model string) {
	if provider != "" {
		c.Provider = provider
	}
	if model != "" {
		name := c.Provider
		if idx := strings.Index(name, ":"); idx >= 0 {
			name = name[:idx]
		}
		switch name {
		case "anthropic":
			c.Anthropic.Model = model
		case "openai":
			c.OpenAI.Model = model
		case "gemini", "google":
			c.Gemini.Model = model
		}
	}
}

func resolveCredentials(cfg *Config) {
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	if cfg.Anthropic.APIKey == "" {
		cfg.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	cfg.OpenAI.APIKey = expandEnv(cfg.OpenAI.APIKey)
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.Gemini.APIKey = expandEnv(cfg.Gemini.APIKey)
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// expandEnv expands ${VAR} and $VAR references in config values.
func expandEnv(value string) string {
	if !strings.Contains(value, "$") {
		return value
	}
	return os.ExpandEnv(value)
}

// GetConfigDir returns the directory holding the config file.
func GetConfigDir() (string, error) {
	if xdgHome := os.Getenv("XDG_CONFIG_HOME"); xdgHome != "" {
		return filepath.Join(xdgHome, "loft"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "loft"), nil
}

// GetConfigPath returns the path where the config file should live.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// GetDataDir returns the directory for durable data (conversation
// history). An explicit history.data_dir takes precedence over the XDG
// resolution.
func (c *Config) GetDataDir() (string, error) {
	if c.History.DataDir != "" {
		return expandEnv(c.History.DataDir), nil
	}
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "loft"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".local", "share", "loft"), nil
}
