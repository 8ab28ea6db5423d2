// ABOUTME: Configuration loading and parsing for mechita-bridge.
// ABOUTME: YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete mechita-bridge configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Backend  BackendConfig  `yaml:"backend"`
	Telegram TelegramConfig `yaml:"telegram"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Dedupe   DedupeConfig   `yaml:"dedupe"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BackendConfig points at the restaurant REST backend.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// TelegramConfig holds the Telegram platform adapter configuration.
type TelegramConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Token        string `yaml:"token"`
	RelayAddr    string `yaml:"relay_addr"`
	StartCommand string `yaml:"start_command"`
	EndCommand   string `yaml:"end_command"`
}

// WhatsAppConfig holds the WhatsApp platform adapter configuration.
// StorePath is the sqlite file whatsmeow keeps device credentials in; it
// holds no conversation state.
type WhatsAppConfig struct {
	Enabled      bool   `yaml:"enabled"`
	StorePath    string `yaml:"store_path"`
	RelayAddr    string `yaml:"relay_addr"`
	StartCommand string `yaml:"start_command"`
	EndCommand   string `yaml:"end_command"`
}

// DedupeConfig bounds the message-ID dedupe cache.
type DedupeConfig struct {
	TTL     time.Duration `yaml:"-"`
	MaxSize int           `yaml:"max_size"`

	TTLRaw string `yaml:"ttl"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. ${VAR_NAME} patterns are expanded from the environment and
// duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Telegram.StartCommand == "" {
		c.Telegram.StartCommand = "/chat"
	}
	if c.Telegram.EndCommand == "" {
		c.Telegram.EndCommand = "/endchat"
	}
	if c.WhatsApp.StartCommand == "" {
		c.WhatsApp.StartCommand = "chat"
	}
	if c.WhatsApp.EndCommand == "" {
		c.WhatsApp.EndCommand = "end chat"
	}
	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = 10 * time.Minute
	}
	if c.Dedupe.MaxSize == 0 {
		c.Dedupe.MaxSize = 10000
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 10 * time.Second
	}
}

// Validate checks that all required configuration fields are present and
// consistent. Returns an error describing the first failure encountered.
func (c *Config) Validate() error {
	if !c.Telegram.Enabled && !c.WhatsApp.Enabled {
		return fmt.Errorf("at least one platform must be enabled")
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}

	if c.Telegram.Enabled {
		if c.Telegram.Token == "" {
			return fmt.Errorf("telegram.token is required when telegram is enabled")
		}
		if c.Telegram.RelayAddr == "" {
			return fmt.Errorf("telegram.relay_addr is required when telegram is enabled")
		}
	}

	if c.WhatsApp.Enabled {
		if c.WhatsApp.StorePath == "" {
			return fmt.Errorf("whatsapp.store_path is required when whatsapp is enabled")
		}
		if c.WhatsApp.RelayAddr == "" {
			return fmt.Errorf("whatsapp.relay_addr is required when whatsapp is enabled")
		}
	}

	// Each relay server binds its own port.
	if c.Telegram.Enabled && c.WhatsApp.Enabled &&
		c.Telegram.RelayAddr == c.WhatsApp.RelayAddr {
		return fmt.Errorf("telegram.relay_addr and whatsapp.relay_addr must differ")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.TimeoutRaw != "" {
		cfg.Backend.Timeout, err = time.ParseDuration(cfg.Backend.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing backend.timeout %q: %w", cfg.Backend.TimeoutRaw, err)
		}
	}

	if cfg.Dedupe.TTLRaw != "" {
		cfg.Dedupe.TTL, err = time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe.ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
	}

	return nil
}
