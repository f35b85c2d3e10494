// Package config handles configuration for chatbox.
//
// Settings live in ~/.chatbox (or $CHATBOX_HOME). config.toml is read when
// present, otherwise config.json. Environment variables override both.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/diogo/chatbox/internal/models"
)

// Environment variables recognised by LoadConfig
const (
	EnvHome     = "CHATBOX_HOME"
	EnvEndpoint = "CHATBOX_ENDPOINT"
	EnvModel    = "CHATBOX_MODEL"
	EnvLogLevel = "CHATBOX_LOG_LEVEL"
)

// MarkdownConfig configures markdown rendering options
type MarkdownConfig struct {
	Style            string `json:"style" toml:"style"`                           // glamour style name or path to JSON theme
	EnableEmoji      bool   `json:"enable_emoji" toml:"enable_emoji"`             // Convert :emoji: to unicode
	PreserveNewLines bool   `json:"preserve_newlines" toml:"preserve_newlines"`   // Preserve original line breaks
	TableWrap        bool   `json:"table_wrap" toml:"table_wrap"`                 // Enable word wrap in table cells
	InlineTableLinks bool   `json:"inline_table_links" toml:"inline_table_links"` // Render links inline in tables
}

// Config represents the user configuration
type Config struct {
	// Endpoint is the chat-completion URL requests are posted to
	Endpoint string `json:"endpoint" toml:"endpoint"`
	// Model is the fixed model identifier sent with every request
	Model string `json:"model" toml:"model"`
	// RequestTimeout is the transport timeout in seconds; 0 disables it
	RequestTimeout  int    `json:"request_timeout" toml:"request_timeout"`
	CopyToClipboard bool   `json:"copy_to_clipboard" toml:"copy_to_clipboard"`
	TUITheme        string `json:"tui_theme,omitempty" toml:"tui_theme,omitempty"`
	// LogLevel is one of off, debug, info, warn, error
	LogLevel string `json:"log_level" toml:"log_level"`
	// LogFile defaults to chatbox.log in the config directory
	LogFile  string         `json:"log_file,omitempty" toml:"log_file,omitempty"`
	Markdown MarkdownConfig `json:"markdown" toml:"markdown"`
}

// DefaultMarkdownConfig returns the default markdown configuration
func DefaultMarkdownConfig() MarkdownConfig {
	return MarkdownConfig{
		Style:            "dark",
		EnableEmoji:      true,
		PreserveNewLines: true,
		TableWrap:        true,
		InlineTableLinks: false,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Endpoint:        models.DefaultEndpoint,
		Model:           models.DefaultModel,
		RequestTimeout:  300,
		CopyToClipboard: false,
		TUITheme:        "tokyonight",
		LogLevel:        "off",
		Markdown:        DefaultMarkdownConfig(),
	}
}

// Validate checks the values that would make every request fail
func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: must be an absolute http(s) URL", c.Endpoint)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout cannot be negative")
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "off", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// Keys lists the settable configuration keys
func Keys() []string {
	return []string{
		"endpoint",
		"model",
		"request_timeout",
		"copy_to_clipboard",
		"tui_theme",
		"log_level",
		"log_file",
		"markdown.style",
		"markdown.enable_emoji",
		"markdown.preserve_newlines",
		"markdown.table_wrap",
		"markdown.inline_table_links",
	}
}

// Set updates one field by its config key
func (c *Config) Set(key, value string) error {
	var err error
	switch key {
	case "endpoint":
		c.Endpoint = value
	case "model":
		c.Model = value
	case "request_timeout":
		c.RequestTimeout, err = strconv.Atoi(value)
	case "copy_to_clipboard":
		c.CopyToClipboard, err = strconv.ParseBool(value)
	case "tui_theme":
		c.TUITheme = value
	case "log_level":
		c.LogLevel = strings.ToLower(value)
	case "log_file":
		c.LogFile = value
	case "markdown.style":
		c.Markdown.Style = value
	case "markdown.enable_emoji":
		c.Markdown.EnableEmoji, err = strconv.ParseBool(value)
	case "markdown.preserve_newlines":
		c.Markdown.PreserveNewLines, err = strconv.ParseBool(value)
	case "markdown.table_wrap":
		c.Markdown.TableWrap, err = strconv.ParseBool(value)
	case "markdown.inline_table_links":
		c.Markdown.InlineTableLinks, err = strconv.ParseBool(value)
	default:
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(Keys(), ", "))
	}
	if err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", value, key, err)
	}
	return nil
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvHome); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".chatbox"), nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist
func EnsureConfigDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// GetConfigPath returns the path of the config file in use: config.toml when
// it exists, config.json otherwise
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}

	tomlPath := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	return filepath.Join(configDir, "config.json"), nil
}

// GetLogPath returns the log file path for cfg
func GetLogPath(cfg Config) (string, error) {
	if cfg.LogFile != "" {
		return cfg.LogFile, nil
	}
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "chatbox.log"), nil
}

// LoadConfig loads the configuration from disk and applies environment
// overrides
func LoadConfig() (Config, error) {
	cfg, err := LoadFile()
	applyEnv(&cfg)
	return cfg, err
}

// LoadFile loads the configuration file without environment overrides. It is
// what `config set` edits, so env values never leak into the file.
func LoadFile() (Config, error) {
	cfg := DefaultConfig()

	configPath, err := GetConfigPath()
	if err != nil {
		return cfg, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if config doesn't exist
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if filepath.Ext(configPath) == ".toml" {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
		}
		return cfg, nil
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvEndpoint); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
}

// SaveConfig saves the configuration to disk, keeping the format of the file
// in use
func SaveConfig(cfg Config) error {
	if _, err := EnsureConfigDir(); err != nil {
		return err
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	var data []byte
	if filepath.Ext(configPath) == ".toml" {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = buf.Bytes()
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
