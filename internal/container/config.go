// Package container provides dependency injection and lifecycle management
// for the budget approval engine following Clean Architecture principles.
package container

import (
	"fmt"
	"strings"
	"time"
)

// Notification channels understood by the container
const (
	ChannelLark = "lark"
	ChannelLog  = "log"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Notification delivery configuration
	Notification NotificationConfig

	// Lark API configuration
	Lark LarkConfig

	// OpenAI configuration
	OpenAI OpenAIConfig

	// Realtime status feed configuration
	Realtime RealtimeConfig

	// Server configuration
	Server ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file, or ":memory:"
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NotificationConfig holds notification dispatch settings.
type NotificationConfig struct {
	// Channel is a comma-separated list of "lark" and "log"
	Channel string

	AppBaseURL         string
	SenderName         string
	PayrollRoleKeyword string
	MaxConcurrency     int
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	AppID     string
	AppSecret string
	BaseURL   string
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	// Enabled turns request insights on
	Enabled bool

	APIKey  string
	BaseURL string
	Model   string

	// Temperature and MaxTokens override the prompt file when set
	Temperature float32
	MaxTokens   int

	// PromptsPath is a YAML prompt file; empty uses the built-in prompts
	PromptsPath string
}

// RealtimeConfig holds websocket hub settings.
type RealtimeConfig struct {
	Enabled        bool
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/approvals.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Notification: NotificationConfig{
			Channel:            ChannelLog,
			SenderName:         "Budget Approvals",
			PayrollRoleKeyword: "payroll",
			MaxConcurrency:     8,
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		Realtime: RealtimeConfig{
			Enabled:      true,
			WriteTimeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxUploadBytes: 10 << 20,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	channels, err := ParseChannels(c.Notification.Channel)
	if err != nil {
		return err
	}
	for _, ch := range channels {
		if ch == ChannelLark && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
			return fmt.Errorf("lark.app_id and lark.app_secret are required for the lark channel")
		}
	}

	if c.OpenAI.Enabled && c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required when insights are enabled")
	}

	return nil
}

// ParseChannels splits a comma-separated channel list, dropping blanks and duplicates
func ParseChannels(s string) ([]string, error) {
	var channels []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		ch := strings.ToLower(strings.TrimSpace(part))
		if ch == "" || seen[ch] {
			continue
		}
		if ch != ChannelLark && ch != ChannelLog {
			return nil, fmt.Errorf("unknown notification channel %q", ch)
		}
		seen[ch] = true
		channels = append(channels, ch)
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("at least one notification channel is required")
	}
	return channels, nil
}
