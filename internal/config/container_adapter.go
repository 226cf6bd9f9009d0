package config

import (
	"github.com/garyjia/budget-approval/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Notification: container.NotificationConfig{
			Channel:            c.Notification.Channel,
			AppBaseURL:         c.Notification.AppBaseURL,
			SenderName:         c.Notification.SenderName,
			PayrollRoleKeyword: c.Notification.PayrollRoleKeyword,
			MaxConcurrency:     c.Notification.MaxConcurrency,
		},
		Lark: container.LarkConfig{
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
			BaseURL:   c.Lark.BaseURL,
		},
		OpenAI: container.OpenAIConfig{
			Enabled:     c.OpenAI.Enabled,
			APIKey:      c.OpenAI.APIKey,
			BaseURL:     c.OpenAI.BaseURL,
			Model:       c.OpenAI.Model,
			Temperature: c.OpenAI.Temperature,
			MaxTokens:   c.OpenAI.MaxTokens,
			PromptsPath: c.OpenAI.PromptsPath,
		},
		Realtime: container.RealtimeConfig{
			Enabled:        c.Realtime.Enabled,
			WriteTimeout:   c.Realtime.WriteTimeout,
			AllowedOrigins: c.Realtime.AllowedOrigins,
		},
		Server: container.ServerConfig{
			Host:           c.Server.Host,
			Port:           c.Server.Port,
			ReadTimeout:    c.Server.ReadTimeout,
			WriteTimeout:   c.Server.WriteTimeout,
			MaxUploadBytes: c.Server.MaxUploadBytes,
		},
	}
}
