package config

import "github.com/garyjia/expense-approval/internal/container"

// ToContainerConfig converts the loaded configuration into the container's view of it
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Lark: container.LarkConfig{
			AppID:         c.Lark.AppID,
			AppSecret:     c.Lark.AppSecret,
			BaseURL:       c.Lark.BaseURL,
			ReceiveIDType: c.Lark.ReceiveIDType,
		},
		OpenAI: container.OpenAIConfig{
			APIKey:      c.OpenAI.APIKey,
			BaseURL:     c.OpenAI.BaseURL,
			Model:       c.OpenAI.Model,
			MaxPages:    c.OpenAI.MaxPages,
			Timeout:     c.OpenAI.Timeout,
			PromptsPath: c.OpenAI.PromptsPath,
		},
		Notification: container.NotificationConfig{
			MaxRetries:      c.Notification.MaxRetries,
			RetryDelays:     c.Notification.RetryDelays,
			DeliveryTimeout: c.Notification.DeliveryTimeout,
		},
		Currency: container.CurrencyConfig{
			RatesURL:        c.Currency.RatesURL,
			RefreshInterval: c.Currency.RefreshInterval,
			Timeout:         c.Currency.Timeout,
		},
		Storage: container.StorageConfig{
			BaseDir: c.Storage.BaseDir,
		},
		Dashboard: container.DashboardConfig{
			SnapshotInterval: c.Dashboard.SnapshotInterval,
			SnapshotMonths:   c.Dashboard.SnapshotMonths,
		},
	}
}
