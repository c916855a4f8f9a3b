// Package container provides dependency injection and lifecycle management
// for the expense approval service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database     DatabaseConfig
	Lark         LarkConfig
	OpenAI       OpenAIConfig
	Notification NotificationConfig
	Currency     CurrencyConfig
	Storage      StorageConfig
	Dashboard    DashboardConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file, or ":memory:"
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// LarkConfig holds Lark API settings used for push and email delivery.
type LarkConfig struct {
	AppID         string
	AppSecret     string
	BaseURL       string
	ReceiveIDType string
}

// OpenAIConfig holds receipt OCR settings.
type OpenAIConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	MaxPages int
	Timeout  time.Duration

	// PromptsPath overrides the built-in extraction prompt when set
	PromptsPath string
}

// NotificationConfig holds delivery queue settings.
type NotificationConfig struct {
	MaxRetries      int
	RetryDelays     []time.Duration
	DeliveryTimeout time.Duration
}

// CurrencyConfig holds exchange rate settings.
type CurrencyConfig struct {
	RatesURL        string
	RefreshInterval time.Duration
	Timeout         time.Duration
}

// StorageConfig holds file storage settings.
type StorageConfig struct {
	// BaseDir holds receipts/ and exports/
	BaseDir string
}

// DashboardConfig holds snapshot export settings.
type DashboardConfig struct {
	SnapshotInterval time.Duration
	SnapshotMonths   int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:         "data/expense.db",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		Lark: LarkConfig{
			ReceiveIDType: "email",
		},
		OpenAI: OpenAIConfig{
			Model:    "gpt-4o",
			MaxPages: 2,
			Timeout:  60 * time.Second,
		},
		Notification: NotificationConfig{
			MaxRetries:      3,
			RetryDelays:     []time.Duration{time.Second, 5 * time.Second, 15 * time.Second},
			DeliveryTimeout: 10 * time.Second,
		},
		Currency: CurrencyConfig{
			RatesURL:        "https://open.er-api.com/v6/latest/INR",
			RefreshInterval: 6 * time.Hour,
			Timeout:         10 * time.Second,
		},
		Storage: StorageConfig{
			BaseDir: "data/files",
		},
		Dashboard: DashboardConfig{
			SnapshotInterval: 24 * time.Hour,
			SnapshotMonths:   6,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// Validate Lark configuration
	if c.Lark.AppID == "" {
		return fmt.Errorf("lark.app_id is required")
	}
	if c.Lark.AppSecret == "" {
		return fmt.Errorf("lark.app_secret is required")
	}

	// Validate OpenAI configuration
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Currency.RefreshInterval <= 0 || c.Dashboard.SnapshotInterval <= 0 {
		return fmt.Errorf("worker intervals must be positive")
	}

	return nil
}
