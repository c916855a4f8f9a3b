package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Lark         LarkConfig         `mapstructure:"lark"`
	OpenAI       OpenAIConfig       `mapstructure:"openai"`
	Notification NotificationConfig `mapstructure:"notification"`
	Currency     CurrencyConfig     `mapstructure:"currency"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Dashboard    DashboardConfig    `mapstructure:"dashboard"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// LarkConfig holds Lark API configuration used by the notification transports
type LarkConfig struct {
	AppID         string `mapstructure:"app_id"`
	AppSecret     string `mapstructure:"app_secret"`
	BaseURL       string `mapstructure:"base_url"`
	ReceiveIDType string `mapstructure:"receive_id_type"`
}

// OpenAIConfig holds receipt OCR configuration
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxPages    int           `mapstructure:"max_pages"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PromptsPath string        `mapstructure:"prompts_path"`
}

// NotificationConfig holds delivery queue configuration
type NotificationConfig struct {
	MaxRetries      int             `mapstructure:"max_retries"`
	RetryDelays     []time.Duration `mapstructure:"retry_delays"`
	DeliveryTimeout time.Duration   `mapstructure:"delivery_timeout"`
}

// CurrencyConfig holds exchange-rate refresh configuration
type CurrencyConfig struct {
	RatesURL        string        `mapstructure:"rates_url"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// StorageConfig holds file storage configuration; receipts and exports live under BaseDir
type StorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// DashboardConfig holds dashboard snapshot configuration
type DashboardConfig struct {
	SnapshotInterval time.Duration `mapstructure:"snapshot_interval"`
	SnapshotMonths   int           `mapstructure:"snapshot_months"`
}

// Load loads configuration from an optional YAML file, a .env file and environment variables.
// Variables already set in the environment win over .env entries.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/expense.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 0)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("lark.receive_id_type", "email")

	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.max_pages", 2)
	v.SetDefault("openai.timeout", 60*time.Second)

	v.SetDefault("notification.max_retries", 3)
	v.SetDefault("notification.retry_delays", []time.Duration{time.Second, 5 * time.Second, 15 * time.Second})
	v.SetDefault("notification.delivery_timeout", 10*time.Second)

	v.SetDefault("currency.rates_url", "https://open.er-api.com/v6/latest/INR")
	v.SetDefault("currency.refresh_interval", 6*time.Hour)
	v.SetDefault("currency.timeout", 10*time.Second)

	v.SetDefault("storage.base_dir", "data/files")

	v.SetDefault("dashboard.snapshot_interval", 24*time.Hour)
	v.SetDefault("dashboard.snapshot_months", 6)
}

// bindEnvVars binds the credential variables under their conventional names
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"lark.app_id":     "LARK_APP_ID",
		"lark.app_secret": "LARK_APP_SECRET",
		"openai.api_key":  "OPENAI_API_KEY",
		"database.path":   "DATABASE_PATH",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// Validate Lark credentials
	if c.Lark.AppID == "" {
		return fmt.Errorf("lark.app_id is required")
	}
	if c.Lark.AppSecret == "" {
		return fmt.Errorf("lark.app_secret is required")
	}
	switch c.Lark.ReceiveIDType {
	case "email", "user_id", "open_id":
	default:
		return fmt.Errorf("lark.receive_id_type %q is not supported", c.Lark.ReceiveIDType)
	}

	// Validate OpenAI credentials
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}

	if c.Notification.MaxRetries < 0 {
		return fmt.Errorf("notification.max_retries must not be negative")
	}
	for i := 1; i < len(c.Notification.RetryDelays); i++ {
		if c.Notification.RetryDelays[i] < c.Notification.RetryDelays[i-1] {
			return fmt.Errorf("notification.retry_delays must not decrease")
		}
	}

	if c.Currency.RefreshInterval <= 0 {
		return fmt.Errorf("currency.refresh_interval must be positive")
	}
	if c.Dashboard.SnapshotInterval <= 0 {
		return fmt.Errorf("dashboard.snapshot_interval must be positive")
	}
	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	return nil
}
