package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("LARK_APP_ID", "cli_test")
	t.Setenv("LARK_APP_SECRET", "secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	setCredentials(t)
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "cli_test", cfg.Lark.AppID)
	assert.Equal(t, "email", cfg.Lark.ReceiveIDType)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, 3, cfg.Notification.MaxRetries)
	assert.Equal(t, []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}, cfg.Notification.RetryDelays)
	assert.Equal(t, 6*time.Hour, cfg.Currency.RefreshInterval)
	assert.Equal(t, 6, cfg.Dashboard.SnapshotMonths)

	cc := cfg.ToContainerConfig()
	assert.Equal(t, cfg.Storage.BaseDir, cc.Storage.BaseDir)
	assert.Equal(t, cfg.Notification.RetryDelays, cc.Notification.RetryDelays)
	assert.NoError(t, cc.Validate())
}

func TestLoad_File(t *testing.T) {
	setCredentials(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 8181
logger:
  level: debug
notification:
  max_retries: 5
  retry_delays: ["2s", "4s"]
storage:
  base_dir: /var/lib/expense
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 5, cfg.Notification.MaxRetries)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, cfg.Notification.RetryDelays)
	assert.Equal(t, "/var/lib/expense", cfg.Storage.BaseDir)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:       ServerConfig{Port: 8080},
			Database:     DatabaseConfig{Path: "x.db"},
			Lark:         LarkConfig{AppID: "a", AppSecret: "b", ReceiveIDType: "email"},
			OpenAI:       OpenAIConfig{APIKey: "k"},
			Notification: NotificationConfig{MaxRetries: 3, RetryDelays: []time.Duration{time.Second, 5 * time.Second}},
			Currency:     CurrencyConfig{RefreshInterval: time.Hour},
			Storage:      StorageConfig{BaseDir: "files"},
			Dashboard:    DashboardConfig{SnapshotInterval: time.Hour},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"missing lark id", func(c *Config) { c.Lark.AppID = "" }, "lark.app_id"},
		{"bad receive type", func(c *Config) { c.Lark.ReceiveIDType = "phone" }, "receive_id_type"},
		{"missing openai key", func(c *Config) { c.OpenAI.APIKey = "" }, "openai.api_key"},
		{"decreasing delays", func(c *Config) {
			c.Notification.RetryDelays = []time.Duration{5 * time.Second, time.Second}
		}, "retry_delays"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}
