package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("MONITORING_INTERVAL_MINUTES", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 15*time.Minute, cfg.MonitoringInterval())
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout())
	assert.Equal(t, 15*time.Second, cfg.NotifyTimeout())
	assert.Equal(t, "file", cfg.BlobBackend)
	assert.False(t, cfg.EmailEnabled())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MONITORING_INTERVAL_MINUTES", "5")
	t.Setenv("MONITORING_WORKERS", "8")
	t.Setenv("DEBUG", "true")
	t.Setenv("BLOB_BACKEND", "FILE")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.MonitoringInterval())
	assert.Equal(t, 8, cfg.MonitoringWorkers)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "file", cfg.BlobBackend)
}

func TestLoad_YAMLFileWithEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("monitoring_interval_minutes: 30\nmonitoring_workers: 2\ntelegram_bot_token: from-file\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MONITORING_WORKERS", "6")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.MonitoringIntervalMinutes)
	assert.Equal(t, 6, cfg.MonitoringWorkers)
	assert.Equal(t, "from-file", cfg.TelegramBotToken)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "Zero interval", env: map[string]string{"MONITORING_INTERVAL_MINUTES": "0"}},
		{name: "Unknown blob backend", env: map[string]string{"BLOB_BACKEND": "s3"}},
		{name: "Azure without account", env: map[string]string{"BLOB_BACKEND": "azure", "AZURE_STORAGE_ACCOUNT": ""}},
		{name: "SMTP without username", env: map[string]string{"SMTP_HOST": "smtp.example.com", "SMTP_USERNAME": ""}},
		{name: "Absolute session path", env: map[string]string{"INSTAGRAM_SESSION_PATH": "/var/lib/fw/session.json"}},
		{name: "Session path escaping data dir", env: map[string]string{"INSTAGRAM_SESSION_PATH": "../session.json"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
