package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string `yaml:"port"`
	Debug bool   `yaml:"debug"`

	// Logging
	LogFile string `yaml:"log_file"`

	// Monitoring configuration
	MonitoringIntervalMinutes int `yaml:"monitoring_interval_minutes"`
	MonitoringWorkers         int `yaml:"monitoring_workers"`
	FetchTimeoutSeconds       int `yaml:"fetch_timeout_seconds"`
	NotifyTimeoutSeconds      int `yaml:"notify_timeout_seconds"`
	RetentionDays             int `yaml:"retention_days"`

	// Persistence
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	// Instagram source
	InstagramAPIURL         string `yaml:"instagram_api_url"`
	InstagramUsername       string `yaml:"instagram_username"`
	InstagramPassword       string `yaml:"instagram_password"`
	// Blob name of the saved session, relative to DATA_DIR or the container
	InstagramSessionPath    string `yaml:"instagram_session_path"`
	SourceRequestsPerMinute int    `yaml:"source_requests_per_minute"`

	// Session/report blob storage: "file" or "azure"
	BlobBackend      string `yaml:"blob_backend"`
	DataDir          string `yaml:"data_dir"`
	StorageAccount   string `yaml:"azure_storage_account"`
	StorageContainer string `yaml:"azure_storage_container"`
	ArchiveReports   bool   `yaml:"archive_reports"`

	// Notification configuration
	TelegramBotToken string `yaml:"telegram_bot_token"`
	TeamsWebhookURL  string `yaml:"teams_webhook_url"`
	SMTPHost         string `yaml:"smtp_host"`
	SMTPPort         int    `yaml:"smtp_port"`
	SMTPUsername     string `yaml:"smtp_username"`
	SMTPPassword     string `yaml:"smtp_password"`
	SMTPFrom         string `yaml:"smtp_from"`
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		Port:                      "8080",
		MonitoringIntervalMinutes: 15,
		MonitoringWorkers:         4,
		FetchTimeoutSeconds:       30,
		NotifyTimeoutSeconds:      15,
		RetentionDays:             365,
		InstagramAPIURL:           "https://i.instagram.com/api/v1",
		InstagramSessionPath:      "instagram_session.json",
		SourceRequestsPerMinute:   30,
		BlobBackend:               "file",
		DataDir:                   "data",
		StorageContainer:          "followwatch",
		SMTPPort:                  587,
	}
}

// Load loads configuration from an optional YAML file (CONFIG_FILE) and
// environment variables. Environment variables win.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.Debug = getBoolEnv("DEBUG", c.Debug)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)

	c.MonitoringIntervalMinutes = getIntEnv("MONITORING_INTERVAL_MINUTES", c.MonitoringIntervalMinutes)
	c.MonitoringWorkers = getIntEnv("MONITORING_WORKERS", c.MonitoringWorkers)
	c.FetchTimeoutSeconds = getIntEnv("FETCH_TIMEOUT_SECONDS", c.FetchTimeoutSeconds)
	c.NotifyTimeoutSeconds = getIntEnv("NOTIFY_TIMEOUT_SECONDS", c.NotifyTimeoutSeconds)
	c.RetentionDays = getIntEnv("RETENTION_DAYS", c.RetentionDays)

	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)

	c.InstagramAPIURL = getEnv("INSTAGRAM_API_URL", c.InstagramAPIURL)
	c.InstagramUsername = getEnv("INSTAGRAM_USERNAME", c.InstagramUsername)
	c.InstagramPassword = getEnv("INSTAGRAM_PASSWORD", c.InstagramPassword)
	c.InstagramSessionPath = getEnv("INSTAGRAM_SESSION_PATH", c.InstagramSessionPath)
	c.SourceRequestsPerMinute = getIntEnv("SOURCE_REQUESTS_PER_MINUTE", c.SourceRequestsPerMinute)

	c.BlobBackend = strings.ToLower(getEnv("BLOB_BACKEND", c.BlobBackend))
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.StorageAccount = getEnv("AZURE_STORAGE_ACCOUNT", c.StorageAccount)
	c.StorageContainer = getEnv("AZURE_STORAGE_CONTAINER", c.StorageContainer)
	c.ArchiveReports = getBoolEnv("ARCHIVE_REPORTS", c.ArchiveReports)

	c.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramBotToken)
	c.TeamsWebhookURL = getEnv("TEAMS_WEBHOOK_URL", c.TeamsWebhookURL)
	c.SMTPHost = getEnv("SMTP_HOST", c.SMTPHost)
	c.SMTPPort = getIntEnv("SMTP_PORT", c.SMTPPort)
	c.SMTPUsername = getEnv("SMTP_USERNAME", c.SMTPUsername)
	c.SMTPPassword = getEnv("SMTP_PASSWORD", c.SMTPPassword)
	c.SMTPFrom = getEnv("SMTP_FROM", c.SMTPFrom)
}

func (c *Config) validate() error {
	if c.MonitoringIntervalMinutes <= 0 {
		return fmt.Errorf("MONITORING_INTERVAL_MINUTES must be positive")
	}

	if c.MonitoringWorkers <= 0 {
		return fmt.Errorf("MONITORING_WORKERS must be positive")
	}

	if c.FetchTimeoutSeconds <= 0 || c.NotifyTimeoutSeconds <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT_SECONDS and NOTIFY_TIMEOUT_SECONDS must be positive")
	}

	if c.RetentionDays <= 0 {
		return fmt.Errorf("RETENTION_DAYS must be positive")
	}

	if c.BlobBackend != "file" && c.BlobBackend != "azure" {
		return fmt.Errorf("BLOB_BACKEND must be 'file' or 'azure'")
	}

	if !filepath.IsLocal(filepath.FromSlash(c.InstagramSessionPath)) {
		return fmt.Errorf("INSTAGRAM_SESSION_PATH must be a relative blob name inside DATA_DIR or the container, got %q", c.InstagramSessionPath)
	}

	if c.BlobBackend == "azure" && c.StorageAccount == "" {
		return fmt.Errorf("AZURE_STORAGE_ACCOUNT is required when BLOB_BACKEND is 'azure'")
	}

	if c.SMTPHost != "" && c.SMTPUsername == "" {
		return fmt.Errorf("SMTP_USERNAME is required when SMTP_HOST is set")
	}

	return nil
}

// MonitoringInterval is the time between scheduled cycles
func (c *Config) MonitoringInterval() time.Duration {
	return time.Duration(c.MonitoringIntervalMinutes) * time.Minute
}

// FetchTimeout bounds a single request to the data source
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// NotifyTimeout bounds a single notification send
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.NotifyTimeoutSeconds) * time.Second
}

// EmailEnabled reports whether SMTP delivery is configured
func (c *Config) EmailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPUsername != ""
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
