// ABOUTME: Centralized configuration for the sitjournal pipeline
// ABOUTME: Loads from environment variables (and .env) with validation and defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the journaling pipeline
type Config struct {
	// Storage
	DBPath string

	// UserID is the practitioner the CLI and MCP server act for
	UserID string

	// OpenAI settings
	OpenAIKey  string
	ChatModel  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration

	// Calendar
	TimeZone string

	// Background recomputation
	BackgroundConcurrency int
	BackgroundTimeout     time.Duration

	// Serve mode
	HTTPAddr     string
	LogMode      string
	MonthlyCron  string
	ReminderCron string

	// Reminder delivery
	TelegramToken  string
	TelegramChatID int64
}

// DefaultDBPath returns the XDG data path for the journal database
func DefaultDBPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		dataHome = xdg.DataHome
	}
	return filepath.Join(dataHome, "sitjournal", "journal.db")
}

// Load reads .env (if present) and then the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:                getEnv("SITJOURNAL_DB", DefaultDBPath()),
		UserID:                getEnv("SITJOURNAL_USER", "me"),
		OpenAIKey:             os.Getenv("OPENAI_API_KEY"),
		ChatModel:             getEnv("SITJOURNAL_OPENAI_MODEL", "gpt-4o-mini"),
		Timeout:               getEnvDuration("OPENAI_TIMEOUT", 45*time.Second),
		MaxRetries:            getEnvInt("OPENAI_MAX_RETRIES", 2),
		RetryDelay:            getEnvDuration("OPENAI_RETRY_DELAY", 2*time.Second),
		TimeZone:              getEnv("SITJOURNAL_TZ", "Local"),
		BackgroundConcurrency: getEnvInt("SITJOURNAL_BG_CONCURRENCY", 4),
		BackgroundTimeout:     getEnvDuration("SITJOURNAL_BG_TIMEOUT", 2*time.Minute),
		HTTPAddr:              getEnv("SITJOURNAL_HTTP_ADDR", ":8787"),
		LogMode:               getEnv("SITJOURNAL_LOG_MODE", "dev"),
		MonthlyCron:           getEnv("SITJOURNAL_MONTHLY_CRON", "30 23 1,28-31 * *"),
		ReminderCron:          getEnv("SITJOURNAL_REMINDER_CRON", "* * * * *"),
		TelegramToken:         os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:        getEnvInt64("TELEGRAM_CHAT_ID", 0),
	}

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("OPENAI_MAX_RETRIES must be 0-10, got %d", c.MaxRetries)
	}
	if c.BackgroundConcurrency < 1 || c.BackgroundConcurrency > 64 {
		return fmt.Errorf("SITJOURNAL_BG_CONCURRENCY must be 1-64, got %d", c.BackgroundConcurrency)
	}
	if c.BackgroundTimeout <= 0 {
		return fmt.Errorf("SITJOURNAL_BG_TIMEOUT must be positive, got %s", c.BackgroundTimeout)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("SITJOURNAL_TZ: %w", err)
	}
	if c.TelegramToken != "" && c.TelegramChatID == 0 {
		return fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}

// Location resolves the configured calendar time zone
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" || c.TimeZone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.TimeZone)
}

// Helper functions
func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
