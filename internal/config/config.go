package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ytgrab/ytgrab/internal/constants"
)

// Config holds all application configuration
type Config struct {
	Port            string
	DBPath          string
	DownloadsDir    string
	MaxConcurrent   int
	MaxFileSize     int64
	CleanupInterval time.Duration
	Retention       time.Duration
	RateLimit       int
	RateWindow      time.Duration
	CancelGrace     time.Duration
	LogLevel        string
	LogFormat       string
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	home, _ := os.UserHomeDir()
	defaultDownload := filepath.Join(home, "Downloads/ytgrab")

	return &Config{
		Port:            getEnv("PORT", constants.DefaultPort),
		DBPath:          getEnv("DB_PATH", constants.DefaultDBPath),
		DownloadsDir:    getEnv("DOWNLOADS_DIR", defaultDownload),
		MaxConcurrent:   getEnvInt("MAX_CONCURRENT_DOWNLOADS", constants.DefaultConcurrency),
		MaxFileSize:     getEnvInt64("MAX_FILE_SIZE", constants.DefaultMaxFileSize),
		CleanupInterval: time.Duration(getEnvInt("CLEANUP_INTERVAL_HOURS", int(constants.DefaultCleanupInterval/time.Hour))) * time.Hour,
		Retention:       time.Duration(getEnvInt("RETENTION_HOURS", int(constants.DefaultRetention/time.Hour))) * time.Hour,
		RateLimit:       getEnvInt("RATE_LIMIT_REQUESTS", constants.DefaultRateLimit),
		RateWindow:      time.Duration(getEnvInt("RATE_LIMIT_WINDOW", int(constants.DefaultRateWindow/time.Second))) * time.Second,
		CancelGrace:     time.Duration(getEnvInt("CANCEL_GRACE_SECONDS", int(constants.DefaultCancelGrace/time.Second))) * time.Second,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
	}
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	var errors []string

	if c.Port == "" {
		errors = append(errors, "PORT cannot be empty")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
		}
	}

	if c.DBPath == "" {
		errors = append(errors, "DB_PATH cannot be empty")
	}

	if c.DownloadsDir == "" {
		errors = append(errors, "DOWNLOADS_DIR cannot be empty")
	}

	if c.MaxConcurrent < 1 {
		errors = append(errors, fmt.Sprintf("MAX_CONCURRENT_DOWNLOADS must be at least 1, got: %d", c.MaxConcurrent))
	}

	if c.MaxFileSize < 1 {
		errors = append(errors, fmt.Sprintf("MAX_FILE_SIZE must be positive, got: %d", c.MaxFileSize))
	}

	if c.CleanupInterval < time.Hour {
		errors = append(errors, "CLEANUP_INTERVAL_HOURS must be at least 1")
	}

	if c.Retention <= 0 {
		errors = append(errors, "RETENTION_HOURS must be at least 1")
	}

	if c.RateLimit < 1 {
		errors = append(errors, fmt.Sprintf("RATE_LIMIT_REQUESTS must be at least 1, got: %d", c.RateLimit))
	}

	if c.RateWindow < time.Second {
		errors = append(errors, "RATE_LIMIT_WINDOW must be at least 1 second")
	}

	if c.CancelGrace < time.Second {
		errors = append(errors, "CANCEL_GRACE_SECONDS must be at least 1 second")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
