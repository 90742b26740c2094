package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ytgrab/ytgrab/internal/constants"
)

func TestLoad(t *testing.T) {
	// Test default values
	cfg := Load()

	if cfg.Port != constants.DefaultPort {
		t.Errorf("Expected Port to be %s, got %s", constants.DefaultPort, cfg.Port)
	}

	if cfg.DBPath != constants.DefaultDBPath {
		t.Errorf("Expected DBPath to be %s, got %s", constants.DefaultDBPath, cfg.DBPath)
	}

	if cfg.MaxConcurrent != constants.DefaultConcurrency {
		t.Errorf("Expected MaxConcurrent to be %d, got %d", constants.DefaultConcurrency, cfg.MaxConcurrent)
	}

	if cfg.Retention != constants.DefaultRetention {
		t.Errorf("Expected Retention to be %v, got %v", constants.DefaultRetention, cfg.Retention)
	}

	// Check DownloadsDir is not empty (depends on user's home dir)
	if cfg.DownloadsDir == "" {
		t.Error("Expected DownloadsDir to not be empty")
	}
}

func TestLoadWithEnvVars(t *testing.T) {
	os.Setenv("PORT", "9090")
	os.Setenv("DB_PATH", "/tmp/test.db")
	os.Setenv("MAX_CONCURRENT_DOWNLOADS", "3")
	os.Setenv("RATE_LIMIT_WINDOW", "30")
	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("DB_PATH")
		os.Unsetenv("MAX_CONCURRENT_DOWNLOADS")
		os.Unsetenv("RATE_LIMIT_WINDOW")
	}()

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Expected Port to be 9090, got %s", cfg.Port)
	}

	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("Expected DBPath to be /tmp/test.db, got %s", cfg.DBPath)
	}

	if cfg.MaxConcurrent != 3 {
		t.Errorf("Expected MaxConcurrent to be 3, got %d", cfg.MaxConcurrent)
	}

	if cfg.RateWindow != 30*time.Second {
		t.Errorf("Expected RateWindow to be 30s, got %v", cfg.RateWindow)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:            "8080",
			DBPath:          "app.db",
			DownloadsDir:    "/tmp/downloads",
			MaxConcurrent:   5,
			MaxFileSize:     1 << 30,
			CleanupInterval: 6 * time.Hour,
			Retention:       24 * time.Hour,
			RateLimit:       10,
			RateWindow:      time.Minute,
			CancelGrace:     5 * time.Second,
			LogLevel:        "info",
			LogFormat:       "text",
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Valid config rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"empty port", func(c *Config) { c.Port = "" }, "PORT"},
		{"non-numeric port", func(c *Config) { c.Port = "http" }, "PORT"},
		{"out of range port", func(c *Config) { c.Port = "70000" }, "PORT"},
		{"empty db path", func(c *Config) { c.DBPath = "" }, "DB_PATH"},
		{"empty downloads dir", func(c *Config) { c.DownloadsDir = "" }, "DOWNLOADS_DIR"},
		{"zero concurrency", func(c *Config) { c.MaxConcurrent = 0 }, "MAX_CONCURRENT_DOWNLOADS"},
		{"zero file size", func(c *Config) { c.MaxFileSize = 0 }, "MAX_FILE_SIZE"},
		{"zero rate limit", func(c *Config) { c.RateLimit = 0 }, "RATE_LIMIT_REQUESTS"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "LOG_LEVEL"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Error %q does not mention %s", err, tt.wantMsg)
			}
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation error for zero config")
	}
	for _, want := range []string{"PORT", "DB_PATH", "MAX_CONCURRENT_DOWNLOADS", "LOG_LEVEL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Error does not mention %s: %q", want, err)
		}
	}
}
