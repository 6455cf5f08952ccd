package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Quota.HourlyRequestLimit != 59 {
		t.Errorf("expected hourly request limit 59, got %d", cfg.Quota.HourlyRequestLimit)
	}
	if cfg.Quota.CredentialValidity != 88*time.Hour {
		t.Errorf("expected credential validity 88h, got %v", cfg.Quota.CredentialValidity)
	}
	if cfg.Login.SessionTTL != 300*time.Second {
		t.Errorf("expected session TTL 300s, got %v", cfg.Login.SessionTTL)
	}
	if cfg.Sync.PageSize != 5 {
		t.Errorf("expected page size 5, got %d", cfg.Sync.PageSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
provider:
  base_url: https://example.com
quota:
  hourly_request_limit: 30
sync:
  page_size: 10
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Provider.BaseURL != "https://example.com" {
		t.Errorf("base URL not loaded: %s", cfg.Provider.BaseURL)
	}
	if cfg.Quota.HourlyRequestLimit != 30 {
		t.Errorf("hourly limit not loaded: %d", cfg.Quota.HourlyRequestLimit)
	}
	if cfg.Sync.PageSize != 10 {
		t.Errorf("page size not loaded: %d", cfg.Sync.PageSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level not loaded: %s", cfg.Logging.Level)
	}
	// Untouched sections keep their defaults
	if cfg.Login.SessionTTL != 300*time.Second {
		t.Errorf("session TTL should keep default, got %v", cfg.Login.SessionTTL)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.LoadFromFile("/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FASTMP_HOURLY_REQUEST_LIMIT", "44")
	t.Setenv("FASTMP_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("FASTMP_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if cfg.Quota.HourlyRequestLimit != 44 {
		t.Errorf("env hourly limit not applied: %d", cfg.Quota.HourlyRequestLimit)
	}
	if cfg.Storage.DatabasePath != "/tmp/test.db" {
		t.Errorf("env database path not applied: %s", cfg.Storage.DatabasePath)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("env log level not applied: %s", cfg.Logging.Level)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base URL", func(c *Config) { c.Provider.BaseURL = "" }},
		{"zero session TTL", func(c *Config) { c.Login.SessionTTL = 0 }},
		{"zero hourly limit", func(c *Config) { c.Quota.HourlyRequestLimit = 0 }},
		{"zero page size", func(c *Config) { c.Sync.PageSize = 0 }},
		{"empty database path", func(c *Config) { c.Storage.DatabasePath = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"database":  "/data/mp.db",
		"listen":    ":9090",
		"log-level": "debug",
		"page-size": 7,
	})

	if cfg.Storage.DatabasePath != "/data/mp.db" {
		t.Errorf("database flag not merged: %s", cfg.Storage.DatabasePath)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen flag not merged: %s", cfg.Server.ListenAddr)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level flag not merged: %s", cfg.Logging.Level)
	}
	if cfg.Sync.PageSize != 7 {
		t.Errorf("page size flag not merged: %d", cfg.Sync.PageSize)
	}
}
