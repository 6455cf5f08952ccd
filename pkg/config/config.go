package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the FastMP service
type Config struct {
	// Provider holds settings for talking to the WeChat MP platform
	Provider ProviderConfig `yaml:"provider" json:"provider"`

	// Login holds QR handshake settings
	Login LoginConfig `yaml:"login" json:"login"`

	// Quota holds per-credential consumption limits
	Quota QuotaConfig `yaml:"quota" json:"quota"`

	// Sync holds incremental crawl settings
	Sync SyncConfig `yaml:"sync" json:"sync"`

	// Storage holds local persistence settings
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Server holds the HTTP listener settings
	Server ServerConfig `yaml:"server" json:"server"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ProviderConfig holds provider-specific configuration
type ProviderConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// LoginConfig holds QR login handshake configuration
type LoginConfig struct {
	SessionTTL time.Duration `yaml:"session_ttl" json:"session_ttl"`
}

// QuotaConfig holds credential quota configuration
type QuotaConfig struct {
	HourlyRequestLimit int           `yaml:"hourly_request_limit" json:"hourly_request_limit"`
	CredentialValidity time.Duration `yaml:"credential_validity" json:"credential_validity"`
}

// SyncConfig holds crawl configuration
type SyncConfig struct {
	PageSize          int           `yaml:"page_size" json:"page_size"`
	InterRequestDelay time.Duration `yaml:"inter_request_delay" json:"inter_request_delay"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// StorageConfig holds persistence configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" json:"database_path"`
	SecretsFile  string `yaml:"secrets_file" json:"secrets_file"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			BaseURL:        "https://mp.weixin.qq.com",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
			RequestTimeout: 30 * time.Second,
		},
		Login: LoginConfig{
			SessionTTL: 300 * time.Second,
		},
		Quota: QuotaConfig{
			HourlyRequestLimit: 59,
			CredentialValidity: 88 * time.Hour,
		},
		Sync: SyncConfig{
			PageSize:          5,
			InterRequestDelay: 1500 * time.Millisecond,
			MaxRetries:        3,
			RetryDelay:        2 * time.Second,
		},
		Storage: StorageConfig{
			DatabasePath: "./fastmp.db",
			SecretsFile:  "",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if baseURL := os.Getenv("FASTMP_PROVIDER_BASE_URL"); baseURL != "" {
		c.Provider.BaseURL = baseURL
	}
	if userAgent := os.Getenv("FASTMP_USER_AGENT"); userAgent != "" {
		c.Provider.UserAgent = userAgent
	}

	if limit := os.Getenv("FASTMP_HOURLY_REQUEST_LIMIT"); limit != "" {
		var val int
		fmt.Sscanf(limit, "%d", &val)
		if val > 0 {
			c.Quota.HourlyRequestLimit = val
		}
	}

	if dbPath := os.Getenv("FASTMP_DATABASE_PATH"); dbPath != "" {
		c.Storage.DatabasePath = dbPath
	}
	if secretsFile := os.Getenv("FASTMP_SECRETS_FILE"); secretsFile != "" {
		c.Storage.SecretsFile = secretsFile
	}

	if addr := os.Getenv("FASTMP_LISTEN_ADDR"); addr != "" {
		c.Server.ListenAddr = addr
	}

	if logLevel := os.Getenv("FASTMP_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	// Check in order of precedence
	locations := []string{
		".fastmp.yaml",
		".fastmp.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "fastmp", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "fastmp", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".fastmp.yaml"),
		filepath.Join(os.Getenv("HOME"), ".fastmp.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Provider.BaseURL == "" {
		errs = append(errs, errors.New("provider base URL is required"))
	}
	if c.Provider.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.Login.SessionTTL <= 0 {
		errs = append(errs, errors.New("login session TTL must be positive"))
	}

	if c.Quota.HourlyRequestLimit <= 0 {
		errs = append(errs, errors.New("hourly request limit must be positive"))
	}
	if c.Quota.CredentialValidity <= 0 {
		errs = append(errs, errors.New("credential validity must be positive"))
	}

	if c.Sync.PageSize <= 0 {
		errs = append(errs, errors.New("sync page size must be positive"))
	}
	if c.Sync.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	if c.Storage.DatabasePath == "" {
		errs = append(errs, errors.New("database path is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if dbPath, ok := flags["database"].(string); ok && dbPath != "" {
		c.Storage.DatabasePath = dbPath
	}
	if addr, ok := flags["listen"].(string); ok && addr != "" {
		c.Server.ListenAddr = addr
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if pageSize, ok := flags["page-size"].(int); ok && pageSize > 0 {
		c.Sync.PageSize = pageSize
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".fastmp.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
