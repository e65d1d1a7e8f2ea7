package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/authkit/pkg/authsdk"
)

// Store kinds selectable with AUTHKIT_STORE.
const (
	StoreFile   = "file"
	StoreBolt   = "bolt"
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
	StoreNone   = "none"
)

type Config struct {
	ProjectID     string        `yaml:"project_id"`      // Required: project the CLI operates on
	BaseURL       string        `yaml:"base_url"`        // Identity backend (default: authsdk.DefaultBaseURL)
	Store         string        `yaml:"store"`           // Session store kind (file, bolt, sqlite, memory, none) (default: file)
	StorePath     string        `yaml:"store_path"`      // Directory or database file for the store (default: <user config dir>/authkit)
	MasterKeyPath string        `yaml:"master_key_path"` // Optional: file holding the storage key; AUTHKIT_MASTER_KEY is used otherwise
	Env           string        `yaml:"env"`             // Environment (dev, staging, prod) (default: dev)
	LogLevel      string        `yaml:"log_level"`       // Log level (debug, info, warn, error) (default: info)
	LogFormat     string        `yaml:"log_format"`      // Log format (json, text) (default: text)
	UnsafeLogging bool          `yaml:"unsafe_logging"`  // Log credentials and page console output (default: false)
	RefreshPeriod time.Duration `yaml:"refresh_period"`  // Lifecycle timer period (default: 30s)
	Staleness     time.Duration `yaml:"staleness"`       // Refresh lead time before expiry (default: 60s)
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		BaseURL:       authsdk.DefaultBaseURL,
		Store:         StoreFile,
		StorePath:     defaultStorePath(),
		Env:           "dev",
		LogLevel:      "info",
		LogFormat:     "text",
		RefreshPeriod: authsdk.DefaultRefreshPeriod,
		Staleness:     authsdk.DefaultAllowedStaleness,
	}
}

// LoadConfig layers defaults, the YAML file at path (when non-empty) and
// environment variables, in that order of increasing precedence.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.ProjectID = getEnvOrDefault("AUTHKIT_PROJECT_ID", cfg.ProjectID)
	cfg.BaseURL = getEnvOrDefault("AUTHKIT_BASE_URL", cfg.BaseURL)
	cfg.Store = getEnvOrDefault("AUTHKIT_STORE", cfg.Store)
	cfg.StorePath = getEnvOrDefault("AUTHKIT_STORE_PATH", cfg.StorePath)
	cfg.MasterKeyPath = getEnvOrDefault("AUTHKIT_MASTER_KEY_PATH", cfg.MasterKeyPath)
	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.UnsafeLogging = getEnvBoolOrDefault("AUTHKIT_UNSAFE_LOGGING", cfg.UnsafeLogging)
	cfg.RefreshPeriod = getEnvDurationOrDefault("AUTHKIT_REFRESH_PERIOD", cfg.RefreshPeriod)
	cfg.Staleness = getEnvDurationOrDefault("AUTHKIT_STALENESS", cfg.Staleness)

	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	return cfg, nil
}

// Validate reports settings no command can run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ProjectID) == "" {
		return errors.New("project id is required (AUTHKIT_PROJECT_ID or project_id)")
	}
	switch c.Store {
	case StoreFile, StoreBolt, StoreSQLite:
		if c.StorePath == "" {
			return fmt.Errorf("store %q needs a store path", c.Store)
		}
	case StoreMemory, StoreNone:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.RefreshPeriod <= 0 || c.Staleness <= 0 {
		return errors.New("refresh period and staleness must be positive")
	}
	return nil
}

// Persistent reports whether the configured store survives a restart and
// therefore needs a master key.
func (c Config) Persistent() bool {
	switch c.Store {
	case StoreFile, StoreBolt, StoreSQLite:
		return true
	}
	return false
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "authkit")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "30s", "2m")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
