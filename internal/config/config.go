package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	Environment string
	ListenAddr  string
	DatabaseURL string

	// StagingDBPath is the sqlite file backing the staging ledger. ":memory:"
	// is accepted for tests and local experiments.
	StagingDBPath string

	// RedisURL enables the API rate limiter when set.
	RedisURL string

	Currency string
	LogLevel string

	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration

	// MaxImportRows caps a single statement import request.
	MaxImportRows int
}

// Load loads configuration from environment variables. Only APP_ENV and
// DATABASE_URL are required; everything else has a sensible default.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:     os.Getenv("APP_ENV"),
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StagingDBPath:   getEnv("STAGING_DB_PATH", "staging.db"),
		RedisURL:        os.Getenv("REDIS_URL"),
		Currency:        getEnv("LEDGER_CURRENCY", "USD"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ReadTimeout:     15 * time.Second,
		ShutdownTimeout: 20 * time.Second,
		MaxImportRows:   10000,
	}

	var err error
	if cfg.ReadTimeout, err = getDuration("READ_TIMEOUT", cfg.ReadTimeout); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return nil, err
	}
	if cfg.MaxImportRows, err = getInt("MAX_IMPORT_ROWS", cfg.MaxImportRows); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if len(c.Currency) != 3 {
		return fmt.Errorf("LEDGER_CURRENCY must be a 3-letter ISO code, got %q", c.Currency)
	}
	if c.MaxImportRows <= 0 {
		return errors.New("MAX_IMPORT_ROWS must be positive")
	}

	// Production refuses an in-memory staging ledger: a restart would strand
	// sessions whose staging rows no longer exist.
	if c.Environment == "production" && c.StagingDBPath == ":memory:" {
		return errors.New("STAGING_DB_PATH must be a file path in production")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel)
	}

	return nil
}

// IsProduction reports whether the app runs with production hardening.
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "staging"
}

// SlogLevel maps LogLevel onto the slog scale.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
