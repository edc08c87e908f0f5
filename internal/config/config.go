// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
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

// Connector kinds accepted by CMS_CONNECTOR.
const (
	ConnectorPostgres = "postgres"
	ConnectorMemory   = "memory"
)

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host     string
	Port     string
	Env      string // "development", "production", "testing"
	LogLevel slog.Level

	// PostgreSQL connection
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Valkey (Redis-compatible cache). Empty host disables the payload cache.
	ValkeyHost     string
	ValkeyPort     string
	ValkeyPassword string
	ValkeyDB       int

	// S3-compatible archive of deleted items. Empty endpoint disables it.
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string

	// CMS settings
	Connector      string
	UnlockSecret   string
	UnlockTTL      time.Duration
	LockTTL        time.Duration
	PublicCacheTTL time.Duration
	PolicyFile     string
	Seed           bool

	// Admin identity. Bearer sessions need Valkey; identity headers are
	// meant for deployments behind an authenticating proxy.
	SessionTTL        time.Duration
	TrustActorHeaders bool
}

// Load reads configuration from environment variables, applying defaults
// for development where appropriate. Returns an error if critical values
// are missing in production mode.
func Load() (*Config, error) {
	cfg := &Config{
		Host: envOrDefault("APP_HOST", "0.0.0.0"),
		Port: envOrDefault("APP_PORT", "8080"),
		Env:  envOrDefault("APP_ENV", "development"),

		DBHost:     envOrDefault("POSTGRES_HOST", "localhost"),
		DBPort:     envOrDefault("POSTGRES_PORT", "5432"),
		DBUser:     envOrDefault("POSTGRES_USER", "cmskit"),
		DBPassword: envOrDefault("POSTGRES_PASSWORD", "changeme"),
		DBName:     envOrDefault("POSTGRES_DB", "cmskit"),

		ValkeyHost:     os.Getenv("VALKEY_HOST"),
		ValkeyPort:     envOrDefault("VALKEY_PORT", "6379"),
		ValkeyPassword: os.Getenv("VALKEY_PASSWORD"),

		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3Region:    envOrDefault("S3_REGION", "fsn1"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3Bucket:    envOrDefault("S3_ARCHIVE_BUCKET", "cmskit-archive"),

		Connector:    strings.ToLower(envOrDefault("CMS_CONNECTOR", ConnectorPostgres)),
		UnlockSecret: os.Getenv("CMS_UNLOCK_SECRET"),
		PolicyFile:   os.Getenv("CMS_POLICY_FILE"),
	}

	var errs []error
	var err error
	if cfg.LogLevel, err = parseLevel(envOrDefault("APP_LOG_LEVEL", "info")); err != nil {
		errs = append(errs, err)
	}
	if cfg.ValkeyDB, err = envInt("VALKEY_DB", 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.UnlockTTL, err = envDuration("CMS_UNLOCK_TTL", 24*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.LockTTL, err = envDuration("CMS_LOCK_TTL", 10*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.PublicCacheTTL, err = envDuration("CMS_PUBLIC_CACHE_TTL", 5*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.Seed, err = envBool("CMS_SEED", cfg.IsDev()); err != nil {
		errs = append(errs, err)
	}
	if cfg.SessionTTL, err = envDuration("CMS_SESSION_TTL", 24*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.TrustActorHeaders, err = envBool("CMS_TRUST_ACTOR_HEADERS", true); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	switch cfg.Connector {
	case ConnectorPostgres, ConnectorMemory:
	default:
		return nil, fmt.Errorf("CMS_CONNECTOR must be %q or %q, got %q", ConnectorPostgres, ConnectorMemory, cfg.Connector)
	}

	if cfg.Env == "production" {
		if cfg.DBPassword == "changeme" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD must be set in production")
		}
		if cfg.Connector == ConnectorMemory {
			return nil, fmt.Errorf("CMS_CONNECTOR=memory is not allowed in production")
		}
		if cfg.UnlockSecret == "" {
			return nil, fmt.Errorf("CMS_UNLOCK_SECRET must be set in production")
		}
	}

	return cfg, nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// envOrDefault reads an environment variable, returning a fallback if unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d, nil
}

func parseLevel(v string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("APP_LOG_LEVEL: invalid level %q", v)
	}
	return l, nil
}
