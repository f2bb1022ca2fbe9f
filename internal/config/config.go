// Package config reads process configuration from the environment.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"comanda/internal/infrastructure/gateway"
	"comanda/internal/infrastructure/storage/postgres"
)

// Config is the complete process configuration.
type Config struct {
	AppEnv   string
	LogLevel string
	HTTPAddr string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	AutoMigrate bool

	// RedisURL enables the distributed emission lock; empty falls back to an
	// in-process lock.
	RedisURL string

	Gateway gateway.Config
	// TokenCache keeps gateway tokens until shortly before they expire.
	TokenCache bool

	SubmitTimeout time.Duration
	LockTTL       time.Duration

	// CompressThreshold is the document size above which journaled documents are zstd-compressed.
	CompressThreshold int

	// JWTSecret enables bearer auth; empty disables it.
	JWTSecret   string
	JWTIssuer   string
	RequireAuth bool

	// RateLimit and RateBurst bound emission requests per company or client IP; zero disables it.
	RateLimit float64
	RateBurst int
}

// Development reports whether the process runs in development mode.
func (c *Config) Development() bool {
	return c.AppEnv == "development"
}

// PoolConfig returns the Postgres pool configuration.
func (c *Config) PoolConfig() postgres.PoolConfig {
	cfg := postgres.DefaultPoolConfig(c.DatabaseURL)
	if c.DBMaxConns > 0 {
		cfg.MaxConns = c.DBMaxConns
	}
	if c.DBMinConns > 0 {
		cfg.MinConns = c.DBMinConns
	}
	return cfg
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv reads the environment only.
func FromEnv() (*Config, error) {
	gw := gateway.DefaultConfig()
	gw.AuthURL = getEnv("FISCAL_AUTH_URL", "")
	gw.APIURL = getEnv("FISCAL_API_URL", "")
	gw.Scope = getEnv("FISCAL_SCOPE", gw.Scope)
	gw.Timeout = getEnvDuration("FISCAL_TIMEOUT", gw.Timeout)
	gw.RatePerSecond = getEnvFloat("FISCAL_RATE_PER_SECOND", gw.RatePerSecond)
	gw.Burst = getEnvInt("FISCAL_RATE_BURST", gw.Burst)
	gw.TokenSkew = getEnvDuration("FISCAL_TOKEN_SKEW", gw.TokenSkew)

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPAddr: ":" + getEnv("APP_PORT", "8080"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBMaxConns:  int32(getEnvInt("DB_MAX_CONNS", 0)),
		DBMinConns:  int32(getEnvInt("DB_MIN_CONNS", 0)),
		AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),

		RedisURL: getEnv("REDIS_URL", ""),

		Gateway:    gw,
		TokenCache: getEnvBool("FISCAL_TOKEN_CACHE", true),

		SubmitTimeout: getEnvDuration("FISCAL_SUBMIT_TIMEOUT", gw.Timeout),
		LockTTL:       getEnvDuration("FISCAL_LOCK_TTL", 0),

		CompressThreshold: getEnvInt("JOURNAL_COMPRESS_THRESHOLD", postgres.DefaultCompressThreshold),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", "comanda"),
		RequireAuth: getEnvBool("AUTH_REQUIRED", false),

		RateLimit: getEnvFloat("EMIT_RATE_LIMIT", 0),
		RateBurst: getEnvInt("EMIT_RATE_BURST", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Gateway.AuthURL == "" {
		missing = append(missing, "FISCAL_AUTH_URL")
	}
	if c.Gateway.APIURL == "" {
		missing = append(missing, "FISCAL_API_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}
	if c.RequireAuth && c.JWTSecret == "" {
		return errors.New("AUTH_REQUIRED needs JWT_SECRET")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}
