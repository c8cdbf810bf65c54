// Package config handles loading and validation of application configuration
// from environment variables. Supports .env files via godotenv.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port        int
	Environment string // "development" | "staging" | "production"
	StaticDir   string

	// Upstream PHP API
	BackendURL          string
	BackendBypassHeader string // tunnel proxy bypass header, "Name: value"
	BackendTimeout      time.Duration
	UploadTimeout       time.Duration

	// Browser storage
	StorageDriver string
	RedisURL      string
	DatabaseURL   string

	// Browser identity
	ClientCookie string
	CookieSecure bool

	// Security
	AllowedOrigins []string
	RateLimitRPM   int

	// Notifications
	NotifyDelay        time.Duration
	NotifyPollInterval time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		Environment: getEnv("ENVIRONMENT", "development"),
		StaticDir:   getEnv("STATIC_DIR", "./dist"),

		BackendURL:          getEnv("BACKEND_URL", "http://localhost/aduan-desa/api/"),
		BackendBypassHeader: getEnv("BACKEND_BYPASS_HEADER", "ngrok-skip-browser-warning: true"),
		BackendTimeout:      getEnvDuration("BACKEND_TIMEOUT", 10*time.Second),
		UploadTimeout:       getEnvDuration("BACKEND_UPLOAD_TIMEOUT", 30*time.Second),

		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", StorageMemory)),
		RedisURL:      getEnv("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		ClientCookie: getEnv("CLIENT_COOKIE", "aduan_client"),
		CookieSecure: getEnvBool("COOKIE_SECURE", false),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"), ","),
		RateLimitRPM:   getEnvInt("RATE_LIMIT_RPM", 60),

		NotifyDelay:        getEnvDuration("NOTIFY_DELAY", time.Second),
		NotifyPollInterval: getEnvDuration("NOTIFY_POLL_INTERVAL", 5*time.Second),
	}

	switch cfg.StorageDriver {
	case StorageMemory, StorageRedis, StoragePostgres:
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	if cfg.StorageDriver == StoragePostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres storage driver")
	}

	// Validate required fields in production
	if cfg.Environment == "production" {
		if cfg.StorageDriver == StorageMemory {
			return nil, fmt.Errorf("STORAGE_DRIVER=memory is not allowed in production")
		}
		if !cfg.CookieSecure {
			return nil, fmt.Errorf("COOKIE_SECURE must be enabled in production")
		}
	}

	if !strings.HasSuffix(cfg.BackendURL, "/") {
		cfg.BackendURL += "/"
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
