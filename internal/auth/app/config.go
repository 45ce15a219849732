package app

import (
	"os"
	"strconv"
	"time"

	"github.com/cataloghq/authcore/pkg/jwtx"
)

type Config struct {
	Issuer     string        // Issuer claim for access tokens
	Audience   string        // Audience claim for access tokens
	AccessTTL  time.Duration // Access token lifetime (default: 15m)
	RefreshTTL time.Duration // Refresh token lifetime (default: 7d)
	TOTPIssuer string        // Issuer label shown in authenticator apps

	BootstrapEmail    string // Optional: superadmin created on empty database
	BootstrapPassword string // Optional: password for the bootstrap account

	DatabaseFile         string        // Path to SQLite database file (default: ./authcore.db)
	PepperFile           string        // Path to password pepper file (default: ./pepper)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired-record sweep interval (default: 1h)
}

func LoadConfig() Config {
	cfg := Config{
		Issuer:               getEnvOrDefault("AUTH_ISSUER", "authcore"),
		Audience:             getEnvOrDefault("AUTH_AUDIENCE", "authcore"),
		AccessTTL:            getEnvDurationOrDefault("AUTH_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:           getEnvDurationOrDefault("AUTH_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
		TOTPIssuer:           getEnvOrDefault("AUTH_TOTP_ISSUER", "Authcore"),
		BootstrapEmail:       os.Getenv("AUTH_BOOTSTRAP_EMAIL"),
		BootstrapPassword:    os.Getenv("AUTH_BOOTSTRAP_PASSWORD"),
		DatabaseFile:         getEnvOrDefault("AUTH_DATABASE_FILE", "authcore.db"),
		PepperFile:           getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", time.Hour),
	}
	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
