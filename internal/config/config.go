// Package config loads application configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server needs to start. All values are
// read-only after Load.
type Config struct {
	// Server
	Port   int
	DBPath string

	// Tokens. The signing secret is mandatory and never defaulted — a
	// process without one must not start.
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Password hashing worker pool size.
	HashWorkers int

	// Google OAuth. Empty client ID disables the /auth/google route.
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GoogleTimeout      time.Duration
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first if present; real environment variables win.
func Load() (*Config, error) {
	// Best effort — running without a .env file is the normal production
	// case.
	_ = godotenv.Load()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET must be set")
	}

	cfg := &Config{
		Port:   getEnvInt("PORT", 8080),
		DBPath: getEnvString("DB_PATH", "data/skywatch.db"),

		JWTSecret:  secret,
		AccessTTL:  time.Duration(getEnvInt("ACCESS_TOKEN_TTL_MINUTES", 60)) * time.Minute,
		RefreshTTL: time.Duration(getEnvInt("REFRESH_TOKEN_TTL_DAYS", 30)) * 24 * time.Hour,

		HashWorkers: getEnvInt("HASH_WORKERS", 4),

		GoogleClientID:     os.Getenv("GOOGLE_OAUTH_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_OAUTH_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_OAUTH_REDIRECT_URL"),
		GoogleTimeout:      time.Duration(getEnvInt("GOOGLE_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	return cfg, nil
}

// getEnvString reads a string variable with a default.
func getEnvString(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getEnvInt reads an integer variable with a default; a malformed value
// falls back to the default rather than aborting startup.
func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}
