// Package config loads server configuration from the environment.
//
// An optional .env file in the working directory is read first (handy for
// local development); real environment variables always win over it.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	LogLevel slog.Level

	DB    DBConfig
	Redis RedisConfig
	Auth  AuthConfig

	// CacheTTL bounds how long a query result is cached when no write evicts it.
	CacheTTL time.Duration

	// LoginRateLimit attempts are allowed per client IP per LoginRateWindow.
	LoginRateLimit  int
	LoginRateWindow time.Duration

	// CatalogPath, when set, is a JSON array of movies imported at startup.
	CatalogPath string
	// StaticDir, when set, is served at / (the built frontend).
	StaticDir string
	// AllowedOrigin is echoed in CORS headers for the frontend dev server.
	AllowedOrigin string
}

type DBConfig struct {
	Driver string // "sqlite" or "postgres"
	DSN    string
}

// RedisConfig is empty when Redis is not used; the cache and the login
// limiter then run in memory.
type RedisConfig struct {
	URL string
}

func (r RedisConfig) Enabled() bool { return r.URL != "" }

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// GitHubEnabled reports whether "sign in with GitHub" is configured.
func (a AuthConfig) GitHubEnabled() bool {
	return a.GitHubClientID != "" && a.GitHubClientSecret != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Missing .env is normal in production.
	_ = godotenv.Load()

	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, err
	}
	limit, err := getInt("LOGIN_RATE_LIMIT", 5)
	if err != nil {
		return nil, err
	}
	window, err := getDuration("LOGIN_RATE_WINDOW", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getDuration("CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	tokenTTL, err := getDuration("TOKEN_TTL", time.Hour)
	if err != nil {
		return nil, err
	}
	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:     port,
		LogLevel: level,
		DB: DBConfig{
			Driver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			DSN:    getEnv("DB_DSN", "data/moviemanager.db"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret:          getEnv("JWT_SECRET", ""),
			TokenTTL:           tokenTTL,
			GitHubClientID:     getEnv("GITHUB_CLIENT_ID", ""),
			GitHubClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
			GitHubCallbackURL:  getEnv("GITHUB_CALLBACK_URL", fmt.Sprintf("http://localhost:%d/auth/github/callback", port)),
		},
		CacheTTL:        cacheTTL,
		LoginRateLimit:  limit,
		LoginRateWindow: window,
		CatalogPath:     getEnv("CATALOG_PATH", ""),
		StaticDir:       getEnv("STATIC_DIR", ""),
		AllowedOrigin:   getEnv("ALLOWED_ORIGIN", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values Load cannot fix with a default.
func (c *Config) Validate() error {
	if c.DB.Driver != "sqlite" && c.DB.Driver != "postgres" {
		return fmt.Errorf("config: DB_DRIVER must be sqlite or postgres, got %q", c.DB.Driver)
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("config: JWT_SECRET must be set to at least 16 characters")
	}
	if c.LoginRateLimit < 1 {
		return fmt.Errorf("config: LOGIN_RATE_LIMIT must be at least 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not an integer", key, raw)
	}
	return n, nil
}

// getDuration accepts Go durations ("15m", "1h") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s=%q is not a duration", key, raw)
	}
	return d, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL=%q: %w", raw, err)
	}
	return level, nil
}
