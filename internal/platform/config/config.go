package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// MaxPageSize is the largest page the Mastodon accounts endpoints return.
const MaxPageSize = 80

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	AppName   string `env:"APP_NAME" default:"fedi-follow-force-graph"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8080"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	MastodonInstanceURL string `env:"MASTODON_INSTANCE_URL"`
	MastodonAccessToken string `env:"MASTODON_ACCESS_TOKEN"`

	PageSize           int     `env:"PAGE_SIZE" default:"80"`
	PaginationMaxPages int     `env:"PAGINATION_MAX_PAGES" default:"10000"`
	APIRatePerSecond   float64 `env:"API_RATE_PER_SECOND" default:"5"`
	APIBurst           int     `env:"API_BURST" default:"10"`

	RemoteRatePerSecond float64       `env:"REMOTE_RATE_PER_SECOND" default:"5"`
	RemoteBurst         int           `env:"REMOTE_BURST" default:"5"`
	RemoteTimeout       time.Duration `env:"REMOTE_TIMEOUT" default:"30s"`

	DeliveryTimeout         time.Duration `env:"DELIVERY_TIMEOUT" default:"5s"`
	MaxWebSocketConnections int           `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`

	DatabaseURL        string `env:"DATABASE_URL"`
	RedisURL           string `env:"REDIS_URL"`
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	// Checked in a fixed order so the reported variable is deterministic.
	required := []struct{ name, value string }{
		{"MASTODON_INSTANCE_URL", cfg.MastodonInstanceURL},
		{"MASTODON_ACCESS_TOKEN", cfg.MastodonAccessToken},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	instance, err := url.Parse(cfg.MastodonInstanceURL)
	if err != nil || instance.Host == "" || (instance.Scheme != "https" && instance.Scheme != "http") {
		return fmt.Errorf("MASTODON_INSTANCE_URL must be an absolute http(s) URL, got %q", cfg.MastodonInstanceURL)
	}

	if cfg.PageSize < 1 || cfg.PageSize > MaxPageSize {
		return fmt.Errorf("PAGE_SIZE must be between 1 and %d, got %d", MaxPageSize, cfg.PageSize)
	}
	if cfg.PaginationMaxPages < 1 {
		return errors.New("PAGINATION_MAX_PAGES must be positive")
	}
	if cfg.APIRatePerSecond <= 0 || cfg.APIBurst < 1 {
		return errors.New("API_RATE_PER_SECOND and API_BURST must be positive")
	}
	if cfg.RemoteRatePerSecond <= 0 || cfg.RemoteBurst < 1 {
		return errors.New("REMOTE_RATE_PER_SECOND and REMOTE_BURST must be positive")
	}
	if cfg.DeliveryTimeout <= 0 {
		return errors.New("DELIVERY_TIMEOUT must be positive")
	}

	if cfg.TokenEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(cfg.TokenEncryptionKey)
		if err != nil {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
		}
	}

	if cfg.IsProduction() && cfg.DatabaseURL != "" {
		if err := validateSSLMode(cfg.DatabaseURL); err != nil {
			return err
		}
	}

	return nil
}

func validateSSLMode(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}

	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
	}
	return nil
}
