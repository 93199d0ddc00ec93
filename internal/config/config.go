// Package config loads the process configuration from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Run modes
const (
	ModeAPI  = "api"
	ModeSync = "sync"
	ModeAll  = "all"
)

// Store backends
const (
	BackendBolt     = "bolt"
	BackendPostgres = "postgres"
)

// Config is the full process configuration
type Config struct {
	RunMode string `env:"RUN_MODE" envDefault:"all"`
	Host    string `env:"HOST" envDefault:"0.0.0.0"`
	Port    int    `env:"PORT" envDefault:"8080"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"bolt"`
	BoltPath     string `env:"BOLT_PATH" envDefault:"storesync.db"`

	DatabaseURL       string        `env:"DATABASE_URL"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"1m"`

	// Optional; enables the Redis settings store and refresh lock
	RedisURL string `env:"REDIS_URL"`

	Woo WooConfig `envPrefix:"WOO_"`

	SiteIDs   []int64 `env:"SITE_IDS" envDefault:"1" envSeparator:","`
	JWTSecret string  `env:"JWT_SECRET"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	ProjectionStrict bool          `env:"PROJECTION_STRICT" envDefault:"false"`
	FetchTimeout     time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`

	SchedulerEnabled bool          `env:"SCHEDULER_ENABLED" envDefault:"true"`
	RefreshInterval  time.Duration `env:"REFRESH_INTERVAL" envDefault:"5m"`
}

// WooConfig holds the REST credentials of the remote store
type WooConfig struct {
	BaseURL        string        `env:"BASE_URL"`
	ConsumerKey    string        `env:"CONSUMER_KEY"`
	ConsumerSecret string        `env:"CONSUMER_SECRET"`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"15s"`
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"2"`
}

// Load parses the environment and validates the result
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values env tags cannot express
func (c *Config) Validate() error {
	switch c.RunMode {
	case ModeAPI, ModeSync, ModeAll:
	default:
		return fmt.Errorf("config: unknown RUN_MODE %q (use api, sync or all)", c.RunMode)
	}

	switch c.StoreBackend {
	case BackendBolt:
		if strings.TrimSpace(c.BoltPath) == "" {
			return fmt.Errorf("config: BOLT_PATH is required for the bolt backend")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q (use bolt or postgres)", c.StoreBackend)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT %d out of range", c.Port)
	}
	if c.Woo.BaseURL == "" {
		return fmt.Errorf("config: WOO_BASE_URL is required")
	}
	if len(c.SiteIDs) == 0 {
		return fmt.Errorf("config: SITE_IDS must list at least one site")
	}
	for _, id := range c.SiteIDs {
		if id <= 0 {
			return fmt.Errorf("config: site id %d must be positive", id)
		}
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("config: unknown LOG_FORMAT %q (use json or text)", c.LogFormat)
	}
	return nil
}

// NewLogger builds the process logger described by LOG_LEVEL and LOG_FORMAT
func NewLogger(c *Config, w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("config: unknown LOG_LEVEL %q", s)
	}
	return level, nil
}
