package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port               string        `env:"PORT" env-default:"3001"`
	FeedURL            string        `env:"FEED_URL" env-default:"https://api.orhanaydogdu.com.tr/deprem/kandilli/live"`
	PollInterval       time.Duration `env:"POLL_INTERVAL" env-default:"10s"`
	FetchTimeout       time.Duration `env:"FETCH_TIMEOUT" env-default:"8s"`
	RedisURL           string        `env:"REDIS_URL"`
	RedisChannelPrefix string        `env:"REDIS_CHANNEL_PREFIX" env-default:"earthquakes"`
	RefreshLimit       int           `env:"REFRESH_LIMIT" env-default:"6"`
	RefreshWindow      time.Duration `env:"REFRESH_WINDOW" env-default:"1m"`
	LogLevel           string        `env:"LOG_LEVEL" env-default:"info"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	u, err := url.Parse(c.FeedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("FEED_URL must be an absolute http(s) URL, got %q", c.FeedURL)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive, got %s", c.FetchTimeout)
	}
	if c.FetchTimeout > c.PollInterval {
		return fmt.Errorf("FETCH_TIMEOUT (%s) must not exceed POLL_INTERVAL (%s)", c.FetchTimeout, c.PollInterval)
	}
	if c.RefreshLimit < 0 {
		return fmt.Errorf("REFRESH_LIMIT must not be negative, got %d", c.RefreshLimit)
	}
	if c.RefreshWindow <= 0 {
		return fmt.Errorf("REFRESH_WINDOW must be positive, got %s", c.RefreshWindow)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a LOG_LEVEL value onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}
