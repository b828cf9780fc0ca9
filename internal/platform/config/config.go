// Package config provides environment-based configuration.
//
// Loads from .env file (godotenv), maps to Config struct via go-simpler/env
// struct tags. Validates policy values and the reference timezone at load;
// nothing reads ambient process state after construction.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	// Vote policy. Cooldown is the wait before a brand-new identity's first
	// vote counts; topics must reach VoteQuota counted votes within
	// GraceWindow of creation or the sweeper reclaims them.
	Cooldown    time.Duration `env:"COOLDOWN" default:"72h"`
	GraceWindow time.Duration `env:"GRACE_WINDOW" default:"720h"`
	VoteQuota   int           `env:"VOTE_QUOTA" default:"100"`

	// Timezone is the fixed reference zone for the 1-vote-per-calendar-day rule.
	Timezone string `env:"TIMEZONE" default:"America/Chicago"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" default:"1h"`
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
	if cfg.Cooldown < 0 {
		return errors.New("COOLDOWN must not be negative")
	}
	if cfg.GraceWindow <= 0 {
		return errors.New("GRACE_WINDOW must be positive")
	}
	if cfg.VoteQuota <= 0 {
		return errors.New("VOTE_QUOTA must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE must be a valid IANA zone: %w", err)
	}
	return nil
}

// Location resolves the configured reference timezone. Call after Load; the
// zone name is already validated.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
