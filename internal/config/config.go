// Package config provides configuration loading from YAML files:
// struct tags for defaults and validation, environment overrides for
// secrets.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/uwave/booth/internal/logging"
)

// Config is the top-level booth daemon configuration.
type Config struct {
	Redis   RedisConfig    `yaml:"redis"`
	SQLite  SQLiteConfig   `yaml:"sqlite"`
	Spotify SpotifyConfig  `yaml:"spotify"`
	Booth   BoothConfig    `yaml:"booth"`
	Logging logging.Config `yaml:"logging"`
}

// RedisConfig configures the ephemeral store connection.
type RedisConfig struct {
	Addr     string `yaml:"addr" default:"127.0.0.1:6379" validate:"required"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" default:"0" validate:"gte=0"`
}

// SQLiteConfig configures the durable record store connection.
type SQLiteConfig struct {
	Path string `yaml:"path" default:"booth.db" validate:"required"`
}

// SpotifyConfig configures the Spotify source resolver's OAuth2
// client-credentials flow.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" validate:"required"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"US"`
}

// BoothConfig configures the advance protocol's timing.
type BoothConfig struct {
	AdvanceLockTTL time.Duration `yaml:"advance_lock_ttl" default:"2s" validate:"required"`
}

// Load reads path as YAML, applies environment overrides for secrets,
// fills defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

func (c *Config) overrideFromEnv() {
	if v := os.Getenv("BOOTH_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("BOOTH_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("BOOTH_SQLITE_PATH"); v != "" {
		c.SQLite.Path = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
}

// Validate runs struct-tag validation over the loaded configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
