// Package config loads service configuration from defaults, an optional YAML
// file named by CONFIG_FILE, and environment variable overrides, in that
// order.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skintrack/tracker/internal/fx"
	"github.com/skintrack/tracker/internal/market"
	"github.com/skintrack/tracker/internal/refresher"
)

// Config is the full service configuration.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	LogLevel    string `yaml:"log_level"`

	// CacheTTL bounds how long Redis serves items and latest prices.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	Refresh RefreshConfig `yaml:"refresh"`
	Steam   SteamConfig   `yaml:"steam"`
	FX      FXConfig      `yaml:"fx"`
	Limits  LimitsConfig  `yaml:"limits"`
}

type RefreshConfig struct {
	Schedule string `yaml:"schedule"`
	Disabled bool   `yaml:"disabled"`
}

type SteamConfig struct {
	BaseURL      string        `yaml:"base_url"`
	RequestDelay time.Duration `yaml:"request_delay"`
	TopTTL       time.Duration `yaml:"top_ttl"`
}

type FXConfig struct {
	BaseURL string        `yaml:"base_url"`
	TTL     time.Duration `yaml:"ttl"`
}

// LimitsConfig caps holdings. Zero means unlimited.
type LimitsConfig struct {
	MaxPerItem   int64 `yaml:"max_per_item"`
	MaxPerWeapon int64 `yaml:"max_per_weapon"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Port:     "8080",
		LogLevel: "info",
		CacheTTL: 30 * time.Second,
		Refresh:  RefreshConfig{Schedule: refresher.DefaultSchedule},
		Steam: SteamConfig{
			BaseURL:      market.DefaultBaseURL,
			RequestDelay: 5 * time.Second,
			TopTTL:       10 * time.Minute,
		},
		FX: FXConfig{
			BaseURL: fx.DefaultBaseURL,
			TTL:     fx.DefaultTTL,
		},
	}
}

// Load builds the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom builds the configuration using getenv for lookups.
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	setString(&cfg.Port, getenv("PORT"))
	setString(&cfg.DatabaseURL, getenv("DATABASE_URL"))
	setString(&cfg.RedisURL, getenv("REDIS_URL"))
	setString(&cfg.LogLevel, getenv("LOG_LEVEL"))
	setString(&cfg.Refresh.Schedule, getenv("REFRESH_SCHEDULE"))
	setString(&cfg.Steam.BaseURL, getenv("STEAM_BASE_URL"))
	setString(&cfg.FX.BaseURL, getenv("FX_BASE_URL"))

	if v := getenv("REFRESH_DISABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect REFRESH_DISABLED %q: %w", v, err)
		}
		cfg.Refresh.Disabled = b
	}
	if v := getenv("STEAM_REQUEST_DELAY"); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("incorrect STEAM_REQUEST_DELAY %q: %w", v, err)
		}
		cfg.Steam.RequestDelay = dur
	}
	for name, dst := range map[string]*int64{
		"MAX_PER_ITEM":   &cfg.Limits.MaxPerItem,
		"MAX_PER_WEAPON": &cfg.Limits.MaxPerWeapon,
	} {
		if v := getenv(name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return Config{}, fmt.Errorf("incorrect %s %q (must be an integer): %w", name, v, err)
			}
			*dst = n
		}
	}

	if _, err := cfg.Level(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Level parses LogLevel ("debug", "info", "warn", "error").
func (c Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("incorrect log level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
