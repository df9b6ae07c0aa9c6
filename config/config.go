// Package config loads service configuration from an optional YAML file,
// a .env file and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Bar source kinds.
const (
	SourceHTTP     = "http"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`

	Source struct {
		Kind        string        `yaml:"kind"`
		BaseURL     string        `yaml:"base_url"`
		SQLitePath  string        `yaml:"sqlite_path"`
		PostgresDSN string        `yaml:"postgres_dsn"`
		Timeout     time.Duration `yaml:"timeout"`
	} `yaml:"source"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Cache struct {
		Enabled bool          `yaml:"enabled"`
		TTL     time.Duration `yaml:"ttl"`
	} `yaml:"cache"`

	Bars struct {
		DefaultLimit int `yaml:"default_limit"`
		MaxLimit     int `yaml:"max_limit"`
	} `yaml:"bars"`

	DetectWorkers int `yaml:"detect_workers"`
}

// Load reads configuration. path names an optional YAML file (TA_CONFIG_FILE
// is used when path is empty); a missing file is not an error. Values from
// .env and the process environment override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] could not load .env: %v", err)
	}

	if path == "" {
		path = os.Getenv("TA_CONFIG_FILE")
	}

	cfg := &Config{}
	cfg.Cache.Enabled = true
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	envString(&c.HTTPAddr, "HTTP_ADDR")
	envString(&c.MetricsAddr, "METRICS_ADDR")
	envString(&c.LogLevel, "LOG_LEVEL")

	envString(&c.Source.Kind, "BAR_SOURCE")
	envString(&c.Source.BaseURL, "BARS_BASE_URL")
	envString(&c.Source.SQLitePath, "SQLITE_PATH")
	envString(&c.Source.PostgresDSN, "POSTGRES_DSN")
	envDuration(&c.Source.Timeout, "BARS_TIMEOUT")

	envString(&c.Redis.Addr, "REDIS_ADDR")
	envString(&c.Redis.Password, "REDIS_PASSWORD")
	envInt(&c.Redis.DB, "REDIS_DB")

	envBool(&c.Cache.Enabled, "CACHE_ENABLED")
	envDuration(&c.Cache.TTL, "CACHE_TTL")

	envInt(&c.Bars.DefaultLimit, "DEFAULT_BAR_LIMIT")
	envInt(&c.Bars.MaxLimit, "MAX_BAR_LIMIT")
	envInt(&c.DetectWorkers, "DETECT_WORKERS")
}

func (c *Config) applyDefaults() {
	setDefault(&c.HTTPAddr, ":8080")
	setDefault(&c.MetricsAddr, ":9090")
	setDefault(&c.LogLevel, "info")
	setDefault(&c.Source.Kind, SourceHTTP)
	setDefault(&c.Source.BaseURL, "http://localhost:8000")
	setDefault(&c.Source.SQLitePath, "data/bars.db")
	setDefault(&c.Redis.Addr, "localhost:6379")
	if c.Source.Timeout == 0 {
		c.Source.Timeout = 10 * time.Second
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 5 * time.Minute
	}
	if c.Bars.DefaultLimit == 0 {
		c.Bars.DefaultLimit = 500
	}
	if c.Bars.MaxLimit == 0 {
		c.Bars.MaxLimit = 5000
	}
	if c.DetectWorkers == 0 {
		c.DetectWorkers = 4
	}
	c.Source.Kind = strings.ToLower(c.Source.Kind)
}

// Validate checks field consistency.
func (c *Config) Validate() error {
	switch c.Source.Kind {
	case SourceHTTP, SourceSQLite:
	case SourcePostgres:
		if c.Source.PostgresDSN == "" {
			return fmt.Errorf("source.postgres_dsn is required for the postgres source")
		}
	default:
		return fmt.Errorf("source.kind must be http, sqlite or postgres, got %q", c.Source.Kind)
	}
	if c.Bars.DefaultLimit <= 0 || c.Bars.MaxLimit <= 0 {
		return fmt.Errorf("bar limits must be positive")
	}
	if c.Bars.DefaultLimit > c.Bars.MaxLimit {
		return fmt.Errorf("bars.default_limit %d exceeds bars.max_limit %d", c.Bars.DefaultLimit, c.Bars.MaxLimit)
	}
	if c.DetectWorkers < 1 {
		return fmt.Errorf("detect_workers must be at least 1")
	}
	return nil
}

func setDefault(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return
	}
	*dst = n
}

func envBool(dst *bool, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return
	}
	*dst = b
}

func envDuration(dst *time.Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[config] ignoring invalid %s=%q", key, v)
		return
	}
	*dst = d
}
