package config

import (
	"fmt"
	"strings"
	"time"

	coreagg "github.com/aevon-lab/healthquery/internal/core/aggregation"
	"github.com/aevon-lab/healthquery/internal/core/metric"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the top-level application config plus the resolved metric catalog.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Query     QueryConfig     `koanf:"query"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Telemetry TelemetryConfig `koanf:"telemetry"`

	// Metrics is populated by Load from Catalog.Path (or the built-in table).
	Metrics *metric.Table `koanf:"-"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	Host           string        `koanf:"host"`
	Mode           string        `koanf:"mode"` // debug | release
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type DatabaseConfig struct {
	Type         string `koanf:"type"` // postgres | memory
	DSN          string `koanf:"dsn"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	MaxIdleConns int    `koanf:"max_idle_conns"`
	AutoMigrate  bool   `koanf:"auto_migrate"`
	FixturesPath string `koanf:"fixtures_path"` // memory only
}

type QueryConfig struct {
	DefaultPageSize    int    `koanf:"default_page_size"`
	MaxPageSize        int    `koanf:"max_page_size"`
	DefaultGranularity string `koanf:"default_granularity"`
	TimeZone           string `koanf:"time_zone"`
	WeekStart          string `koanf:"week_start"`
	MaxBuckets         int    `koanf:"max_buckets"`
}

type CatalogConfig struct {
	Path string `koanf:"path"` // empty selects the built-in table
}

type TelemetryConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// Calendar resolves the configured reference zone, week start and bucket cap.
func (c QueryConfig) Calendar() (coreagg.Calendar, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return coreagg.Calendar{}, fmt.Errorf("invalid query.time_zone %q: %w", c.TimeZone, err)
	}
	weekStart, err := coreagg.ParseWeekStart(c.WeekStart)
	if err != nil {
		return coreagg.Calendar{}, fmt.Errorf("invalid query.week_start: %w", err)
	}
	return coreagg.Calendar{Location: loc, WeekStart: weekStart, MaxBuckets: c.MaxBuckets}, nil
}

// Granularity resolves query.default_granularity.
func (c QueryConfig) Granularity() (coreagg.Granularity, error) {
	g, err := coreagg.ParseGranularity(c.DefaultGranularity)
	if err != nil {
		return "", fmt.Errorf("invalid query.default_granularity: %w", err)
	}
	return g, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d (must be 1-65535)", c.Server.Port)
	}
	if strings.TrimSpace(c.Server.Host) == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Mode != "debug" && c.Server.Mode != "release" {
		return fmt.Errorf("invalid server.mode %q (must be debug or release)", c.Server.Mode)
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("server.request_timeout must be >= 0")
	}

	switch c.Database.Type {
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn is required")
		}
		if c.Database.MaxOpenConns <= 0 {
			return fmt.Errorf("database.max_open_conns must be > 0")
		}
		if c.Database.MaxIdleConns <= 0 {
			return fmt.Errorf("database.max_idle_conns must be > 0")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database.type %q (must be postgres or memory)", c.Database.Type)
	}

	if c.Query.DefaultPageSize <= 0 {
		return fmt.Errorf("query.default_page_size must be > 0")
	}
	if c.Query.MaxPageSize < c.Query.DefaultPageSize {
		return fmt.Errorf("query.max_page_size must be >= query.default_page_size")
	}
	if c.Query.MaxBuckets < 0 {
		return fmt.Errorf("query.max_buckets must be >= 0")
	}
	if _, err := c.Query.Granularity(); err != nil {
		return err
	}
	if _, err := c.Query.Calendar(); err != nil {
		return err
	}

	if c.Telemetry.Enabled && !strings.HasPrefix(c.Telemetry.Path, "/") {
		return fmt.Errorf("invalid telemetry.path %q (must start with /)", c.Telemetry.Path)
	}

	return nil
}

// Load parses config from file + env, validates it, then loads the metric catalog.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"server.port":               8080,
		"server.host":               "0.0.0.0",
		"server.mode":               "release",
		"server.request_timeout":    "30s",
		"database.type":             "postgres",
		"database.dsn":              "postgres://localhost:5432/health?sslmode=disable",
		"database.max_open_conns":   25,
		"database.max_idle_conns":   25,
		"database.auto_migrate":     true,
		"database.fixtures_path":    "",
		"query.default_page_size":   1000,
		"query.max_page_size":       10000,
		"query.default_granularity": "day",
		"query.time_zone":           "UTC",
		"query.week_start":          "monday",
		"query.max_buckets":         10000,
		"catalog.path":              "",
		"telemetry.enabled":         true,
		"telemetry.path":            "/metrics",
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("HEALTHQUERY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "HEALTHQUERY_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	table, err := metric.LoadTable(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load metric catalog: %w", err)
	}
	cfg.Metrics = table

	return &cfg, nil
}
