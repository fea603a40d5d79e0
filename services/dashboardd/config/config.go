package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	// DefaultIngestScope is the JWT scope required to post snapshots.
	DefaultIngestScope = "snapshots:write"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for dashboardd.
type Config struct {
	ListenAddress   string                     `yaml:"listen"`
	CatalogPath     string                     `yaml:"catalog"`
	Strict          bool                       `yaml:"strict"`
	LogLevel        string                     `yaml:"log_level"`
	ShutdownTimeout Duration                   `yaml:"shutdown_timeout"`
	Database        DatabaseConfig             `yaml:"database"`
	History         HistoryConfig              `yaml:"history"`
	Auth            AuthConfig                 `yaml:"auth"`
	RateLimits      map[string]RateLimitConfig `yaml:"rate_limits"`
	CORS            CORSConfig                 `yaml:"cors"`
	Stream          StreamConfig               `yaml:"stream"`
}

// DatabaseConfig selects the snapshot history backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	URL    string `yaml:"url"`
}

// HistoryConfig bounds how much snapshot history is kept per account.
type HistoryConfig struct {
	Retention Duration `yaml:"retention"`
	Limit     int      `yaml:"limit"`
}

// AuthConfig protects the ingest endpoint.
type AuthConfig struct {
	Enabled     bool   `yaml:"enabled"`
	HMACSecret  string `yaml:"hmac_secret"`
	Issuer      string `yaml:"issuer"`
	Audience    string `yaml:"audience"`
	IngestScope string `yaml:"ingest_scope"`
}

// RateLimitConfig is the token bucket for one route group.
type RateLimitConfig struct {
	RatePerSecond float64        `yaml:"rate_per_second"`
	Burst         int            `yaml:"burst"`
	DefaultTokens int            `yaml:"default_tokens"`
	Tokens        map[string]int `yaml:"tokens"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StreamConfig tunes the websocket fan-out.
type StreamConfig struct {
	Buffer       int      `yaml:"buffer"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// Load reads configuration from the supplied path and applies environment
// overrides for secrets.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("DASHBOARDD_DATABASE_URL")); v != "" {
		cfg.Database.URL = v
		if cfg.Database.Driver == "" {
			cfg.Database.Driver = DriverPostgres
		}
	}
	if v := strings.TrimSpace(os.Getenv("DASHBOARDD_JWT_SECRET")); v != "" {
		cfg.Auth.HMACSecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = "lendboard.toml"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ShutdownTimeout.Duration == 0 {
		cfg.ShutdownTimeout.Duration = 5 * time.Second
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
	}
	if cfg.Database.Driver == DriverSQLite && cfg.Database.Path == "" {
		cfg.Database.Path = "/var/data/dashboardd.sqlite"
	}
	if cfg.History.Retention.Duration == 0 {
		cfg.History.Retention.Duration = 7 * 24 * time.Hour
	}
	if cfg.History.Limit <= 0 {
		cfg.History.Limit = 50
	}
	if cfg.Auth.IngestScope == "" {
		cfg.Auth.IngestScope = DefaultIngestScope
	}
	if cfg.Stream.Buffer <= 0 {
		cfg.Stream.Buffer = 8
	}
	if cfg.Stream.WriteTimeout.Duration == 0 {
		cfg.Stream.WriteTimeout.Duration = 10 * time.Second
	}
}

func validate(cfg Config) error {
	switch cfg.Database.Driver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.Database.Path) == "" {
			return errors.New("database.path must be set for sqlite")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.Database.URL) == "" {
			return errors.New("database.url must be set for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.Auth.Enabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return errors.New("auth.hmac_secret is required when auth is enabled")
	}
	for name, limit := range cfg.RateLimits {
		if limit.RatePerSecond <= 0 || limit.Burst <= 0 {
			return fmt.Errorf("rate limit %q requires positive rate_per_second and burst", name)
		}
	}
	if cfg.History.Retention.Duration < 0 {
		return errors.New("history.retention must not be negative")
	}
	return nil
}
