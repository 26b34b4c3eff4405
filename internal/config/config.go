// Package config loads and validates catalog sync configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Archive backends.
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveGCS   = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig      `mapstructure:"server"`
	Auth      AuthConfig        `mapstructure:"auth"`
	HTTP      HTTPConfig        `mapstructure:"http"`
	Store     StoreConfig       `mapstructure:"store"`
	Archive   ArchiveConfig     `mapstructure:"archive"`
	Cardrush  CardrushConfig    `mapstructure:"cardrush"`
	Limitless LimitlessConfig   `mapstructure:"limitless"`
	Segments  []catalog.Segment `mapstructure:"segments"`
	PubSub    PubSubConfig      `mapstructure:"pubsub"`
	Logging   LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig guards the sync trigger endpoint.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// HTTPConfig configures the fetch transport.
type HTTPConfig struct {
	UserAgent      string            `mapstructure:"user_agent"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	DelayMs        int               `mapstructure:"delay_ms"`
	MaxRetries     int               `mapstructure:"max_retries"`
	Headers        map[string]string `mapstructure:"headers"`
}

// StoreConfig selects and configures the relational backend.
type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig selects where raw pages are kept.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	BaseDir string `mapstructure:"base_dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// CardrushConfig holds CardRush listing defaults.
type CardrushConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	PageSize int    `mapstructure:"page_size"`
	MaxPages int    `mapstructure:"max_pages"`
}

// LimitlessConfig holds Limitless enumeration defaults.
type LimitlessConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// MaxCards bounds a set whose size cannot be discovered.
	MaxCards int `mapstructure:"max_cards"`
}

// PubSubConfig holds metadata for run notifications. An empty topic disables
// publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Cloud Run injects PORT.
	if err := v.BindEnv("server.port", "CATALOG_SERVER_PORT", "PORT"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("http.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.delay_ms", 1000)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.headers", map[string]string{"Accept-Language": "ja,en-US;q=0.9,en;q=0.8"})
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "ptcg.sqlite")
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.base_dir", "archive")
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("cardrush.base_url", "https://www.cardrush-pokemon.jp")
	v.SetDefault("cardrush.page_size", 100)
	v.SetDefault("cardrush.max_pages", 14)
	v.SetDefault("limitless.base_url", "https://limitlesstcg.com")
	v.SetDefault("limitless.max_cards", 400)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
}

func (c *Config) normalize() {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Archive.Backend = strings.ToLower(strings.TrimSpace(c.Archive.Backend))
	for i := range c.Segments {
		c.Segments[i].Source = catalog.Source(strings.ToLower(strings.TrimSpace(string(c.Segments[i].Source))))
		c.Segments[i].BaseAddress = strings.TrimSpace(c.Segments[i].BaseAddress)
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.DelayMs < 0 {
		return fmt.Errorf("http.delay_ms must be >= 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Store.Driver)
	}
	switch c.Archive.Backend {
	case ArchiveNone:
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir is required for the local backend")
		}
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend must be none, local, or gcs, got %q", c.Archive.Backend)
	}
	if c.Cardrush.PageSize <= 0 {
		return fmt.Errorf("cardrush.page_size must be > 0")
	}
	if c.Cardrush.MaxPages <= 0 {
		return fmt.Errorf("cardrush.max_pages must be > 0")
	}
	if c.Limitless.MaxCards <= 0 {
		return fmt.Errorf("limitless.max_cards must be > 0")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	for i, seg := range c.Segments {
		if _, err := catalog.ParseSource(string(seg.Source)); err != nil {
			return fmt.Errorf("segments[%d]: %w", i, err)
		}
		if seg.ID == "" || seg.BaseAddress == "" {
			return fmt.Errorf("segments[%d]: id and base_address are required", i)
		}
		if seg.MaxPages < 0 {
			return fmt.Errorf("segments[%d]: max_pages must be >= 0", i)
		}
	}
	return nil
}

// FetchTimeout is the per-request timeout.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// FetchDelay is the fixed pause between requests.
func (c Config) FetchDelay() time.Duration {
	return time.Duration(c.HTTP.DelayMs) * time.Millisecond
}
