package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/sp3dr4/hop/internal/domain"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Source  SourceConfig  `mapstructure:"source"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port         string `mapstructure:"port"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`
}

type SourceConfig struct {
	Type          string         `mapstructure:"type" validate:"oneof=airtable postgres sqlite redis static"`
	MaxRecords    int            `mapstructure:"max_records" validate:"min=1"`
	View          string         `mapstructure:"view"` // sql sources only; airtable has its own
	FetchTimeout  string         `mapstructure:"fetch_timeout"`
	RetryAttempts uint           `mapstructure:"retry_attempts" validate:"min=1"`
	RetryDelay    string         `mapstructure:"retry_delay"`
	Airtable      AirtableConfig `mapstructure:"airtable"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
	SQLite        SQLiteConfig   `mapstructure:"sqlite"`
	Redis         RedisConfig    `mapstructure:"redis"`
	Static        StaticConfig   `mapstructure:"static"`
}

type AirtableConfig struct {
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
	APIKey   string `mapstructure:"api_key"`
	BaseID   string `mapstructure:"base_id"`
	Table    string `mapstructure:"table"`
	View     string `mapstructure:"view"`
}

type PostgresConfig struct {
	URL string `mapstructure:"url"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

type StaticConfig struct {
	Links []domain.Link `mapstructure:"links"`
}

type CacheConfig struct {
	Duration     string `mapstructure:"duration"`
	SingleFlight bool   `mapstructure:"single_flight"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

type MetricsConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Path           string `mapstructure:"path"`
	Namespace      string `mapstructure:"namespace"`
	Subsystem      string `mapstructure:"subsystem"`
	CollectRuntime bool   `mapstructure:"collect_runtime"`
}

const (
	DefaultCacheDuration = 10 * time.Second
	DefaultMaxRecords    = 9999
)

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/hop/")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Also accept the bare Airtable variable names.
	_ = v.BindEnv("source.airtable.api_key", "SOURCE_AIRTABLE_API_KEY", "AIRTABLE_API_KEY")
	_ = v.BindEnv("source.airtable.base_id", "SOURCE_AIRTABLE_BASE_ID", "AIRTABLE_BASE_ID")

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("source.type", "airtable")
	v.SetDefault("source.max_records", DefaultMaxRecords)
	v.SetDefault("source.view", "")
	v.SetDefault("source.fetch_timeout", "")
	v.SetDefault("source.retry_attempts", 1)
	v.SetDefault("source.retry_delay", "200ms")
	v.SetDefault("source.airtable.endpoint", "https://api.airtable.com")
	v.SetDefault("source.airtable.api_key", "")
	v.SetDefault("source.airtable.base_id", "")
	v.SetDefault("source.airtable.table", "Links")
	v.SetDefault("source.airtable.view", "Grid view")
	v.SetDefault("source.postgres.url", "")
	v.SetDefault("source.sqlite.path", "./data/hop.db")
	v.SetDefault("source.redis.addr", "localhost:6379")
	v.SetDefault("source.redis.password", "")
	v.SetDefault("source.redis.db", 0)
	v.SetDefault("source.redis.key", "hop:links")

	v.SetDefault("cache.duration", DefaultCacheDuration.String())
	v.SetDefault("cache.single_flight", true)

	v.SetDefault("logging.level", "info")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "hop")
	v.SetDefault("metrics.subsystem", "redirector")
	v.SetDefault("metrics.collect_runtime", true)
}

// Validate checks struct tags and the per-source required settings.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Source.Type {
	case "airtable":
		if c.Source.Airtable.APIKey == "" || c.Source.Airtable.BaseID == "" {
			return errors.New("invalid config: airtable source requires api_key and base_id")
		}
		if c.Source.Airtable.Table == "" {
			return errors.New("invalid config: airtable source requires a table")
		}
	case "postgres":
		if c.Source.Postgres.URL == "" {
			return errors.New("invalid config: postgres source requires url")
		}
	case "sqlite":
		if c.Source.SQLite.Path == "" {
			return errors.New("invalid config: sqlite source requires path")
		}
	case "redis":
		if c.Source.Redis.Addr == "" || c.Source.Redis.Key == "" {
			return errors.New("invalid config: redis source requires addr and key")
		}
	}

	window, err := parseDuration(c.Cache.Duration, DefaultCacheDuration)
	if err != nil {
		return fmt.Errorf("invalid config: cache.duration: %w", err)
	}
	if window == 0 {
		return errors.New("invalid config: cache.duration must be positive")
	}
	if _, err := parseDuration(c.Source.FetchTimeout, 0); err != nil {
		return fmt.Errorf("invalid config: source.fetch_timeout: %w", err)
	}

	return nil
}

// CacheDuration is the staleness window of the link cache.
func (c *Config) CacheDuration() time.Duration {
	d, err := parseDuration(c.Cache.Duration, DefaultCacheDuration)
	if err != nil {
		return DefaultCacheDuration
	}
	return d
}

// FetchTimeout bounds a single source fetch. Zero means no bound.
func (c *Config) FetchTimeout() time.Duration {
	d, _ := parseDuration(c.Source.FetchTimeout, 0)
	return d
}

func (c *Config) RetryDelay() time.Duration {
	d, _ := parseDuration(c.Source.RetryDelay, 200*time.Millisecond)
	return d
}

// SourceView returns the view the configured source reads from, if any.
func (c *Config) SourceView() string {
	if c.Source.Type == "airtable" {
		return c.Source.Airtable.View
	}
	return c.Source.View
}

func parseDuration(value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", value)
	}
	return d, nil
}
