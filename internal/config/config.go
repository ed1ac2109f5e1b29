// Package config loads and validates the monitor configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the CKD_ prefix (e.g. CKD_CATALOG_BASE_URL
// overrides catalog.base_url in the YAML). The same binary runs with a
// config.yaml in local development and with pure environment variables in
// containerized deployments.
//
// The CKAN_API_KEY variable has no CKD_ prefix because it may be injected by
// infrastructure tooling (e.g. Kubernetes secrets) that does not know the
// application-specific prefix and treats it as a generic secret name.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Security  SecurityConfig  `mapstructure:"security"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetAddress returns the server address in host:port format.
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CatalogConfig holds the upstream CKAN catalog settings.
type CatalogConfig struct {
	// BaseURL is the catalog root, no trailing slash (e.g. https://catalog.example.org).
	BaseURL string `mapstructure:"base_url"`
	// APIKey is the bearer credential; normally left empty here and supplied
	// via the CKAN_API_KEY environment variable.
	APIKey string `mapstructure:"api_key"`
	// FetchLimit caps how many datasets one bulk fetch retrieves.
	FetchLimit int `mapstructure:"fetch_limit"`
	// DetailWorkers bounds the organization detail fan-out pool.
	DetailWorkers int `mapstructure:"detail_workers"`
	// TopN is the size of the tag and resource-format frequency tables.
	TopN int `mapstructure:"top_n"`
}

// CacheConfig holds snapshot cache configuration.
type CacheConfig struct {
	// Backend selects the snapshot store: "local" or "redis".
	Backend string           `mapstructure:"backend"`
	Local   LocalCacheConfig `mapstructure:"local"`
	Redis   RedisCacheConfig `mapstructure:"redis"`
}

// LocalCacheConfig holds the file-backed snapshot store settings.
type LocalCacheConfig struct {
	Path string `mapstructure:"path"`
}

// RedisCacheConfig holds the Redis-backed snapshot store settings.
type RedisCacheConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig holds the optional PostgreSQL connection for fetch history.
type DatabaseConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// GetDSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// RateLimitingConfig holds rate limiting configuration.
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested
// structs during Unmarshal. viper.BindEnv only errors when called with zero
// keys; since every key here is a non-empty hardcoded string, any error
// indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",

		// Catalog
		"catalog.base_url",
		"catalog.api_key",
		"catalog.fetch_limit",
		"catalog.detail_workers",
		"catalog.top_n",

		// Cache
		"cache.backend",
		"cache.local.path",
		"cache.redis.addr",
		"cache.redis.password",
		"cache.redis.db",

		// Database
		"database.enabled",
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Security
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/ckan-monitor")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("CKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// The credential comes from the unprefixed secret variable when not set
	// in the file; ${VAR} references in sensitive fields are expanded.
	if cfg.Catalog.APIKey == "" {
		cfg.Catalog.APIKey = os.Getenv("CKAN_API_KEY")
	}
	cfg.Catalog.APIKey = os.ExpandEnv(cfg.Catalog.APIKey)
	cfg.Database.Password = os.ExpandEnv(cfg.Database.Password)
	cfg.Cache.Redis.Password = os.ExpandEnv(cfg.Cache.Redis.Password)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Catalog defaults
	v.SetDefault("catalog.base_url", "")
	v.SetDefault("catalog.fetch_limit", 10000)
	v.SetDefault("catalog.detail_workers", 20)
	v.SetDefault("catalog.top_n", 10)

	// Cache defaults
	v.SetDefault("cache.backend", "local")
	v.SetDefault("cache.local.path", "dataset_cache.json")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.db", 0)

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "ckan_monitor")
	v.SetDefault("database.user", "monitor")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Security defaults
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 120)
	v.SetDefault("security.rate_limiting.burst", 30)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url is required")
	}
	parsed, err := url.Parse(c.Catalog.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid catalog.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("catalog.base_url must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("catalog.base_url must have a host")
	}

	if c.Catalog.FetchLimit < 0 {
		return fmt.Errorf("catalog.fetch_limit must not be negative")
	}
	if c.Catalog.DetailWorkers < 1 {
		return fmt.Errorf("catalog.detail_workers must be at least 1")
	}

	validBackends := map[string]bool{"local": true, "redis": true}
	if !validBackends[c.Cache.Backend] {
		return fmt.Errorf("invalid cache backend: %s (must be local or redis)", c.Cache.Backend)
	}
	if c.Cache.Backend == "local" && c.Cache.Local.Path == "" {
		return fmt.Errorf("cache.local.path is required when using the local backend")
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache.redis.addr is required when using the redis backend")
	}

	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database.host is required when the database is enabled")
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database.name is required when the database is enabled")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required when the database is enabled")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}
