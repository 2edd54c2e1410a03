// Package config loads the service's layered configuration: built-in
// defaults, an optional YAML file, then environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	App      AppConfig      `koanf:"app"`
	Bus      BusConfig      `koanf:"bus"`
	Log      LogConfig      `koanf:"log"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Tracing  TracingConfig  `koanf:"tracing"`
	Cache    CacheConfig    `koanf:"cache"`
	Database DatabaseConfig `koanf:"database"`
	DataPath string         `koanf:"data_path"`
}

// AppConfig holds general application identity settings.
type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"` // development, staging, production
}

// BusConfig describes how to reach the message bus and the topology this
// service establishes on it (see SPEC_FULL.md §6).
type BusConfig struct {
	Host                string        `koanf:"host"`
	Port                int           `koanf:"port"`
	Username            string        `koanf:"username"`
	Password            string        `koanf:"password"`
	Exchange            string        `koanf:"exchange"`
	CommandQueue        string        `koanf:"command_queue"`
	CommandRoutingKey   string        `koanf:"command_routing_key"`
	ResponseQueue       string        `koanf:"response_queue"`
	ResponseRoutingKey  string        `koanf:"response_routing_key"`
	ConnectMaxAttempts  int           `koanf:"connect_max_attempts"`
	ConnectBackoff      time.Duration `koanf:"connect_backoff"`
	PublishMaxAttempts  int           `koanf:"publish_max_attempts"`
	PublishBackoff      time.Duration `koanf:"publish_backoff"`
	ReceivePollInterval time.Duration `koanf:"receive_poll_interval"`
}

// Address returns the bus's host:port pair.
func (b BusConfig) Address() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// LogConfig configures the slog/lumberjack-backed logger.
type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	Output     string `koanf:"output"`
	FilePath   string `koanf:"file_path"`
	MaxSize    int    `koanf:"max_size"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAge     int    `koanf:"max_age"`
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Port      int    `koanf:"port"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
	Subsystem string `koanf:"subsystem"`
}

// TracingConfig configures the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// CacheConfig configures the optional path-finding result cache.
type CacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Driver     string        `koanf:"driver"` // "redis" or "memory"
	Host       string        `koanf:"host"`
	Port       int           `koanf:"port"`
	Password   string        `koanf:"password"`
	DB         int           `koanf:"db"`
	MaxEntries int           `koanf:"max_entries"`
	DefaultTTL time.Duration `koanf:"default_ttl"`
}

// Address returns the cache's host:port pair.
func (c CacheConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig configures the persistent container store. Enabled
// mirrors CacheConfig.Enabled: when false (the default), terminals keep
// their containers in memory and none of the postgres/pgxpool/goose
// machinery in internal/store/postgres and pkg/database is touched.
type DatabaseConfig struct {
	Enabled         bool          `koanf:"enabled"`
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	Database        string        `koanf:"database"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	SSLMode         string        `koanf:"ssl_mode"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	MigrationsPath  string        `koanf:"migrations_path"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// DSN returns a libpq-style connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.Username, d.Password, d.Database, d.SSLMode,
	)
}

// Validate checks the configuration for obviously invalid values.
func (c *Config) Validate() error {
	var errs []string

	if c.App.Name == "" {
		errs = append(errs, "app.name is required")
	}

	if c.Bus.Port <= 0 || c.Bus.Port > 65535 {
		errs = append(errs, fmt.Sprintf("bus.port must be between 1 and 65535, got %d", c.Bus.Port))
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}

	if c.DataPath == "" {
		errs = append(errs, "data_path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsDevelopment reports whether the app is running in a development
// environment.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development" || c.App.Environment == "dev"
}

// IsProduction reports whether the app is running in a production
// environment.
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production" || c.App.Environment == "prod"
}
