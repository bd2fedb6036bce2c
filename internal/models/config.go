// Package models - Service configuration and operational settings.
// This file defines the configuration structures for the governor service.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, storage, governor, etc.)
// - Defaults that run a permissive governor with in-memory report history
// - Validation that rejects invalid limiter rules before any traffic is governed
package models

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"metricgovernor/internal/limiter"

	"github.com/Masterminds/semver/v3"
	"github.com/robfig/cron/v3"
)

// Storage type constants
const (
	StorageTypeJSON     = "json"
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
	StorageTypeRedis    = "redis"
)

// SupportedSchemaVersions is the semver constraint the governor section must satisfy.
const SupportedSchemaVersions = "^1.0"

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP API settings
// - Storage: status report history backend
// - Logging: structured logging output
// - Metrics / Observability: self-telemetry
// - Reporting: periodic status collection
// - Governor: limiter rules
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
	Reporting     ReportingConfig     `yaml:"reporting" json:"reporting"`
	Governor      GovernorConfig      `yaml:"governor" json:"governor"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

type StorageConfig struct {
	Type      string         `yaml:"type" json:"type"`
	Path      string         `yaml:"path" json:"path"`
	Retention int            `yaml:"retention" json:"retention"`
	Database  DatabaseConfig `yaml:"database" json:"database"`
	Redis     RedisConfig    `yaml:"redis" json:"redis"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// ReportingConfig controls periodic status collection. Every collection
// resets the governor counters.
type ReportingConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Schedule string `yaml:"schedule" json:"schedule"`
}

// GovernorConfig holds the limiter rules.
type GovernorConfig struct {
	SchemaVersion         string             `yaml:"schema_version" json:"schema_version"`
	Name                  string             `yaml:"name" json:"name"`
	Limiters              []limiter.Rule     `yaml:"limiters" json:"limiters"`
	LimitMetricNameNumber *limiter.NameLimit `yaml:"limit_metric_name_number,omitempty" json:"limit_metric_name_number,omitempty"`
}

// Document returns the limiter section in parser form.
func (gc *GovernorConfig) Document() limiter.Document {
	return limiter.Document{
		Limiters:              gc.Limiters,
		LimitMetricNameNumber: gc.LimitMetricNameNumber,
	}
}

// NewDefaultConfig creates a configuration with working defaults.
//
// Default Values Rationale:
// - Port 8080: Standard non-privileged HTTP port
// - Memory storage: report history without external dependencies
// - One-minute reporting: counters rotate once per minute
// - No limiters: a permissive governor until rules are configured
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			Type:      StorageTypeMemory,
			Path:      "./data/reports.json",
			Retention: 1440,
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
				ConnMaxIdleTime: 5 * time.Minute,
			},
			Redis: RedisConfig{
				PoolSize:  10,
				KeyPrefix: "metricgovernor",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "metricgovernor",
			Tracing: TracingConfig{
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
		Reporting: ReportingConfig{
			Enabled:  true,
			Schedule: "@every 1m",
		},
		Governor: GovernorConfig{
			SchemaVersion: "1.0.0",
			Name:          "default",
			Limiters:      []limiter.Rule{},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	if err := c.Reporting.Validate(); err != nil {
		return fmt.Errorf("invalid reporting config: %w", err)
	}

	if err := c.Governor.Validate(); err != nil {
		return fmt.Errorf("invalid governor config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	validTypes := []string{StorageTypeJSON, StorageTypeMemory, StorageTypePostgres, StorageTypeSQLite, StorageTypeRedis}
	if !slices.Contains(validTypes, stc.Type) {
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}

	if stc.Retention < 0 {
		return errors.New("retention cannot be negative")
	}

	switch stc.Type {
	case StorageTypeJSON:
		if stc.Path == "" {
			return errors.New("path is required for JSON storage")
		}
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
	case StorageTypeRedis:
		if stc.Redis.Addr == "" {
			return errors.New("Redis address is required when storage type is redis")
		}
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !slices.Contains([]string{"json", "text"}, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !slices.Contains([]string{"stdout", "stderr", "file"}, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}

	if !oc.Tracing.Enabled {
		return nil
	}

	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}

	return nil
}

func (rc *ReportingConfig) Validate() error {
	if !rc.Enabled {
		return nil
	}

	if _, err := cron.ParseStandard(rc.Schedule); err != nil {
		return fmt.Errorf("invalid reporting schedule %q: %w", rc.Schedule, err)
	}

	return nil
}

// Validate checks the schema version and parses every limiter rule, so an
// invalid rule fails the whole configuration load.
func (gc *GovernorConfig) Validate() error {
	if gc.Name == "" {
		return errors.New("governor name cannot be empty")
	}

	if err := CheckSchemaVersion(gc.SchemaVersion); err != nil {
		return err
	}

	if _, err := limiter.NewParser().Parse(gc.Document().Rules()); err != nil {
		return err
	}

	return nil
}

// CheckSchemaVersion verifies that version satisfies SupportedSchemaVersions.
func CheckSchemaVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("invalid schema version %q: %w", version, err)
	}

	constraint, err := semver.NewConstraint(SupportedSchemaVersions)
	if err != nil {
		return fmt.Errorf("invalid schema constraint: %w", err)
	}

	if !constraint.Check(v) {
		return fmt.Errorf("unsupported schema version %s, expected %s", v, SupportedSchemaVersions)
	}

	return nil
}
