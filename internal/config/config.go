package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"metricgovernor/internal/governor"
	"metricgovernor/internal/limiter"
	"metricgovernor/internal/models"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "METRICGOVERNOR_"

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// RuleSet parses the limiter rules of config into governor templates.
func RuleSet(config *models.Config) (*governor.RuleSet, error) {
	return governor.ParseRuleSet(limiter.NewParser(), config.Governor.Document().Rules())
}

// legacyLayout mirrors a bare limiter document, where the limiter keys sit at
// the top level instead of under governor.
type legacyLayout struct {
	Limiters              []limiter.Rule     `yaml:"limiters"`
	LimitMetricNameNumber *limiter.NameLimit `yaml:"limit_metric_name_number"`
}

// applyLegacyLayout moves top-level limiter keys under governor when the
// governor section does not define them, and warns either way.
func applyLegacyLayout(config *models.Config, data []byte) error {
	var legacy legacyLayout
	if err := yaml.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("failed to parse limiter keys: %w", err)
	}

	if legacy.Limiters != nil {
		if len(config.Governor.Limiters) == 0 {
			config.Governor.Limiters = legacy.Limiters
			slog.Warn("Top-level limiters key is deprecated; move it under governor.", "config_key", "limiters")
		} else {
			slog.Warn("Top-level limiters key is ignored because governor.limiters is set.", "config_key", "limiters")
		}
	}

	if legacy.LimitMetricNameNumber != nil {
		if config.Governor.LimitMetricNameNumber == nil {
			config.Governor.LimitMetricNameNumber = legacy.LimitMetricNameNumber
			slog.Warn("Top-level limit_metric_name_number key is deprecated; move it under governor.", "config_key", "limit_metric_name_number")
		} else {
			slog.Warn("Top-level limit_metric_name_number key is ignored because the governor section sets it.", "config_key", "limit_metric_name_number")
		}
	}
	return nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return applyLegacyLayout(config, data)
}

func getEnv(name string) string {
	return os.Getenv(EnvPrefix + name)
}

func envInt(name string, target *int) {
	if v := getEnv(name); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		} else {
			slog.Warn("Ignoring invalid integer environment override", "variable", EnvPrefix+name, "value", v)
		}
	}
}

func envDuration(name string, target *time.Duration) {
	if v := getEnv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		} else {
			slog.Warn("Ignoring invalid duration environment override", "variable", EnvPrefix+name, "value", v)
		}
	}
}

func envBool(name string, target *bool) {
	if v := getEnv(name); v != "" {
		*target = strings.ToLower(v) == "true"
	}
}

func envString(name string, target *string) {
	if v := getEnv(name); v != "" {
		*target = v
	}
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	envInt("PORT", &config.Server.Port)
	envString("HOST", &config.Server.Host)
	envDuration("READ_TIMEOUT", &config.Server.ReadTimeout)
	envDuration("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	envDuration("IDLE_TIMEOUT", &config.Server.IdleTimeout)
	envBool("TLS_ENABLED", &config.Server.TLSEnabled)
	envString("TLS_CERT_FILE", &config.Server.TLSCertFile)
	envString("TLS_KEY_FILE", &config.Server.TLSKeyFile)

	// Storage configuration
	envString("STORAGE_TYPE", &config.Storage.Type)
	envString("STORAGE_PATH", &config.Storage.Path)
	envInt("STORAGE_RETENTION", &config.Storage.Retention)
	envString("DATABASE_DSN", &config.Storage.Database.DSN)
	envInt("DATABASE_MAX_OPEN_CONNS", &config.Storage.Database.MaxOpenConns)
	envInt("DATABASE_MAX_IDLE_CONNS", &config.Storage.Database.MaxIdleConns)
	envString("REDIS_ADDR", &config.Storage.Redis.Addr)
	envString("REDIS_PASSWORD", &config.Storage.Redis.Password)
	envInt("REDIS_DB", &config.Storage.Redis.DB)
	envInt("REDIS_POOL_SIZE", &config.Storage.Redis.PoolSize)
	envString("REDIS_KEY_PREFIX", &config.Storage.Redis.KeyPrefix)

	// Logging configuration
	envString("LOG_LEVEL", &config.Logging.Level)
	envString("LOG_FORMAT", &config.Logging.Format)
	envString("LOG_OUTPUT", &config.Logging.Output)
	envString("LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics and tracing configuration
	envBool("METRICS_ENABLED", &config.Metrics.Enabled)
	envString("METRICS_PATH", &config.Metrics.Path)
	envInt("METRICS_PORT", &config.Metrics.Port)
	envString("SERVICE_NAME", &config.Observability.ServiceName)
	envBool("TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	envString("TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	envString("OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	if rate := getEnv("TRACING_SAMPLE_RATE"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			config.Observability.Tracing.SampleRate = r
		}
	}

	// Reporting and governor configuration
	envBool("REPORTING_ENABLED", &config.Reporting.Enabled)
	envString("REPORTING_SCHEDULE", &config.Reporting.Schedule)
	envString("GOVERNOR_NAME", &config.Governor.Name)
}

// ExampleConfig returns the configuration written by SaveExample.
func ExampleConfig() *models.Config {
	config := models.NewDefaultConfig()

	config.Storage.Type = models.StorageTypeSQLite
	config.Storage.Database.DSN = "./data/reports.db"

	instances := 100
	names := 500
	config.Governor.Limiters = []limiter.Rule{
		{
			Scope:     limiter.AtomList{limiter.AtomCheck},
			Selection: limiter.AtomList{limiter.AtomInstance},
			Limit:     &instances,
		},
		{
			Scope:     limiter.AtomList{limiter.AtomInstance},
			Selection: limiter.AtomList{limiter.AtomName, limiter.AtomTags},
			Limit:     &names,
		},
	}

	// Example TLS configuration
	config.Server.TLSEnabled = false
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	return config
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := yaml.Marshal(ExampleConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
