package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"metricgovernor/internal/limiter"
	"metricgovernor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8181
  host: "localhost"
  read_timeout: 30s
  write_timeout: 30s
  idle_timeout: 60s

storage:
  type: "json"
  path: "./data/test.json"
  retention: 10

logging:
  level: "debug"
  format: "text"
  output: "stdout"

metrics:
  enabled: true
  path: "/metrics"
  port: 9191

reporting:
  enabled: true
  schedule: "*/5 * * * *"

governor:
  schema_version: "1.2.0"
  name: "edge-agent"
  limiters:
    - scope: check
      selection: [name, tags]
      limit: 50
    - scope: [check, instance]
      selection: name
      limit: 10
  limit_metric_name_number:
    scope: instance
    limit: 200
`)

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 30*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, config.Server.IdleTimeout)

	assert.Equal(t, models.StorageTypeJSON, config.Storage.Type)
	assert.Equal(t, 10, config.Storage.Retention)

	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.Equal(t, 9191, config.Metrics.Port)
	assert.Equal(t, "*/5 * * * *", config.Reporting.Schedule)

	assert.Equal(t, "edge-agent", config.Governor.Name)
	require.Len(t, config.Governor.Limiters, 2)
	assert.Equal(t, limiter.AtomList{"check"}, config.Governor.Limiters[0].Scope)
	assert.Equal(t, limiter.AtomList{"name", "tags"}, config.Governor.Limiters[0].Selection)
	require.NotNil(t, config.Governor.LimitMetricNameNumber)

	rules, err := RuleSet(config)
	require.NoError(t, err)
	defs := rules.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, []string{"instance"}, defs[2].Scope)
	assert.Equal(t, []string{"name"}, defs[2].Selection)
	assert.Equal(t, 200, *defs[2].Limit)
}

func TestLoad_Defaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, models.NewDefaultConfig(), config)
}

func TestLoad_FileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "malformed yaml",
			content: "server: [unclosed",
			errMsg:  "failed to parse YAML config",
		},
		{
			name: "unknown atom",
			content: `
governor:
  limiters:
    - scope: check
      selection: colour
      limit: 5
`,
			errMsg: `limiters[0].selection: unknown atom "colour"`,
		},
		{
			name: "zero limit",
			content: `
governor:
  limiters:
    - scope: check
      selection: name
      limit: 0
`,
			errMsg: "limiters[0].limit",
		},
		{
			name: "unsupported schema version",
			content: `
governor:
  schema_version: "2.0.0"
`,
			errMsg: "unsupported schema version",
		},
		{
			name: "invalid schedule",
			content: `
reporting:
  enabled: true
  schedule: "whenever"
`,
			errMsg: "invalid reporting schedule",
		},
		{
			name: "mapping atom list",
			content: `
governor:
  limiters:
    - scope: {check: true}
      selection: name
`,
			errMsg: "failed to parse YAML config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoad_InvalidRuleIsConfigError(t *testing.T) {
	_, err := Load(writeConfig(t, `
governor:
  limiters:
    - scope: name
      selection: instance
      limit: 3
    - scope: nope
      selection: name
      limit: 3
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, limiter.ErrInvalidConfig)

	var cfgErr *limiter.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, 1, cfgErr.Index)
	assert.Equal(t, limiter.FieldScope, cfgErr.Field)
	assert.Equal(t, "nope", cfgErr.Atom)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_LegacyTopLevelLimiters(t *testing.T) {
	config, err := Load(writeConfig(t, `
limiters:
  - scope: check
    selection: instance
    limit: 4
limit_metric_name_number:
  scope: [check, instance]
  limit: 20
`))
	require.NoError(t, err)
	require.Len(t, config.Governor.Limiters, 1)
	assert.Equal(t, 4, *config.Governor.Limiters[0].Limit)
	require.NotNil(t, config.Governor.LimitMetricNameNumber)
	assert.Equal(t, limiter.AtomList{"check", "instance"}, config.Governor.LimitMetricNameNumber.Scope)
}

func TestLoad_GovernorSectionWinsOverLegacy(t *testing.T) {
	config, err := Load(writeConfig(t, `
limiters:
  - scope: check
    selection: instance
    limit: 4
governor:
  limiters:
    - scope: name
      selection: tags
      limit: 9
`))
	require.NoError(t, err)
	require.Len(t, config.Governor.Limiters, 1)
	assert.Equal(t, 9, *config.Governor.Limiters[0].Limit)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("METRICGOVERNOR_PORT", "9000")
	t.Setenv("METRICGOVERNOR_HOST", "127.0.0.1")
	t.Setenv("METRICGOVERNOR_READ_TIMEOUT", "5s")
	t.Setenv("METRICGOVERNOR_STORAGE_TYPE", "redis")
	t.Setenv("METRICGOVERNOR_REDIS_ADDR", "redis:6379")
	t.Setenv("METRICGOVERNOR_REDIS_DB", "2")
	t.Setenv("METRICGOVERNOR_STORAGE_RETENTION", "30")
	t.Setenv("METRICGOVERNOR_LOG_LEVEL", "warn")
	t.Setenv("METRICGOVERNOR_METRICS_ENABLED", "false")
	t.Setenv("METRICGOVERNOR_TRACING_SAMPLE_RATE", "0.25")
	t.Setenv("METRICGOVERNOR_REPORTING_SCHEDULE", "@every 30s")
	t.Setenv("METRICGOVERNOR_GOVERNOR_NAME", "from-env")

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, 5*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, models.StorageTypeRedis, config.Storage.Type)
	assert.Equal(t, "redis:6379", config.Storage.Redis.Addr)
	assert.Equal(t, 2, config.Storage.Redis.DB)
	assert.Equal(t, 30, config.Storage.Retention)
	assert.Equal(t, "warn", config.Logging.Level)
	assert.False(t, config.Metrics.Enabled)
	assert.Equal(t, 0.25, config.Observability.Tracing.SampleRate)
	assert.Equal(t, "@every 30s", config.Reporting.Schedule)
	assert.Equal(t, "from-env", config.Governor.Name)
}

func TestLoadFromEnvironment_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("METRICGOVERNOR_PORT", "not-a-number")
	t.Setenv("METRICGOVERNOR_IDLE_TIMEOUT", "forever")

	config, err := Load("")
	require.NoError(t, err)

	defaults := models.NewDefaultConfig()
	assert.Equal(t, defaults.Server.Port, config.Server.Port)
	assert.Equal(t, defaults.Server.IdleTimeout, config.Server.IdleTimeout)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8181
`)
	t.Setenv("METRICGOVERNOR_PORT", "8282")

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8282, config.Server.Port)
}

func TestSaveExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "example.yaml")
	require.NoError(t, SaveExample(path))

	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, models.StorageTypeSQLite, config.Storage.Type)
	require.Len(t, config.Governor.Limiters, 2)

	rules, err := RuleSet(config)
	require.NoError(t, err)
	assert.Equal(t, 2, rules.Len())
	assert.Equal(t, ExampleConfig().Governor.Limiters, config.Governor.Limiters)
}
