package storage

import (
	"context"
	"path/filepath"
	"testing"

	"metricgovernor/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_GetSupportedProviders(t *testing.T) {
	providers := NewFactory().GetSupportedProviders()
	assert.Equal(t, []string{"json", "memory", "postgres", "sqlite", "redis"}, providers)
}

func TestFactory_ValidateConfig(t *testing.T) {
	tests := []struct {
		name      string
		config    models.StorageConfig
		expectErr bool
	}{
		{name: "valid json config", config: models.StorageConfig{Type: "json", Path: "/tmp/reports.json"}},
		{name: "valid memory config", config: models.StorageConfig{Type: "memory"}},
		{name: "valid sqlite config", config: models.StorageConfig{Type: "sqlite", Database: models.DatabaseConfig{DSN: "reports.db"}}},
		{name: "valid redis config", config: models.StorageConfig{Type: "redis", Redis: models.RedisConfig{Addr: "localhost:6379"}}},
		{name: "invalid storage type", config: models.StorageConfig{Type: "invalid"}, expectErr: true},
		{name: "json without path", config: models.StorageConfig{Type: "json"}, expectErr: true},
		{name: "postgres without dsn", config: models.StorageConfig{Type: "postgres"}, expectErr: true},
		{name: "redis without address", config: models.StorageConfig{Type: "redis"}, expectErr: true},
		{name: "negative retention", config: models.StorageConfig{Type: "memory", Retention: -1}, expectErr: true},
	}

	factory := NewFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := factory.ValidateConfig(tt.config)
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFactory_Create(t *testing.T) {
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	tests := []struct {
		name     string
		config   models.StorageConfig
		expected any
	}{
		{name: "memory", config: models.StorageConfig{Type: "memory"}, expected: &MemoryStorage{}},
		{name: "json", config: models.StorageConfig{Type: "json", Path: filepath.Join(dir, "reports.json")}, expected: &JSONStorage{}},
		{name: "sqlite", config: models.StorageConfig{Type: "sqlite", Database: models.DatabaseConfig{DSN: filepath.Join(dir, "reports.db")}}, expected: &SQLiteStorage{}},
		{name: "redis", config: models.StorageConfig{Type: "redis", Redis: models.RedisConfig{Addr: mr.Addr()}}, expected: &RedisStorage{}},
	}

	factory := NewFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := factory.Create(tt.config)
			require.NoError(t, err)
			defer s.Close()

			assert.IsType(t, tt.expected, s)
			assert.NoError(t, s.Ping(context.Background()))
		})
	}

	t.Run("unsupported", func(t *testing.T) {
		_, err := factory.Create(models.StorageConfig{Type: "ftp"})
		assert.Error(t, err)
	})
}
