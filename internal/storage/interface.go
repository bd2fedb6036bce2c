package storage

import (
	"context"

	"metricgovernor/internal/models"
)

// Storage persists the history of collected governor status reports. Reports
// are history only and are never loaded back into limiter state.
type Storage interface {
	// SaveReport appends a report, dropping the oldest reports of the same
	// source beyond the configured retention.
	SaveReport(ctx context.Context, report *models.StatusReport) error

	// Reports returns reports newest first. An empty source matches every
	// source; a limit <= 0 returns everything retained.
	Reports(ctx context.Context, source string, limit int) ([]*models.StatusReport, error)

	// LatestReport returns the newest report for source, or ErrNotFound.
	LatestReport(ctx context.Context, source string) (*models.StatusReport, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Config holds configuration for storage backends
type Config struct {
	// Type specifies the storage backend type
	Type string `json:"type" yaml:"type"`

	// Path is used for file-based storage backends
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// ConnectionString is used for database backends
	ConnectionString string `json:"connection_string,omitempty" yaml:"connection_string,omitempty"`

	// Retention caps the reports kept per source; 0 keeps everything
	Retention int `json:"retention,omitempty" yaml:"retention,omitempty"`

	// CacheTTL specifies how long file contents are cached in memory
	CacheTTL string `json:"cache_ttl,omitempty" yaml:"cache_ttl,omitempty"`

	Database models.DatabaseConfig `json:"database,omitempty" yaml:"database,omitempty"`
	Redis    models.RedisConfig    `json:"redis,omitempty" yaml:"redis,omitempty"`
}
