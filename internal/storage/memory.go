package storage

import (
	"context"
	"sync"

	"metricgovernor/internal/models"
)

// MemoryStorage keeps report history in process memory. History is lost on
// restart.
type MemoryStorage struct {
	mu        sync.RWMutex
	retention int
	reports   []*models.StatusReport // oldest first
}

// NewMemoryStorage creates a new memory-based storage instance
func NewMemoryStorage(config Config) (*MemoryStorage, error) {
	return &MemoryStorage{
		retention: config.Retention,
		reports:   []*models.StatusReport{},
	}, nil
}

// SaveReport stores a copy of report
func (m *MemoryStorage) SaveReport(ctx context.Context, report *models.StatusReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reports = append(m.reports, report.Clone())
	m.reports = trimRetention(m.reports, report.Source, m.retention)
	return nil
}

// Reports returns copies of stored reports, newest first
func (m *MemoryStorage) Reports(ctx context.Context, source string, limit int) ([]*models.StatusReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return newestFirst(m.reports, source, limit), nil
}

// LatestReport returns the newest report for source
func (m *MemoryStorage) LatestReport(ctx context.Context, source string) (*models.StatusReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reports := newestFirst(m.reports, source, 1)
	if len(reports) == 0 {
		return nil, ErrNotFound
	}
	return reports[0], nil
}

// Ping always succeeds
func (m *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (m *MemoryStorage) Close() error {
	return nil
}
