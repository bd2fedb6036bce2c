package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"metricgovernor/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS status_reports (
	seq          BIGSERIAL PRIMARY KEY,
	id           TEXT NOT NULL UNIQUE,
	source       TEXT NOT NULL,
	instance_id  TEXT NOT NULL,
	collected_at TIMESTAMPTZ NOT NULL,
	limiters     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_status_reports_source ON status_reports (source, seq DESC);
`

// PostgresStorage stores report history in PostgreSQL.
type PostgresStorage struct {
	pool      *pgxpool.Pool
	retention int
}

// NewPostgresStorage creates a new PostgreSQL storage instance.
func NewPostgresStorage(config Config) (*PostgresStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.Database.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(config.Database.MaxOpenConns)
	}
	if config.Database.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(min(config.Database.MaxIdleConns, int(poolConfig.MaxConns)))
	}
	if config.Database.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = config.Database.ConnMaxLifetime
	}
	if config.Database.ConnMaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.Database.ConnMaxIdleTime
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStorage{pool: pool, retention: config.Retention}, nil
}

// SaveReport inserts report and applies retention for its source.
func (ps *PostgresStorage) SaveReport(ctx context.Context, report *models.StatusReport) error {
	limiters, err := marshalLimiters(report.Limiters)
	if err != nil {
		return fmt.Errorf("failed to marshal limiters for report %s: %w", report.ID, err)
	}

	tx, err := ps.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO status_reports (id, source, instance_id, collected_at, limiters) VALUES ($1, $2, $3, $4, $5)`,
		report.ID, report.Source, report.InstanceID, report.CollectedAt.UTC(), limiters)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	if ps.retention > 0 {
		_, err = tx.Exec(ctx,
			`DELETE FROM status_reports WHERE source = $1 AND seq NOT IN (
				SELECT seq FROM status_reports WHERE source = $1 ORDER BY seq DESC LIMIT $2)`,
			report.Source, ps.retention)
		if err != nil {
			return fmt.Errorf("failed to apply retention: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}
	return nil
}

// Reports returns reports newest first.
func (ps *PostgresStorage) Reports(ctx context.Context, source string, limit int) ([]*models.StatusReport, error) {
	// A NULL limit means no limit.
	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}

	rows, err := ps.pool.Query(ctx,
		`SELECT id, source, instance_id, collected_at, limiters FROM status_reports
		 WHERE ($1 = '' OR source = $1) ORDER BY seq DESC LIMIT $2`,
		source, limitArg)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := []*models.StatusReport{}
	for rows.Next() {
		report, err := scanPostgresReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return reports, nil
}

// LatestReport returns the newest report for source.
func (ps *PostgresStorage) LatestReport(ctx context.Context, source string) (*models.StatusReport, error) {
	row := ps.pool.QueryRow(ctx,
		`SELECT id, source, instance_id, collected_at, limiters FROM status_reports
		 WHERE ($1 = '' OR source = $1) ORDER BY seq DESC LIMIT 1`,
		source)

	report, err := scanPostgresReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return report, err
}

// Ping checks the pool can reach the database.
func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}

func scanPostgresReport(row pgx.Row) (*models.StatusReport, error) {
	var (
		report   models.StatusReport
		limiters []byte
	)
	if err := row.Scan(&report.ID, &report.Source, &report.InstanceID, &report.CollectedAt, &limiters); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan report: %w", err)
	}
	report.CollectedAt = report.CollectedAt.UTC()

	var err error
	report.Limiters, err = unmarshalLimiters(limiters)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", report.ID, err)
	}
	return &report, nil
}
