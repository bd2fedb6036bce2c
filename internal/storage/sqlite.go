package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"metricgovernor/internal/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS status_reports (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	source       TEXT NOT NULL,
	instance_id  TEXT NOT NULL,
	collected_at TEXT NOT NULL,
	limiters     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_status_reports_source ON status_reports (source, seq);
`

// SQLiteStorage stores report history in a SQLite database
type SQLiteStorage struct {
	db        *sql.DB
	retention int
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config Config) (*SQLiteStorage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if config.Database.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.Database.ConnMaxLifetime)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{db: db, retention: config.Retention}, nil
}

// SaveReport inserts report and applies retention for its source
func (ss *SQLiteStorage) SaveReport(ctx context.Context, report *models.StatusReport) error {
	limiters, err := marshalLimiters(report.Limiters)
	if err != nil {
		return fmt.Errorf("failed to marshal limiters for report %s: %w", report.ID, err)
	}

	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO status_reports (id, source, instance_id, collected_at, limiters) VALUES (?, ?, ?, ?, ?)`,
		report.ID, report.Source, report.InstanceID, report.CollectedAt.UTC().Format(time.RFC3339Nano), string(limiters))
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	if ss.retention > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM status_reports WHERE source = ? AND seq NOT IN (
				SELECT seq FROM status_reports WHERE source = ? ORDER BY seq DESC LIMIT ?)`,
			report.Source, report.Source, ss.retention)
		if err != nil {
			return fmt.Errorf("failed to apply retention: %w", err)
		}
	}

	return tx.Commit()
}

// Reports returns reports newest first
func (ss *SQLiteStorage) Reports(ctx context.Context, source string, limit int) ([]*models.StatusReport, error) {
	// LIMIT -1 means no limit in SQLite.
	if limit <= 0 {
		limit = -1
	}

	var (
		rows *sql.Rows
		err  error
	)
	if source == "" {
		rows, err = ss.db.QueryContext(ctx,
			`SELECT id, source, instance_id, collected_at, limiters FROM status_reports ORDER BY seq DESC LIMIT ?`, limit)
	} else {
		rows, err = ss.db.QueryContext(ctx,
			`SELECT id, source, instance_id, collected_at, limiters FROM status_reports WHERE source = ? ORDER BY seq DESC LIMIT ?`,
			source, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := []*models.StatusReport{}
	for rows.Next() {
		report, err := scanSQLiteReport(rows)
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

// LatestReport returns the newest report for source
func (ss *SQLiteStorage) LatestReport(ctx context.Context, source string) (*models.StatusReport, error) {
	query := `SELECT id, source, instance_id, collected_at, limiters FROM status_reports ORDER BY seq DESC LIMIT 1`
	args := []any{}
	if source != "" {
		query = `SELECT id, source, instance_id, collected_at, limiters FROM status_reports WHERE source = ? ORDER BY seq DESC LIMIT 1`
		args = append(args, source)
	}

	report, err := scanSQLiteReport(ss.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return report, err
}

// Ping checks the database connection
func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the database connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteReport(row rowScanner) (*models.StatusReport, error) {
	var (
		report      models.StatusReport
		collectedAt string
		limiters    string
	)
	if err := row.Scan(&report.ID, &report.Source, &report.InstanceID, &collectedAt, &limiters); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan report: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, collectedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse collected_at for report %s: %w", report.ID, err)
	}
	report.CollectedAt = t

	report.Limiters, err = unmarshalLimiters([]byte(limiters))
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", report.ID, err)
	}
	return &report, nil
}
