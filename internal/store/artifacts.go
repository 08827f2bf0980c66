// Package store keeps the most recent artifact of each kind in SQLite so the
// status command can report the last run. Every save replaces the previous row;
// no history is retained.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"pwsvc/internal/logging"
)

// ErrNotFound is returned when no artifact of the requested kind exists yet.
var ErrNotFound = errors.New("no artifact stored")

// SummaryRecord is the latest weekly digest.
type SummaryRecord struct {
	Summary          string
	DatetimeSummary  string
	Cutoff           string
	SectionsIncluded int
	Fallback         bool
	Provider         string
	Model            string
	RunID            string
	CreatedAt        time.Time
}

// ProjectTotal is one row of the latest Toggl export.
type ProjectTotal struct {
	ProjectName string
	Hours       float64
}

// ProjectTotalsRecord is the latest Toggl export.
type ProjectTotalsRecord struct {
	Totals            []ProjectTotal
	DatetimeCollected string
	RunID             string
}

// RunRecord is the latest run of one service.
type RunRecord struct {
	Service    string
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Err        string
}

// ArtifactStore is the SQLite-backed latest-artifact store.
type ArtifactStore struct {
	db     *sql.DB
	path   string
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path. ":memory:" is accepted.
func Open(path string, logger *zap.Logger) (*ArtifactStore, error) {
	logger = logging.For(logger, logging.CategoryStore)
	timer := logging.StartTimer(logger, "store.Open")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("failed to set busy_timeout", zap.Error(err))
	}
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
			logger.Debug("failed to set journal_mode=WAL", zap.Error(err))
		}
	}

	s := &ArtifactStore{db: db, path: path, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("artifact store ready", zap.String("path", path))
	return s, nil
}

func (s *ArtifactStore) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS summary (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			summary TEXT NOT NULL,
			datetime_summary TEXT NOT NULL,
			cutoff TEXT NOT NULL,
			sections_included INTEGER NOT NULL,
			fallback INTEGER NOT NULL,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			run_id TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS project_export (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			datetime_collected TEXT NOT NULL,
			run_id TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS project_totals (
			position INTEGER PRIMARY KEY,
			project_name TEXT NOT NULL,
			hours_worked REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS latest_run (
			service TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *ArtifactStore) Close() error {
	return s.db.Close()
}

// SaveSummary replaces the stored digest.
func (s *ArtifactStore) SaveSummary(ctx context.Context, r SummaryRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO summary
		(id, summary, datetime_summary, cutoff, sections_included, fallback, provider, model, run_id, created_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Summary, r.DatetimeSummary, r.Cutoff, r.SectionsIncluded, r.Fallback,
		r.Provider, r.Model, r.RunID, r.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	s.logger.Debug("summary saved", zap.String("run_id", r.RunID))
	return nil
}

// LatestSummary returns the stored digest or ErrNotFound.
func (s *ArtifactStore) LatestSummary(ctx context.Context) (SummaryRecord, error) {
	var r SummaryRecord
	var created int64
	err := s.db.QueryRowContext(ctx, `SELECT summary, datetime_summary, cutoff, sections_included,
		fallback, provider, model, run_id, created_at FROM summary WHERE id = 1`).
		Scan(&r.Summary, &r.DatetimeSummary, &r.Cutoff, &r.SectionsIncluded,
			&r.Fallback, &r.Provider, &r.Model, &r.RunID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return SummaryRecord{}, ErrNotFound
	}
	if err != nil {
		return SummaryRecord{}, fmt.Errorf("failed to load summary: %w", err)
	}
	r.CreatedAt = time.Unix(created, 0)
	return r, nil
}

// SaveProjectTotals replaces the stored Toggl export in one transaction.
func (s *ArtifactStore) SaveProjectTotals(ctx context.Context, r ProjectTotalsRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The header row exists even when the export found no time.
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO project_export
		(id, datetime_collected, run_id) VALUES (1, ?, ?)`, r.DatetimeCollected, r.RunID); err != nil {
		return fmt.Errorf("failed to save project export: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_totals`); err != nil {
		return fmt.Errorf("failed to clear project totals: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO project_totals
		(position, project_name, hours_worked) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range r.Totals {
		if _, err := stmt.ExecContext(ctx, i, t.ProjectName, t.Hours); err != nil {
			return fmt.Errorf("failed to insert project total: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit project totals: %w", err)
	}
	s.logger.Debug("project totals saved", zap.Int("rows", len(r.Totals)), zap.String("run_id", r.RunID))
	return nil
}

// LatestProjectTotals returns the stored Toggl export or ErrNotFound.
// An export that found no time returns a record with no totals.
func (s *ArtifactStore) LatestProjectTotals(ctx context.Context) (ProjectTotalsRecord, error) {
	var r ProjectTotalsRecord
	err := s.db.QueryRowContext(ctx, `SELECT datetime_collected, run_id FROM project_export WHERE id = 1`).
		Scan(&r.DatetimeCollected, &r.RunID)
	if errors.Is(err, sql.ErrNoRows) {
		return ProjectTotalsRecord{}, ErrNotFound
	}
	if err != nil {
		return ProjectTotalsRecord{}, fmt.Errorf("failed to load project export: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT project_name, hours_worked
		FROM project_totals ORDER BY position`)
	if err != nil {
		return ProjectTotalsRecord{}, fmt.Errorf("failed to load project totals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t ProjectTotal
		if err := rows.Scan(&t.ProjectName, &t.Hours); err != nil {
			return ProjectTotalsRecord{}, fmt.Errorf("failed to scan project total: %w", err)
		}
		r.Totals = append(r.Totals, t)
	}
	return r, rows.Err()
}

// RecordRun replaces the latest run entry of r.Service.
func (s *ArtifactStore) RecordRun(ctx context.Context, r RunRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO latest_run
		(service, run_id, started_at, finished_at, error) VALUES (?, ?, ?, ?, ?)`,
		r.Service, r.RunID, r.StartedAt.Unix(), r.FinishedAt.Unix(), r.Err)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// LatestRuns returns the latest run of every service, ordered by service name.
func (s *ArtifactStore) LatestRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT service, run_id, started_at, finished_at, error
		FROM latest_run ORDER BY service`)
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished int64
		if err := rows.Scan(&r.Service, &r.RunID, &started, &finished, &r.Err); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt, r.FinishedAt = time.Unix(started, 0), time.Unix(finished, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}
