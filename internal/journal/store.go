// Package journal keeps a local SQLite record of reconciliation runs.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"autoshard/internal/models"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the journal at path and applies pending
// migrations. Use ":memory:" for a throwaway journal.
func Open(path string) (*Store, error) {
	dsn := ":memory:?_pragma=foreign_keys(1)"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create journal directory: %w", err)
			}
		}
		dsn = "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// one connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs all pending journal migrations.
func (s *Store) Migrate() error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.Up(s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RecordRun stores report and returns the new run ID.
func (s *Store) RecordRun(ctx context.Context, report models.ExecutionReport) (string, error) {
	id := uuid.New().String()
	summary := report.Summary()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, database_name, dry_run, started_at, finished_at,
			planned, dropped, failed, empty_tables, introspection_failures)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, report.Database, report.DryRun, report.StartedAt.UTC(), report.FinishedAt.UTC(),
		summary.Planned, summary.Succeeded, summary.Failed, summary.EmptyTables, summary.IntrospectionFailures)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	for i, e := range report.Entries {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_entries (run_id, position, table_name, constraint_name, drop_statement, status, error)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i, e.Table, e.ConstraintName, e.DropStatement, string(e.Status), e.Error)
		if err != nil {
			return "", fmt.Errorf("failed to insert run entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return id, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, database_name, dry_run, started_at, finished_at,
			planned, dropped, failed, empty_tables, introspection_failures
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []models.RunRecord
	for rows.Next() {
		var r models.RunRecord
		if err := rows.Scan(&r.ID, &r.Database, &r.DryRun, &r.StartedAt, &r.FinishedAt,
			&r.Planned, &r.Dropped, &r.Failed, &r.EmptyTables, &r.IntrospectionFailures); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns a run with its entries.
func (s *Store) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	var r models.RunRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, database_name, dry_run, started_at, finished_at,
			planned, dropped, failed, empty_tables, introspection_failures
		FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &r.Database, &r.DryRun, &r.StartedAt, &r.FinishedAt,
			&r.Planned, &r.Dropped, &r.Failed, &r.EmptyTables, &r.IntrospectionFailures)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, constraint_name, drop_statement, status, error
		FROM run_entries WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var e models.ReportEntry
		var status string
		if err := rows.Scan(&e.Table, &e.ConstraintName, &e.DropStatement, &status, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run entry: %w", err)
		}
		e.Status = models.EntryStatus(status)
		r.Entries = append(r.Entries, e)
	}
	return &r, rows.Err()
}

// Prune deletes runs that started before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}
