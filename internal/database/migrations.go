package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Up      string
	Down    string
}

// Migrations contains all database migrations
var Migrations = []Migration{
	{
		Version: 1,
		Up: `
			CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

			CREATE TABLE IF NOT EXISTS audit_logs (
				id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
				author_id VARCHAR(255) NOT NULL,
				content_type VARCHAR(32) NOT NULL,
				content_hash VARCHAR(32) NOT NULL,
				action VARCHAR(32) NOT NULL,
				risk_score INT NOT NULL DEFAULT 0,
				flags TEXT[] NOT NULL DEFAULT '{}',
				reason TEXT,
				metadata JSONB,
				created_at TIMESTAMP NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_audit_logs_author ON audit_logs(author_id, created_at DESC);
		`,
		Down: `
			DROP TABLE IF EXISTS audit_logs;
		`,
	},
	{
		Version: 2,
		Up: `
			CREATE TABLE IF NOT EXISTS review_queue (
				id UUID PRIMARY KEY,
				author_id VARCHAR(255) NOT NULL,
				content_type VARCHAR(32) NOT NULL,
				content TEXT NOT NULL,
				result JSONB NOT NULL,
				priority VARCHAR(16) NOT NULL,
				priority_rank SMALLINT NOT NULL DEFAULT 0,
				status VARCHAR(16) NOT NULL DEFAULT 'pending',
				queued_at TIMESTAMP NOT NULL DEFAULT NOW()
			);
		`,
		Down: `
			DROP TABLE IF EXISTS review_queue;
		`,
	},
	{
		Version: 3,
		Up: `
			CREATE INDEX IF NOT EXISTS idx_review_queue_pending
				ON review_queue(status, priority_rank DESC, queued_at);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_review_queue_pending;
		`,
	},
}

// RunMigrations runs all pending migrations
func RunMigrations(db *sql.DB, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	// Ensure migrations table exists
	if err := ensureMigrationsTable(db); err != nil {
		return err
	}

	// Get current version
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return err
	}

	for _, migration := range sortedMigrations() {
		if migration.Version <= currentVersion {
			continue
		}

		log.Info("Running migration", zap.Int("version", migration.Version))

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", migration.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// RollbackLast reverts the most recently applied migration. It returns the
// reverted version, or 0 when nothing is applied.
func RollbackLast(db *sql.DB, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := ensureMigrationsTable(db); err != nil {
		return 0, err
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil || currentVersion == 0 {
		return 0, err
	}

	var migration *Migration
	for i := range Migrations {
		if Migrations[i].Version == currentVersion {
			migration = &Migrations[i]
		}
	}
	if migration == nil {
		return 0, fmt.Errorf("migration %d is applied but unknown", currentVersion)
	}

	log.Info("Rolling back migration", zap.Int("version", currentVersion))

	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.Exec(migration.Down); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to roll back migration %d: %w", currentVersion, err)
	}
	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = $1", currentVersion); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to unrecord migration %d: %w", currentVersion, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rollback %d: %w", currentVersion, err)
	}
	return currentVersion, nil
}

// AppliedMigration is one row of schema_migrations.
type AppliedMigration struct {
	Version   int
	AppliedAt string
}

// Status lists applied migrations in order.
func Status(ctx context.Context, db *sql.DB) ([]AppliedMigration, error) {
	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var m AppliedMigration
		if err := rows.Scan(&m.Version, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		applied = append(applied, m)
	}
	return applied, rows.Err()
}

func sortedMigrations() []Migration {
	sorted := make([]Migration, len(Migrations))
	copy(sorted, Migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return sorted
}

func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}
