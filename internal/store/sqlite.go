// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides connection/broadcast/delivery persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS connections (
			user_id            TEXT PRIMARY KEY,
			channel_id         TEXT NOT NULL,
			channel_token      TEXT NOT NULL,
			status             TEXT NOT NULL,
			plan               TEXT NOT NULL DEFAULT 'sandbox',
			trial_ends_at      TEXT,
			channel_created_at TEXT NOT NULL,
			last_updated       TEXT NOT NULL,
			created_at         TEXT NOT NULL,

			CHECK (status IN ('initializing', 'awaiting_pairing', 'connected', 'disconnected', 'unauthorized', 'absent'))
		);

		CREATE INDEX IF NOT EXISTS idx_connections_channel ON connections(channel_id);
		CREATE INDEX IF NOT EXISTS idx_connections_status ON connections(status);

		CREATE TABLE IF NOT EXISTS broadcasts (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			message    TEXT NOT NULL,
			media_url  TEXT,
			group_ids  TEXT NOT NULL,
			send_at    TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,

			CHECK (status IN ('pending', 'sending', 'sent', 'partial', 'failed', 'cancelled'))
		);

		CREATE INDEX IF NOT EXISTS idx_broadcasts_user ON broadcasts(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_broadcasts_due ON broadcasts(status, send_at);

		CREATE TABLE IF NOT EXISTS deliveries (
			id           TEXT PRIMARY KEY,
			broadcast_id TEXT NOT NULL REFERENCES broadcasts(id),
			group_id     TEXT NOT NULL,
			status       TEXT NOT NULL,
			error        TEXT,
			remote_id    TEXT,
			sent_at      TEXT NOT NULL,

			CHECK (status IN ('sent', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_deliveries_broadcast ON deliveries(broadcast_id);

		CREATE TABLE IF NOT EXISTS contact_groups (
			user_id   TEXT NOT NULL,
			group_id  TEXT NOT NULL,
			name      TEXT NOT NULL,
			tags      TEXT NOT NULL DEFAULT '[]',
			synced_at TEXT NOT NULL,

			PRIMARY KEY (user_id, group_id)
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// Migration: Add plan columns to connections table (if they don't exist)
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		check  string // Query to check if migration is needed
		apply  string // Query to apply the migration
		column string // Column name for logging
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('connections') WHERE name = 'plan'`,
			apply:  `ALTER TABLE connections ADD COLUMN plan TEXT NOT NULL DEFAULT 'sandbox'`,
			column: "plan",
		},
		{
			check:  `SELECT 1 FROM pragma_table_info('connections') WHERE name = 'trial_ends_at'`,
			apply:  `ALTER TABLE connections ADD COLUMN trial_ends_at TEXT`,
			column: "trial_ends_at",
		},
		{
			check:  `SELECT 1 FROM pragma_table_info('deliveries') WHERE name = 'remote_id'`,
			apply:  `ALTER TABLE deliveries ADD COLUMN remote_id TEXT`,
			column: "remote_id",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		// Column doesn't exist, apply migration
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column)
	}

	return nil
}

// Ping verifies the database is reachable. Used by the readiness endpoint.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}
