package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/herd/internal/config"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// Init initializes the SQLite database at baseDir/herd.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.herd.
func Init(baseDir string) (*sql.DB, error) {
	// Create base directory with restricted permissions; it holds access tokens
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, "herd.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: tokens and their per-token records
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS tokens (
		  id             TEXT PRIMARY KEY,
		  owner          TEXT NOT NULL,
		  value          TEXT NOT NULL,
		  name           TEXT,
		  remote_user_id TEXT,
		  active         INTEGER NOT NULL DEFAULT 1,
		  created_at     INTEGER NOT NULL,
		  updated_at     INTEGER NOT NULL
		);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_tokens_owner_value
		ON tokens(owner, value);

		CREATE INDEX IF NOT EXISTS idx_tokens_owner_active
		ON tokens(owner, active, created_at);

		CREATE TABLE IF NOT EXISTS token_filters (
		  token_id    TEXT PRIMARY KEY REFERENCES tokens(id) ON DELETE CASCADE,
		  filter_json TEXT NOT NULL,
		  updated_at  INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS device_identities (
		  token_id      TEXT PRIMARY KEY REFERENCES tokens(id) ON DELETE CASCADE,
		  identity_json TEXT NOT NULL,
		  created_at    INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS info_cards (
		  token_id   TEXT PRIMARY KEY REFERENCES tokens(id) ON DELETE CASCADE,
		  card_json  TEXT NOT NULL,
		  updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS current_accounts (
		  owner    TEXT PRIMARY KEY,
		  token_id TEXT NOT NULL REFERENCES tokens(id) ON DELETE CASCADE
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Migration 1 -> 2: deduplication ledger
	if version < 2 {
		schema := `
		CREATE TABLE IF NOT EXISTS sent_ids (
		  owner      TEXT NOT NULL,
		  category   TEXT NOT NULL,
		  target_id  TEXT NOT NULL,
		  created_at INTEGER NOT NULL,
		  PRIMARY KEY (owner, category, target_id)
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
		if err := SetUserVersion(db, 2); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
