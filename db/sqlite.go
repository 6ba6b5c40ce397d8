// Package db stores the application state as key-value records in SQLite.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is recorded in PRAGMA user_version after migrating
const schemaVersion = 1

// schema lists the statements that bring a database to each version
var schema = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_settings_updated_at ON settings(updated_at DESC)`,
	},
}

// DB is the SQLite key-value store
type DB struct {
	conn *sql.DB
	path string
}

// New opens (creating if needed) the database at path and migrates it.
// ":memory:" and "file:" DSNs are used as given.
func New(path string) (*DB, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; a single connection also keeps :memory: databases alive
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn, path: path}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the path the database was opened with
func (db *DB) Path() string {
	return db.path
}

func (db *DB) migrate() error {
	var current int
	if err := db.conn.QueryRow(`PRAGMA user_version`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for v := current + 1; v <= schemaVersion; v++ {
		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", v, err)
		}
		for _, stmt := range schema[v] {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d failed: %w\nSQL: %s", v, err, stmt)
			}
		}
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, v)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record schema version %d: %w", v, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", v, err)
		}
	}
	return nil
}

// GetStats reports how many records are stored and how large the file is
func (db *DB) GetStats() (*DBStats, error) {
	stats := &DBStats{}
	row := db.conn.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM settings),
			(SELECT COALESCE(SUM(LENGTH(value)), 0) FROM settings),
			(SELECT page_count FROM pragma_page_count()) * (SELECT page_size FROM pragma_page_size())
	`)
	if err := row.Scan(&stats.KeyCount, &stats.ValueBytes, &stats.DBSizeBytes); err != nil {
		return nil, fmt.Errorf("failed to read database stats: %w", err)
	}
	return stats, nil
}

// Vacuum compacts the database file
func (db *DB) Vacuum() error {
	if _, err := db.conn.Exec(`VACUUM`); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}
