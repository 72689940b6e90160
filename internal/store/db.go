// Package store persists collections, their items and the change log in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"gallery-sync/pkg/logger"
)

const schemaVersion = 2

const schema = `
CREATE TABLE IF NOT EXISTS collections (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS collection_items (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    collection_id INTEGER NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
    media_path    TEXT NOT NULL,
    UNIQUE(collection_id, media_path)
);

CREATE INDEX IF NOT EXISTS idx_collection_items_collection ON collection_items(collection_id);

CREATE TABLE IF NOT EXISTS change_logs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp       INTEGER NOT NULL,
    action          TEXT NOT NULL,
    description     TEXT NOT NULL,
    collection_name TEXT,
    item_path       TEXT
);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Store provides CRUD operations on the gallery database.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// Open opens (or creates) the database at path.
func Open(path string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log.Debug("opening gallery database", zap.String("path", path))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Pragmas below are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	if err := migrate(db, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func migrate(db *sql.DB, log *logger.Logger) error {
	var version int
	err := db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&version)
	if err != nil {
		// meta table doesn't exist or no row: fresh database
		if _, execErr := db.Exec(schema); execErr != nil {
			return fmt.Errorf("create schema: %w", execErr)
		}
		if _, execErr := db.Exec("INSERT INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion); execErr != nil {
			return fmt.Errorf("set schema version: %w", execErr)
		}
		log.Info("schema created", zap.Int("version", schemaVersion))
		return nil
	}

	if version < schemaVersion {
		// v1 had no change log; the schema statements are idempotent.
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("upgrade schema: %w", err)
		}
		if _, err := db.Exec("UPDATE meta SET value = ? WHERE key = 'schema_version'", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		log.Info("schema upgraded", zap.Int("from", version), zap.Int("to", schemaVersion))
	}

	return nil
}

func (s *Store) exec(ctx context.Context, what, query string, args ...any) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.log.Error("store write failed", zap.String("op", what), zap.Error(err))
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return res, nil
}
