// Package metadatastore implements external.MetadataStore over an
// embedded SQLite database, following the same migration-ledger pattern
// as rustyguts-bken/server/store: an ordered, append-only list of
// schema statements applied once and tracked in a schema_migrations
// table.
package metadatastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// migrations holds the ordered list of DDL statements that bring the
// schema up to date. Index i corresponds to version i+1. Never edit or
// reorder existing entries — append new ones.
var migrations = []string{
	// v1 — saved call recordings
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id        TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL,
		blob_url          TEXT NOT NULL,
		first_detected_at INTEGER NOT NULL,
		size_bytes        INTEGER NOT NULL,
		mime              TEXT NOT NULL,
		recorded_at       INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
}

// Store records finished-session metadata (spec.md §6's MetadataStore
// interface).
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral in-process storage.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("wal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		return nil, fmt.Errorf("busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_migrations(version) VALUES(?)`, v); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordSession implements external.MetadataStore.
func (s *Store) RecordSession(ctx context.Context, userID, sessionID, blobURL string, firstDetectedAt time.Time, size int64, mime string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions(session_id, user_id, blob_url, first_detected_at, size_bytes, mime)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, userID, blobURL, firstDetectedAt.UnixMilli(), size, mime,
	)
	if err != nil {
		return fmt.Errorf("record session %q: %w", sessionID, err)
	}
	return nil
}
