// Package store is the SQLite persistence layer: conversation contexts,
// command templates, swarm runs, and sealed secrets.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Enable WAL mode for concurrent read/write access and set a busy
	// timeout so writers retry instead of immediately returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversation_contexts (
			conversation_id      TEXT PRIMARY KEY,
			platform_type        TEXT NOT NULL,
			codebase_id          TEXT,
			codebase_name        TEXT,
			cwd                  TEXT,
			assistant_session_id TEXT,
			updated_at           DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS command_templates (
			name        TEXT NOT NULL,
			codebase_id TEXT NOT NULL DEFAULT '',
			content     TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (name, codebase_id)
		)`,
		`CREATE TABLE IF NOT EXISTS swarm_runs (
			id              TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			request         TEXT NOT NULL,
			status          TEXT DEFAULT 'running',
			summary         TEXT,
			agent_count     INTEGER DEFAULT 0,
			completed_count INTEGER DEFAULT 0,
			failed_count    INTEGER DEFAULT 0,
			duration_ms     INTEGER DEFAULT 0,
			started_at      DATETIME DEFAULT CURRENT_TIMESTAMP,
			completed_at    DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_swarm_runs_conversation
			ON swarm_runs(conversation_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS secrets (
			name       TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}
