// Package store is the server-side row store and indexer: per-(owner,
// table) collections of rows with row_id uniqueness, secondary indexes
// (sort, unique, text, unique_text), and upsert-on-partial-update
// semantics, plus the query compiler that turns a validated predicate
// tree into backing-store SQL.
//
// The backing store is embedded SQLite: raw database/sql, hand-written
// schema SQL, a single writer connection, WAL mode.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store owns the backing SQLite database for the catalog, documents, and
// index entries.
type Store struct {
	db *sql.DB
}

// Config holds store configuration.
type Config struct {
	DataDir string
}

// New opens (creating if necessary) the backing database under
// cfg.DataDir and initializes its schema.
func New(cfg *Config) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "phasmadb.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	// SQLite supports exactly one writer; a single pooled connection
	// makes the database the cross-session serialization point.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	return s, nil
}

// DB returns the underlying connection, for packages (catalog) that share
// this database.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		doc_id     TEXT PRIMARY KEY,
		owner      TEXT NOT NULL,
		table_name TEXT NOT NULL,
		row_id     TEXT NOT NULL,
		indexed    TEXT NOT NULL,
		extra      TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_row
		ON documents(owner, table_name, row_id);

	CREATE TABLE IF NOT EXISTS index_entries (
		owner           TEXT NOT NULL,
		table_name      TEXT NOT NULL,
		column          TEXT NOT NULL,
		row_id          TEXT NOT NULL,
		value_int       INTEGER,
		value_text      TEXT,
		unique_enforced INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_entries_lookup
		ON index_entries(owner, table_name, column, row_id);
	CREATE INDEX IF NOT EXISTS idx_entries_value_int
		ON index_entries(owner, table_name, column, value_int);
	CREATE INDEX IF NOT EXISTS idx_entries_value_text
		ON index_entries(owner, table_name, column, value_text);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_unique_int
		ON index_entries(owner, table_name, column, value_int)
		WHERE unique_enforced = 1 AND value_int IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_unique_text
		ON index_entries(owner, table_name, column, value_text)
		WHERE unique_enforced = 1 AND value_text IS NOT NULL;
	`
	_, err := s.db.Exec(schema)
	return err
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
