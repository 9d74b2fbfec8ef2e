// Package catalog is the server-side per-owner table registry: table name
// (already hashed by the client), declared index set, and per-index type.
// It is backed by a dedicated SQLite table whose unique (owner, name)
// index is the authoritative barrier against two sessions racing to
// create the same table.
package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/phasma-db/phasmadb/internal/wire"
)

// Descriptor is a table's catalog entry.
type Descriptor struct {
	Owner   string
	Name    string
	Indices map[string]wire.IndexType
}

// Catalog is the process-wide table registry.
type Catalog struct {
	db *sql.DB
}

// New wraps db, creating the catalog's schema if it does not already
// exist.
func New(db *sql.DB) (*Catalog, error) {
	c := &Catalog{db: db}
	if err := c.initSchema(); err != nil {
		return nil, fmt.Errorf("catalog: init schema: %w", err)
	}
	return c, nil
}

func (c *Catalog) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS tables (
		owner   TEXT NOT NULL,
		name    TEXT NOT NULL,
		indices TEXT NOT NULL,
		PRIMARY KEY (owner, name)
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_tables_owner_name ON tables(owner, name);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Create registers a new table. It fails with wire.ErrTableExists if
// (owner, hashedName) is already registered.
func (c *Catalog) Create(owner, hashedName string, indices map[string]wire.IndexType) error {
	encoded, err := json.Marshal(indices)
	if err != nil {
		return fmt.Errorf("catalog: marshal indices: %w", err)
	}

	_, err = c.db.Exec(
		`INSERT INTO tables (owner, name, indices) VALUES (?, ?, ?)`,
		owner, hashedName, string(encoded),
	)
	if err != nil {
		// The unique index is the real race barrier; a conflict here,
		// not just the existence pre-check a caller may have done,
		// is what actually prevents two concurrent creators from both
		// succeeding.
		return wire.CodeError(wire.ErrTableExists)
	}
	return nil
}

// Get looks up a table's descriptor, returning wire.ErrNoSuchTable if it
// is not registered.
func (c *Catalog) Get(owner, hashedName string) (*Descriptor, error) {
	var encoded string
	err := c.db.QueryRow(
		`SELECT indices FROM tables WHERE owner = ? AND name = ?`,
		owner, hashedName,
	).Scan(&encoded)
	if err == sql.ErrNoRows {
		return nil, wire.CodeError(wire.ErrNoSuchTable)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: lookup %s/%s: %w", owner, hashedName, err)
	}

	var indices map[string]wire.IndexType
	if err := json.Unmarshal([]byte(encoded), &indices); err != nil {
		return nil, fmt.Errorf("catalog: decode indices: %w", err)
	}
	return &Descriptor{Owner: owner, Name: hashedName, Indices: indices}, nil
}

// Drop removes a table's catalog entry, returning wire.ErrNoSuchTable if
// it was never registered.
func (c *Catalog) Drop(owner, hashedName string) error {
	res, err := c.db.Exec(`DELETE FROM tables WHERE owner = ? AND name = ?`, owner, hashedName)
	if err != nil {
		return fmt.Errorf("catalog: drop %s/%s: %w", owner, hashedName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: drop %s/%s: %w", owner, hashedName, err)
	}
	if n == 0 {
		return wire.CodeError(wire.ErrNoSuchTable)
	}
	return nil
}
