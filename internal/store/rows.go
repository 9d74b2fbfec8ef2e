package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/phasma-db/phasmadb/internal/catalog"
	"github.com/phasma-db/phasmadb/internal/wire"
)

// Datum is one row_id's worth of insert_data payload.
type Datum struct {
	Indexed map[string]interface{}
	Extra   string
}

// InsertResult is the per-row_id outcome of an InsertData call.
type InsertResult struct {
	Err error
}

// InsertData upserts each row_id in data against the same catalog
// descriptor. Each datum is processed independently: one datum's failure
// never affects its siblings.
func (s *Store) InsertData(owner, tableName string, desc *catalog.Descriptor, data map[string]Datum) map[string]InsertResult {
	results := make(map[string]InsertResult, len(data))
	for rowID, datum := range data {
		results[rowID] = InsertResult{Err: s.insertOne(owner, tableName, desc, rowID, datum)}
	}
	return results
}

func (s *Store) insertOne(owner, tableName string, desc *catalog.Descriptor, rowID string, datum Datum) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existingDocID string
	var existingIndexedJSON string
	err = tx.QueryRow(
		`SELECT doc_id, indexed FROM documents WHERE owner = ? AND table_name = ? AND row_id = ?`,
		owner, tableName, rowID,
	).Scan(&existingDocID, &existingIndexedJSON)
	hasExisting := err == nil
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("store: lookup existing row: %w", err)
	}

	existing := map[string]interface{}{}
	if hasExisting {
		if err := unmarshalIndexed(existingIndexedJSON, &existing); err != nil {
			return fmt.Errorf("store: decode existing row: %w", err)
		}
	}

	merged := make(map[string]interface{}, len(desc.Indices))
	for col := range desc.Indices {
		if v, ok := datum.Indexed[col]; ok {
			merged[col] = v
			continue
		}
		if v, ok := existing[col]; ok {
			merged[col] = v
			continue
		}
		if !hasExisting {
			return wire.CodeError(wire.ErrMissingIndexValue)
		}
	}
	for col := range datum.Indexed {
		if _, declared := desc.Indices[col]; !declared {
			return wire.CodeError(wire.ErrUndeclaredColumn)
		}
	}

	type coerced struct {
		normalized interface{}
		entries    []pendingEntry
	}
	coercedByCol := make(map[string]coerced, len(merged))
	for col, typ := range desc.Indices {
		raw, present := merged[col]
		if !present {
			continue
		}
		normalized, entries, err := coerceCell(raw, typ)
		if err != nil {
			return err
		}
		coercedByCol[col] = coerced{normalized: normalized, entries: entries}
		merged[col] = normalized
	}

	for col, typ := range desc.Indices {
		if !typ.Unique() {
			continue
		}
		c, present := coercedByCol[col]
		if !present {
			continue
		}
		for _, e := range c.entries {
			var conflictRowID string
			var q string
			var arg interface{}
			if e.ValueInt.Valid {
				q = `SELECT row_id FROM index_entries WHERE owner = ? AND table_name = ? AND column = ? AND unique_enforced = 1 AND value_int = ? LIMIT 1`
				arg = e.ValueInt.Int64
			} else {
				q = `SELECT row_id FROM index_entries WHERE owner = ? AND table_name = ? AND column = ? AND unique_enforced = 1 AND value_text = ? LIMIT 1`
				arg = e.ValueText.String
			}
			err := tx.QueryRow(q, owner, tableName, col, arg).Scan(&conflictRowID)
			if err == nil && conflictRowID != rowID {
				return wire.CodeError(wire.ErrUniqueViolation)
			}
			if err != nil && err != sql.ErrNoRows {
				return fmt.Errorf("store: unique pre-check: %w", err)
			}
		}
	}

	indexedJSON, err := marshalIndexed(merged)
	if err != nil {
		return fmt.Errorf("store: encode indexed values: %w", err)
	}

	docID := existingDocID
	if !hasExisting {
		docID = uuid.NewString()
		_, err = tx.Exec(
			`INSERT INTO documents (doc_id, owner, table_name, row_id, indexed, extra) VALUES (?, ?, ?, ?, ?, ?)`,
			docID, owner, tableName, rowID, indexedJSON, datum.Extra,
		)
	} else {
		_, err = tx.Exec(
			`UPDATE documents SET indexed = ?, extra = ? WHERE doc_id = ?`,
			indexedJSON, datum.Extra, docID,
		)
	}
	if err != nil {
		return remapUniqueViolation(err)
	}

	if _, err := tx.Exec(`DELETE FROM index_entries WHERE owner = ? AND table_name = ? AND row_id = ?`, owner, tableName, rowID); err != nil {
		return fmt.Errorf("store: clear index entries: %w", err)
	}

	for col, typ := range desc.Indices {
		c, present := coercedByCol[col]
		if !present {
			continue
		}
		for _, e := range c.entries {
			_, err := tx.Exec(
				`INSERT INTO index_entries (owner, table_name, column, row_id, value_int, value_text, unique_enforced) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				owner, tableName, col, rowID, e.ValueInt, e.ValueText, boolToInt(typ.Unique()),
			)
			if err != nil {
				return remapUniqueViolation(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return remapUniqueViolation(err)
	}
	return nil
}

// DeleteByID removes a single row by primary key, returning
// wire.ErrRowNotFound if no such row exists.
func (s *Store) DeleteByID(owner, tableName, rowID string) error {
	res, err := s.db.Exec(`DELETE FROM documents WHERE owner = ? AND table_name = ? AND row_id = ?`, owner, tableName, rowID)
	if err != nil {
		return fmt.Errorf("store: delete row: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete row: %w", err)
	}
	if n == 0 {
		return wire.CodeError(wire.ErrRowNotFound)
	}
	if _, err := s.db.Exec(`DELETE FROM index_entries WHERE owner = ? AND table_name = ? AND row_id = ?`, owner, tableName, rowID); err != nil {
		return fmt.Errorf("store: delete row: %w", err)
	}
	return nil
}

// QueryByID looks up a single row by primary key.
func (s *Store) QueryByID(owner, tableName, rowID string) (indexed map[string]interface{}, extra string, err error) {
	var indexedJSON string
	err = s.db.QueryRow(
		`SELECT indexed, extra FROM documents WHERE owner = ? AND table_name = ? AND row_id = ?`,
		owner, tableName, rowID,
	).Scan(&indexedJSON, &extra)
	if err == sql.ErrNoRows {
		return nil, "", wire.CodeError(wire.ErrRowNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("store: query by id: %w", err)
	}
	indexed = map[string]interface{}{}
	if err := unmarshalIndexed(indexedJSON, &indexed); err != nil {
		return nil, "", fmt.Errorf("store: decode row: %w", err)
	}
	return indexed, extra, nil
}

// DropTable removes every document and index entry for (owner, tableName).
// The caller is responsible for also removing the catalog entry; together
// the two deletes leave no state observable by a later operation.
func (s *Store) DropTable(owner, tableName string) error {
	if _, err := s.db.Exec(`DELETE FROM documents WHERE owner = ? AND table_name = ?`, owner, tableName); err != nil {
		return fmt.Errorf("store: drop table documents: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM index_entries WHERE owner = ? AND table_name = ?`, owner, tableName); err != nil {
		return fmt.Errorf("store: drop table index entries: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// remapUniqueViolation turns a SQLite unique-constraint error that slipped
// past the per-column pre-check into the wire-level collision code; any
// other backing-store error is unexpected and reported as malformed.
func remapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return wire.CodeError(wire.ErrUniqueViolation)
	}
	return fmt.Errorf("store: %w", err)
}
