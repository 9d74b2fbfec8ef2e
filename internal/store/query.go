package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/phasma-db/phasmadb/internal/querycompile"
)

// RowResult is one matched row's decoded indexed map and opaque extra
// envelope.
type RowResult struct {
	Indexed map[string]interface{}
	Extra   string
}

type queriedRow struct {
	RowID   string
	Indexed map[string]interface{}
	Extra   string
}

// QueryData executes a validated filter against the backing store,
// applies sortKeys and limit, and returns the matching rows keyed by
// row_id.
func (s *Store) QueryData(owner, tableName string, filter querycompile.Node, sortKeys []querycompile.SortKey, limit *int) (map[string]RowResult, error) {
	filterSQL, filterArgs, err := compileFilterSQL(owner, tableName, filter)
	if err != nil {
		return nil, fmt.Errorf("store: compile filter: %w", err)
	}

	sql := fmt.Sprintf(
		`SELECT d.row_id, d.indexed, d.extra FROM documents d JOIN (%s) AS matched ON matched.row_id = d.row_id WHERE d.owner = ? AND d.table_name = ?`,
		filterSQL,
	)
	args := append(append([]interface{}{}, filterArgs...), owner, tableName)

	rowsCursor, err := s.db.Query(sql, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query data: %w", err)
	}
	defer rowsCursor.Close()

	var rows []queriedRow
	for rowsCursor.Next() {
		var rowID, indexedJSON, extra string
		if err := rowsCursor.Scan(&rowID, &indexedJSON, &extra); err != nil {
			return nil, fmt.Errorf("store: scan row: %w", err)
		}
		indexed := map[string]interface{}{}
		if err := unmarshalIndexed(indexedJSON, &indexed); err != nil {
			return nil, fmt.Errorf("store: decode row: %w", err)
		}
		rows = append(rows, queriedRow{RowID: rowID, Indexed: indexed, Extra: extra})
	}
	if err := rowsCursor.Err(); err != nil {
		return nil, fmt.Errorf("store: query data: %w", err)
	}

	sortRows(rows, sortKeys)

	if limit != nil && *limit >= 0 && *limit < len(rows) {
		rows = rows[:*limit]
	}

	out := make(map[string]RowResult, len(rows))
	for _, r := range rows {
		out[r.RowID] = RowResult{Indexed: r.Indexed, Extra: r.Extra}
	}
	return out, nil
}

// DeleteData removes every row matching filter and reports how many rows
// were removed. A MatchAll filter deletes every row in the table.
//
// The matching row_id set is resolved once, up front, into a Go slice.
// For MatchAll and negated filters, filterSQL selects against documents
// (via matchAllRowsSQL — see filter.go); were it re-evaluated after the
// documents rows are deleted, the second evaluation would see none of
// them and the corresponding index_entries would never be removed. Driving both deletes off the captured id list
// avoids that.
func (s *Store) DeleteData(owner, tableName string, filter querycompile.Node) (int, error) {
	filterSQL, filterArgs, err := compileFilterSQL(owner, tableName, filter)
	if err != nil {
		return 0, fmt.Errorf("store: compile filter: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer tx.Rollback()

	rowIDs, err := matchedRowIDs(tx, filterSQL, filterArgs)
	if err != nil {
		return 0, fmt.Errorf("store: resolve matching rows: %w", err)
	}
	if len(rowIDs) == 0 {
		return 0, nil
	}

	placeholders := placeholderList(len(rowIDs))
	args := make([]interface{}, 0, 2+len(rowIDs))
	args = append(args, owner, tableName)
	for _, id := range rowIDs {
		args = append(args, id)
	}

	delDocsSQL := fmt.Sprintf(
		`DELETE FROM documents WHERE owner = ? AND table_name = ? AND row_id IN (%s)`,
		placeholders,
	)
	res, err := tx.Exec(delDocsSQL, args...)
	if err != nil {
		return 0, fmt.Errorf("store: delete data: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: delete data: %w", err)
	}

	delEntriesSQL := fmt.Sprintf(
		`DELETE FROM index_entries WHERE owner = ? AND table_name = ? AND row_id IN (%s)`,
		placeholders,
	)
	if _, err := tx.Exec(delEntriesSQL, args...); err != nil {
		return 0, fmt.Errorf("store: delete data: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: delete data: %w", err)
	}
	return int(count), nil
}

// matchedRowIDs runs filterSQL and returns the row_ids it selects,
// captured into a slice so callers can issue multiple statements against
// a stable snapshot instead of re-evaluating the filter after mutating
// the tables it reads from.
func matchedRowIDs(tx *sql.Tx, filterSQL string, filterArgs []interface{}) ([]string, error) {
	rowsCursor, err := tx.Query(fmt.Sprintf(`SELECT row_id FROM (%s)`, filterSQL), filterArgs...)
	if err != nil {
		return nil, err
	}
	defer rowsCursor.Close()

	var ids []string
	for rowsCursor.Next() {
		var id string
		if err := rowsCursor.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rowsCursor.Err()
}

func placeholderList(n int) string {
	placeholders := make([]string, n)
	for i := range placeholders {
		placeholders[i] = "?"
	}
	return strings.Join(placeholders, ",")
}
