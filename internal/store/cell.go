package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/mattn/go-sqlite3"

	"github.com/phasma-db/phasmadb/internal/wire"
)

// pendingEntry is one row to insert into index_entries for a single
// column's value: an integer for sort/unique columns, a text token for
// text/unique_text columns. A token-set column contributes one
// pendingEntry per token.
type pendingEntry struct {
	ValueInt  sql.NullInt64
	ValueText sql.NullString
}

// coerceCell validates and normalizes a raw JSON-decoded indexed value
// against its declared column type, returning both the normalized value
// (to persist in the document's indexed JSON) and the index_entries rows
// it contributes.
func coerceCell(raw interface{}, typ wire.IndexType) (interface{}, []pendingEntry, error) {
	if typ.Numeric() {
		n, ok := toInt64(raw)
		if !ok {
			return nil, nil, wire.CodeError(wire.ErrIndexTypeMismatch)
		}
		return n, []pendingEntry{{ValueInt: sql.NullInt64{Int64: n, Valid: true}}}, nil
	}

	// text / unique_text: a single string, or a list coerced element-wise
	// to strings (a token set).
	switch v := raw.(type) {
	case string:
		return v, []pendingEntry{{ValueText: sql.NullString{String: v, Valid: true}}}, nil
	case []interface{}:
		tokens := make([]string, 0, len(v))
		entries := make([]pendingEntry, 0, len(v))
		seen := make(map[string]bool, len(v))
		for _, elem := range v {
			s, ok := toStringElem(elem)
			if !ok {
				return nil, nil, wire.CodeError(wire.ErrIndexTypeMismatch)
			}
			if seen[s] {
				continue
			}
			seen[s] = true
			tokens = append(tokens, s)
			entries = append(entries, pendingEntry{ValueText: sql.NullString{String: s, Valid: true}})
		}
		return tokens, entries, nil
	case []string:
		tokens := make([]string, 0, len(v))
		entries := make([]pendingEntry, 0, len(v))
		seen := make(map[string]bool, len(v))
		for _, s := range v {
			if seen[s] {
				continue
			}
			seen[s] = true
			tokens = append(tokens, s)
			entries = append(entries, pendingEntry{ValueText: sql.NullString{String: s, Valid: true}})
		}
		return tokens, entries, nil
	default:
		return nil, nil, wire.CodeError(wire.ErrIndexTypeMismatch)
	}
}

// toInt64 extracts an integer from a JSON-decoded value (float64 for
// numbers straight off the wire, int64/int for values already normalized
// server-side).
func toInt64(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// toStringElem coerces one list element of a text-column value to a
// string. Numeric elements are rendered rather than rejected; anything
// else is a type mismatch.
func toStringElem(raw interface{}) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'g', -1, 64), true
	default:
		return "", false
	}
}

func marshalIndexed(indexed map[string]interface{}) (string, error) {
	b, err := json.Marshal(indexed)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalIndexed(encoded string, out *map[string]interface{}) error {
	return json.Unmarshal([]byte(encoded), out)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
