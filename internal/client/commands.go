package client

import (
	"encoding/json"
	"fmt"

	"github.com/phasma-db/phasmadb/internal/keyring"
	"github.com/phasma-db/phasmadb/internal/query"
	"github.com/phasma-db/phasmadb/internal/wire"
)

// Row is a decoded row as handed back to the caller: Indexed carries only
// the columns the caller asked to recover (integers
// order-preserving-decoded, everything else dropped), and Extra is the
// envelope-decrypted payload.
type Row struct {
	Indexed map[string]interface{}
	Extra   json.RawMessage
}

// CreateTable hashes table and every column name under c.Keyring and
// issues create_table. indices maps plaintext column name to index type.
func (c *Client) CreateTable(table string, indices map[string]wire.IndexType) error {
	hashedIndices := make(map[string]string, len(indices))
	for col, typ := range indices {
		hashedIndices[c.Keyring.HashName(col)] = string(typ)
	}
	resp, err := c.Send(map[string]interface{}{
		"cmd":     "create_table",
		"table":   c.Keyring.HashName(table),
		"indices": hashedIndices,
	})
	if err != nil {
		return err
	}
	return errFromResponse(resp)
}

// DropTable removes table and its backing collection.
func (c *Client) DropTable(table string) error {
	resp, err := c.Send(map[string]interface{}{
		"cmd":   "drop_table",
		"table": c.Keyring.HashName(table),
	})
	if err != nil {
		return err
	}
	return errFromResponse(resp)
}

// Datum is one row's plaintext indexed values and payload, as the caller
// supplies them to InsertData. Indexed values are int64 for
// sort/unique columns and keyring.TextValue for text/unique_text columns;
// payload is any JSON-marshalable value.
type Datum struct {
	Indexed map[string]interface{}
	Payload interface{}
}

// InsertDataResult is one row_id's outcome from an InsertData call.
type InsertDataResult struct {
	Success bool
	Err     error
}

// InsertData encodes every row's indexed cells and payload envelope under
// c.Keyring and issues insert_data, returning a per-row_id outcome map.
func (c *Client) InsertData(table string, rows map[string]Datum) (map[string]InsertDataResult, error) {
	wireRows := make(map[string]interface{}, len(rows))
	for rowID, datum := range rows {
		indexed := make(map[string]interface{}, len(datum.Indexed))
		for col, v := range datum.Indexed {
			hashedCol := c.Keyring.HashName(col)
			encoded, err := encodeCell(c.Keyring, v)
			if err != nil {
				return nil, fmt.Errorf("client: encode %s.%s: %w", table, col, err)
			}
			indexed[hashedCol] = encoded
		}
		envelope, err := c.Keyring.EncryptEnvelope(datum.Payload)
		if err != nil {
			return nil, fmt.Errorf("client: encrypt payload for %s: %w", rowID, err)
		}
		wireRows[rowID] = map[string]interface{}{"indexed": indexed, "extra": envelope}
	}

	resp, err := c.Send(map[string]interface{}{
		"cmd":   "insert_data",
		"table": c.Keyring.HashName(table),
		"rows":  wireRows,
	})
	if err != nil {
		return nil, err
	}
	if err := errFromResponse(resp); err != nil {
		if _, ok := resp["results"]; !ok {
			return nil, err
		}
	}

	rawResults, _ := resp["results"].(map[string]interface{})
	out := make(map[string]InsertDataResult, len(rawResults))
	for rowID, rv := range rawResults {
		rm, _ := rv.(map[string]interface{})
		if success, _ := rm["success"].(bool); success {
			out[rowID] = InsertDataResult{Success: true}
			continue
		}
		code, _ := rm["error"].(float64)
		out[rowID] = InsertDataResult{Success: false, Err: wire.CodeError(int(code))}
	}
	return out, nil
}

// encodeCell encodes one plaintext indexed value per its Go type: int64
// for sort/unique columns, keyring.TextValue for tokenized text columns,
// or a plain string for a single-token text/unique_text value.
func encodeCell(k *keyring.Keyring, v interface{}) (interface{}, error) {
	switch tv := v.(type) {
	case int64:
		return k.EncodeInt(tv)
	case int:
		return k.EncodeInt(int64(tv))
	case keyring.TextValue:
		return k.EncodeText(tv), nil
	case string:
		return k.EncodeText(keyring.TextValue{Mode: keyring.TextPlain, Value: tv}), nil
	default:
		return nil, fmt.Errorf("client: unsupported indexed value type %T", v)
	}
}

// DeleteByID removes a single row by its plaintext row_id.
func (c *Client) DeleteByID(table, rowID string) error {
	resp, err := c.Send(map[string]interface{}{
		"cmd":    "delete_by_id",
		"table":  c.Keyring.HashName(table),
		"row_id": rowID,
	})
	if err != nil {
		return err
	}
	return errFromResponse(resp)
}

// QueryByID looks up a single row by primary key and decodes the
// plaintext columns named in columns, in addition to always decrypting
// Extra.
func (c *Client) QueryByID(table, rowID string, columns []string) (*Row, error) {
	resp, err := c.Send(map[string]interface{}{
		"cmd":    "query_by_id",
		"table":  c.Keyring.HashName(table),
		"row_id": rowID,
	})
	if err != nil {
		return nil, err
	}
	if err := errFromResponse(resp); err != nil {
		return nil, err
	}
	rawRow, _ := resp["row"].(map[string]interface{})
	return c.decodeRow(rawRow, columns)
}

// QueryData compiles q with c.Keyring, executes query_data, and decodes
// every matched row the same way QueryByID does.
func (c *Client) QueryData(table string, q query.Query, columns []string) (map[string]*Row, error) {
	filter, err := query.Encode(q.Filter, c.Keyring)
	if err != nil {
		return nil, fmt.Errorf("client: encode filter: %w", err)
	}
	cmd := map[string]interface{}{
		"cmd":    "query_data",
		"table":  c.Keyring.HashName(table),
		"filter": filter,
		"sort":   query.EncodeSort(q.Sort, c.Keyring),
	}
	if q.Limit != nil {
		cmd["limit"] = *q.Limit
	}

	resp, err := c.Send(cmd)
	if err != nil {
		return nil, err
	}
	if err := errFromResponse(resp); err != nil {
		return nil, err
	}

	rawData, _ := resp["data"].(map[string]interface{})
	out := make(map[string]*Row, len(rawData))
	for rowID, rv := range rawData {
		rm, _ := rv.(map[string]interface{})
		row, err := c.decodeRow(rm, columns)
		if err != nil {
			return nil, err
		}
		out[rowID] = row
	}
	return out, nil
}

// DeleteData compiles filter and issues delete_data, returning the
// number of rows removed.
func (c *Client) DeleteData(table string, filter query.Node) (int, error) {
	encoded, err := query.Encode(filter, c.Keyring)
	if err != nil {
		return 0, fmt.Errorf("client: encode filter: %w", err)
	}
	resp, err := c.Send(map[string]interface{}{
		"cmd":    "delete_data",
		"table":  c.Keyring.HashName(table),
		"filter": encoded,
	})
	if err != nil {
		return 0, err
	}
	if err := errFromResponse(resp); err != nil {
		return 0, err
	}
	count, _ := resp["count"].(float64)
	return int(count), nil
}

func (c *Client) decodeRow(raw map[string]interface{}, columns []string) (*Row, error) {
	if raw == nil {
		return &Row{}, nil
	}
	indexedRaw, _ := raw["indexed"].(map[string]interface{})
	columnHashes := make(map[string]string, len(columns))
	for _, col := range columns {
		columnHashes[c.Keyring.HashName(col)] = col
	}
	decoded := c.Keyring.DecodeRow(indexedRaw, columnHashes)

	extraEnv, _ := raw["extra"].(string)
	var payload json.RawMessage
	if extraEnv != "" {
		if err := c.Keyring.DecryptEnvelope(extraEnv, &payload); err != nil {
			return nil, fmt.Errorf("client: decrypt row payload: %w", err)
		}
	}
	return &Row{Indexed: decoded, Extra: payload}, nil
}
