package server

import (
	"encoding/json"

	"github.com/phasma-db/phasmadb/internal/catalog"
	"github.com/phasma-db/phasmadb/internal/querycompile"
	"github.com/phasma-db/phasmadb/internal/store"
	"github.com/phasma-db/phasmadb/internal/wire"
)

// Handler decodes one command's body and produces the wire response map it
// should be answered with. Returning an error (ideally a wire.CodeError)
// causes dispatch to build the generic {success:false, error:N} envelope
// instead; a non-CodeError is treated as an unexpected failure and
// reported as error 2.
type Handler func(s *Session, body json.RawMessage) (interface{}, error)

var handlers = map[string]Handler{
	"create_table": (*Session).handleCreateTable,
	"drop_table":   (*Session).handleDropTable,
	"insert_data":  (*Session).handleInsertData,
	"delete_by_id": (*Session).handleDeleteByID,
	"query_by_id":  (*Session).handleQueryByID,
	"delete_data":  (*Session).handleDeleteData,
	"query_data":   (*Session).handleQueryData,
}

// dispatch routes cmd to its handler and builds the response envelope,
// reflecting cmd_id when the client supplied one.
func (s *Session) dispatch(cmd wire.Command) (response map[string]interface{}, exit bool) {
	if cmd.Cmd == "exit" {
		resp := map[string]interface{}{"farewell": true}
		attachCmdID(resp, cmd.CmdID)
		return resp, true
	}

	h, ok := handlers[cmd.Cmd]
	if !ok {
		return errorEnvelope(wire.ErrUnknownCommand, cmd.CmdID), false
	}

	result, err := h(s, cmd.Body)
	if err != nil {
		return errorEnvelope(codeOf(err), cmd.CmdID), false
	}

	resp, ok := result.(map[string]interface{})
	if !ok {
		// A handler returning a non-map success value is a programming
		// error, not a client-facing one.
		return errorEnvelope(wire.ErrMalformedRequest, cmd.CmdID), false
	}
	attachCmdID(resp, cmd.CmdID)
	return resp, false
}

func errorEnvelope(code int, cmdID string) map[string]interface{} {
	resp := map[string]interface{}{"success": false, "error": code}
	attachCmdID(resp, cmdID)
	return resp
}

func attachCmdID(resp map[string]interface{}, cmdID string) {
	if cmdID != "" {
		resp["cmd_id"] = cmdID
	}
}

// codeOf recovers the wire error code from err, falling back to the
// generic malformed-request code for any error the rest of the server
// did not tag explicitly.
func codeOf(err error) int {
	if ce, ok := err.(wire.CodeError); ok {
		return ce.Code()
	}
	return wire.ErrMalformedRequest
}

type createTableRequest struct {
	Table   string            `json:"table"`
	Indices map[string]string `json:"indices"`
}

func (s *Session) handleCreateTable(body json.RawMessage) (interface{}, error) {
	var req createTableRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Table == "" {
		return nil, wire.CodeError(wire.ErrMalformedRequest)
	}

	indices := make(map[string]wire.IndexType, len(req.Indices))
	for col, rawType := range req.Indices {
		if !catalog.ValidColumnName(col) {
			return nil, wire.CodeError(wire.ErrMalformedRequest)
		}
		typ := wire.IndexType(rawType)
		if !typ.Valid() {
			return nil, wire.CodeError(wire.ErrMalformedRequest)
		}
		indices[col] = typ
	}

	if err := s.catalog.Create(s.owner, req.Table, indices); err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true}, nil
}

type tableRequest struct {
	Table string `json:"table"`
}

func (s *Session) handleDropTable(body json.RawMessage) (interface{}, error) {
	var req tableRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Table == "" {
		return nil, wire.CodeError(wire.ErrMalformedRequest)
	}
	if _, err := s.catalog.Get(s.owner, req.Table); err != nil {
		return nil, err
	}
	// Rows go first: if this fails the catalog entry survives and the
	// drop can be retried, rather than stranding rows under a table the
	// catalog no longer knows.
	if err := s.store.DropTable(s.owner, req.Table); err != nil {
		return nil, wire.CodeError(wire.ErrMalformedRequest)
	}
	if err := s.catalog.Drop(s.owner, req.Table); err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true}, nil
}

type rowPayload struct {
	Indexed map[string]interface{} `json:"indexed"`
	Extra   string                 `json:"extra"`
}

type insertDataRequest struct {
	Table string                `json:"table"`
	Rows  map[string]rowPayload `json:"rows"`
}

func (s *Session) handleInsertData(body json.RawMessage) (interface{}, error) {
	var req insertDataRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Table == "" {
		return nil, wire.CodeError(wire.ErrMalformedRequest)
	}

	desc, err := s.catalog.Get(s.owner, req.Table)
	if err != nil {
		return nil, err
	}

	data := make(map[string]store.Datum, len(req.Rows))
	for rowID, rp := range req.Rows {
		data[rowID] = store.Datum{Indexed: rp.Indexed, Extra: rp.Extra}
	}

	results := s.store.InsertData(s.owner, req.Table, desc, data)
	out := make(map[string]interface{}, len(results))
	for rowID, res := range results {
		if res.Err == nil {
			out[rowID] = map[string]interface{}{"success": true}
		} else {
			out[rowID] = map[string]interface{}{"success": false, "error": codeOf(res.Err)}
		}
	}
	return map[string]interface{}{"results": out}, nil
}

type rowIDRequest struct {
	Table string `json:"table"`
	RowID string `json:"row_id"`
}

func (s *Session) handleDeleteByID(body json.RawMessage) (interface{}, error) {
	var req rowIDRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Table == "" || req.RowID == "" {
		return nil, wire.CodeError(wire.ErrMalformedRequest)
	}
	if _, err := s.catalog.Get(s.owner, req.Table); err != nil {
		return nil, err
	}
	if err := s.store.DeleteByID(s.owner, req.Table, req.RowID); err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true}, nil
}

func (s *Session) handleQueryByID(body json.RawMessage) (interface{}, error) {
	var req rowIDRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Table == "" || req.RowID == "" {
		return nil, wire.CodeError(wire.ErrMalformedRequest)
	}
	if _, err := s.catalog.Get(s.owner, req.Table); err != nil {
		return nil, err
	}
	indexed, extra, err := s.store.QueryByID(s.owner, req.Table, req.RowID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"row":     map[string]interface{}{"indexed": indexed, "extra": extra},
	}, nil
}

type queryDataRequest struct {
	Table  string          `json:"table"`
	Filter json.RawMessage `json:"filter"`
	Sort   []wire.SortKey  `json:"sort"`
	Limit  *int            `json:"limit"`
}

func (s *Session) decodeFilter(desc *catalog.Descriptor, raw json.RawMessage) (querycompile.Node, error) {
	var filterRaw interface{} = map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &filterRaw); err != nil {
			return nil, wire.CodeError(wire.ErrMalformedRequest)
		}
	}
	return querycompile.Compile(filterRaw, desc)
}

func (s *Session) handleQueryData(body json.RawMessage) (interface{}, error) {
	var req queryDataRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Table == "" {
		return nil, wire.CodeError(wire.ErrMalformedRequest)
	}

	desc, err := s.catalog.Get(s.owner, req.Table)
	if err != nil {
		return nil, err
	}

	filter, err := s.decodeFilter(desc, req.Filter)
	if err != nil {
		return nil, err
	}
	sortKeys, err := querycompile.CompileSort(req.Sort, desc)
	if err != nil {
		return nil, err
	}

	results, err := s.store.QueryData(s.owner, req.Table, filter, sortKeys, req.Limit)
	if err != nil {
		return nil, wire.CodeError(wire.ErrMalformedRequest)
	}

	data := make(map[string]interface{}, len(results))
	for rowID, r := range results {
		data[rowID] = map[string]interface{}{"indexed": r.Indexed, "extra": r.Extra}
	}
	return map[string]interface{}{"success": true, "data": data}, nil
}

type deleteDataRequest struct {
	Table  string          `json:"table"`
	Filter json.RawMessage `json:"filter"`
}

func (s *Session) handleDeleteData(body json.RawMessage) (interface{}, error) {
	var req deleteDataRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Table == "" {
		return nil, wire.CodeError(wire.ErrMalformedRequest)
	}

	desc, err := s.catalog.Get(s.owner, req.Table)
	if err != nil {
		return nil, err
	}

	filter, err := s.decodeFilter(desc, req.Filter)
	if err != nil {
		return nil, err
	}

	count, err := s.store.DeleteData(s.owner, req.Table, filter)
	if err != nil {
		return nil, wire.CodeError(wire.ErrMalformedRequest)
	}
	return map[string]interface{}{"success": true, "count": count}, nil
}
