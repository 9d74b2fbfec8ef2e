// Package wire defines the JSON message shapes exchanged over a PhasmaDB
// session, independent of transport and of either side's implementation.
package wire

import (
	"encoding/json"
	"fmt"
)

// Error codes, per the session protocol's error taxonomy.
const (
	ErrUnknownCommand   = 1
	ErrMalformedRequest = 2

	ErrNoSuchUser   = 101
	ErrAuthFailure  = 102

	ErrNoSuchTable   = 201
	ErrTableExists   = 202

	ErrRowNotFound        = 301
	ErrUniqueViolation    = 302
	ErrMissingIndexValue  = 303
	ErrUndeclaredColumn   = 304
	ErrIndexTypeMismatch  = 305
)

// IndexType is one of the four column index kinds the catalog understands.
type IndexType string

const (
	IndexSort       IndexType = "sort"
	IndexUnique     IndexType = "unique"
	IndexText       IndexType = "text"
	IndexUniqueText IndexType = "unique_text"
)

// Valid reports whether t is one of the four declared index types.
func (t IndexType) Valid() bool {
	switch t {
	case IndexSort, IndexUnique, IndexText, IndexUniqueText:
		return true
	}
	return false
}

// Numeric reports whether columns of this type hold order-preserving
// encoded integers rather than string/token values.
func (t IndexType) Numeric() bool {
	return t == IndexSort || t == IndexUnique
}

// Unique reports whether the catalog must enforce column-wise uniqueness.
func (t IndexType) Unique() bool {
	return t == IndexUnique || t == IndexUniqueText
}

// HelloRequest is the first client-to-server handshake frame.
type HelloRequest struct {
	Username string `json:"username"`
}

// ChallengeResponse is the server's reply to HelloRequest.
type ChallengeResponse struct {
	Challenge *string `json:"challenge"`
	Error     int     `json:"error,omitempty"`
}

// ChallengeAnswer is the client's reply to ChallengeResponse.
type ChallengeAnswer struct {
	Response string `json:"response"`
}

// AuthFailure is sent, then the connection is closed, when the challenge
// answer does not match.
type AuthFailure struct {
	Success bool `json:"success"`
	Error   int  `json:"error"`
}

// Command is a decoded client-to-server request. Body is the raw frame so
// each handler can re-decode it into its own concrete shape.
type Command struct {
	Cmd   string          `json:"cmd"`
	CmdID string          `json:"cmd_id,omitempty"`
	Body  json.RawMessage `json:"-"`
}

// UnmarshalJSON extracts cmd/cmd_id and retains the whole frame as Body.
func (c *Command) UnmarshalJSON(data []byte) error {
	type alias struct {
		Cmd   string `json:"cmd"`
		CmdID string `json:"cmd_id,omitempty"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	c.Cmd = a.Cmd
	c.CmdID = a.CmdID
	c.Body = append(json.RawMessage(nil), data...)
	return nil
}

// Envelope is the generic server-to-client response shape. The server's
// handlers build their responses as map[string]interface{}; this type
// documents the common fields every response may carry.
type Envelope struct {
	Success bool        `json:"success"`
	Error   int         `json:"error,omitempty"`
	CmdID   string      `json:"cmd_id,omitempty"`
	Data    interface{} `json:"-"`
}

// Farewell is the response to an exit command.
type Farewell struct {
	Farewell bool   `json:"farewell"`
	CmdID    string `json:"cmd_id,omitempty"`
}

// Row is the wire shape of a stored row as returned to the client.
type Row struct {
	Indexed map[string]interface{} `json:"indexed"`
	Extra   string                 `json:"extra"`
}

// DatumResult is the per-row_id outcome of an insert_data call.
type DatumResult struct {
	Success bool `json:"success"`
	Error   int  `json:"error,omitempty"`
}

// SortKey is a single (column, direction) pair in a query_data request.
type SortKey struct {
	Column    string `json:"column"`
	Direction string `json:"direction"`
}

// CodeError carries one of the protocol/catalog/data error codes above as
// a Go error, so internal packages can return it and the dispatcher can
// recover the code without string matching.
type CodeError int

func (e CodeError) Error() string {
	return fmt.Sprintf("phasmadb: error code %d", int(e))
}

// Code returns the wire error code.
func (e CodeError) Code() int { return int(e) }
