// Package types defines the paired request/response types of spec §4.15:
// every RPC method gets one Go type pair with both a JSON encoding (tagged
// for github.com/segmentio/encoding/json, mirroring C7's addressbook
// persistence choice) and an epee encoding (FieldCount/WriteFields/AddField,
// following internal/levin's CoreSyncData pattern) so the same value can
// serve the /json_rpc envelope, a fixed JSON endpoint, or a fixed .bin
// endpoint without three separate type definitions.
package types

import (
	json "github.com/segmentio/encoding/json"

	"github.com/cuprate/cuprate/internal/cuperrors"
)

// JSON-RPC 2.0 error codes (spec §4.15, §6).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// CodeRestricted has the standard method-not-found value (-32601),
	// reused as the reference daemon's restricted-method rejection code;
	// it is returned when a restricted method is called against a
	// restricted listener (spec §4.16).
	CodeRestricted = -32601
)

// RPCError is the JSON-RPC 2.0 "error" object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Request is the JSON-RPC 2.0 envelope, decoded generically before the
// method string selects a paired Params/Result type to decode Params into.
// ID is left as json.RawMessage because the spec requires it to round-trip
// verbatim whether it was a string, a number, or null — decoding it into a
// concrete Go type first and re-encoding it risks normalizing e.g. 1 vs
// 1.0 vs "1" differently than the caller sent it.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether r carries no id, per spec §4.15: a
// notification must not receive a response of any kind, success or error.
func (r Request) IsNotification() bool { return len(r.ID) == 0 }

// Response is the JSON-RPC 2.0 envelope for a reply. Exactly one of Result
// or Error is set, matching the standard's mutual exclusion.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// nullID is the verbatim id payload used when a request couldn't be parsed
// far enough to recover its own id (spec §4.15: "or null on parse error").
var nullID = json.RawMessage("null")

// NewErrorResponse builds a Response carrying code/message against id. A
// nil id (e.g. a parse error before any id field was readable) is reported
// as the literal JSON null, never an empty/omitted field.
func NewErrorResponse(id json.RawMessage, code int, message string) *Response {
	if len(id) == 0 {
		id = nullID
	}
	return &Response{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
}

// NewResultResponse marshals result and wraps it as a successful Response.
func NewResultResponse(id json.RawMessage, result interface{}) (*Response, error) {
	body, err := json.Marshal(result)
	if err != nil {
		return nil, cuperrors.New(cuperrors.ERR_RPC_INTERNAL, "marshal result", err)
	}
	return &Response{JSONRPC: "2.0", ID: id, Result: body}, nil
}

// ErrorFromCuprate translates a *cuperrors.Error raised by a handler into
// the JSON-RPC error code space, per spec §7 "RPC: input errors return
// JSON-RPC error objects; internal failures log and return -32603."
func ErrorFromCuprate(err error) (code int, message string) {
	cerr, ok := err.(*cuperrors.Error)
	if !ok {
		return CodeInternalError, err.Error()
	}
	switch cerr.Code {
	case cuperrors.ERR_RPC_PARSE:
		return CodeParseError, cerr.Error()
	case cuperrors.ERR_RPC_INVALID_PARAMS, cuperrors.ERR_INVALID_ARGUMENT, cuperrors.ERR_FORMAT:
		return CodeInvalidParams, cerr.Error()
	case cuperrors.ERR_RPC_METHOD_NOT_FOUND:
		return CodeMethodNotFound, cerr.Error()
	case cuperrors.ERR_RPC_RESTRICTED:
		return CodeRestricted, cerr.Error()
	default:
		return CodeInternalError, cerr.Error()
	}
}
