// Package protocol defines the JSON-RPC 2.0 wire types shared by every
// transport and by the daemon client.
package protocol

import (
	"encoding/json"
	"strconv"
)

const Version = "2.0"

// JSON-RPC 2.0 error codes, plus the application range used for tool
// failures.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeToolNotFound   = -32001
	CodeToolExecFailed = -32002
)

// Request is a decoded JSON-RPC request or notification. ID is kept raw so
// that an absent id (notification) stays distinguishable from id 0 or "".
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id and therefore
// must never produce a response.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// ValidID reports whether the id, when present, is a string or a number.
func (r *Request) ValidID() bool {
	if r.IsNotification() {
		return true
	}
	var s string
	if err := json.Unmarshal(r.ID, &s); err == nil {
		return true
	}
	var n float64
	if err := json.Unmarshal(r.ID, &n); err == nil {
		return true
	}
	return false
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return strconv.Itoa(e.Code) + ": " + e.Message
}

// NewResponse builds a success response echoing the request id.
func NewResponse(id json.RawMessage, result any) *Response {
	return &Response{JSONRPC: Version, ID: id, Result: result}
}

// NewErrorResponse builds an error response echoing the request id. A nil id
// marshals as null, which is what parse errors require.
func NewErrorResponse(id json.RawMessage, code int, message string, data any) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error:   &Error{Code: code, Message: message, Data: data},
	}
}

// StringID encodes a string request id.
func StringID(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}

// IntID encodes a numeric request id.
func IntID(n int64) json.RawMessage {
	return json.RawMessage(strconv.FormatInt(n, 10))
}

// Tool is the catalog listing entry served by tools/list and by the HTTP
// listing endpoint.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type InitializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ClientInfo      ClientInfo `json:"clientInfo"`
}

type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type InitializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	Capabilities    any        `json:"capabilities"`
	ServerInfo      ServerInfo `json:"serverInfo"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
