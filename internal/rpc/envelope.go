// Package rpc wraps the MCP JSON-RPC wire envelope over the official
// modelcontextprotocol/go-sdk codec.
package rpc

import (
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

// Message wraps a decoded JSON-RPC message with gateway metadata. Raw is kept
// alongside Decoded so error/ordinary replies can be forwarded byte-for-byte
// when the gateway has no reason to rewrite them.
type Message struct {
	Raw       []byte
	Decoded   jsonrpc.Message
	Timestamp time.Time
}

// Decode parses raw bytes as a single JSON-RPC message (request or response).
// Malformed input yields a nil Decoded with the raw bytes still attached, so
// callers can distinguish "unparsable" (InvalidJson) from a structurally
// valid message of the wrong shape.
func Decode(raw []byte) *Message {
	msg := &Message{Raw: raw, Timestamp: time.Now()}
	req := new(jsonrpc.Request)
	if err := json.Unmarshal(raw, req); err == nil && req.Method != "" {
		msg.Decoded = req
		return msg
	}
	resp := new(jsonrpc.Response)
	if err := json.Unmarshal(raw, resp); err == nil {
		msg.Decoded = resp
		return msg
	}
	return msg
}

// IsRequest reports whether the message decoded as a JSON-RPC request.
func (m *Message) IsRequest() bool {
	_, ok := m.Decoded.(*jsonrpc.Request)
	return ok
}

// Method returns the method name if this is a request, empty string otherwise.
func (m *Message) Method() string {
	req, ok := m.Decoded.(*jsonrpc.Request)
	if !ok {
		return ""
	}
	return req.Method
}

// RawID extracts the "id" field from the raw bytes directly, preserving its
// original JSON shape (number, string, or null) for echoing in replies.
func (m *Message) RawID() json.RawMessage {
	if m.Raw == nil {
		return nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(m.Raw, &raw); err != nil {
		return nil
	}
	return raw["id"]
}

// ToolName extracts params.name from a tools/call request. Returns "" if the
// message is not a tools/call request or params.name is absent/non-string.
func (m *Message) ToolName() string {
	if m.Method() != "tools/call" {
		return ""
	}
	req, ok := m.Decoded.(*jsonrpc.Request)
	if !ok || req.Params == nil {
		return ""
	}
	var params struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return ""
	}
	return params.Name
}

// ResultObject extracts the "result" field of a raw JSON-RPC response as a
// raw JSON object, or nil if absent (i.e. the reply was an error response).
func ResultObject(raw []byte) json.RawMessage {
	var parsed struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}
	return parsed.Result
}

// ReplaceResult swaps the "result" field of a raw JSON-RPC response, leaving
// jsonrpc/id/error untouched, and returns the re-marshaled bytes.
func ReplaceResult(raw []byte, result json.RawMessage) ([]byte, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	generic["result"] = result
	return json.Marshal(generic)
}

// ErrorReply builds a JSON-RPC error response for id with the given code and
// message. id may be nil for notifications-turned-errors.
func ErrorReply(id json.RawMessage, code int64, message string) []byte {
	type errDetail struct {
		Code    int64  `json:"code"`
		Message string `json:"message"`
	}
	type reply struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id,omitempty"`
		Error   errDetail       `json:"error"`
	}
	out, _ := json.Marshal(reply{
		JSONRPC: "2.0",
		ID:      id,
		Error:   errDetail{Code: code, Message: message},
	})
	return out
}

// JSON-RPC error codes the router/handler use when building replies locally.
const (
	ErrCodeInvalidRequest int64 = -32600
	ErrCodeMethodNotFound int64 = -32601
	ErrCodeInternal       int64 = -32603
	ErrCodeParse          int64 = -32700
)
