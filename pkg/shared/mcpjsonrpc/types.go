package mcpjsonrpc

import "encoding/json"

// Based on JSON-RPC 2.0 Specification: https://www.jsonrpc.org/specification
// and the MCP wire format built on top of it.

// Version is the JSON-RPC protocol version carried by every frame.
const Version = "2.0"

// Request represents a JSON-RPC request object. A request without an ID is a
// notification and receives no response.
type Request struct {
	Version string      `json:"jsonrpc"`          // MUST be "2.0"
	Method  string      `json:"method"`           // Method to be invoked
	Params  interface{} `json:"params,omitempty"` // Parameters (structured value)
	ID      *int64      `json:"id,omitempty"`     // Request identifier; nil for notifications
}

// Response represents a JSON-RPC response object.
type Response struct {
	Version string          `json:"jsonrpc"`          // MUST be "2.0"
	Result  json.RawMessage `json:"result,omitempty"` // Required on success
	Error   *Error          `json:"error,omitempty"`  // Required on error
	ID      *int64          `json:"id"`               // Matches the request ID
}

// Error represents a JSON-RPC error object.
type Error struct {
	Code    int         `json:"code"`           // Error code
	Message string      `json:"message"`        // Error message
	Data    interface{} `json:"data,omitempty"` // Additional data about the error
}

// Error codes (subset, based on JSON-RPC spec and MCP server conventions).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	// -32000 to -32099: Server error (implementation-defined).
	CodeServerErrorToolNotFound = -32000
	CodeServerErrorToolFailed   = -32001
)

// MCP method names used by the router.
const (
	MethodInitialize              = "initialize"
	MethodNotificationInitialized = "notifications/initialized"
	MethodToolsCall               = "tools/call"
	MethodToolsList               = "tools/list"
)

// InitializeParams is the "params" payload of the MCP initialize handshake.
type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ClientInfo      Implementation         `json:"clientInfo"`
}

// Implementation identifies a client or server implementation.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// CallToolParams is the "params" payload of a tools/call request.
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// CallToolResult is the "result" payload of a tools/call response. IsError
// marks a tool-level failure: the provider executed the tool but the tool
// itself reported an error in its content.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Content is one content block of a tool result. Only text blocks are
// consumed by the router.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}
