// Package mcp implements the Tool Server Client (C1): connecting to a single
// MCP-compatible tool server over one of three transports (stdio, SSE,
// streamable HTTP), listing its tool schemas, and invoking a tool with
// arguments. Transport selection and wire-format detail live here; the Tool
// Manager (package toolmanager) multiplexes a set of named Callers.
package mcp

import (
	"context"
	"time"

	"github.com/agentrt/miroflow-go/agent/model"
)

// JSON-RPC canonical error codes per the MCP wire protocol.
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// Default timeouts named by the specification.
const (
	DefaultCallTimeout    = 600 * time.Second
	DefaultConnectTimeout = 30 * time.Second
)

// Caller is implemented by each of the three transport-specific clients.
type Caller interface {
	// ListTools returns the tool schemas advertised by the server. Returns a
	// toolerrors.KindTransport error if the request cannot be delivered or
	// answered over the transport, and a toolerrors.KindToolExecution error if
	// the server replies with a JSON-RPC error or a result that does not decode.
	ListTools(ctx context.Context) ([]model.ToolDefinition, error)
	// CallTool invokes one tool and returns the text of the last content
	// block in the server's response, or an empty string if the response
	// carries no content blocks.
	CallTool(ctx context.Context, toolName string, arguments map[string]any) (string, error)
	// Close releases any held transport resources (subprocess, connection).
	Close() error
}
