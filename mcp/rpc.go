package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/agentrt/miroflow-go/agent/toolerrors"
)

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      uint64 `json:"id"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      uint64          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// initializeResult is the minimal shape this client reads from an
// "initialize" response; unrecognized fields are ignored.
type initializeResult struct {
	ProtocolVersion string `json:"protocolVersion"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

// toolSchema is the wire shape of one entry in a tools/list response.
type toolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type listToolsResult struct {
	Tools []toolSchema `json:"tools"`
}

// contentItem is one element of a tools/call result's content array.
type contentItem struct {
	Type     string  `json:"type"`
	Text     *string `json:"text,omitempty"`
	MimeType *string `json:"mimeType,omitempty"`
}

func (c contentItem) text() string {
	if c.Text == nil {
		return ""
	}
	return *c.Text
}

type toolsCallResult struct {
	Content []contentItem `json:"content"`
	IsError bool          `json:"isError"`
}

// normalizeToolResult returns the text of the LAST content block of a
// tools/call response, or an empty string when there are no content blocks.
//
// This deliberately diverges from the first-content-block convention seen
// elsewhere in the reference corpus: the specification requires the last
// block's text (see DESIGN.md).
func normalizeToolResult(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var result toolsCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", toolerrors.NewKindWithCause(toolerrors.KindToolExecution, "malformed tools/call result", err)
	}
	if len(result.Content) == 0 {
		return "", nil
	}
	return result.Content[len(result.Content)-1].text(), nil
}

func decodeToolSchemas(raw json.RawMessage) ([]toolSchema, error) {
	var out listToolsResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, toolerrors.NewKindWithCause(toolerrors.KindToolExecution, "malformed tools/list result", err)
	}
	return out.Tools, nil
}
