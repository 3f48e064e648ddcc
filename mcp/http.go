package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/agentrt/miroflow-go/agent/model"
	"github.com/agentrt/miroflow-go/agent/toolerrors"
)

// HTTPOptions configures the streamable_http transport.
type HTTPOptions struct {
	Endpoint        string
	Client          *http.Client
	ProtocolVersion string
	ClientName      string
	ClientVersion   string
	InitTimeout     time.Duration
}

// httpTransport is shared between HTTPCaller and SSECaller: both speak
// JSON-RPC request/response over plain HTTP POST, differing only in how they
// read the response body (JSON body vs. an SSE event stream).
type httpTransport struct {
	endpoint string
	client   *http.Client
	nextID   uint64
}

func newHTTPTransport(ctx context.Context, opts HTTPOptions) (*httpTransport, error) {
	if opts.Endpoint == "" {
		return nil, toolerrors.NewKind(toolerrors.KindTransport, "http tool server: endpoint is required")
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultCallTimeout}
	}
	t := &httpTransport{endpoint: opts.Endpoint, client: client}

	protocolVersion := opts.ProtocolVersion
	if protocolVersion == "" {
		protocolVersion = defaultProtocolVersion
	}
	clientName := opts.ClientName
	if clientName == "" {
		clientName = "miroflow-go"
	}
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo":      map[string]any{"name": clientName, "version": opts.ClientVersion},
		"capabilities":    map[string]any{},
	}
	initTimeout := opts.InitTimeout
	if initTimeout <= 0 {
		initTimeout = DefaultConnectTimeout
	}
	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	var result initializeResult
	if err := t.call(initCtx, "initialize", params, &result, acceptJSON); err != nil {
		return nil, err
	}
	return t, nil
}

type acceptKind int

const (
	acceptJSON acceptKind = iota
	acceptSSE
)

func (t *httpTransport) call(ctx context.Context, method string, params any, result any, accept acceptKind) error {
	id := atomic.AddUint64(&t.nextID, 1)
	req := rpcRequest{JSONRPC: "2.0", Method: method, ID: id, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return toolerrors.NewKindWithCause(toolerrors.KindTransport, "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return toolerrors.NewKindWithCause(toolerrors.KindTransport, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if accept == acceptSSE {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return toolerrors.NewKindWithCause(toolerrors.KindTransport, fmt.Sprintf("%s: request failed", method), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return toolerrors.NewKind(toolerrors.KindTransport, fmt.Sprintf("%s: server returned status %d", method, resp.StatusCode))
	}

	var rpcResp rpcResponse
	if accept == acceptSSE {
		r, err := readSSEResponse(resp.Body)
		if err != nil {
			return toolerrors.NewKindWithCause(toolerrors.KindTransport, fmt.Sprintf("%s: sse read failed", method), err)
		}
		rpcResp = *r
	} else {
		if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
			return toolerrors.NewKindWithCause(toolerrors.KindTransport, fmt.Sprintf("%s: malformed response", method), err)
		}
	}

	if rpcResp.Error != nil {
		return toolerrors.NewKindWithCause(toolerrors.KindToolExecution, fmt.Sprintf("%s failed", method), rpcResp.Error)
	}
	if result == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	if raw, ok := result.(*json.RawMessage); ok {
		*raw = rpcResp.Result
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return toolerrors.NewKindWithCause(toolerrors.KindToolExecution, fmt.Sprintf("%s: malformed result", method), err)
	}
	return nil
}

func (t *httpTransport) listTools(ctx context.Context, accept acceptKind) ([]model.ToolDefinition, error) {
	var raw json.RawMessage
	if err := t.call(ctx, "tools/list", map[string]any{}, &raw, accept); err != nil {
		return nil, err
	}
	schemas, err := decodeToolSchemas(raw)
	if err != nil {
		return nil, err
	}
	defs := make([]model.ToolDefinition, 0, len(schemas))
	for _, s := range schemas {
		defs = append(defs, model.ToolDefinition{ToolName: s.Name, Description: s.Description, InputSchema: s.InputSchema})
	}
	return defs, nil
}

func (t *httpTransport) callTool(ctx context.Context, toolName string, arguments map[string]any, accept acceptKind) (string, error) {
	params := map[string]any{"name": toolName, "arguments": arguments}
	var raw json.RawMessage
	if err := t.call(ctx, "tools/call", params, &raw, accept); err != nil {
		return "", err
	}
	return normalizeToolResult(raw)
}

// HTTPCaller implements Caller over the streamable_http transport: plain
// HTTP POST requests carrying JSON-RPC, JSON responses.
type HTTPCaller struct {
	transport *httpTransport
}

// NewHTTPCaller connects to a streamable_http tool server.
func NewHTTPCaller(ctx context.Context, opts HTTPOptions) (*HTTPCaller, error) {
	t, err := newHTTPTransport(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &HTTPCaller{transport: t}, nil
}

func (c *HTTPCaller) ListTools(ctx context.Context) ([]model.ToolDefinition, error) {
	return c.transport.listTools(ctx, acceptJSON)
}

func (c *HTTPCaller) CallTool(ctx context.Context, toolName string, arguments map[string]any) (string, error) {
	return c.transport.callTool(ctx, toolName, arguments, acceptJSON)
}

func (c *HTTPCaller) Close() error { return nil }
