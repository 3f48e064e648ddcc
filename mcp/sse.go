package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/agentrt/miroflow-go/agent/model"
)

// SSECaller implements Caller over the sse transport: requests are issued as
// HTTP POSTs; the server responds with a text/event-stream body carrying one
// or more framed SSE events, one of which is the JSON-RPC response.
type SSECaller struct {
	transport *httpTransport
}

// NewSSECaller connects to an sse tool server.
func NewSSECaller(ctx context.Context, opts HTTPOptions) (*SSECaller, error) {
	t, err := newHTTPTransport(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &SSECaller{transport: t}, nil
}

func (c *SSECaller) ListTools(ctx context.Context) ([]model.ToolDefinition, error) {
	return c.transport.listTools(ctx, acceptSSE)
}

func (c *SSECaller) CallTool(ctx context.Context, toolName string, arguments map[string]any) (string, error) {
	return c.transport.callTool(ctx, toolName, arguments, acceptSSE)
}

func (c *SSECaller) Close() error { return nil }

// readSSEResponse scans a text/event-stream body for the frame whose event
// name is "response" (or unnamed, treated as a response) and decodes its
// data payload as a JSON-RPC response. An "error" frame is decoded and
// returned the same way. Notification and unknown frames are skipped; a
// "close" frame before any response ends the scan with an error.
func readSSEResponse(body io.Reader) (*rpcResponse, error) {
	reader := bufio.NewReader(body)
	for {
		event, data, err := readSSEEvent(reader)
		if err != nil {
			return nil, err
		}
		switch event {
		case "error":
			var resp rpcResponse
			if err := json.Unmarshal([]byte(data), &resp); err != nil {
				return nil, err
			}
			return &resp, nil
		case "close":
			return nil, fmt.Errorf("sse stream closed before a response frame arrived")
		case "", "response", "notification":
			var resp rpcResponse
			if err := json.Unmarshal([]byte(data), &resp); err != nil {
				// Not every notification frame is a JSON-RPC response; skip
				// anything that doesn't parse and keep reading.
				continue
			}
			if event == "notification" {
				continue
			}
			return &resp, nil
		default:
			continue
		}
	}
}

// readSSEEvent reads one blank-line-terminated SSE frame, returning its
// event name (default "") and concatenated data lines.
func readSSEEvent(r *bufio.Reader) (event string, data string, err error) {
	var dataLines []string
	sawAny := false
	for {
		line, readErr := r.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" {
			sawAny = true
			switch {
			case strings.HasPrefix(trimmed, "event:"):
				event = strings.TrimSpace(trimmed[len("event:"):])
			case strings.HasPrefix(trimmed, "data:"):
				dataLines = append(dataLines, strings.TrimPrefix(trimmed, "data:"))
			}
		}
		if readErr != nil {
			if sawAny {
				return event, strings.Join(dataLines, "\n"), nil
			}
			return "", "", readErr
		}
		if trimmed == "" && sawAny {
			return event, strings.Join(dataLines, "\n"), nil
		}
	}
}
