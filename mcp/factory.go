package mcp

import (
	"context"
	"fmt"

	"github.com/agentrt/miroflow-go/agent/toolerrors"
	"github.com/agentrt/miroflow-go/config"
)

// Connect builds the Caller named by cfg.Kind, dialing the transport and
// performing the initialize handshake synchronously.
func Connect(ctx context.Context, cfg config.ToolServerConfig) (Caller, error) {
	switch cfg.Kind {
	case config.ToolServerStdio:
		return NewStdioCaller(ctx, StdioOptions{Command: cfg.Command, Args: cfg.Args, Env: cfg.Env})
	case config.ToolServerSSE:
		return NewSSECaller(ctx, HTTPOptions{Endpoint: cfg.URL})
	case config.ToolServerStreamableHTTP:
		return NewHTTPCaller(ctx, HTTPOptions{Endpoint: cfg.URL})
	default:
		return nil, toolerrors.NewKind(toolerrors.KindTransport, fmt.Sprintf("unknown tool server kind %q", cfg.Kind))
	}
}
