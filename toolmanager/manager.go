// Package toolmanager implements the Tool Manager (C2): it multiplexes a set
// of named tool servers, aggregates their tool schemas, and routes
// invocations by (server_name, tool_name). Tool execution failures are never
// propagated as control-flow errors — they become a ToolResult carrying an
// error string, because a failed tool call is expected conversation data,
// not an exceptional condition (spec §4.2/§7).
package toolmanager

import (
	"context"
	"fmt"

	"github.com/agentrt/miroflow-go/agent/model"
	"github.com/agentrt/miroflow-go/config"
	"github.com/agentrt/miroflow-go/mcp"
	"github.com/agentrt/miroflow-go/retry"
	"github.com/agentrt/miroflow-go/telemetry"
)

// ToolResult is the outcome of one tool invocation. Exactly one of Result or
// Error is set.
type ToolResult struct {
	ServerName string
	ToolName   string
	Result     string
	Error      string
}

// ServerToolDefinitions pairs a server with either its tool list or a load
// error, so a server that fails to list can still let the prompt surface
// the others.
type ServerToolDefinitions struct {
	ServerName string
	Tools      []model.ToolDefinition
	Error      string
}

// Manager holds one Caller per configured tool server.
type Manager struct {
	servers map[string]mcp.Caller
	order   []string
	tel     telemetry.Bundle
}

// New connects to every configured tool server using a bounded-retry dial
// for each under retry.DefaultPolicy; every dial error is retried, whatever
// its cause. A server that still fails to connect is logged and left out of
// the manager: GetAllToolDefinitions does not list it and calls to it return
// a "Server <name> not found" ToolResult. Connected servers are retained in
// configuration order.
func New(ctx context.Context, cfgs []config.ToolServerConfig, tel telemetry.Bundle) *Manager {
	m := &Manager{servers: make(map[string]mcp.Caller, len(cfgs)), tel: tel}
	for _, cfg := range cfgs {
		caller, err := dialWithRetry(ctx, cfg)
		if err != nil {
			tel.Log.Warn(ctx, "tool server connect failed", "server", cfg.Name, "error", err.Error())
			continue
		}
		m.servers[cfg.Name] = caller
		m.order = append(m.order, cfg.Name)
	}
	return m
}

func dialWithRetry(ctx context.Context, cfg config.ToolServerConfig) (mcp.Caller, error) {
	var caller mcp.Caller
	err := retry.Do(ctx, retry.DefaultPolicy(), func(error) bool { return true }, func(ctx context.Context) error {
		c, err := mcp.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		caller = c
		return nil
	})
	return caller, err
}

// GetAllToolDefinitions lists tools for every connected server, in
// configuration order. A server whose ListTools call fails is reported as a
// ServerToolDefinitions with Error set, not omitted.
func (m *Manager) GetAllToolDefinitions(ctx context.Context) []ServerToolDefinitions {
	out := make([]ServerToolDefinitions, 0, len(m.order))
	for _, name := range m.order {
		caller := m.servers[name]
		defs, err := caller.ListTools(ctx)
		if err != nil {
			out = append(out, ServerToolDefinitions{ServerName: name, Error: err.Error()})
			continue
		}
		for i := range defs {
			defs[i].ServerName = name
		}
		out = append(out, ServerToolDefinitions{ServerName: name, Tools: defs})
	}
	return out
}

// ExecuteToolCall dispatches one call by (server_name, tool_name). It never
// returns a Go error: unknown servers and transport/tool failures alike
// become a ToolResult with Error set.
func (m *Manager) ExecuteToolCall(ctx context.Context, serverName, toolName string, arguments map[string]any) ToolResult {
	caller, ok := m.servers[serverName]
	if !ok {
		return ToolResult{ServerName: serverName, ToolName: toolName, Error: fmt.Sprintf("Server %s not found", serverName)}
	}
	text, err := caller.CallTool(ctx, toolName, arguments)
	if err != nil {
		return ToolResult{ServerName: serverName, ToolName: toolName, Error: err.Error()}
	}
	return ToolResult{ServerName: serverName, ToolName: toolName, Result: text}
}

// Close closes every connected tool server. Every server is closed even if
// an earlier one fails; only the first failure is returned (wrapped with the
// server's name), so callers that only care whether shutdown was clean can
// check err != nil.
func (m *Manager) Close() error {
	var firstErr error
	for _, name := range m.order {
		if err := m.servers[name].Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing tool server %s: %w", name, err)
		}
	}
	return firstErr
}
