// Package model defines the LLM Client (C3) contract: message/response types
// shared by every provider adapter, the tool-result retention pass, and
// token-usage accounting. The message shape here is intentionally flat
// (role/content/tool_calls/tool_call_id/name) per the data model — not the
// richer Part-based design used elsewhere in the reference corpus — because
// that is the shape the conversation history this module drives actually
// has.
package model

import (
	"context"
	"encoding/json"
)

// Role enumerates the four conversation roles.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a single tool invocation emitted by the model. ID is present
// iff the call was produced in native dialect.
type ToolCall struct {
	ID         string         `json:"id,omitempty"`
	ServerName string         `json:"server_name"`
	ToolName   string         `json:"tool_name"`
	Arguments  map[string]any `json:"arguments"`
}

// Message is one element of a conversation. Content may be empty when the
// message carries only ToolCalls (an assistant turn that only calls tools).
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// HasToolResult reports whether m carries a tool result: either a native
// "tool" role message, or a framed-dialect "user" message standing in for
// one. The retention pass (LLM Client) operates on messages for which this
// is true.
func (m Message) HasToolResult() bool {
	return m.Role == RoleTool || (m.Role == RoleUser && m.ToolCallID != "")
}

// ToolDefinition describes one tool surfaced to the model. Uniqueness is
// (ServerName, ToolName).
type ToolDefinition struct {
	ServerName  string          `json:"server_name"`
	ToolName    string          `json:"tool_name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// TokenUsage accumulates monotonically per LLM client instance.
type TokenUsage struct {
	InputTokens      int `json:"input"`
	OutputTokens     int `json:"output"`
	CacheReadTokens  int `json:"cache_read_input"`
	CacheWriteTokens int `json:"cache_write_input"`
}

// Add accumulates u2 into u in place.
func (u *TokenUsage) Add(u2 TokenUsage) {
	u.InputTokens += u2.InputTokens
	u.OutputTokens += u2.OutputTokens
	u.CacheReadTokens += u2.CacheReadTokens
	u.CacheWriteTokens += u2.CacheWriteTokens
}

// Response is a normalized model response before dialect-specific parsing.
// Provider adapters populate RawText with the full textual response (which
// may itself embed framed tool calls to be extracted by the parser) and,
// when the provider speaks native dialect, NativeToolCalls with the
// structured calls it returned directly.
type Response struct {
	RawText         string
	NativeToolCalls []ToolCall
	Usage           TokenUsage
	StopReason      string
}

// Request is the input to one LLM call.
type Request struct {
	SystemPrompt    string
	History         []Message
	ToolDefinitions []ToolDefinition
	// KeepToolResult configures the retention pass applied to History before
	// it is sent to the provider. -1 disables it; 0 keeps none.
	KeepToolResult int
	// DisableTools, when true, omits ToolDefinitions from the provider
	// request entirely (used by the Answer Generator's final call).
	DisableTools bool
}

// Client is the capability interface every provider adapter implements.
// Implementations are pure functions over (system prompt, history, tools,
// retention parameter): CreateMessage never mutates its input history in
// place, returning the updated copy instead.
type Client interface {
	// CreateMessage calls the model and returns the normalized response plus
	// the message history with the retention pass applied (the history the
	// caller should use for its next turn, not including the new response).
	// On timeout or provider error it returns (nil, history unchanged, nil)
	// — per the error-handling design, ModelCallTimeout/ModelCallError never
	// escape as an error from this call; the caller distinguishes "no
	// response" by checking for a nil *Response.
	CreateMessage(ctx context.Context, req Request) (*Response, []Message, error)
	// FormatTokenUsageSummary returns a human-readable multi-line summary of
	// accumulated token usage plus a single-line structured log string.
	FormatTokenUsageSummary() (display string, logLine string)
	// Usage returns the accumulated token usage for this client instance.
	Usage() TokenUsage
	// Close releases any provider-held resources (HTTP transports, etc).
	Close() error
}
