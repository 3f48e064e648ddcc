// Package parser implements the Response Parser (C4): it turns one raw LLM
// response into visible text, hidden reasoning, and a list of tool calls,
// in whichever of the two tool-call dialects the response used.
//
// Native dialect responses arrive with Response.NativeToolCalls already
// populated by the provider adapter (which splits the provider's compound
// tool name and decodes its arguments JSON at response-construction time,
// since that decoding is provider-shape-specific). Framed dialect responses
// carry no native calls; this package extracts <use_mcp_tool> blocks from
// Response.RawText instead. Either way, every resulting ToolCall passes
// through the same name-correction pass before being returned, because a
// model can misname a tool regardless of which dialect it speaks.
package parser

import (
	"regexp"
	"strings"

	"github.com/agentrt/miroflow-go/agent/model"
)

// ParsedResponse is the output of Parse.
type ParsedResponse struct {
	Text      string
	Reasoning string
	ToolCalls []model.ToolCall
}

var (
	thinkBlockRe  = regexp.MustCompile(`(?s)<think>(.*?)</think>`)
	useMCPToolTag = "<use_mcp_tool>"
)

// Parse extracts text, reasoning, and tool calls from resp. corrector may be
// nil, in which case no name correction is applied.
func Parse(resp *model.Response, corrector *NameCorrector) ParsedResponse {
	text, reasoning := extractTextAndReasoning(resp.RawText)

	var calls []model.ToolCall
	if len(resp.NativeToolCalls) > 0 {
		calls = make([]model.ToolCall, len(resp.NativeToolCalls))
		copy(calls, resp.NativeToolCalls)
	} else {
		calls = extractFramedToolCalls(resp.RawText)
	}

	if corrector != nil {
		for i := range calls {
			calls[i].ServerName, calls[i].ToolName = corrector.Correct(calls[i].ServerName, calls[i].ToolName)
		}
	}

	return ParsedResponse{Text: text, Reasoning: reasoning, ToolCalls: calls}
}

// extractTextAndReasoning mirrors extract_llm_response_text /
// extract_failure_experience_summary: reasoning is the first
// <think>...</think> block's content, if any; visible text is the response
// with that block removed, stopping at the first <use_mcp_tool> opening tag.
func extractTextAndReasoning(raw string) (text, reasoning string) {
	visible := raw
	if m := thinkBlockRe.FindStringSubmatchIndex(raw); m != nil {
		reasoning = strings.TrimSpace(raw[m[2]:m[3]])
		visible = raw[:m[0]] + raw[m[1]:]
	}
	if idx := strings.Index(visible, useMCPToolTag); idx >= 0 {
		text = strings.TrimSpace(visible[:idx])
	} else {
		text = strings.TrimSpace(visible)
	}
	return text, reasoning
}

// SplitCompoundToolName splits a provider's compound tool-call name on its
// last '-' to yield (server_name, tool_name), the native-dialect naming
// convention. Provider adapters call this when decoding a native tool_calls
// / function_call item into a model.ToolCall. A name with no '-' splits to
// ("", name).
func SplitCompoundToolName(name string) (serverName, toolName string) {
	i := strings.LastIndex(name, "-")
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+1:]
}
