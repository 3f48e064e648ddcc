package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/miroflow-go/agent/model"
)

func TestParseNativeDialectPassesNativeCallsThrough(t *testing.T) {
	resp := &model.Response{
		RawText: "Let me check that.",
		NativeToolCalls: []model.ToolCall{
			{ID: "call_1", ServerName: "tool-python", ToolName: "run_python_code", Arguments: map[string]any{"code": "1+1"}},
		},
	}
	out := Parse(resp, nil)
	assert.Equal(t, "Let me check that.", out.Text)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "call_1", out.ToolCalls[0].ID)
	assert.Equal(t, "run_python_code", out.ToolCalls[0].ToolName)
}

func TestParseFramedDialectExtractsCallsAndStopsTextAtFirstTag(t *testing.T) {
	resp := &model.Response{RawText: `Here is my plan.

<use_mcp_tool>
<server_name>tool-python</server_name>
<tool_name>run_python_code</tool_name>
<arguments>
{"code": "print(1)"}
</arguments>
</use_mcp_tool>`}

	out := Parse(resp, nil)
	assert.Equal(t, "Here is my plan.", out.Text)
	require.Len(t, out.ToolCalls, 1)
	assert.Empty(t, out.ToolCalls[0].ID)
	assert.Equal(t, "tool-python", out.ToolCalls[0].ServerName)
}

func TestParseAppliesNameCorrectionToFramedCalls(t *testing.T) {
	resp := &model.Response{RawText: `<use_mcp_tool>
<server_name>wrong</server_name>
<tool_name>python</tool_name>
<arguments>{}</arguments>
</use_mcp_tool>`}

	nc := BuildNameCorrector(testPrompt)
	out := Parse(resp, nc)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "tool-python", out.ToolCalls[0].ServerName)
	assert.Equal(t, "run_python_code", out.ToolCalls[0].ToolName)
}

func TestExtractTextAndReasoningWithThinkBlock(t *testing.T) {
	text, reasoning := extractTextAndReasoning("<think>\nmy plan\n</think>\n\nvisible answer")
	assert.Equal(t, "visible answer", text)
	assert.Equal(t, "my plan", reasoning)
}

func TestExtractTextAndReasoningNoThinkBlock(t *testing.T) {
	text, reasoning := extractTextAndReasoning("just text")
	assert.Equal(t, "just text", text)
	assert.Empty(t, reasoning)
}

func TestSplitCompoundToolNameLastDash(t *testing.T) {
	server, tool := SplitCompoundToolName("tool-search-google_search")
	assert.Equal(t, "tool-search", server)
	assert.Equal(t, "google_search", tool)
}

func TestSplitCompoundToolNameNoDash(t *testing.T) {
	server, tool := SplitCompoundToolName("google_search")
	assert.Equal(t, "", server)
	assert.Equal(t, "google_search", tool)
}
