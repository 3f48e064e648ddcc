// Package promptbuilder implements the Prompt Builder (C5): it renders the
// system prompt that declares the framed tool-use protocol, lists every
// available server and tool, and appends a role-specific objective
// paragraph. The server/tool heading layout here is load-bearing — package
// parser depends on the exact "## Server name:" / "### Tool name:" forms to
// build its name-correction map (spec.md §4.5).
package promptbuilder

import (
	"fmt"
	"strings"
	"time"

	"github.com/agentrt/miroflow-go/toolmanager"
)

const toolUseProtocol = `In this environment you have access to a set of tools you can use to answer the user's question.

You only have access to the tools provided below. You can only use one tool per message, and will receive the result of that tool in the user's next response. You use tools step-by-step to accomplish a given task, with each tool-use informed by the result of the previous tool-use. Today is: %s

# Tool-Use Formatting Instructions

Tool-use is formatted using XML-style tags. The tool-use is enclosed in <use_mcp_tool></use_mcp_tool> and each parameter is similarly enclosed within its own set of tags.

The Model Context Protocol (MCP) connects to servers that provide additional tools and resources to extend your capabilities. You can use a server's tools via use_mcp_tool.

Parameters:
- server_name: (required) the name of the MCP server providing the tool
- tool_name: (required) the name of the tool to execute
- arguments: (required) a JSON object containing the tool's input parameters, following the tool's input schema; quotes within string values must be properly escaped to keep the object valid JSON

Usage:
<use_mcp_tool>
<server_name>server name here</server_name>
<tool_name>tool name here</tool_name>
<arguments>
{
"param1": "value1",
"param2": "value2 \"escaped string\""
}
</arguments>
</use_mcp_tool>

Important Notes:
- Tool-use must be placed at the end of your response, top-level, and not nested within other tags.
- Always adhere to this format for the tool use to ensure proper parsing and execution.

String and scalar parameters should be specified as is, while lists and objects should use JSON format. Spaces within string values are not stripped. The output is not expected to be valid XML and is parsed with regular expressions.
Here are the functions available in JSONSchema format:
`

// Build renders the full system prompt for one agent turn: the protocol
// header, a "## Server name:" / "### Tool name:" block per connected server
// (tools that failed to load are skipped, per spec.md §4.5), and the
// objective paragraph for roleName.
func Build(now time.Time, servers []toolmanager.ServerToolDefinitions, roleName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, toolUseProtocol, now.Format("2006-01-02"))

	for _, server := range servers {
		fmt.Fprintf(&b, "\n## Server name: %s\n", server.ServerName)
		for _, tool := range server.Tools {
			if tool.ToolName == "" {
				continue
			}
			fmt.Fprintf(&b, "### Tool name: %s\n", tool.ToolName)
			fmt.Fprintf(&b, "Description: %s\n", tool.Description)
			fmt.Fprintf(&b, "Input JSON schema: %s\n", schemaOrEmpty(tool.InputSchema))
		}
	}

	b.WriteString("\n# General Objective\n\nYou accomplish a given task iteratively, breaking it down into clear steps and working through them methodically.\n\n")
	b.WriteString(ObjectiveFor(roleName))
	return b.String()
}

func schemaOrEmpty(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
