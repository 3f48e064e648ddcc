package toolmanager

import (
	"github.com/agentrt/miroflow-go/agent/model"
	"github.com/agentrt/miroflow-go/config"
)

// FilterForRole narrows an aggregated tool definition set to the ones a
// given agent role is permitted to see. Evaluation order (SPEC_FULL §4.2):
// the block list is checked first — a tool named either by its bare tool
// name or as "server_name.tool_name" in ToolBlacklist is excluded outright —
// then the allow list, which when non-empty restricts the surviving set to
// exactly its named members (same two name forms).
func FilterForRole(defs []model.ToolDefinition, role config.AgentRole) []model.ToolDefinition {
	blocked := toSet(role.ToolBlacklist)
	allowed := toSet(role.Tools)

	out := make([]model.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		qualified := d.ServerName + "." + d.ToolName
		if blocked[d.ToolName] || blocked[qualified] {
			continue
		}
		if len(allowed) > 0 && !allowed[d.ToolName] && !allowed[qualified] {
			continue
		}
		out = append(out, d)
	}
	return out
}

// FilterServerDefinitionsForRole applies FilterForRole per server, preserving
// the per-server grouping promptbuilder.Build needs to render headings,
// rather than flattening first and losing which server a surviving tool
// belongs to.
func FilterServerDefinitionsForRole(servers []ServerToolDefinitions, role config.AgentRole) []ServerToolDefinitions {
	out := make([]ServerToolDefinitions, len(servers))
	for i, s := range servers {
		out[i] = ServerToolDefinitions{ServerName: s.ServerName, Error: s.Error, Tools: FilterForRole(s.Tools, role)}
	}
	return out
}

// FlattenToolDefinitions concatenates every server's tool definitions into a
// single slice, the shape model.Request.ToolDefinitions and
// model.FilterValidToolDefinitions expect.
func FlattenToolDefinitions(servers []ServerToolDefinitions) []model.ToolDefinition {
	var out []model.ToolDefinition
	for _, s := range servers {
		out = append(out, s.Tools...)
	}
	return out
}

func toSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
