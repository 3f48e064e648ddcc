package toolmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentrt/miroflow-go/agent/model"
	"github.com/agentrt/miroflow-go/config"
)

func defs() []model.ToolDefinition {
	return []model.ToolDefinition{
		{ServerName: "tool-python", ToolName: "run_python_code"},
		{ServerName: "tool-search", ToolName: "google_search"},
		{ServerName: "tool-search", ToolName: "browse_page"},
	}
}

func TestFilterForRoleBlockListTakesPrecedence(t *testing.T) {
	role := config.AgentRole{
		Tools:         []string{"run_python_code", "google_search"},
		ToolBlacklist: []string{"google_search"},
	}
	out := FilterForRole(defs(), role)
	assert.Len(t, out, 1)
	assert.Equal(t, "run_python_code", out[0].ToolName)
}

func TestFilterForRoleEmptyAllowListKeepsAllNonBlocked(t *testing.T) {
	role := config.AgentRole{ToolBlacklist: []string{"browse_page"}}
	out := FilterForRole(defs(), role)
	assert.Len(t, out, 2)
}

func TestFilterForRoleQualifiedNames(t *testing.T) {
	role := config.AgentRole{ToolBlacklist: []string{"tool-search.browse_page"}}
	out := FilterForRole(defs(), role)
	for _, d := range out {
		assert.NotEqual(t, "browse_page", d.ToolName)
	}
}
