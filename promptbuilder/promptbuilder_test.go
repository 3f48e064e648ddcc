package promptbuilder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/miroflow-go/agent/model"
	"github.com/agentrt/miroflow-go/toolmanager"
)

func TestBuildIncludesDateAndHeadings(t *testing.T) {
	servers := []toolmanager.ServerToolDefinitions{
		{
			ServerName: "tool-python",
			Tools: []model.ToolDefinition{
				{ToolName: "run_python_code", Description: "runs python", InputSchema: []byte(`{"type":"object"}`)},
			},
		},
	}
	out := Build(time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC), servers, "main")

	assert.Contains(t, out, "Today is: 2026-07-29")
	assert.Contains(t, out, "## Server name: tool-python")
	assert.Contains(t, out, "### Tool name: run_python_code")
	assert.Contains(t, out, "Description: runs python")
	assert.Contains(t, out, mainObjective)
}

func TestBuildSkipsToolsThatFailedToLoad(t *testing.T) {
	servers := []toolmanager.ServerToolDefinitions{
		{ServerName: "tool-search", Error: "connect refused"},
	}
	out := Build(time.Now(), servers, "main")
	assert.Contains(t, out, "## Server name: tool-search")
	assert.NotContains(t, out, "### Tool name:")
}

func TestBuildFallsBackToGenericObjectiveForUnknownRole(t *testing.T) {
	out := Build(time.Now(), nil, "some-custom-sub-agent")
	require.Contains(t, out, genericDelegateObjective)
}

func TestObjectiveForKnownRoles(t *testing.T) {
	assert.Equal(t, mainObjective, ObjectiveFor("main"))
	assert.Equal(t, agentBrowsingObjective, ObjectiveFor("agent-browsing"))
	assert.Equal(t, genericDelegateObjective, ObjectiveFor("unrecognized"))
}
