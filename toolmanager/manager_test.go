package toolmanager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/miroflow-go/agent/model"
	"github.com/agentrt/miroflow-go/mcp"
)

type fakeCaller struct {
	tools    []model.ToolDefinition
	listErr  error
	callText string
	callErr  error
}

func (f *fakeCaller) ListTools(context.Context) ([]model.ToolDefinition, error) {
	return f.tools, f.listErr
}
func (f *fakeCaller) CallTool(context.Context, string, map[string]any) (string, error) {
	return f.callText, f.callErr
}
func (f *fakeCaller) Close() error { return nil }

func TestExecuteToolCallRoutesAndReportsErrorsAsData(t *testing.T) {
	ok := &fakeCaller{callText: "4"}
	failing := &fakeCaller{callErr: errors.New("boom")}

	m := &Manager{
		servers: map[string]mcp.Caller{
			"tool-python": ok,
			"tool-bad":    failing,
		},
		order: []string{"tool-python", "tool-bad"},
	}

	res := m.ExecuteToolCall(context.Background(), "tool-python", "run_python_code", nil)
	require.Empty(t, res.Error)
	assert.Equal(t, "4", res.Result)

	res = m.ExecuteToolCall(context.Background(), "tool-bad", "whatever", nil)
	require.NotEmpty(t, res.Error)
	assert.Empty(t, res.Result)

	res = m.ExecuteToolCall(context.Background(), "unknown", "whatever", nil)
	assert.Equal(t, "Server unknown not found", res.Error)
}

func TestGetAllToolDefinitionsReportsServerErrorsSeparately(t *testing.T) {
	ok := &fakeCaller{tools: []model.ToolDefinition{{ToolName: "run_python_code"}}}
	failing := &fakeCaller{listErr: errors.New("down")}

	m := &Manager{
		servers: map[string]mcp.Caller{"tool-python": ok, "tool-bad": failing},
		order:   []string{"tool-python", "tool-bad"},
	}

	out := m.GetAllToolDefinitions(context.Background())
	require.Len(t, out, 2)
	assert.Equal(t, "tool-python", out[0].ServerName)
	assert.Empty(t, out[0].Error)
	assert.Equal(t, "tool-bad", out[1].ServerName)
	assert.NotEmpty(t, out[1].Error)
}
