package subagent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/miroflow-go/agent/model"
	"github.com/agentrt/miroflow-go/agent/session/inmem"
	"github.com/agentrt/miroflow-go/config"
	"github.com/agentrt/miroflow-go/tasklog"
	"github.com/agentrt/miroflow-go/telemetry"
	"github.com/agentrt/miroflow-go/toolmanager"
)

type scriptedClient struct {
	responses []*model.Response
	calls     int
}

func (c *scriptedClient) CreateMessage(ctx context.Context, req model.Request) (*model.Response, []model.Message, error) {
	if c.calls >= len(c.responses) {
		return nil, req.History, nil
	}
	resp := c.responses[c.calls]
	c.calls++
	return resp, req.History, nil
}

func (c *scriptedClient) FormatTokenUsageSummary() (string, string) { return "", "" }
func (c *scriptedClient) Usage() model.TokenUsage                   { return model.TokenUsage{} }
func (c *scriptedClient) Close() error                              { return nil }

type fakeTools struct {
	servers []toolmanager.ServerToolDefinitions
	results map[string]toolmanager.ToolResult
	calls   int
}

func (f *fakeTools) GetAllToolDefinitions(ctx context.Context) []toolmanager.ServerToolDefinitions {
	return f.servers
}

func (f *fakeTools) ExecuteToolCall(ctx context.Context, serverName, toolName string, arguments map[string]any) toolmanager.ToolResult {
	f.calls++
	if r, ok := f.results[serverName+"."+toolName]; ok {
		return r
	}
	return toolmanager.ToolResult{ServerName: serverName, ToolName: toolName, Error: "no fake result configured"}
}

func TestRunReturnsFreeTextReportWithoutBoxing(t *testing.T) {
	client := &scriptedClient{responses: []*model.Response{
		{RawText: "I searched and found the answer."},
		{RawText: `The capital of France is Paris. \boxed{should not appear}`},
	}}
	tl := tasklog.New("task-1", "find the capital of France", t.TempDir())
	cfg := Config{WorkflowID: "wf1", Role: config.AgentRole{Name: "agent-browsing", MaxTurns: 5, MaxToolCalls: 5}}
	report, err := Run(context.Background(), cfg,
		Deps{Client: client, Tools: &fakeTools{}, TaskLog: tl, Telemetry: telemetry.Noop()},
		"find the capital of France")
	require.NoError(t, err)
	assert.Contains(t, report, "Paris")
	assert.Contains(t, report, `\boxed{should not appear}`)
	assert.NotEmpty(t, tl.SubAgentMessageHistorySessions)
	assert.Contains(t, tl.SubAgentMessageHistorySessions, "agent-browsing_1")
}

func TestRunExecutesToolsWithinRestrictedSet(t *testing.T) {
	client := &scriptedClient{responses: []*model.Response{
		{NativeToolCalls: []model.ToolCall{{ID: "tc1", ServerName: "fs", ToolName: "read_file", Arguments: map[string]any{"path": "a.txt"}}}},
		{RawText: "done reading"},
	}}
	tools := &fakeTools{
		servers: []toolmanager.ServerToolDefinitions{{ServerName: "fs", Tools: []model.ToolDefinition{
			{ServerName: "fs", ToolName: "read_file", Description: "reads a file"},
			{ServerName: "fs", ToolName: "write_file", Description: "writes a file"},
		}}},
		results: map[string]toolmanager.ToolResult{"fs.read_file": {Result: "contents"}},
	}
	tl := tasklog.New("task-1", "read a.txt", t.TempDir())
	cfg := Config{WorkflowID: "wf1", Role: config.AgentRole{Name: "researcher", Tools: []string{"read_file"}, MaxTurns: 5, MaxToolCalls: 5}}
	_, err := Run(context.Background(), cfg,
		Deps{Client: client, Tools: tools, TaskLog: tl, Telemetry: telemetry.Noop()}, "read a.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, tools.calls)
	require.NotEmpty(t, tl.ToolCallLogs)
	assert.Equal(t, "contents", tl.ToolCallLogs[0].Result)
}

func TestRunEndsSessionInStore(t *testing.T) {
	client := &scriptedClient{responses: []*model.Response{{RawText: "ok"}, {RawText: "report"}}}
	tl := tasklog.New("task-1", "do a thing", t.TempDir())
	store := inmem.New()
	cfg := Config{WorkflowID: "wf1", Role: config.AgentRole{Name: "helper", MaxTurns: 3, MaxToolCalls: 3}}
	_, err := Run(context.Background(), cfg,
		Deps{Client: client, Tools: &fakeTools{}, Sessions: store, TaskLog: tl, Telemetry: telemetry.Noop()}, "do a thing")
	require.NoError(t, err)

	sess, err := store.LoadSession(context.Background(), "helper_1")
	require.NoError(t, err)
	assert.NotNil(t, sess.EndedAt)
}
