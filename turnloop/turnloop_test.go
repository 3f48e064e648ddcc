package turnloop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/miroflow-go/agent/model"
	"github.com/agentrt/miroflow-go/stream"
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
	results map[string]toolmanager.ToolResult
	calls   int
}

func (f *fakeTools) ExecuteToolCall(ctx context.Context, serverName, toolName string, arguments map[string]any) toolmanager.ToolResult {
	f.calls++
	if r, ok := f.results[serverName+"."+toolName]; ok {
		return r
	}
	return toolmanager.ToolResult{ServerName: serverName, ToolName: toolName, Error: "no fake result configured"}
}

func TestRunStopsWhenModelEmitsNoToolCalls(t *testing.T) {
	client := &scriptedClient{responses: []*model.Response{
		{RawText: "the final answer is 42"},
	}}
	result, err := Run(context.Background(), Config{AgentName: "main", MaxTurns: 5, MaxToolCalls: 5},
		Deps{Client: client, Telemetry: telemetry.Noop()}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Turns)
	assert.False(t, result.BudgetExhausted)
	require.Len(t, result.History, 1)
	assert.Equal(t, model.RoleAssistant, result.History[0].Role)
	assert.Equal(t, "the final answer is 42", result.History[0].Content)
}

func TestRunExecutesToolCallsAndAppendsResults(t *testing.T) {
	client := &scriptedClient{responses: []*model.Response{
		{RawText: "looking it up", NativeToolCalls: []model.ToolCall{{ID: "tc1", ServerName: "fs", ToolName: "read_file", Arguments: map[string]any{"path": "a.txt"}}}},
		{RawText: "done"},
	}}
	tools := &fakeTools{results: map[string]toolmanager.ToolResult{
		"fs.read_file": {ServerName: "fs", ToolName: "read_file", Result: "file contents"},
	}}
	result, err := Run(context.Background(), Config{AgentName: "main", MaxTurns: 5, MaxToolCalls: 5},
		Deps{Client: client, Tools: tools, Telemetry: telemetry.Noop()}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, tools.calls)
	assert.Equal(t, 2, result.Turns)
	require.Len(t, result.History, 3)
	assert.Equal(t, model.RoleAssistant, result.History[0].Role)
	assert.Equal(t, model.RoleTool, result.History[1].Role)
	assert.Equal(t, "tc1", result.History[1].ToolCallID)
	assert.Equal(t, "file contents", result.History[1].Content)
	assert.Equal(t, model.RoleAssistant, result.History[2].Role)
}

func TestRunTerminatesImmediatelyOnNilModelResponse(t *testing.T) {
	client := &scriptedClient{responses: nil}
	result, err := Run(context.Background(), Config{AgentName: "main", MaxTurns: 5, MaxToolCalls: 5},
		Deps{Client: client, Telemetry: telemetry.Noop()}, []model.Message{{Role: model.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.False(t, result.BudgetExhausted)
	assert.Len(t, result.History, 1)
}

func TestRunStopsAtMaxTurns(t *testing.T) {
	responses := make([]*model.Response, 0, 10)
	for i := 0; i < 10; i++ {
		responses = append(responses, &model.Response{
			RawText:         "still working",
			NativeToolCalls: []model.ToolCall{{ID: "tc", ServerName: "fs", ToolName: "noop"}},
		})
	}
	client := &scriptedClient{responses: responses}
	tools := &fakeTools{results: map[string]toolmanager.ToolResult{"fs.noop": {Result: "ok"}}}
	result, err := Run(context.Background(), Config{AgentName: "main", MaxTurns: 3, MaxToolCalls: 100},
		Deps{Client: client, Tools: tools, Telemetry: telemetry.Noop()}, nil)
	require.NoError(t, err)
	assert.True(t, result.BudgetExhausted)
	assert.Equal(t, 3, result.Turns)
}

func TestRunStopsAtMaxToolCalls(t *testing.T) {
	responses := make([]*model.Response, 0, 10)
	for i := 0; i < 10; i++ {
		responses = append(responses, &model.Response{
			NativeToolCalls: []model.ToolCall{{ID: "tc", ServerName: "fs", ToolName: "noop"}},
		})
	}
	client := &scriptedClient{responses: responses}
	tools := &fakeTools{results: map[string]toolmanager.ToolResult{"fs.noop": {Result: "ok"}}}
	result, err := Run(context.Background(), Config{AgentName: "main", MaxTurns: 100, MaxToolCalls: 2},
		Deps{Client: client, Tools: tools, Telemetry: telemetry.Noop()}, nil)
	require.NoError(t, err)
	assert.True(t, result.BudgetExhausted)
	assert.Equal(t, 2, result.ToolCallsUsed)
}

func TestRunDispatchesSubAgentToolCallsToDelegate(t *testing.T) {
	client := &scriptedClient{responses: []*model.Response{
		{NativeToolCalls: []model.ToolCall{{ID: "tc1", ServerName: SubAgentServerName, ToolName: "researcher", Arguments: map[string]any{"task_description": "find the capital"}}}},
		{RawText: "the capital is Paris"},
	}}
	var gotSubAgent, gotTask string
	delegate := func(ctx context.Context, subAgentName, taskDescription string) (string, error) {
		gotSubAgent, gotTask = subAgentName, taskDescription
		return "Paris is the capital of France.", nil
	}
	result, err := Run(context.Background(), Config{AgentName: "main", MaxTurns: 5, MaxToolCalls: 5},
		Deps{Client: client, Delegate: delegate, Telemetry: telemetry.Noop()}, nil)
	require.NoError(t, err)
	assert.Equal(t, "researcher", gotSubAgent)
	assert.Equal(t, "find the capital", gotTask)
	require.Len(t, result.History, 3)
	assert.Equal(t, "Paris is the capital of France.", result.History[1].Content)
}

func TestRunReportsErrorWhenDelegateMissing(t *testing.T) {
	client := &scriptedClient{responses: []*model.Response{
		{NativeToolCalls: []model.ToolCall{{ID: "tc1", ServerName: SubAgentServerName, ToolName: "researcher", Arguments: map[string]any{"task_description": "x"}}}},
		{RawText: "ok"},
	}}
	result, err := Run(context.Background(), Config{AgentName: "sub", MaxTurns: 5, MaxToolCalls: 5},
		Deps{Client: client, Telemetry: telemetry.Noop()}, nil)
	require.NoError(t, err)
	assert.Contains(t, result.History[1].Content, "not available")
}

func TestRunSynthesizesToolCallIDForFramedDialect(t *testing.T) {
	client := &scriptedClient{responses: []*model.Response{
		{RawText: "<use_mcp_tool>\n<server_name>fs</server_name>\n<tool_name>read_file</tool_name>\n<arguments>{}</arguments>\n</use_mcp_tool>"},
		{RawText: "done"},
	}}
	tools := &fakeTools{results: map[string]toolmanager.ToolResult{"fs.read_file": {Result: "contents"}}}
	result, err := Run(context.Background(), Config{AgentName: "main", MaxTurns: 5, MaxToolCalls: 5},
		Deps{Client: client, Tools: tools, Telemetry: telemetry.Noop()}, nil)
	require.NoError(t, err)
	require.Len(t, result.History, 3)
	assert.Equal(t, model.RoleUser, result.History[1].Role)
	assert.NotEmpty(t, result.History[1].ToolCallID)
	assert.True(t, result.History[1].HasToolResult())
}

func TestToolResultIsTruncated(t *testing.T) {
	huge := make([]byte, ToolResultTruncateLimit+500)
	for i := range huge {
		huge[i] = 'x'
	}
	client := &scriptedClient{responses: []*model.Response{
		{NativeToolCalls: []model.ToolCall{{ID: "tc1", ServerName: "fs", ToolName: "dump"}}},
		{RawText: "ok"},
	}}
	tools := &fakeTools{results: map[string]toolmanager.ToolResult{"fs.dump": {Result: string(huge)}}}
	result, err := Run(context.Background(), Config{AgentName: "main", MaxTurns: 5, MaxToolCalls: 5},
		Deps{Client: client, Tools: tools, Telemetry: telemetry.Noop()}, nil)
	require.NoError(t, err)
	assert.Less(t, len(result.History[1].Content), len(huge))
	assert.Contains(t, result.History[1].Content, "truncated")
}

func TestRunEmitsOrderedStreamEvents(t *testing.T) {
	client := &scriptedClient{responses: []*model.Response{
		{RawText: "hi", NativeToolCalls: []model.ToolCall{{ID: "tc1", ServerName: "fs", ToolName: "noop"}}},
		{RawText: "bye"},
	}}
	tools := &fakeTools{results: map[string]toolmanager.ToolResult{"fs.noop": {Result: "ok"}}}
	sink := stream.NewChannelSink(32)
	_, err := Run(context.Background(), Config{AgentName: "main", WorkflowID: "wf1", MaxTurns: 5, MaxToolCalls: 5},
		Deps{Client: client, Tools: tools, Sink: sink, Telemetry: telemetry.Noop()}, nil)
	require.NoError(t, err)
	require.NoError(t, sink.Close(context.Background()))

	var types []stream.EventType
	for ev := range sink.Events() {
		if ev == nil {
			break
		}
		types = append(types, ev.Type())
	}
	require.Equal(t, []stream.EventType{
		stream.EventStartOfLLM, stream.EventMessage, stream.EventEndOfLLM, stream.EventToolCall,
		stream.EventStartOfLLM, stream.EventMessage, stream.EventEndOfLLM,
	}, types)
}
