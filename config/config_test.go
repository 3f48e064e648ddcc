package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/miroflow-go/agent/toolerrors"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load([]byte(`
llm:
  provider: anthropic
  model_name: claude-sonnet
agent:
  main_agent:
    name: main
tool_servers:
  - name: tool-python
    kind: stdio
    command: python3
`))
	require.NoError(t, err)
	require.NotNil(t, cfg.LLM.KeepToolResult)
	assert.Equal(t, DefaultKeepToolResult, *cfg.LLM.KeepToolResult)
	assert.Equal(t, DefaultMaxTurns, cfg.Agent.MainAgent.MaxTurns)
	assert.Equal(t, DefaultMaxToolCalls, cfg.Agent.MainAgent.MaxToolCalls)
	assert.Equal(t, DefaultLogDir, cfg.Log.Dir)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	_, err := Load([]byte(`
llm:
  provider: not-a-real-provider
agent:
  main_agent: {name: main}
`))
	require.Error(t, err)
	assert.True(t, toolerrors.IsKind(err, toolerrors.KindFatalConfig))
}

func TestLoadRejectsDuplicateToolServerNames(t *testing.T) {
	_, err := Load([]byte(`
llm: {provider: anthropic}
agent:
  main_agent: {name: main}
tool_servers:
  - {name: dup, kind: stdio, command: x}
  - {name: dup, kind: sse, url: "http://x"}
`))
	require.Error(t, err)
	assert.True(t, toolerrors.IsKind(err, toolerrors.KindFatalConfig))
}

func TestLoadRejectsSubAgentNameCollision(t *testing.T) {
	_, err := Load([]byte(`
llm: {provider: openai}
agent:
  main_agent: {name: main}
  sub_agents:
    - {name: main}
`))
	require.Error(t, err)
	assert.True(t, toolerrors.IsKind(err, toolerrors.KindFatalConfig))
}

func TestLoadKeepToolResultZeroIsExplicit(t *testing.T) {
	cfg, err := Load([]byte(`
llm:
  provider: anthropic
  keep_tool_result: 0
agent:
  main_agent: {name: main}
`))
	require.NoError(t, err)
	require.NotNil(t, cfg.LLM.KeepToolResult)
	assert.Equal(t, 0, *cfg.LLM.KeepToolResult)
}
