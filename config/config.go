// Package config decodes the pipeline's YAML configuration tree into typed
// LLM/agent/tool-server configuration, applying documented defaults and
// rejecting malformed trees with a FatalConfigError — the one true
// non-recoverable error kind raised before any Task Log exists.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/agentrt/miroflow-go/agent/toolerrors"
)

// ToolServerKind enumerates the three supported tool-server transports.
type ToolServerKind string

const (
	ToolServerStdio           ToolServerKind = "stdio"
	ToolServerSSE             ToolServerKind = "sse"
	ToolServerStreamableHTTP  ToolServerKind = "streamable_http"
)

// LLMConfig configures the LLM Client (C3) and its provider adapter.
type LLMConfig struct {
	Provider          string            `yaml:"provider"`
	ModelName         string            `yaml:"model_name"`
	Temperature       float64           `yaml:"temperature"`
	TopP              float64           `yaml:"top_p"`
	TopK              int               `yaml:"top_k"`
	MaxContextLength  int               `yaml:"max_context_length"`
	MaxTokens         int               `yaml:"max_tokens"`
	RepetitionPenalty float64           `yaml:"repetition_penalty"`
	BaseURL           string            `yaml:"base_url"`
	APIKey            string            `yaml:"api_key"`
	// Region is the AWS region used to resolve Bedrock runtime credentials
	// when Provider is "bedrock"; ignored by the other providers.
	Region            string            `yaml:"region"`
	RateLimitRPS      float64           `yaml:"rate_limit_rps"`
	RateLimitBurst    int               `yaml:"rate_limit_burst"`
	// KeepToolResult controls the LLM Client's tool-result retention pass
	// (spec §4.4). A nil pointer means "not configured"; Load applies
	// DefaultKeepToolResult. A pointed-to 0 explicitly means "keep none".
	KeepToolResult *int              `yaml:"keep_tool_result"`
	Extra          map[string]string `yaml:"extra"`
}

// AgentRole configures one agent (main or a named sub-agent).
type AgentRole struct {
	Name          string   `yaml:"name"`
	Tools         []string `yaml:"tools"`
	ToolBlacklist []string `yaml:"tool_blacklist"`
	MaxTurns      int      `yaml:"max_turns"`
	MaxToolCalls  int      `yaml:"max_tool_calls"`
	// WallClockBudgetSeconds bounds the total wall-clock time this role's
	// turn loop (and, for the main agent, all work it delegates) may run
	// before the orchestrator terminates it as BudgetExhausted. Zero or
	// negative means unbounded.
	WallClockBudgetSeconds int `yaml:"wall_clock_budget_seconds"`
}

// AgentConfig configures the main agent and its sub-agents.
type AgentConfig struct {
	MainAgent  AgentRole   `yaml:"main_agent"`
	SubAgents  []AgentRole `yaml:"sub_agents"`
}

// ToolServerConfig configures one named tool server connection.
type ToolServerConfig struct {
	Name    string            `yaml:"name"`
	Kind    ToolServerKind    `yaml:"kind"`
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	URL     string            `yaml:"url"`
}

// LogConfig configures the Task Logger and Stream Bus sinks.
type LogConfig struct {
	Dir             string `yaml:"dir"`
	RedisStreamURL  string `yaml:"redis_stream_url"`
}

// Config is the root configuration tree.
type Config struct {
	LLM         LLMConfig          `yaml:"llm"`
	Agent       AgentConfig        `yaml:"agent"`
	ToolServers []ToolServerConfig `yaml:"tool_servers"`
	Log         LogConfig          `yaml:"log"`
}

// Default values. Load applies DefaultKeepToolResult, DefaultMaxTurns,
// DefaultMaxToolCalls and DefaultLogDir when a Config omits them;
// DefaultToolCallTimeout is not read by Load (the tool transports use
// mcp.DefaultCallTimeout).
const (
	DefaultKeepToolResult  = -1
	DefaultMaxTurns        = 20
	DefaultMaxToolCalls    = 30
	DefaultToolCallTimeout = 600 // seconds
	DefaultLogDir          = "logs"
)

// Load decodes a YAML document into a Config, applies defaults, and
// validates it. Any validation failure is returned as a
// toolerrors.KindFatalConfig error.
func Load(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, toolerrors.NewKindWithCause(toolerrors.KindFatalConfig, "failed to parse configuration", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.KeepToolResult == nil {
		def := DefaultKeepToolResult
		cfg.LLM.KeepToolResult = &def
	}
	if cfg.Agent.MainAgent.Name == "" {
		cfg.Agent.MainAgent.Name = "main"
	}
	if cfg.Agent.MainAgent.MaxTurns <= 0 {
		cfg.Agent.MainAgent.MaxTurns = DefaultMaxTurns
	}
	if cfg.Agent.MainAgent.MaxToolCalls <= 0 {
		cfg.Agent.MainAgent.MaxToolCalls = DefaultMaxToolCalls
	}
	for i := range cfg.Agent.SubAgents {
		sa := &cfg.Agent.SubAgents[i]
		if sa.MaxTurns <= 0 {
			sa.MaxTurns = DefaultMaxTurns
		}
		if sa.MaxToolCalls <= 0 {
			sa.MaxToolCalls = DefaultMaxToolCalls
		}
	}
	if cfg.Log.Dir == "" {
		cfg.Log.Dir = DefaultLogDir
	}
}

func validate(cfg *Config) error {
	switch cfg.LLM.Provider {
	case "anthropic", "openai", "openai_compat", "bedrock":
	case "":
		return toolerrors.NewKind(toolerrors.KindFatalConfig, "llm.provider is required")
	default:
		return toolerrors.NewKind(toolerrors.KindFatalConfig, fmt.Sprintf("unknown llm.provider %q", cfg.LLM.Provider))
	}

	seen := make(map[string]bool, len(cfg.ToolServers))
	for _, ts := range cfg.ToolServers {
		if ts.Name == "" {
			return toolerrors.NewKind(toolerrors.KindFatalConfig, "tool server entry missing name")
		}
		if seen[ts.Name] {
			return toolerrors.NewKind(toolerrors.KindFatalConfig, fmt.Sprintf("duplicate tool server name %q", ts.Name))
		}
		seen[ts.Name] = true
		switch ts.Kind {
		case ToolServerStdio, ToolServerSSE, ToolServerStreamableHTTP:
		default:
			return toolerrors.NewKind(toolerrors.KindFatalConfig, fmt.Sprintf("tool server %q: unknown kind %q", ts.Name, ts.Kind))
		}
	}

	mainName := cfg.Agent.MainAgent.Name
	for _, sa := range cfg.Agent.SubAgents {
		if sa.Name == "" {
			return toolerrors.NewKind(toolerrors.KindFatalConfig, "sub-agent entry missing name")
		}
		if sa.Name == mainName {
			return toolerrors.NewKind(toolerrors.KindFatalConfig, fmt.Sprintf("sub-agent name %q collides with main agent", sa.Name))
		}
	}
	return nil
}
