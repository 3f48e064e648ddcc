// Package subagent implements the Sub-Agent Runner (C9): it runs the same
// turn loop as the Main Orchestrator, scoped to one delegated task, with a
// restricted tool set and a role-specific objective, then hands its final
// history to the Answer Generator for a structured free-text report rather
// than a boxed answer (spec.md §4.8).
package subagent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentrt/miroflow-go/agent/model"
	"github.com/agentrt/miroflow-go/agent/session"
	"github.com/agentrt/miroflow-go/answergen"
	"github.com/agentrt/miroflow-go/config"
	"github.com/agentrt/miroflow-go/parser"
	"github.com/agentrt/miroflow-go/promptbuilder"
	"github.com/agentrt/miroflow-go/stream"
	"github.com/agentrt/miroflow-go/tasklog"
	"github.com/agentrt/miroflow-go/telemetry"
	"github.com/agentrt/miroflow-go/toolmanager"
	"github.com/agentrt/miroflow-go/turnloop"
)

// ToolProvider is what a sub-agent run needs from the Tool Manager: the
// aggregated schema listing (to build its restricted prompt) and call
// execution.
type ToolProvider interface {
	GetAllToolDefinitions(ctx context.Context) []toolmanager.ServerToolDefinitions
	turnloop.ToolExecutor
}

// Config identifies and bounds one sub-agent run.
type Config struct {
	WorkflowID     string
	Role           config.AgentRole
	KeepToolResult int
}

// Deps wires a sub-agent run to its collaborators.
type Deps struct {
	Client    model.Client
	Tools     ToolProvider
	Sessions  session.Store
	TaskLog   *tasklog.TaskLog
	Sink      stream.Sink
	Telemetry telemetry.Bundle
}

// Run delegates taskDescription to the sub-agent named by cfg.Role.Name and
// returns its final structured report.
func Run(ctx context.Context, cfg Config, deps Deps, taskDescription string) (string, error) {
	agentID := uuid.NewString()
	emitAgentEvent(ctx, deps, stream.StartOfAgent{
		Base: stream.NewBase(stream.EventStartOfAgent, cfg.WorkflowID, stream.StartOfAgentPayload{}),
		Data: stream.StartOfAgentPayload{AgentName: cfg.Role.Name, AgentID: agentID},
	})
	defer emitAgentEvent(ctx, deps, stream.EndOfAgent{
		Base: stream.NewBase(stream.EventEndOfAgent, cfg.WorkflowID, stream.EndOfAgentPayload{}),
		Data: stream.EndOfAgentPayload{AgentName: cfg.Role.Name, AgentID: agentID},
	})

	sessionID := deps.TaskLog.StartSubAgentSession(cfg.Role.Name, taskDescription)
	defer deps.TaskLog.EndSubAgentSession(cfg.Role.Name)

	if deps.Sessions != nil {
		if _, err := deps.Sessions.CreateSession(ctx, sessionID, cfg.Role.Name, time.Now()); err != nil {
			deps.TaskLog.LogStep("warning", fmt.Sprintf("%s | Session", cfg.Role.Name), err.Error(), map[string]any{"session_id": sessionID})
		}
	}

	allServers := deps.Tools.GetAllToolDefinitions(ctx)
	scoped := toolmanager.FilterServerDefinitionsForRole(allServers, cfg.Role)
	systemPrompt := promptbuilder.Build(time.Now(), scoped, cfg.Role.Name)
	corrector := parser.BuildNameCorrector(systemPrompt)
	toolDefs := toolmanager.FlattenToolDefinitions(scoped)

	history := []model.Message{{Role: model.RoleUser, Content: taskDescription}}

	result, err := turnloop.Run(ctx, turnloop.Config{
		WorkflowID:      cfg.WorkflowID,
		AgentName:       cfg.Role.Name,
		SystemPrompt:    systemPrompt,
		ToolDefinitions: toolDefs,
		KeepToolResult:  cfg.KeepToolResult,
		MaxTurns:        cfg.Role.MaxTurns,
		MaxToolCalls:    cfg.Role.MaxToolCalls,
		WallClockBudget: wallClockBudget(cfg.Role),
	}, turnloop.Deps{
		Client:    deps.Client,
		Tools:     deps.Tools,
		Corrector: corrector,
		Sink:      deps.Sink,
		Log:       deps.TaskLog,
		Telemetry: deps.Telemetry,
	}, history)
	if err != nil {
		return "", fmt.Errorf("subagent %s: %w", cfg.Role.Name, err)
	}

	recordToolCalls(deps.TaskLog, result.History, len(history))
	deps.TaskLog.RecordSubAgentHistory(sessionID, toAnySlice(result.History))

	if result.Cancelled {
		return "", fmt.Errorf("subagent %s: cancelled: %w", cfg.Role.Name, ctx.Err())
	}

	rawText, _, err := answergen.Generate(ctx, deps.Client, systemPrompt, result.History, reportRoleName(cfg.Role.Name), taskDescription)
	if err != nil {
		return "", fmt.Errorf("subagent %s: answer generation: %w", cfg.Role.Name, err)
	}

	if deps.Sessions != nil {
		if _, err := deps.Sessions.EndSession(ctx, sessionID, time.Now()); err != nil {
			deps.TaskLog.LogStep("warning", fmt.Sprintf("%s | Session", cfg.Role.Name), err.Error(), map[string]any{"session_id": sessionID})
		}
	}

	return rawText, nil
}

// reportRoleName maps a configured sub-agent's name to the role name
// answergen.Generate uses to choose its summarize template.
// "agent-browsing"/"browsing-agent" pass through unchanged and any other
// sub-agent name maps to "agent-browsing", so every sub-agent gets the
// unboxed structured-report template and returns free text to its caller
// rather than a boxed answer.
func reportRoleName(name string) string {
	switch name {
	case "agent-browsing", "browsing-agent":
		return name
	default:
		return "agent-browsing"
	}
}

func wallClockBudget(role config.AgentRole) time.Duration {
	if role.WallClockBudgetSeconds <= 0 {
		return 0
	}
	return time.Duration(role.WallClockBudgetSeconds) * time.Second
}

func recordToolCalls(log *tasklog.TaskLog, history []model.Message, fromIndex int) {
	for i := fromIndex; i < len(history); i++ {
		msg := history[i]
		if msg.Role != model.RoleAssistant || len(msg.ToolCalls) == 0 {
			continue
		}
		for j, tc := range msg.ToolCalls {
			resultIdx := i + 1 + j
			entry := tasklog.ToolCallLog{ServerName: tc.ServerName, ToolName: tc.ToolName, Arguments: tc.Arguments}
			if resultIdx < len(history) && history[resultIdx].HasToolResult() {
				content := history[resultIdx].Content
				if len(content) >= 6 && content[:6] == "Error:" {
					entry.Error = content
				} else {
					entry.Result = content
				}
			}
			log.RecordToolCall(entry)
		}
	}
}

func toAnySlice(history []model.Message) []any {
	out := make([]any, len(history))
	for i, m := range history {
		out[i] = m
	}
	return out
}

func emitAgentEvent(ctx context.Context, deps Deps, ev stream.Event) {
	if deps.Sink == nil {
		return
	}
	if err := deps.Sink.Send(ctx, ev); err != nil && deps.Telemetry.Log != nil {
		deps.Telemetry.Log.Warn(ctx, "stream sink send failed", "error", err.Error(), "event_type", string(ev.Type()))
	}
}
