// Package orchestrator implements the Main Orchestrator (C10): the
// top-level turn loop over the user's task, with one virtual tool per
// configured sub-agent so the model can delegate focused sub-tasks (spec.md
// §4.7). It shares turnloop.Run with the Sub-Agent Runner and dispatches
// delegation calls to package subagent.
package orchestrator

import (
	"context"
	"encoding/json"
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
	"github.com/agentrt/miroflow-go/subagent"
	"github.com/agentrt/miroflow-go/tasklog"
	"github.com/agentrt/miroflow-go/telemetry"
	"github.com/agentrt/miroflow-go/toolmanager"
	"github.com/agentrt/miroflow-go/turnloop"
)

// AgentID is a strong string type for one agent run's identifier, adapted
// from the reference corpus's agent.Ident pattern: a plain string would mix
// too easily with other identifier kinds (workflow IDs, tool-call IDs).
type AgentID string

// ToolProvider is what the Main Orchestrator needs from the Tool Manager.
type ToolProvider interface {
	GetAllToolDefinitions(ctx context.Context) []toolmanager.ServerToolDefinitions
	turnloop.ToolExecutor
}

// Config identifies and bounds one pipeline run's main agent turn loop.
type Config struct {
	WorkflowID     string
	MainRole       config.AgentRole
	SubAgents      []config.AgentRole
	KeepToolResult int
}

// Deps wires the orchestrator to its collaborators.
type Deps struct {
	Client    model.Client
	Tools     ToolProvider
	Sessions  session.Store
	TaskLog   *tasklog.TaskLog
	Sink      stream.Sink
	Telemetry telemetry.Bundle
}

// Result is the outcome of one pipeline run.
type Result struct {
	RawText         string
	BoxedAnswer     string
	History         []model.Message
	BudgetExhausted bool
	// Cancelled reports whether the run stopped because ctx was cancelled
	// (host-initiated shutdown) rather than reaching a budget bound or a
	// terminal turn; the Answer Generator is never invoked in this case.
	Cancelled bool
}

var subAgentInputSchema = json.RawMessage(`{"type":"object","properties":{"task_description":{"type":"string","description":"The focused sub-task to delegate."}},"required":["task_description"]}`)

// Run executes the main turn loop against taskDescription, delegating to
// configured sub-agents as the model requests, then invokes the Answer
// Generator for a boxed final answer.
func Run(ctx context.Context, cfg Config, deps Deps, taskDescription string) (Result, error) {
	agentID := AgentID(uuid.NewString())
	emit(ctx, deps, stream.StartOfAgent{
		Base: stream.NewBase(stream.EventStartOfAgent, cfg.WorkflowID, stream.StartOfAgentPayload{}),
		Data: stream.StartOfAgentPayload{AgentName: cfg.MainRole.Name, AgentID: string(agentID)},
	})
	defer emit(ctx, deps, stream.EndOfAgent{
		Base: stream.NewBase(stream.EventEndOfAgent, cfg.WorkflowID, stream.EndOfAgentPayload{}),
		Data: stream.EndOfAgentPayload{AgentName: cfg.MainRole.Name, AgentID: string(agentID)},
	})

	allServers := deps.Tools.GetAllToolDefinitions(ctx)
	scoped := toolmanager.FilterServerDefinitionsForRole(allServers, cfg.MainRole)
	if len(cfg.SubAgents) > 0 {
		scoped = append(scoped, subAgentServerDefinitions(cfg.SubAgents))
	}
	systemPrompt := promptbuilder.Build(time.Now(), scoped, cfg.MainRole.Name)
	corrector := parser.BuildNameCorrector(systemPrompt)
	toolDefs := toolmanager.FlattenToolDefinitions(scoped)

	history := []model.Message{{Role: model.RoleUser, Content: taskDescription}}

	loopResult, err := turnloop.Run(ctx, turnloop.Config{
		WorkflowID:      cfg.WorkflowID,
		AgentName:       cfg.MainRole.Name,
		SystemPrompt:    systemPrompt,
		ToolDefinitions: toolDefs,
		KeepToolResult:  cfg.KeepToolResult,
		MaxTurns:        cfg.MainRole.MaxTurns,
		MaxToolCalls:    cfg.MainRole.MaxToolCalls,
		WallClockBudget: wallClockBudget(cfg.MainRole),
	}, turnloop.Deps{
		Client:    deps.Client,
		Tools:     deps.Tools,
		Corrector: corrector,
		Sink:      deps.Sink,
		Log:       deps.TaskLog,
		Telemetry: deps.Telemetry,
		Delegate:  buildDelegate(cfg, deps),
	}, history)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: %w", err)
	}

	recordToolCalls(deps.TaskLog, loopResult.History, len(history))
	deps.TaskLog.RecordMainAgentHistory(toAnySlice(loopResult.History))

	if loopResult.Cancelled {
		return Result{History: loopResult.History, Cancelled: true}, nil
	}

	rawText, boxed, err := answergen.Generate(ctx, deps.Client, systemPrompt, loopResult.History, cfg.MainRole.Name, taskDescription)
	if err != nil {
		return Result{}, fmt.Errorf("orchestrator: answer generation: %w", err)
	}
	deps.TaskLog.SetFinalAnswer(boxed)

	return Result{
		RawText:         rawText,
		BoxedAnswer:     boxed,
		History:         loopResult.History,
		BudgetExhausted: loopResult.BudgetExhausted,
	}, nil
}

// buildDelegate wires the virtual sub-agent tool calls turnloop.Run
// encounters back to subagent.Run, one invocation per configured sub-agent
// name.
func buildDelegate(cfg Config, deps Deps) turnloop.Delegate {
	byName := make(map[string]config.AgentRole, len(cfg.SubAgents))
	for _, role := range cfg.SubAgents {
		byName[role.Name] = role
	}
	return func(ctx context.Context, subAgentName, taskDescription string) (string, error) {
		role, ok := byName[subAgentName]
		if !ok {
			return "", fmt.Errorf("unknown sub-agent %q", subAgentName)
		}
		return subagent.Run(ctx, subagent.Config{
			WorkflowID:     cfg.WorkflowID,
			Role:           role,
			KeepToolResult: cfg.KeepToolResult,
		}, subagent.Deps{
			Client:    deps.Client,
			Tools:     deps.Tools,
			Sessions:  deps.Sessions,
			TaskLog:   deps.TaskLog,
			Sink:      deps.Sink,
			Telemetry: deps.Telemetry,
		}, taskDescription)
	}
}

func subAgentServerDefinitions(subAgents []config.AgentRole) toolmanager.ServerToolDefinitions {
	defs := make([]model.ToolDefinition, 0, len(subAgents))
	for _, role := range subAgents {
		defs = append(defs, model.ToolDefinition{
			ServerName:  turnloop.SubAgentServerName,
			ToolName:    role.Name,
			Description: fmt.Sprintf("Delegate a focused sub-task to the %q sub-agent.", role.Name),
			InputSchema: subAgentInputSchema,
		})
	}
	return toolmanager.ServerToolDefinitions{ServerName: turnloop.SubAgentServerName, Tools: defs}
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

func emit(ctx context.Context, deps Deps, ev stream.Event) {
	if deps.Sink == nil {
		return
	}
	if err := deps.Sink.Send(ctx, ev); err != nil && deps.Telemetry.Log != nil {
		deps.Telemetry.Log.Warn(ctx, "stream sink send failed", "error", err.Error(), "event_type", string(ev.Type()))
	}
}
