// Package turnloop implements the turn-based agent loop shared by the Main
// Orchestrator (C10) and the Sub-Agent Runner (C9): call the model, parse its
// response, execute whatever tool calls it emitted (dispatching sub-agent
// tool calls through a caller-supplied Delegate instead of the Tool
// Manager), check budgets, and repeat until the model stops calling tools or
// a budget is exhausted. Both callers invoke the Answer Generator themselves
// once Run returns, since the main role boxes its answer and the
// agent-browsing role reports free text instead (spec.md §4.6/§4.7/§4.8).
package turnloop

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentrt/miroflow-go/agent/model"
	"github.com/agentrt/miroflow-go/agent/toolerrors"
	"github.com/agentrt/miroflow-go/parser"
	"github.com/agentrt/miroflow-go/stream"
	"github.com/agentrt/miroflow-go/telemetry"
	"github.com/agentrt/miroflow-go/toolmanager"
)

// SubAgentServerName is the pseudo server name used for the virtual
// sub-agent delegation tools exposed to an agent's tool set (spec.md §4.7):
// a ToolCall with this ServerName is routed to Delegate instead of the Tool
// Manager.
const SubAgentServerName = "agent"

// ToolResultTruncateLimit is the default ceiling, in characters, a tool
// result is truncated to before being re-attached to history (spec.md §3).
const ToolResultTruncateLimit = 100_000

// Delegate runs one sub-agent session to completion and returns its report.
// The Main Orchestrator supplies a Delegate wired to the subagent package;
// the Sub-Agent Runner passes nil, since a sub-agent's own tool set never
// includes further sub-agent tools.
type Delegate func(ctx context.Context, subAgentName, taskDescription string) (report string, err error)

// Config bounds and identifies one turn loop run.
type Config struct {
	WorkflowID      string
	AgentName       string
	SystemPrompt    string
	ToolDefinitions []model.ToolDefinition
	KeepToolResult  int
	MaxTurns        int
	MaxToolCalls    int
	WallClockBudget time.Duration // zero means unbounded
}

// ToolExecutor is the subset of toolmanager.Manager the turn loop needs,
// narrowed to an interface so tests can substitute a fake.
type ToolExecutor interface {
	ExecuteToolCall(ctx context.Context, serverName, toolName string, arguments map[string]any) toolmanager.ToolResult
}

// Deps wires the turn loop to its collaborators.
type Deps struct {
	Client    model.Client
	Tools     ToolExecutor
	Corrector *parser.NameCorrector
	Sink      stream.Sink
	Log       model.StepLogger
	Telemetry telemetry.Bundle
	Delegate  Delegate
}

// Result is the outcome of one turn loop run.
type Result struct {
	History       []model.Message
	Turns         int
	ToolCallsUsed int
	// BudgetExhausted reports whether the loop stopped because a bound in
	// Config was reached rather than because the model stopped calling
	// tools.
	BudgetExhausted bool
	// Cancelled reports whether the loop stopped because ctx was cancelled
	// (host-initiated shutdown), rather than a budget bound or the model
	// reaching a terminal turn.
	Cancelled bool
}

// Run executes the turn loop starting from history until the model emits a
// terminal turn (no tool calls), a model call fails (treated as terminal per
// the error handling design, spec.md §7), or a budget in cfg is exhausted.
func Run(ctx context.Context, cfg Config, deps Deps, history []model.Message) (Result, error) {
	turnIndex := 0
	toolBudgetUsed := 0
	deadline := time.Time{}
	if cfg.WallClockBudget > 0 {
		deadline = time.Now().Add(cfg.WallClockBudget)
	}

	for {
		if ctx.Err() != nil {
			return cancelledResult(ctx, cfg, deps, history, turnIndex, toolBudgetUsed), nil
		}
		if exhausted := budgetExhausted(cfg, turnIndex, toolBudgetUsed, deadline); exhausted {
			return Result{History: history, Turns: turnIndex, ToolCallsUsed: toolBudgetUsed, BudgetExhausted: true}, nil
		}

		emit(ctx, deps, stream.StartOfLLM{
			Base: stream.NewBase(stream.EventStartOfLLM, cfg.WorkflowID, stream.StartOfLLMPayload{AgentName: cfg.AgentName}),
			Data: stream.StartOfLLMPayload{AgentName: cfg.AgentName},
		})

		resp, retainedHistory, err := deps.Client.CreateMessage(ctx, model.Request{
			SystemPrompt:    cfg.SystemPrompt,
			History:         history,
			ToolDefinitions: cfg.ToolDefinitions,
			KeepToolResult:  cfg.KeepToolResult,
		})
		if err != nil {
			return Result{}, fmt.Errorf("turnloop: unexpected model client error: %w", err)
		}
		history = retainedHistory

		if resp == nil {
			// Per the error handling design (spec.md §7), a model-call
			// timeout or failure never surfaces as a Go error from the
			// client; it terminates this turn loop immediately and hands
			// whatever history exists to the Answer Generator.
			logStep(deps, "error", fmt.Sprintf("%s | Turn", cfg.AgentName), "model call failed, terminating turn loop", map[string]any{"turn_index": turnIndex})
			errEvent := stream.NewShowError(cfg.WorkflowID, fmt.Sprintf("llm-call-%s", uuid.NewString()), fmt.Sprintf("%s: model call failed or timed out", cfg.AgentName))
			emit(ctx, deps, errEvent)
			emit(ctx, deps, stream.EndOfLLM{
				Base: stream.NewBase(stream.EventEndOfLLM, cfg.WorkflowID, stream.EndOfLLMPayload{AgentName: cfg.AgentName}),
				Data: stream.EndOfLLMPayload{AgentName: cfg.AgentName},
			})
			return Result{History: history, Turns: turnIndex + 1, ToolCallsUsed: toolBudgetUsed, BudgetExhausted: false}, nil
		}

		parsed := parser.Parse(resp, deps.Corrector)

		if parsed.Text != "" {
			emit(ctx, deps, stream.Message{
				Base: stream.NewBase(stream.EventMessage, cfg.WorkflowID, stream.MessagePayload{}),
				Data: stream.MessagePayload{MessageID: uuid.NewString(), Delta: stream.MessageDelta{Content: parsed.Text}},
			})
		}
		emit(ctx, deps, stream.EndOfLLM{
			Base: stream.NewBase(stream.EventEndOfLLM, cfg.WorkflowID, stream.EndOfLLMPayload{AgentName: cfg.AgentName}),
			Data: stream.EndOfLLMPayload{AgentName: cfg.AgentName},
		})

		assistantMsg := model.Message{Role: model.RoleAssistant, Content: parsed.Text, ToolCalls: parsed.ToolCalls}
		history = append(history, assistantMsg)
		turnIndex++

		if len(parsed.ToolCalls) == 0 {
			return Result{History: history, Turns: turnIndex, ToolCallsUsed: toolBudgetUsed, BudgetExhausted: false}, nil
		}

		for _, tc := range parsed.ToolCalls {
			resultMsg := executeToolCall(ctx, cfg, deps, tc)
			history = append(history, resultMsg)
			toolBudgetUsed++
		}

		if ctx.Err() != nil {
			return cancelledResult(ctx, cfg, deps, history, turnIndex, toolBudgetUsed), nil
		}
		if exhausted := budgetExhausted(cfg, turnIndex, toolBudgetUsed, deadline); exhausted {
			return Result{History: history, Turns: turnIndex, ToolCallsUsed: toolBudgetUsed, BudgetExhausted: true}, nil
		}
	}
}

// cancelledResult logs and surfaces host-initiated cancellation (spec.md
// §5/§7) the same way a tool or model-call failure is surfaced: a
// show_error stream event plus a step log entry carrying
// toolerrors.KindCancelled, rather than a silent early return.
func cancelledResult(ctx context.Context, cfg Config, deps Deps, history []model.Message, turnIndex, toolBudgetUsed int) Result {
	ke := toolerrors.NewKindWithCause(toolerrors.KindCancelled, fmt.Sprintf("%s: turn loop cancelled", cfg.AgentName), ctx.Err())
	logStep(deps, "error", fmt.Sprintf("%s | Turn", cfg.AgentName), ke.Error(), map[string]any{"turn_index": turnIndex, "kind": string(toolerrors.KindCancelled)})
	emit(context.Background(), deps, stream.NewShowError(cfg.WorkflowID, fmt.Sprintf("cancel-%s", uuid.NewString()), ke.Error()))
	return Result{History: history, Turns: turnIndex, ToolCallsUsed: toolBudgetUsed, Cancelled: true}
}

func executeToolCall(ctx context.Context, cfg Config, deps Deps, tc model.ToolCall) model.Message {
	emit(ctx, deps, stream.ToolCall{
		Base: stream.NewBase(stream.EventToolCall, cfg.WorkflowID, stream.ToolCallPayload{}),
		Data: stream.ToolCallPayload{ToolCallID: toolCallDisplayID(tc), ToolName: tc.ServerName + "-" + tc.ToolName},
	})

	var resultText string
	if tc.ServerName == SubAgentServerName {
		resultText = runDelegate(ctx, deps, tc)
	} else {
		result := deps.Tools.ExecuteToolCall(ctx, tc.ServerName, tc.ToolName, tc.Arguments)
		if result.Error != "" {
			resultText = "Error: " + result.Error
			emit(ctx, deps, stream.NewShowError(cfg.WorkflowID, toolCallDisplayID(tc), result.Error))
		} else {
			resultText = result.Result
		}
	}
	resultText = truncate(resultText, ToolResultTruncateLimit)

	if tc.ID != "" {
		return model.Message{Role: model.RoleTool, Content: resultText, ToolCallID: tc.ID, Name: tc.ToolName}
	}
	// Framed dialect calls carry no ID; synthesize one so HasToolResult can
	// still recognize this message as a tool result during retention.
	return model.Message{Role: model.RoleUser, Content: resultText, ToolCallID: "framed-" + uuid.NewString(), Name: tc.ToolName}
}

func runDelegate(ctx context.Context, deps Deps, tc model.ToolCall) string {
	if deps.Delegate == nil {
		return fmt.Sprintf("Error: sub-agent %q is not available in this context", tc.ToolName)
	}
	taskDescription, _ := tc.Arguments["task_description"].(string)
	report, err := deps.Delegate(ctx, tc.ToolName, taskDescription)
	if err != nil {
		return "Error: " + err.Error()
	}
	return report
}

func toolCallDisplayID(tc model.ToolCall) string {
	if tc.ID != "" {
		return tc.ID
	}
	return tc.ServerName + "-" + tc.ToolName
}

func budgetExhausted(cfg Config, turnIndex, toolBudgetUsed int, deadline time.Time) bool {
	if cfg.MaxTurns > 0 && turnIndex >= cfg.MaxTurns {
		return true
	}
	if cfg.MaxToolCalls > 0 && toolBudgetUsed >= cfg.MaxToolCalls {
		return true
	}
	if !deadline.IsZero() && time.Now().After(deadline) {
		return true
	}
	return false
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + fmt.Sprintf("\n... [truncated %d characters]", len(s)-limit)
}

func emit(ctx context.Context, deps Deps, ev stream.Event) {
	if deps.Sink == nil {
		return
	}
	if err := deps.Sink.Send(ctx, ev); err != nil && deps.Telemetry.Log != nil {
		deps.Telemetry.Log.Warn(ctx, "stream sink send failed", "error", err.Error(), "event_type", string(ev.Type()))
	}
}

func logStep(deps Deps, infoLevel, stepName, message string, metadata map[string]any) {
	if deps.Log == nil {
		return
	}
	deps.Log.LogStep(infoLevel, stepName, message, metadata)
}

// BudgetExhaustedError formats a budget_exhausted KindError for a caller
// that wants to log a structured reason once Run reports BudgetExhausted.
// Neither orchestrator nor subagent calls it.
func BudgetExhaustedError(agentName string) *toolerrors.KindError {
	return toolerrors.NewKind(toolerrors.KindBudgetExhausted, fmt.Sprintf("%s: turn loop budget exhausted", agentName))
}
