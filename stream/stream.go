// Package stream implements the Stream Bus (C7): an ordered, typed event
// stream covering workflow/agent/LLM/tool/message lifecycles, narrowed from
// the teacher's much larger planner/tool-delta event vocabulary to the
// exact enumeration spec.md §4.9 names. All concrete event types embed Base
// to satisfy Event generically; a Sink delivers events to one transport
// (in-process channel by default, Redis stream per SPEC_FULL §4.9).
package stream

import "context"

// EventType enumerates the Stream Bus event kinds.
type EventType string

const (
	EventStartOfWorkflow EventType = "start_of_workflow"
	EventEndOfWorkflow   EventType = "end_of_workflow"
	EventStartOfAgent    EventType = "start_of_agent"
	EventEndOfAgent      EventType = "end_of_agent"
	EventStartOfLLM      EventType = "start_of_llm"
	EventEndOfLLM        EventType = "end_of_llm"
	EventMessage         EventType = "message"
	EventToolCall        EventType = "tool_call"
)

// ShowErrorToolName is the synthesized tool name used to surface an error as
// a tool_call event (spec.md §4.9), rather than inventing a ninth event
// type for it.
const ShowErrorToolName = "show_error"

// Event is implemented by every concrete stream event. Base provides the
// default implementation; concrete types embed it.
type Event interface {
	Type() EventType
	WorkflowID() string
	Payload() any
}

// Base carries the fields every event shares. Field names are abbreviated
// since callers access events through the Event interface or a type switch,
// not by touching Base's fields directly.
type Base struct {
	t  EventType
	wf string
	p  any
}

// NewBase constructs a Base event envelope.
func NewBase(t EventType, workflowID string, payload any) Base {
	return Base{t: t, wf: workflowID, p: payload}
}

func (b Base) Type() EventType    { return b.t }
func (b Base) WorkflowID() string { return b.wf }
func (b Base) Payload() any       { return b.p }

type (
	// StartOfWorkflow marks the beginning of one pipeline run.
	StartOfWorkflow struct {
		Base
		Data StartOfWorkflowPayload
	}
	StartOfWorkflowPayload struct {
		WorkflowID string `json:"workflow_id"`
		Input      string `json:"input"`
	}

	// EndOfWorkflow marks the end of one pipeline run.
	EndOfWorkflow struct {
		Base
		Data EndOfWorkflowPayload
	}
	EndOfWorkflowPayload struct {
		WorkflowID string `json:"workflow_id"`
	}

	// StartOfAgent brackets every event an agent (main or sub-agent) produces.
	StartOfAgent struct {
		Base
		Data StartOfAgentPayload
	}
	StartOfAgentPayload struct {
		AgentName   string `json:"agent_name"`
		AgentID     string `json:"agent_id"`
		DisplayName string `json:"display_name,omitempty"`
	}

	// EndOfAgent closes the bracket opened by StartOfAgent.
	EndOfAgent struct {
		Base
		Data EndOfAgentPayload
	}
	EndOfAgentPayload struct {
		AgentName string `json:"agent_name"`
		AgentID   string `json:"agent_id"`
	}

	// StartOfLLM marks the beginning of one LLM call within a turn.
	StartOfLLM struct {
		Base
		Data StartOfLLMPayload
	}
	StartOfLLMPayload struct {
		AgentName string `json:"agent_name"`
	}

	// EndOfLLM marks the end of one LLM call within a turn.
	EndOfLLM struct {
		Base
		Data EndOfLLMPayload
	}
	EndOfLLMPayload struct {
		AgentName string `json:"agent_name"`
	}

	// Message streams one delta of assistant text content.
	Message struct {
		Base
		Data MessagePayload
	}
	MessagePayload struct {
		MessageID string      `json:"message_id"`
		Delta     MessageDelta `json:"delta"`
	}
	MessageDelta struct {
		Content string `json:"content"`
	}

	// ToolCall streams one tool invocation, complete or in-progress.
	ToolCall struct {
		Base
		Data ToolCallPayload
	}
	ToolCallPayload struct {
		ToolCallID string `json:"tool_call_id"`
		ToolName   string `json:"tool_name"`
		ToolInput  string `json:"tool_input,omitempty"`
		DeltaInput string `json:"delta_input,omitempty"`
	}
)

// NewShowError builds the synthesized show_error tool_call event (spec.md
// §4.9): errors are surfaced as a tool_call named ShowErrorToolName rather
// than as a distinct event type.
func NewShowError(workflowID, toolCallID, errMsg string) ToolCall {
	payload := ToolCallPayload{ToolCallID: toolCallID, ToolName: ShowErrorToolName, ToolInput: errMsg}
	return ToolCall{Base: NewBase(EventToolCall, workflowID, payload), Data: payload}
}

// Sink delivers events to one transport. Send must be safe to call
// concurrently; Close is idempotent.
type Sink interface {
	Send(ctx context.Context, event Event) error
	Close(ctx context.Context) error
}
