// Package tasklog implements the Task Logger (C8): an append-only step log
// plus typed sub-records, written as a single JSON file at
// <log_dir>/task_<task_id>_<start_time>.json when Save is called. StepLogs
// is the primary post-mortem artifact for a run.
package tasklog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// LLMCallLog records technical details of one LLM call.
type LLMCallLog struct {
	Provider            string `json:"provider"`
	Model               string `json:"model"`
	InputTokens         int    `json:"input_tokens"`
	OutputTokens        int    `json:"output_tokens"`
	CacheCreationTokens int    `json:"cache_creation_tokens"`
	CacheReadTokens     int    `json:"cache_read_tokens"`
	Error               string `json:"error,omitempty"`
}

// ToolCallLog records detailed information about one tool call.
type ToolCallLog struct {
	ServerName string         `json:"server_name"`
	ToolName   string         `json:"tool_name"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Result     any            `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	CallTime   string         `json:"call_time,omitempty"`
}

// StepLog records one significant decision during task execution.
type StepLog struct {
	StepName  string         `json:"step_name"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	InfoLevel string         `json:"info_level"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskLog is the root record for one task run. All mutating methods are
// safe for concurrent use: Token Usage and Task Log accesses must be
// serialized per the concurrency model (spec.md §5), so every method takes
// an internal lock rather than relying on single-threaded callers.
type TaskLog struct {
	mu sync.Mutex

	Status           string `json:"status"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	TaskID           string `json:"task_id"`
	Input            any    `json:"input"`
	GroundTruth      string `json:"ground_truth"`
	FinalBoxedAnswer string `json:"final_boxed_answer"`
	FinalJudgeResult string `json:"final_judge_result"`
	JudgeType        string `json:"judge_type"`
	Error            string `json:"error"`

	CurrentMainTurnID        int     `json:"current_main_turn_id"`
	CurrentSubAgentTurnID    int     `json:"current_sub_agent_turn_id"`
	SubAgentCounter          int     `json:"sub_agent_counter"`
	CurrentSubAgentSessionID *string `json:"current_sub_agent_session_id"`

	EnvInfo map[string]any `json:"env_info"`
	LogDir  string         `json:"log_dir"`

	MainAgentMessageHistory        []any            `json:"main_agent_message_history"`
	SubAgentMessageHistorySessions map[string][]any `json:"sub_agent_message_history_sessions"`

	LLMCallLogs  []LLMCallLog  `json:"llm_call_logs"`
	ToolCallLogs []ToolCallLog `json:"tool_call_logs"`

	StepLogs  []StepLog      `json:"step_logs"`
	TraceData map[string]any `json:"trace_data"`
}

// New starts a TaskLog with status "running" and the current time as
// StartTime.
func New(taskID string, input any, logDir string) *TaskLog {
	if logDir == "" {
		logDir = "logs"
	}
	return &TaskLog{
		Status:                         "running",
		StartTime:                      time.Now().UTC().Format(timestampLayout),
		TaskID:                         taskID,
		Input:                          input,
		LogDir:                         logDir,
		EnvInfo:                        make(map[string]any),
		MainAgentMessageHistory:        make([]any, 0),
		SubAgentMessageHistorySessions: make(map[string][]any),
		LLMCallLogs:                    make([]LLMCallLog, 0),
		ToolCallLogs:                   make([]ToolCallLog, 0),
		StepLogs:                       make([]StepLog, 0),
		TraceData:                      make(map[string]any),
	}
}

// StartSubAgentSession allocates a new sub-agent session ID ("<name>_<n>"),
// records it as the current session, and logs the transition.
func (t *TaskLog) StartSubAgentSession(subAgentName, subtaskDescription string) string {
	t.mu.Lock()
	t.SubAgentCounter++
	sessionID := fmt.Sprintf("%s_%d", subAgentName, t.SubAgentCounter)
	t.CurrentSubAgentSessionID = &sessionID
	t.mu.Unlock()

	t.LogStep("info", fmt.Sprintf("%s | Session Start", subAgentName),
		fmt.Sprintf("Starting %s for subtask: %s", sessionID, truncate(subtaskDescription, 100)),
		map[string]any{"session_id": sessionID, "subtask": subtaskDescription})
	return sessionID
}

// EndSubAgentSession logs the end of the current sub-agent session and
// clears it.
func (t *TaskLog) EndSubAgentSession(subAgentName string) {
	t.mu.Lock()
	sessionID := ""
	if t.CurrentSubAgentSessionID != nil {
		sessionID = *t.CurrentSubAgentSessionID
	}
	t.mu.Unlock()

	t.LogStep("info", fmt.Sprintf("%s | Session End", subAgentName),
		fmt.Sprintf("Ending %s", sessionID),
		map[string]any{"session_id": sessionID})

	t.mu.Lock()
	t.CurrentSubAgentSessionID = nil
	t.mu.Unlock()
}

// RecordMainAgentHistory overwrites the main agent's recorded history with
// history, converted to []any so the caller's concrete message type never
// needs to be imported here. Call once the Main Orchestrator's turn loop
// finishes, not per-turn.
func (t *TaskLog) RecordMainAgentHistory(history []any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.MainAgentMessageHistory = history
}

// RecordSubAgentHistory records the final history of a sub-agent session
// under sessionID (as returned by StartSubAgentSession).
func (t *TaskLog) RecordSubAgentHistory(sessionID string, history []any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.SubAgentMessageHistorySessions[sessionID] = history
}

// SetFinalAnswer records the run's final boxed answer.
func (t *TaskLog) SetFinalAnswer(boxed string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.FinalBoxedAnswer = boxed
}

// RecordLLMCall appends one LLMCallLog entry.
func (t *TaskLog) RecordLLMCall(entry LLMCallLog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.LLMCallLogs = append(t.LLMCallLogs, entry)
}

// RecordToolCall appends one ToolCallLog entry.
func (t *TaskLog) RecordToolCall(entry ToolCallLog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ToolCallLogs = append(t.ToolCallLogs, entry)
}

// LogStep appends one StepLog entry. infoLevel should be one of "info",
// "warning", "error", "debug"; any other value is recorded as-is rather
// than rejected, since a malformed level is informative post-mortem data,
// not a reason to drop the step.
func (t *TaskLog) LogStep(infoLevel, stepName, message string, metadata map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.StepLogs = append(t.StepLogs, StepLog{
		StepName:  stepName,
		Message:   message,
		Timestamp: time.Now().UTC().Format(timestampLayout),
		InfoLevel: infoLevel,
		Metadata:  metadata,
	})
}

// Finish sets Status and EndTime. Call once when the run terminates.
func (t *TaskLog) Finish(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = status
	t.EndTime = time.Now().UTC().Format(timestampLayout)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// toJSON marshals t. If that fails, Input is replaced by its string form
// (via fmt.Stringer or %v) and marshaling is tried once more. Only Input is
// stringified: a value json.Marshal cannot encode anywhere else in the log
// (TraceData, EnvInfo, step metadata, message histories) still fails the
// save.
func (t *TaskLog) toJSON() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, err := json.MarshalIndent(t, "", "  ")
	if err == nil {
		return b, nil
	}
	sanitized := *t
	sanitized.Input = stringifyUnsupported(t.Input)
	return json.MarshalIndent(&sanitized, "", "  ")
}

func stringifyUnsupported(v any) any {
	if _, err := json.Marshal(v); err == nil {
		return v
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}

// Save writes t as a single JSON file at
// <log_dir>/task_<task_id>_<start_time>.json, sanitizing StartTime for use
// in a filename, and returns the path written.
func (t *TaskLog) Save() (string, error) {
	t.mu.Lock()
	logDir := t.LogDir
	startTime := t.StartTime
	taskID := t.TaskID
	t.mu.Unlock()

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return "", fmt.Errorf("creating log dir: %w", err)
	}

	timestamp := strings.NewReplacer(":", "-", ".", "-", " ", "-").Replace(startTime)
	path := filepath.Join(logDir, fmt.Sprintf("task_%s_%s.json", taskID, timestamp))

	data, err := t.toJSON()
	if err != nil {
		return "", fmt.Errorf("marshaling task log: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing task log: %w", err)
	}
	return path, nil
}
