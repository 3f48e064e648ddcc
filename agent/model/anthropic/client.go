// Package anthropic implements the LLM Client (C3) contract on top of the
// Anthropic Messages API. It speaks native dialect: every tool call the
// model emits arrives as a structured tool_use block, which this adapter
// turns into model.ToolCall with ServerName/ToolName already split and
// Arguments already decoded, before the Response Parser ever sees it.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/agentrt/miroflow-go/agent/model"
	"github.com/agentrt/miroflow-go/agent/toolerrors"
	"github.com/agentrt/miroflow-go/parser"
	"github.com/agentrt/miroflow-go/ratelimit"
	"github.com/agentrt/miroflow-go/retry"
)

// MessagesAPI captures the subset of the Anthropic SDK used here, so tests
// can substitute a fake.
type MessagesAPI interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the adapter.
type Options struct {
	Messages     MessagesAPI
	DefaultModel string
	MaxTokens    int
	Temperature  float64
	Limiter      *ratelimit.Limiter
	RetryPolicy  retry.Policy
	StepLogger   model.StepLogger
}

// Client implements model.Client via the Anthropic Messages API.
type Client struct {
	msg         MessagesAPI
	model       string
	maxTokens   int
	temperature float64
	limiter     *ratelimit.Limiter
	retryPolicy retry.Policy
	logger      model.StepLogger

	mu    sync.Mutex
	usage model.TokenUsage
}

// New builds a Client from opts.
func New(opts Options) (*Client, error) {
	if opts.Messages == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	policy := opts.RetryPolicy
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	return &Client{
		msg:         opts.Messages,
		model:       opts.DefaultModel,
		maxTokens:   maxTokens,
		temperature: opts.Temperature,
		limiter:     opts.Limiter,
		retryPolicy: policy,
		logger:      opts.StepLogger,
	}, nil
}

// NewFromAPIKey constructs a Client using the default Anthropic HTTP
// transport.
func NewFromAPIKey(apiKey, defaultModel string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	opts.Messages = &c.Messages
	opts.DefaultModel = defaultModel
	return New(opts)
}

// CreateMessage implements model.Client.
func (c *Client) CreateMessage(ctx context.Context, req model.Request) (*model.Response, []model.Message, error) {
	retained := model.ApplyRetention(req.History, req.KeepToolResult)

	var defs []model.ToolDefinition
	if !req.DisableTools {
		defs = model.FilterValidToolDefinitions(req.ToolDefinitions, c.logger)
	}

	params, err := c.buildParams(req.SystemPrompt, retained, defs)
	if err != nil {
		c.logFailure(toolerrors.KindModelCallError, err)
		return nil, req.History, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.logFailure(toolerrors.KindModelCallTimeout, err)
		return nil, req.History, nil
	}

	var msg *sdk.Message
	callCtx, cancel := context.WithTimeout(ctx, 600*time.Second)
	defer cancel()
	callErr := retry.Do(callCtx, c.retryPolicy, isRetryableError, func(ctx context.Context) error {
		var innerErr error
		msg, innerErr = c.msg.New(ctx, *params)
		return innerErr
	})
	if callErr != nil {
		kind := toolerrors.KindModelCallError
		if errors.Is(callErr, context.DeadlineExceeded) {
			kind = toolerrors.KindModelCallTimeout
		}
		c.logFailure(kind, callErr)
		return nil, req.History, nil
	}

	resp := translateResponse(msg)
	c.mu.Lock()
	c.usage.Add(resp.Usage)
	c.mu.Unlock()
	return resp, retained, nil
}

func (c *Client) logFailure(kind toolerrors.Kind, err error) {
	if c.logger == nil {
		return
	}
	ke := toolerrors.NewKindWithCause(kind, "anthropic call failed", err)
	c.logger.LogStep("error", "LLM Client | Call Failed", ke.Error(), map[string]any{"kind": string(kind)})
}

func (c *Client) buildParams(systemPrompt string, history []model.Message, defs []model.ToolDefinition) (*sdk.MessageNewParams, error) {
	msgs, err := encodeMessages(history)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}
	params := &sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages:  msgs,
	}
	if systemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: systemPrompt}}
	}
	if c.temperature > 0 {
		params.Temperature = sdk.Float(c.temperature)
	}
	if len(defs) > 0 {
		tools, err := encodeTools(defs)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	return params, nil
}

func encodeMessages(history []model.Message) ([]sdk.MessageParam, error) {
	out := make([]sdk.MessageParam, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case model.RoleUser:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case model.RoleAssistant:
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, tc.Arguments, tc.ServerName+"-"+tc.ToolName))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, sdk.NewAssistantMessage(blocks...))
		case model.RoleTool:
			out = append(out, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		case model.RoleSystem:
			// collapsed into params.System by the caller; skip here.
		default:
			return nil, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

func encodeTools(defs []model.ToolDefinition) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema, err := toolInputSchema(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: tool %s-%s schema: %w", def.ServerName, def.ToolName, err)
		}
		u := sdk.ToolUnionParamOfTool(schema, def.ServerName+"-"+def.ToolName)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(def.Description)
		}
		out = append(out, u)
	}
	return out, nil
}

func toolInputSchema(raw json.RawMessage) (sdk.ToolInputSchemaParam, error) {
	if len(raw) == 0 {
		return sdk.ToolInputSchemaParam{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return sdk.ToolInputSchemaParam{}, err
	}
	return sdk.ToolInputSchemaParam{ExtraFields: m}, nil
}

func translateResponse(msg *sdk.Message) *model.Response {
	resp := &model.Response{StopReason: string(msg.StopReason)}
	var text string
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text += block.Text
		case "tool_use":
			serverName, toolName := parser.SplitCompoundToolName(block.Name)
			var args map[string]any
			_ = json.Unmarshal(block.Input, &args)
			resp.NativeToolCalls = append(resp.NativeToolCalls, model.ToolCall{
				ID:         block.ID,
				ServerName: serverName,
				ToolName:   toolName,
				Arguments:  args,
			})
		}
	}
	resp.RawText = text
	u := msg.Usage
	resp.Usage = model.TokenUsage{
		InputTokens:      int(u.InputTokens),
		OutputTokens:     int(u.OutputTokens),
		CacheReadTokens:  int(u.CacheReadInputTokens),
		CacheWriteTokens: int(u.CacheCreationInputTokens),
	}
	return resp
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// FormatTokenUsageSummary implements model.Client.
func (c *Client) FormatTokenUsageSummary() (string, string) {
	c.mu.Lock()
	u := c.usage
	c.mu.Unlock()
	display := fmt.Sprintf(
		"Token usage (anthropic/%s):\n  input:        %d\n  output:       %d\n  cache read:   %d\n  cache write:  %d",
		c.model, u.InputTokens, u.OutputTokens, u.CacheReadTokens, u.CacheWriteTokens,
	)
	logLine := fmt.Sprintf("provider=anthropic model=%s input=%d output=%d cache_read=%d cache_write=%d",
		c.model, u.InputTokens, u.OutputTokens, u.CacheReadTokens, u.CacheWriteTokens)
	return display, logLine
}

// Usage implements model.Client.
func (c *Client) Usage() model.TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Close implements model.Client. The Anthropic SDK's HTTP transport has no
// explicit teardown hook, so this is a no-op.
func (c *Client) Close() error { return nil }
