// Package openai implements the LLM Client (C3) contract on top of the
// OpenAI Chat Completions API. It speaks native dialect: every tool call the
// model emits arrives as an entry of the response message's tool_calls list,
// which this adapter turns
// into model.ToolCall with ServerName/ToolName already split and Arguments
// already decoded, before the Response Parser ever sees it.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/agentrt/miroflow-go/agent/model"
	"github.com/agentrt/miroflow-go/agent/toolerrors"
	"github.com/agentrt/miroflow-go/parser"
	"github.com/agentrt/miroflow-go/ratelimit"
	"github.com/agentrt/miroflow-go/retry"
)

// ChatCompletions captures the subset of the OpenAI SDK used here, so tests
// can substitute a fake.
type ChatCompletions interface {
	New(ctx context.Context, params oai.ChatCompletionNewParams, opts ...option.RequestOption) (*oai.ChatCompletion, error)
}

// Options configures the adapter.
type Options struct {
	Chat         ChatCompletions
	DefaultModel string
	MaxTokens    int
	Temperature  float64
	Limiter      *ratelimit.Limiter
	RetryPolicy  retry.Policy
	StepLogger   model.StepLogger
}

// Client implements model.Client via the OpenAI Chat Completions API.
type Client struct {
	chat        ChatCompletions
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
	if opts.Chat == nil {
		return nil, errors.New("openai: chat completions client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openai: default model is required")
	}
	policy := opts.RetryPolicy
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	return &Client{
		chat:        opts.Chat,
		model:       opts.DefaultModel,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		limiter:     opts.Limiter,
		retryPolicy: policy,
		logger:      opts.StepLogger,
	}, nil
}

// NewFromAPIKey constructs a Client using the default OpenAI HTTP transport.
func NewFromAPIKey(apiKey, defaultModel string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := oai.NewClient(option.WithAPIKey(apiKey))
	opts.Chat = &c.Chat.Completions
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

	var resp *oai.ChatCompletion
	callCtx, cancel := context.WithTimeout(ctx, 600*time.Second)
	defer cancel()
	callErr := retry.Do(callCtx, c.retryPolicy, isRetryableError, func(ctx context.Context) error {
		var innerErr error
		resp, innerErr = c.chat.New(ctx, *params)
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

	out := translateResponse(resp)
	c.mu.Lock()
	c.usage.Add(out.Usage)
	c.mu.Unlock()
	return out, retained, nil
}

func (c *Client) logFailure(kind toolerrors.Kind, err error) {
	if c.logger == nil {
		return
	}
	ke := toolerrors.NewKindWithCause(kind, "openai call failed", err)
	c.logger.LogStep("error", "LLM Client | Call Failed", ke.Error(), map[string]any{"kind": string(kind)})
}

func (c *Client) buildParams(systemPrompt string, history []model.Message, defs []model.ToolDefinition) (*oai.ChatCompletionNewParams, error) {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if systemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(systemPrompt))
	}
	encoded, err := encodeMessages(history)
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, encoded...)

	params := &oai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: msgs,
	}
	if c.maxTokens > 0 {
		params.MaxTokens = oai.Int(int64(c.maxTokens))
	}
	if c.temperature > 0 {
		params.Temperature = oai.Float(c.temperature)
	}
	if len(defs) > 0 {
		params.Tools = encodeTools(defs)
	}
	return params, nil
}

func encodeMessages(history []model.Message) ([]oai.ChatCompletionMessageParamUnion, error) {
	out := make([]oai.ChatCompletionMessageParamUnion, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case model.RoleUser:
			out = append(out, oai.UserMessage(m.Content))
		case model.RoleAssistant:
			assistant := oai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content = oai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: oai.String(m.Content),
				}
			}
			for _, tc := range m.ToolCalls {
				argsJSON, err := json.Marshal(tc.Arguments)
				if err != nil {
					return nil, fmt.Errorf("openai: marshal tool call arguments: %w", err)
				}
				assistant.ToolCalls = append(assistant.ToolCalls, oai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: oai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.ServerName + "-" + tc.ToolName,
						Arguments: string(argsJSON),
					},
				})
			}
			if m.Content == "" && len(assistant.ToolCalls) == 0 {
				continue
			}
			out = append(out, oai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case model.RoleTool:
			out = append(out, oai.ToolMessage(m.Content, m.ToolCallID))
		case model.RoleSystem:
			out = append(out, oai.SystemMessage(m.Content))
		default:
			return nil, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

func encodeTools(defs []model.ToolDefinition) []oai.ChatCompletionToolParam {
	out := make([]oai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		out = append(out, oai.ChatCompletionToolParam{
			Function: oai.FunctionDefinitionParam{
				Name:        def.ServerName + "-" + def.ToolName,
				Description: oai.String(def.Description),
				Parameters:  functionParameters(def.InputSchema),
			},
		})
	}
	return out
}

func functionParameters(raw json.RawMessage) oai.FunctionParameters {
	if len(raw) == 0 {
		return oai.FunctionParameters{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return oai.FunctionParameters{}
	}
	return oai.FunctionParameters(m)
}

func translateResponse(resp *oai.ChatCompletion) *model.Response {
	out := &model.Response{}
	if len(resp.Choices) == 0 {
		return out
	}
	choice := resp.Choices[0]
	out.RawText = choice.Message.Content
	out.StopReason = string(choice.FinishReason)
	for _, call := range choice.Message.ToolCalls {
		serverName, toolName := parser.SplitCompoundToolName(call.Function.Name)
		var args map[string]any
		_ = json.Unmarshal([]byte(call.Function.Arguments), &args)
		out.NativeToolCalls = append(out.NativeToolCalls, model.ToolCall{
			ID:         call.ID,
			ServerName: serverName,
			ToolName:   toolName,
			Arguments:  args,
		})
	}
	out.Usage = model.TokenUsage{
		InputTokens:     int(resp.Usage.PromptTokens),
		OutputTokens:    int(resp.Usage.CompletionTokens),
		CacheReadTokens: int(resp.Usage.PromptTokensDetails.CachedTokens),
	}
	return out
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *oai.Error
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
		"Token usage (openai/%s):\n  input:        %d\n  output:       %d\n  cache read:   %d",
		c.model, u.InputTokens, u.OutputTokens, u.CacheReadTokens,
	)
	logLine := fmt.Sprintf("provider=openai model=%s input=%d output=%d cache_read=%d",
		c.model, u.InputTokens, u.OutputTokens, u.CacheReadTokens)
	return display, logLine
}

// Usage implements model.Client.
func (c *Client) Usage() model.TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Close implements model.Client. The OpenAI SDK's HTTP transport has no
// explicit teardown hook, so this is a no-op.
func (c *Client) Close() error { return nil }
