// Package bedrock implements the LLM Client (C3) contract on top of the AWS
// Bedrock Converse API. Like the Anthropic adapter, it speaks native
// dialect: every tool_use block the model emits is turned into a
// model.ToolCall with ServerName/ToolName already split and Arguments
// already decoded, before the Response Parser ever sees it. Bedrock tool
// names are restricted to [a-zA-Z0-9_-]+, so the compound "server-tool" name
// the other two adapters send as-is is sanitized on the way out and
// reversed on the way back via a per-call name map.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/agentrt/miroflow-go/agent/model"
	"github.com/agentrt/miroflow-go/agent/toolerrors"
	"github.com/agentrt/miroflow-go/parser"
	"github.com/agentrt/miroflow-go/ratelimit"
	"github.com/agentrt/miroflow-go/retry"
)

// Converse captures the subset of the Bedrock runtime SDK used here, so
// tests can substitute a fake.
type Converse interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the adapter.
type Options struct {
	Runtime      Converse
	DefaultModel string
	MaxTokens    int
	Temperature  float32
	Limiter      *ratelimit.Limiter
	RetryPolicy  retry.Policy
	StepLogger   model.StepLogger
}

// Client implements model.Client via the Bedrock Converse API.
type Client struct {
	runtime     Converse
	model       string
	maxTokens   int
	temperature float32
	limiter     *ratelimit.Limiter
	retryPolicy retry.Policy
	logger      model.StepLogger

	mu    sync.Mutex
	usage model.TokenUsage
}

// New builds a Client from opts.
func New(opts Options) (*Client, error) {
	if opts.Runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	policy := opts.RetryPolicy
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	return &Client{
		runtime:     opts.Runtime,
		model:       opts.DefaultModel,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		limiter:     opts.Limiter,
		retryPolicy: policy,
		logger:      opts.StepLogger,
	}, nil
}

// NewFromRegion constructs a Client using the default AWS credential chain
// resolved for region.
func NewFromRegion(ctx context.Context, region, defaultModel string, opts Options) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: loading AWS config: %w", err)
	}
	opts.Runtime = bedrockruntime.NewFromConfig(cfg)
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

	input, nameMap, err := c.buildInput(req.SystemPrompt, retained, defs)
	if err != nil {
		c.logFailure(toolerrors.KindModelCallError, err)
		return nil, req.History, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		c.logFailure(toolerrors.KindModelCallTimeout, err)
		return nil, req.History, nil
	}

	var out *bedrockruntime.ConverseOutput
	callCtx, cancel := context.WithTimeout(ctx, 600*time.Second)
	defer cancel()
	callErr := retry.Do(callCtx, c.retryPolicy, isRetryableError, func(ctx context.Context) error {
		var innerErr error
		out, innerErr = c.runtime.Converse(ctx, input)
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

	resp := translateResponse(out, nameMap)
	c.mu.Lock()
	c.usage.Add(resp.Usage)
	c.mu.Unlock()
	return resp, retained, nil
}

func (c *Client) logFailure(kind toolerrors.Kind, err error) {
	if c.logger == nil {
		return
	}
	ke := toolerrors.NewKindWithCause(kind, "bedrock call failed", err)
	c.logger.LogStep("error", "LLM Client | Call Failed", ke.Error(), map[string]any{"kind": string(kind)})
}

func (c *Client) buildInput(systemPrompt string, history []model.Message, defs []model.ToolDefinition) (*bedrockruntime.ConverseInput, map[string]string, error) {
	sanToCanon := make(map[string]string, len(defs))
	messages, err := encodeMessages(history, sanToCanon, defs)
	if err != nil {
		return nil, nil, err
	}
	if len(messages) == 0 {
		return nil, nil, errors.New("bedrock: at least one user/assistant message is required")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  &c.model,
		Messages: messages,
	}
	if systemPrompt != "" {
		text := systemPrompt
		input.System = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: text}}
	}
	if toolConfig := encodeTools(defs, sanToCanon); toolConfig != nil {
		input.ToolConfig = toolConfig
	}
	cfg := brtypes.InferenceConfiguration{}
	hasCfg := false
	if c.maxTokens > 0 {
		tokens := int32(c.maxTokens)
		cfg.MaxTokens = &tokens
		hasCfg = true
	}
	if c.temperature > 0 {
		temp := c.temperature
		cfg.Temperature = &temp
		hasCfg = true
	}
	if hasCfg {
		input.InferenceConfig = &cfg
	}
	return input, sanToCanon, nil
}

// canonicalToolName is the server-tool name convention shared with the
// anthropic/openai adapters, ahead of Bedrock's stricter character set.
func canonicalToolName(def model.ToolDefinition) string {
	return def.ServerName + "-" + def.ToolName
}

func encodeMessages(history []model.Message, sanToCanon map[string]string, defs []model.ToolDefinition) ([]brtypes.Message, error) {
	canonToSan := make(map[string]string, len(defs))
	for _, def := range defs {
		canonical := canonicalToolName(def)
		sanitized := sanitizeToolName(canonical)
		canonToSan[canonical] = sanitized
		sanToCanon[sanitized] = canonical
	}

	out := make([]brtypes.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case model.RoleUser:
			out = append(out, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		case model.RoleAssistant:
			blocks := make([]brtypes.ContentBlock, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Content})
			}
			for _, tc := range m.ToolCalls {
				canonical := tc.ServerName + "-" + tc.ToolName
				sanitized, ok := canonToSan[canonical]
				if !ok {
					sanitized = sanitizeToolName(canonical)
					canonToSan[canonical] = sanitized
					sanToCanon[sanitized] = canonical
				}
				callID := tc.ID
				name := sanitized
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: &callID,
					Name:      &name,
					Input:     toDocument(tc.Arguments),
				}})
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, brtypes.Message{Role: brtypes.ConversationRoleAssistant, Content: blocks})
		case model.RoleTool:
			callID := m.ToolCallID
			out = append(out, brtypes.Message{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
					ToolUseId: &callID,
					Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: m.Content}},
				}}},
			})
		case model.RoleSystem:
			// collapsed into the request's top-level System field by the caller.
		default:
			return nil, fmt.Errorf("bedrock: unsupported message role %q", m.Role)
		}
	}
	return out, nil
}

func encodeTools(defs []model.ToolDefinition, canonToSan map[string]string) *brtypes.ToolConfiguration {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]brtypes.Tool, 0, len(defs))
	for _, def := range defs {
		canonical := canonicalToolName(def)
		sanitized, ok := canonToSan[canonical]
		if !ok {
			sanitized = sanitizeToolName(canonical)
		}
		name := sanitized
		desc := def.Description
		tools = append(tools, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        &name,
			Description: &desc,
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: toDocument(schemaToMap(def.InputSchema))},
		}})
	}
	return &brtypes.ToolConfiguration{Tools: tools}
}

// sanitizeToolName maps a canonical "server-tool" name to Bedrock's
// [a-zA-Z0-9_-]+ alphabet, replacing every other rune with '_'. Bedrock tool
// names are already close to compliant (the compound separator is '-'), so
// in practice this is close to a no-op; it exists for the rare tool/server
// name containing dots or spaces.
func sanitizeToolName(in string) string {
	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func schemaToMap(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

func toDocument(v any) document.Interface {
	if v == nil {
		v = map[string]any{}
	}
	return document.NewLazyDocument(&v)
}

func translateResponse(out *bedrockruntime.ConverseOutput, sanToCanon map[string]string) *model.Response {
	resp := &model.Response{}
	if out == nil {
		return resp
	}
	if msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		var text string
		for _, block := range msg.Value.Content {
			switch v := block.(type) {
			case *brtypes.ContentBlockMemberText:
				text += v.Value
			case *brtypes.ContentBlockMemberToolUse:
				id := ""
				if v.Value.ToolUseId != nil {
					id = *v.Value.ToolUseId
				}
				sanitized := ""
				if v.Value.Name != nil {
					sanitized = *v.Value.Name
				}
				canonical, ok := sanToCanon[sanitized]
				if !ok {
					canonical = sanitized
				}
				serverName, toolName := parser.SplitCompoundToolName(canonical)
				resp.NativeToolCalls = append(resp.NativeToolCalls, model.ToolCall{
					ID:         id,
					ServerName: serverName,
					ToolName:   toolName,
					Arguments:  decodeDocument(v.Value.Input),
				})
			}
		}
		resp.RawText = text
	}
	resp.StopReason = string(out.StopReason)
	if u := out.Usage; u != nil {
		resp.Usage = model.TokenUsage{
			InputTokens:      int(ptrValue(u.InputTokens)),
			OutputTokens:     int(ptrValue(u.OutputTokens)),
			CacheReadTokens:  int(ptrValue(u.CacheReadInputTokens)),
			CacheWriteTokens: int(ptrValue(u.CacheWriteInputTokens)),
		}
	}
	return resp
}

func decodeDocument(doc document.Interface) map[string]any {
	if doc == nil {
		return nil
	}
	data, err := doc.MarshalSmithyDocument()
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

func ptrValue[T ~int32 | ~int64](p *T) int {
	if p == nil {
		return 0
	}
	return int(*p)
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException", "ServiceUnavailableException":
			return true
		}
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// FormatTokenUsageSummary implements model.Client.
func (c *Client) FormatTokenUsageSummary() (string, string) {
	c.mu.Lock()
	u := c.usage
	c.mu.Unlock()
	display := fmt.Sprintf(
		"Token usage (bedrock/%s):\n  input:        %d\n  output:       %d\n  cache read:   %d\n  cache write:  %d",
		c.model, u.InputTokens, u.OutputTokens, u.CacheReadTokens, u.CacheWriteTokens,
	)
	logLine := fmt.Sprintf("provider=bedrock model=%s input=%d output=%d cache_read=%d cache_write=%d",
		c.model, u.InputTokens, u.OutputTokens, u.CacheReadTokens, u.CacheWriteTokens)
	return display, logLine
}

// Usage implements model.Client.
func (c *Client) Usage() model.TokenUsage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Close implements model.Client. The Bedrock runtime client has no explicit
// teardown hook, so this is a no-op.
func (c *Client) Close() error { return nil }
