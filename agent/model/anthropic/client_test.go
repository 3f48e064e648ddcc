package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/miroflow-go/agent/model"
)

type fakeMessagesAPI struct {
	resp     *sdk.Message
	err      error
	errTimes int
	calls    int
}

func (f *fakeMessagesAPI) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	f.calls++
	if f.calls <= f.errTimes {
		return nil, f.err
	}
	return f.resp, nil
}

func newTestClient(t *testing.T, api MessagesAPI) *Client {
	t.Helper()
	c, err := New(Options{Messages: api, DefaultModel: "claude-test", MaxTokens: 1024})
	require.NoError(t, err)
	return c
}

func TestCreateMessageTranslatesTextAndToolUse(t *testing.T) {
	api := &fakeMessagesAPI{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{
			{Type: "text", Text: "hello"},
			{Type: "tool_use", Name: "fs-read_file", ID: "tc1", Input: json.RawMessage(`{"path":"a.txt"}`)},
		},
		StopReason: "tool_use",
		Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	c := newTestClient(t, api)

	resp, history, err := c.CreateMessage(context.Background(), model.Request{
		History: []model.Message{{Role: model.RoleUser, Content: "do something"}},
		KeepToolResult: -1,
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "hello", resp.RawText)
	require.Len(t, resp.NativeToolCalls, 1)
	assert.Equal(t, "fs", resp.NativeToolCalls[0].ServerName)
	assert.Equal(t, "read_file", resp.NativeToolCalls[0].ToolName)
	assert.Equal(t, "a.txt", resp.NativeToolCalls[0].Arguments["path"])
	assert.Equal(t, 10, c.Usage().InputTokens)
	assert.Len(t, history, 1)
}

func TestCreateMessageReturnsNilResponseOnProviderErrorWithoutGoError(t *testing.T) {
	api := &fakeMessagesAPI{err: errors.New("boom"), errTimes: 10}
	c := newTestClient(t, api)
	c.retryPolicy.MaxAttempts = 1

	resp, history, err := c.CreateMessage(context.Background(), model.Request{
		History: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Nil(t, resp)
	assert.Len(t, history, 1)
}

func TestCreateMessageRetriesOn5xxThenSucceeds(t *testing.T) {
	api := &fakeMessagesAPI{
		err:      &sdk.Error{StatusCode: 503},
		errTimes: 1,
		resp:     &sdk.Message{Content: []sdk.ContentBlockUnion{{Type: "text", Text: "ok"}}},
	}
	c := newTestClient(t, api)
	c.retryPolicy.MaxAttempts = 3
	c.retryPolicy.BaseDelay = 0

	resp, _, err := c.CreateMessage(context.Background(), model.Request{
		History: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "ok", resp.RawText)
	assert.Equal(t, 2, api.calls)
}
