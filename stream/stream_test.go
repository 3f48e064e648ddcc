package stream

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelSinkDeliversInOrder(t *testing.T) {
	sink := NewChannelSink(10)
	ctx := context.Background()

	events := []Event{
		StartOfAgent{Base: NewBase(EventStartOfAgent, "wf1", nil), Data: StartOfAgentPayload{AgentName: "main", AgentID: "a1"}},
		StartOfLLM{Base: NewBase(EventStartOfLLM, "wf1", nil), Data: StartOfLLMPayload{AgentName: "main"}},
		EndOfLLM{Base: NewBase(EventEndOfLLM, "wf1", nil), Data: EndOfLLMPayload{AgentName: "main"}},
		ToolCall{Base: NewBase(EventToolCall, "wf1", nil), Data: ToolCallPayload{ToolCallID: "tc1", ToolName: "run_python_code"}},
		EndOfAgent{Base: NewBase(EventEndOfAgent, "wf1", nil), Data: EndOfAgentPayload{AgentName: "main", AgentID: "a1"}},
	}
	for _, e := range events {
		require.NoError(t, sink.Send(ctx, e))
	}
	require.NoError(t, sink.Close(ctx))

	var got []Event
	for e := range sink.Events() {
		got = append(got, e)
	}
	require.Len(t, got, len(events)+1)
	for i, e := range events {
		assert.Equal(t, e.Type(), got[i].Type())
	}
	assert.Nil(t, got[len(got)-1])
}

func TestNewShowErrorSynthesizesToolCall(t *testing.T) {
	e := NewShowError("wf1", "tc-err", "boom")
	assert.Equal(t, EventToolCall, e.Type())
	assert.Equal(t, ShowErrorToolName, e.Data.ToolName)
	assert.Equal(t, "boom", e.Data.ToolInput)
}

// TestStreamOrderingProperty is property #7: for any sequence of agent
// brackets and contents sent through one sink, consumers observe
// starts-before-contents-before-end, and each tool_call's ToolCallID is
// unique within the agent bracket.
func TestStreamOrderingProperty(t *testing.T) {
	props := gopter.NewProperties(nil)

	props.Property("agent bracket ordering and unique tool_call ids survive the sink", prop.ForAll(
		func(n int) bool {
			if n < 0 {
				n = -n
			}
			n = n%20 + 1

			sink := NewChannelSink(n + 4)
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			_ = sink.Send(ctx, StartOfAgent{Base: NewBase(EventStartOfAgent, "wf", nil)})
			for i := 0; i < n; i++ {
				_ = sink.Send(ctx, ToolCall{
					Base: NewBase(EventToolCall, "wf", nil),
					Data: ToolCallPayload{ToolCallID: idFor(i), ToolName: "t"},
				})
			}
			_ = sink.Send(ctx, EndOfAgent{Base: NewBase(EventEndOfAgent, "wf", nil)})
			_ = sink.Close(ctx)

			var got []Event
			for e := range sink.Events() {
				got = append(got, e)
			}
			if len(got) < 2 || got[0].Type() != EventStartOfAgent {
				return false
			}
			last := got[len(got)-2]
			if last.Type() != EventEndOfAgent {
				return false
			}
			seen := map[string]bool{}
			for _, e := range got[1 : len(got)-2] {
				tc, ok := e.(ToolCall)
				if !ok || tc.Type() != EventToolCall {
					return false
				}
				if seen[tc.Data.ToolCallID] {
					return false
				}
				seen[tc.Data.ToolCallID] = true
			}
			return len(seen) == n
		},
		gen.IntRange(0, 20),
	))

	props.TestingRun(t)
}

func idFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	return string(letters[i%len(letters)]) + string(rune('0'+i/len(letters)))
}
