package model

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolResultHistory(n int) []Message {
	history := make([]Message, 0, n+1)
	history = append(history, Message{Role: RoleUser, Content: "initial task"})
	for i := 0; i < n; i++ {
		history = append(history, Message{Role: RoleTool, Content: "result", ToolCallID: "id"})
	}
	return history
}

func TestApplyRetentionDisabled(t *testing.T) {
	history := toolResultHistory(5)
	out := ApplyRetention(history, -1)
	for i := range out {
		assert.Equal(t, history[i].Content, out[i].Content)
	}
}

func TestApplyRetentionNeverRewritesFirstUserMessage(t *testing.T) {
	history := toolResultHistory(3)
	out := ApplyRetention(history, 0)
	require.NotEmpty(t, out)
	assert.Equal(t, "initial task", out[0].Content)
}

func TestApplyRetentionKeepsExactlyK(t *testing.T) {
	history := toolResultHistory(5)
	out := ApplyRetention(history, 2)
	kept := 0
	for _, m := range out[1:] {
		if m.Content != ToolResultSentinel {
			kept++
		}
	}
	assert.Equal(t, 2, kept)
}

// TestApplyRetentionKeepsMinKT is property #3: after applying retention with
// k >= 0, the number of non-sentinel tool-result messages is min(k, T) where
// T is the count of tool-result messages in the input, and the first user
// message is never rewritten.
func TestApplyRetentionKeepsMinKT(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("min(k,T) tool results survive, first user message untouched", prop.ForAll(
		func(n, k int) bool {
			if n < 0 {
				n = -n
			}
			if n > 50 {
				n = n % 50
			}
			if k < 0 {
				k = 0
			}
			k = k % 20

			history := toolResultHistory(n)
			out := ApplyRetention(history, k)

			if out[0].Content != "initial task" {
				return false
			}
			nonSentinel := 0
			for _, m := range out[1:] {
				if m.Content != ToolResultSentinel {
					nonSentinel++
				}
			}
			want := k
			if want > n {
				want = n
			}
			return nonSentinel == want
		},
		gen.IntRange(0, 50),
		gen.IntRange(0, 30),
	))

	properties.TestingRun(t)
}
