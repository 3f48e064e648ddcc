package model

// ToolResultSentinel replaces the content of retention-dropped tool-result
// messages. Fixed and stable: tests and downstream consumers may depend on
// its exact text.
const ToolResultSentinel = "Tool result is omitted to save tokens."

// ApplyRetention returns a copy of history with the content of tool-result
// messages rewritten to ToolResultSentinel, except:
//   - the first message overall when it is a user message (the initial task)
//   - the last keep tool-result-carrying messages (in history order)
//
// keep == -1 disables the pass (returns an unmodified copy). keep == 0 keeps
// none (every tool-result message except the protected first user message is
// rewritten). history is never mutated in place.
func ApplyRetention(history []Message, keep int) []Message {
	out := make([]Message, len(history))
	copy(out, history)

	if keep == -1 {
		return out
	}

	protectedFirst := -1
	if len(out) > 0 && out[0].Role == RoleUser {
		protectedFirst = 0
	}

	var toolResultIdx []int
	for i, m := range out {
		if i == protectedFirst {
			continue
		}
		if m.HasToolResult() {
			toolResultIdx = append(toolResultIdx, i)
		}
	}

	if keep < 0 {
		keep = 0
	}
	cutoff := len(toolResultIdx) - keep
	if cutoff < 0 {
		cutoff = 0
	}
	for _, idx := range toolResultIdx[:cutoff] {
		out[idx].Content = ToolResultSentinel
	}
	return out
}
