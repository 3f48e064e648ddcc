package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/agentrt/miroflow-go/agent/model"
)

var framedCallRe = regexp.MustCompile(
	`(?s)<use_mcp_tool>\s*<server_name>(.*?)</server_name>\s*<tool_name>(.*?)</tool_name>\s*<arguments>\s*(.*?)\s*</arguments>\s*</use_mcp_tool>`,
)

// extractFramedToolCalls finds every <use_mcp_tool> block in raw, in order,
// and parses each one's arguments. A framed call never has an ID (that's a
// native-dialect-only concept).
func extractFramedToolCalls(raw string) []model.ToolCall {
	matches := framedCallRe.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}
	calls := make([]model.ToolCall, 0, len(matches))
	for _, m := range matches {
		serverName := strings.TrimSpace(m[1])
		toolName := strings.TrimSpace(m[2])
		argsStr := strings.TrimSpace(m[3])
		calls = append(calls, model.ToolCall{
			ServerName: serverName,
			ToolName:   toolName,
			Arguments:  filterNilValues(safeJSONLoads(argsStr)),
		})
	}
	return calls
}

// safeJSONLoads parses a JSON object string with a two-pass fallback
// strategy (§4.3): strict json.Unmarshal first, then a repair pass fixing
// common model mistakes (single quotes, Python literals, stray
// backslashes). If both fail the call is still emitted, carrying the
// failure as data rather than being dropped.
func safeJSONLoads(s string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err == nil && out != nil {
		return out
	}
	repaired := repairJSON(s)
	if err := json.Unmarshal([]byte(repaired), &out); err == nil && out != nil {
		return out
	}
	return map[string]any{"error": "Failed to parse arguments", "raw": s}
}

var pythonLiteralReplacer = strings.NewReplacer(
	"None", "null",
	"True", "true",
	"False", "false",
)

const validEscapeChars = `\"/bfnrtu`

// repairJSON fixes a conservative set of common near-JSON mistakes: Python
// dict literal quoting and keywords, plus unescaped backslashes that would
// otherwise break json.Unmarshal (Windows paths, regex fragments, stray
// digit escapes).
func repairJSON(s string) string {
	s = strings.ReplaceAll(s, "'", `"`)
	s = pythonLiteralReplacer.Replace(s)
	return fixBackslashEscapes(s)
}

// fixBackslashEscapes walks s left to right, doubling any backslash that
// isn't the first character of a valid JSON escape sequence. A genuine "\\"
// pair is consumed whole and left untouched, so it is never re-escaped.
func fixBackslashEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c != '\\' {
			b.WriteRune(c)
			continue
		}
		if i+1 < len(runes) && strings.ContainsRune(validEscapeChars, runes[i+1]) {
			b.WriteRune(c)
			b.WriteRune(runes[i+1])
			i++
			continue
		}
		b.WriteString(`\\`)
		if i+1 < len(runes) {
			b.WriteRune(runes[i+1])
			i++
		}
	}
	return b.String()
}

func filterNilValues(m map[string]any) map[string]any {
	if m == nil {
		return m
	}
	for k, v := range m {
		if v == nil {
			delete(m, k)
		}
	}
	return m
}
