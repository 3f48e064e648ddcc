package answergen

import "strings"

// FormatErrorMessage is the sentinel returned when the model's response
// carries no usable boxed answer (spec.md §4.6/§7).
const FormatErrorMessage = "FORMAT_ERROR: no valid boxed answer could be extracted"

var blacklistedAnswers = map[string]bool{
	"?":       true,
	"??":      true,
	"???":     true,
	"unknown": true,
	"":        true,
}

const boxedOpen = `\boxed{`

// ExtractBoxedAnswer scans text for the last \boxed{...} occurrence,
// supporting arbitrary brace nesting and \{ \} escapes within the content.
// An unterminated \boxed{ extracts to end-of-string. A blacklisted result
// (empty, "?", "??", "???", "unknown", case-insensitive) returns
// FormatErrorMessage instead.
func ExtractBoxedAnswer(text string) string {
	start := strings.LastIndex(text, boxedOpen)
	if start < 0 {
		return FormatErrorMessage
	}
	content := scanBoxedContent(text[start+len(boxedOpen):])

	if blacklistedAnswers[strings.ToLower(strings.TrimSpace(content))] {
		return FormatErrorMessage
	}
	return content
}

// scanBoxedContent walks s, which begins just after the opening brace of a
// \boxed{ that is already consumed, tracking nesting depth until the
// matching close brace (depth reaches 0) or end of string.
func scanBoxedContent(s string) string {
	var b strings.Builder
	depth := 1
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c == '\\' && i+1 < len(runes) && (runes[i+1] == '{' || runes[i+1] == '}') {
			b.WriteRune(runes[i+1])
			i++
			continue
		}
		switch c {
		case '{':
			depth++
			b.WriteRune(c)
		case '}':
			depth--
			if depth == 0 {
				return b.String()
			}
			b.WriteRune(c)
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}
