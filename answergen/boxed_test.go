package answergen

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestExtractBoxedAnswerLastOccurrenceWins(t *testing.T) {
	got := ExtractBoxedAnswer(`pre \boxed{X} mid \boxed{Y} post`)
	assert.Equal(t, "Y", got)
}

func TestExtractBoxedAnswerNestedBraces(t *testing.T) {
	got := ExtractBoxedAnswer(`... \boxed{a {nested} b}`)
	assert.Equal(t, "a {nested} b", got)
}

func TestExtractBoxedAnswerUnterminatedExtractsToEnd(t *testing.T) {
	got := ExtractBoxedAnswer(`... \boxed{unterm`)
	assert.Equal(t, "unterm", got)
}

func TestExtractBoxedAnswerBlacklistedReturnsFormatError(t *testing.T) {
	for _, v := range []string{"?", "??", "???", "unknown", "Unknown"} {
		got := ExtractBoxedAnswer(`\boxed{` + v + `}`)
		assert.Equal(t, FormatErrorMessage, got)
	}
}

func TestExtractBoxedAnswerNoBoxedReturnsFormatError(t *testing.T) {
	assert.Equal(t, FormatErrorMessage, ExtractBoxedAnswer("no boxed answer here"))
}

func TestExtractBoxedAnswerEscapedBraces(t *testing.T) {
	got := ExtractBoxedAnswer(`\boxed{literal \{brace\} here}`)
	assert.Equal(t, "literal {brace} here", got)
}

// TestBoxedExtractionRoundTripProperty is property #4: any printable
// non-blacklisted payload free of stray braces round-trips through a
// single \boxed{...} wrapper unchanged.
func TestBoxedExtractionRoundTripProperty(t *testing.T) {
	props := gopter.NewProperties(nil)

	safePayload := gen.AlphaString().SuchThat(func(s string) bool {
		return len(s) > 0 && !blacklistedAnswers[strings.ToLower(s)]
	})

	props.Property("a single non-blacklisted boxed payload round-trips", prop.ForAll(
		func(payload string) bool {
			wrapped := fmt.Sprintf(`some preamble \boxed{%s}`, payload)
			return ExtractBoxedAnswer(wrapped) == payload
		},
		safePayload,
	))

	props.TestingRun(t)
}
