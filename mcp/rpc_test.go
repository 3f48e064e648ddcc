package mcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeToolResultReturnsLastContentBlock(t *testing.T) {
	raw := json.RawMessage(`{"content":[{"type":"text","text":"first"},{"type":"text","text":"last"}]}`)
	text, err := normalizeToolResult(raw)
	require.NoError(t, err)
	assert.Equal(t, "last", text)
}

func TestNormalizeToolResultEmptyContent(t *testing.T) {
	text, err := normalizeToolResult(json.RawMessage(`{"content":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestNormalizeToolResultNoBody(t *testing.T) {
	text, err := normalizeToolResult(nil)
	require.NoError(t, err)
	assert.Equal(t, "", text)
}
