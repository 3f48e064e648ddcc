package toolerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolErrorChain(t *testing.T) {
	cause := New("connection refused")
	err := NewWithCause("failed to call tool", cause)
	assert.Equal(t, "failed to call tool: connection refused", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestFromErrorPreservesToolError(t *testing.T) {
	te := New("boom")
	require.Same(t, te, FromError(te))

	wrapped := FromError(errors.New("plain"))
	require.NotNil(t, wrapped)
	assert.Equal(t, "plain", wrapped.Error())
	assert.Nil(t, FromError(nil))
}

func TestKindErrorIsKind(t *testing.T) {
	err := NewKind(KindTransport, "stdio closed")
	assert.True(t, IsKind(err, KindTransport))
	assert.False(t, IsKind(err, KindToolExecution))

	wrapped := NewKindWithCause(KindToolExecution, "tool failed", err)
	assert.True(t, IsKind(wrapped, KindToolExecution))
}
