package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/miroflow-go/agent/session"
)

func TestCreateSessionIsIdempotentWhileActive(t *testing.T) {
	store := New()
	ctx := context.Background()
	now := time.Now()

	first, err := store.CreateSession(ctx, "agent-browsing_1", "agent-browsing", now)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, first.Status)

	second, err := store.CreateSession(ctx, "agent-browsing_1", "agent-browsing", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestCreateSessionAfterEndReturnsErrSessionEnded(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.CreateSession(ctx, "s1", "main", time.Now())
	require.NoError(t, err)
	_, err = store.EndSession(ctx, "s1", time.Now())
	require.NoError(t, err)

	_, err = store.CreateSession(ctx, "s1", "main", time.Now())
	assert.ErrorIs(t, err, session.ErrSessionEnded)
}

func TestEndSessionIsIdempotent(t *testing.T) {
	store := New()
	ctx := context.Background()
	_, err := store.CreateSession(ctx, "s1", "main", time.Now())
	require.NoError(t, err)

	first, err := store.EndSession(ctx, "s1", time.Now())
	require.NoError(t, err)
	second, err := store.EndSession(ctx, "s1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first.EndedAt, second.EndedAt)
}

func TestLoadSessionUnknownReturnsErrSessionNotFound(t *testing.T) {
	store := New()
	_, err := store.LoadSession(context.Background(), "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestEndSessionUnknownReturnsErrSessionNotFound(t *testing.T) {
	store := New()
	_, err := store.EndSession(context.Background(), "missing", time.Now())
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestClonedSessionEndedAtIsIndependent(t *testing.T) {
	store := New()
	ctx := context.Background()
	_, err := store.CreateSession(ctx, "s1", "main", time.Now())
	require.NoError(t, err)
	ended, err := store.EndSession(ctx, "s1", time.Now())
	require.NoError(t, err)

	*ended.EndedAt = ended.EndedAt.Add(time.Hour)

	reloaded, err := store.LoadSession(ctx, "s1")
	require.NoError(t, err)
	assert.NotEqual(t, *ended.EndedAt, *reloaded.EndedAt)
}
