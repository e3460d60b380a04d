package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atendai/conversation-pipeline/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	return st
}

func TestFindOrCreateConversationReusesOpen(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, created, err := st.FindOrCreateConversation(ctx, "t1", "5511999990000", "sess-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.StatusOpen, first.Status)

	second, created, err := st.FindOrCreateConversation(ctx, "t1", "5511999990000", "sess-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestFindOrCreateConversationIsolatesTenants(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	a, _, err := st.FindOrCreateConversation(ctx, "t1", "5511999990000", "sess-1")
	require.NoError(t, err)
	b, _, err := st.FindOrCreateConversation(ctx, "t2", "5511999990000", "sess-2")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}

func TestClosedConversationOpensFresh(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, _, err := st.FindOrCreateConversation(ctx, "t1", "5511999990000", "sess-1")
	require.NoError(t, err)
	require.NoError(t, st.SetStatus(ctx, first.ID, model.StatusClosed))

	// Closing frees the open key so the next message starts over.
	second, created, err := st.FindOrCreateConversation(ctx, "t1", "5511999990000", "sess-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestTransitionStatusConditional(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	conv, _, err := st.FindOrCreateConversation(ctx, "t1", "5511999990000", "sess-1")
	require.NoError(t, err)
	require.NoError(t, st.AssignAgent(ctx, conv.ID, "agent-1"))

	err = st.TransitionStatus(ctx, conv.ID, model.StatusAIHandling, model.StatusClosed)
	require.NoError(t, err)

	got, err := st.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusClosed, got.Status)
	assert.Nil(t, got.OpenKey)
}

func TestTransitionStatusStale(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	conv, _, err := st.FindOrCreateConversation(ctx, "t1", "5511999990000", "sess-1")
	require.NoError(t, err)

	// Still OPEN, so an AI_HANDLING precondition must not apply.
	err = st.TransitionStatus(ctx, conv.ID, model.StatusAIHandling, model.StatusClosed)
	assert.ErrorIs(t, err, ErrStaleStatus)

	got, err := st.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusOpen, got.Status)
}

func TestTouchConversation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	conv, _, err := st.FindOrCreateConversation(ctx, "t1", "5511999990000", "sess-1")
	require.NoError(t, err)

	at := time.Now().Add(5 * time.Minute).Truncate(time.Second)
	require.NoError(t, st.TouchConversation(ctx, conv.ID, at, true))
	require.NoError(t, st.TouchConversation(ctx, conv.ID, at, false))

	got, err := st.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UnreadCount)
	assert.WithinDuration(t, at, got.LastMessageAt, time.Second)
}

func TestStaleAIConversations(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	stale, _, err := st.FindOrCreateConversation(ctx, "t1", "5511999990000", "sess-1")
	require.NoError(t, err)
	require.NoError(t, st.AssignAgent(ctx, stale.ID, "agent-1"))
	require.NoError(t, st.TouchConversation(ctx, stale.ID, time.Now().Add(-time.Hour), false))

	fresh, _, err := st.FindOrCreateConversation(ctx, "t1", "5511888880000", "sess-2")
	require.NoError(t, err)
	require.NoError(t, st.AssignAgent(ctx, fresh.ID, "agent-1"))

	human, _, err := st.FindOrCreateConversation(ctx, "t1", "5511777770000", "sess-3")
	require.NoError(t, err)
	require.NoError(t, st.SetStatus(ctx, human.ID, model.StatusHumanHandling))
	require.NoError(t, st.TouchConversation(ctx, human.ID, time.Now().Add(-time.Hour), false))

	got, err := st.StaleAIConversations(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stale.ID, got[0].ID)
}

func TestGetConversationNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
