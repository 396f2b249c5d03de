package quiz

import (
	"testing"

	"cognify/backend/internal/models"
	"cognify/backend/internal/store"
	apperrors "cognify/backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSession(t *testing.T) (store.Store, string) {
	t.Helper()
	st := store.NewMemoryStore()
	user := &models.User{DisplayName: "learner", Guest: true}
	require.NoError(t, st.CreateUser(user))
	session, err := st.CreateSession(user.ID)
	require.NoError(t, err)
	return st, session.ID
}

func appendMsg(t *testing.T, st store.Store, sessionID, role, text string) models.Message {
	t.Helper()
	m, err := st.Append(sessionID, role, text)
	require.NoError(t, err)
	return m
}

func TestAssembleContextFirstExchange(t *testing.T) {
	st, sessionID := seedSession(t)
	u1 := appendMsg(t, st, sessionID, models.RoleUser, "explain heaps")
	a1 := appendMsg(t, st, sessionID, models.RoleAssistant, "a heap is a tree")

	asm, err := AssembleContext(st, sessionID, a1.ID)
	require.NoError(t, err)

	assert.Empty(t, asm.PrevContext)
	require.Len(t, asm.Seed, 2)
	assert.Equal(t, u1.ID, asm.Seed[0].ID)
	assert.Equal(t, a1.ID, asm.Seed[1].ID)
	assert.False(t, asm.SeedEmpty)
}

func TestAssembleContextMidSession(t *testing.T) {
	st, sessionID := seedSession(t)
	appendMsg(t, st, sessionID, models.RoleUser, "explain heaps")
	appendMsg(t, st, sessionID, models.RoleAssistant, "a heap is a tree")
	u2 := appendMsg(t, st, sessionID, models.RoleUser, "and heapsort?")
	a2 := appendMsg(t, st, sessionID, models.RoleAssistant, "heapsort pops the root repeatedly")

	asm, err := AssembleContext(st, sessionID, a2.ID)
	require.NoError(t, err)

	require.Len(t, asm.PrevContext, 2)
	assert.Equal(t, "explain heaps", asm.PrevContext[0].Content)
	assert.Equal(t, "a heap is a tree", asm.PrevContext[1].Content)
	require.Len(t, asm.Seed, 2)
	assert.Equal(t, u2.ID, asm.Seed[0].ID)
	assert.Equal(t, a2.ID, asm.Seed[1].ID)
}

// prev_context plus the seed must reproduce the parent history up to the
// anchor with every entry exactly once.
func TestAssembleContextNoDuplication(t *testing.T) {
	st, sessionID := seedSession(t)
	appendMsg(t, st, sessionID, models.RoleUser, "one")
	appendMsg(t, st, sessionID, models.RoleAssistant, "two")
	appendMsg(t, st, sessionID, models.RoleUser, "three")
	a2 := appendMsg(t, st, sessionID, models.RoleAssistant, "four")

	asm, err := AssembleContext(st, sessionID, a2.ID)
	require.NoError(t, err)

	var rebuilt []models.HistoryEntry
	rebuilt = append(rebuilt, asm.PrevContext...)
	for _, m := range asm.Seed {
		rebuilt = append(rebuilt, m.History())
	}

	parent, err := st.Get(sessionID)
	require.NoError(t, err)
	assert.Equal(t, parent.History, rebuilt)
}

func TestAssembleContextAnchorWithoutTrigger(t *testing.T) {
	// An assistant message with no preceding user message. The whole prefix
	// including the anchor becomes prev_context and the seed stays empty.
	st, sessionID := seedSession(t)
	appendMsg(t, st, sessionID, models.RoleAssistant, "welcome")
	a1 := appendMsg(t, st, sessionID, models.RoleAssistant, "ask me anything")

	asm, err := AssembleContext(st, sessionID, a1.ID)
	require.NoError(t, err)
	assert.True(t, asm.SeedEmpty)
	assert.Empty(t, asm.Seed)
	require.Len(t, asm.PrevContext, 2)
	assert.Equal(t, "ask me anything", asm.PrevContext[1].Content)
}

func TestAssembleContextMissingAnchor(t *testing.T) {
	st, sessionID := seedSession(t)
	appendMsg(t, st, sessionID, models.RoleUser, "hello")

	_, err := AssembleContext(st, sessionID, "nope")
	require.Error(t, err)
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeAnchorNotFound, appErr.Code)
}

func TestAssembleContextAnchorMustBeAssistant(t *testing.T) {
	st, sessionID := seedSession(t)
	u1 := appendMsg(t, st, sessionID, models.RoleUser, "hello")
	appendMsg(t, st, sessionID, models.RoleAssistant, "hi")

	_, err := AssembleContext(st, sessionID, u1.ID)
	require.Error(t, err)
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeAnchorNotFound, appErr.Code)
}
