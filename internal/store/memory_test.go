package store

import (
	"testing"

	"cognify/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreWithUser(t *testing.T) (*MemoryStore, *models.User) {
	t.Helper()
	st := NewMemoryStore()
	user := &models.User{DisplayName: "learner", Guest: true}
	require.NoError(t, st.CreateUser(user))
	return st, user
}

func TestAppendKeepsMessagesAndHistoryInLockstep(t *testing.T) {
	st, user := newStoreWithUser(t)
	session, err := st.CreateSession(user.ID)
	require.NoError(t, err)

	_, err = st.Append(session.ID, models.RoleUser, "what is a heap?")
	require.NoError(t, err)
	_, err = st.Append(session.ID, models.RoleAssistant, "a heap is a tree-shaped priority structure")
	require.NoError(t, err)

	got, err := st.Get(session.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	require.Len(t, got.History, 2)
	for i, msg := range got.Messages {
		assert.Equal(t, msg.Role, got.History[i].Role)
		assert.Equal(t, msg.Text, got.History[i].Content)
	}
}

func TestAppendRejectsSystemRole(t *testing.T) {
	st, user := newStoreWithUser(t)
	session, err := st.CreateSession(user.ID)
	require.NoError(t, err)

	_, err = st.Append(session.ID, models.RoleSystem, "you are a tutor")
	assert.ErrorIs(t, err, ErrInvalidRole)

	// System entries go into history only.
	require.NoError(t, st.AppendHistory(session.ID, models.RoleSystem, "you are a tutor"))
	got, err := st.Get(session.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
	assert.Len(t, got.History, 1)
}

func TestAppendTimestampsNeverDecrease(t *testing.T) {
	st, user := newStoreWithUser(t)
	session, err := st.CreateSession(user.ID)
	require.NoError(t, err)

	var msgs []models.Message
	for i := 0; i < 50; i++ {
		msg, err := st.Append(session.ID, models.RoleUser, "tick")
		require.NoError(t, err)
		msgs = append(msgs, msg)
	}
	for i := 1; i < len(msgs); i++ {
		assert.True(t, msgs[i].Timestamp.After(msgs[i-1].Timestamp),
			"timestamp %d does not advance past its predecessor", i)
	}
}

func TestMessagesBeforeRespectsOrderAndFilter(t *testing.T) {
	st, user := newStoreWithUser(t)
	session, err := st.CreateSession(user.ID)
	require.NoError(t, err)

	u1, _ := st.Append(session.ID, models.RoleUser, "u1")
	a1, _ := st.Append(session.ID, models.RoleAssistant, "a1")
	u2, _ := st.Append(session.ID, models.RoleUser, "u2")
	pivot, _ := st.Append(session.ID, models.RoleAssistant, "a2")

	seq, err := st.MessagesBefore(session.ID, pivot.ID, "")
	require.NoError(t, err)
	var ids []string
	for m := range seq {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{u1.ID, a1.ID, u2.ID}, ids)

	seq, err = st.MessagesBefore(session.ID, pivot.ID, models.RoleUser)
	require.NoError(t, err)
	ids = nil
	for m := range seq {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{u1.ID, u2.ID}, ids)

	// Restartable: a second pass yields the same prefix.
	count := 0
	for range seq {
		count++
	}
	assert.Equal(t, 2, count)
}

func TestMessagesBeforeUnknownPivot(t *testing.T) {
	st, user := newStoreWithUser(t)
	session, err := st.CreateSession(user.ID)
	require.NoError(t, err)

	_, err = st.MessagesBefore(session.ID, "missing", "")
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestCreateQuizThreadIsIdempotentPerAnchor(t *testing.T) {
	st, user := newStoreWithUser(t)
	session, err := st.CreateSession(user.ID)
	require.NoError(t, err)

	trigger, _ := st.Append(session.ID, models.RoleUser, "explain dijkstra")
	anchor, _ := st.Append(session.ID, models.RoleAssistant, "dijkstra grows a shortest-path tree")

	spec := QuizSpec{
		SessionID:       session.ID,
		OwnerUserID:     user.ID,
		AnchorMessageID: anchor.ID,
		AnchorMessage:   anchor,
		PrevContext:     nil,
		Seed:            []models.Message{trigger, anchor},
	}

	first, err := st.CreateQuizThread(spec)
	require.NoError(t, err)
	second, err := st.CreateQuizThread(spec)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	id, ok, err := st.FindQuizByAnchor(session.ID, anchor.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, first.ID, id)

	parent, err := st.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, parent.ChildThreadIDs)
}

func TestQuizSeedGetsFreshIDsButKeepsContent(t *testing.T) {
	st, user := newStoreWithUser(t)
	session, err := st.CreateSession(user.ID)
	require.NoError(t, err)

	trigger, _ := st.Append(session.ID, models.RoleUser, "explain dijkstra")
	anchor, _ := st.Append(session.ID, models.RoleAssistant, "dijkstra grows a shortest-path tree")

	thread, err := st.CreateQuizThread(QuizSpec{
		SessionID:       session.ID,
		OwnerUserID:     user.ID,
		AnchorMessageID: anchor.ID,
		AnchorMessage:   anchor,
		Seed:            []models.Message{trigger, anchor},
	})
	require.NoError(t, err)

	require.Len(t, thread.Messages, 2)
	require.Len(t, thread.History, 2)
	assert.NotEqual(t, trigger.ID, thread.Messages[0].ID)
	assert.NotEqual(t, anchor.ID, thread.Messages[1].ID)
	assert.Equal(t, trigger.Text, thread.Messages[0].Text)
	assert.Equal(t, anchor.Text, thread.Messages[1].Text)
	assert.Equal(t, trigger.Timestamp, thread.Messages[0].Timestamp)
	assert.True(t, thread.IsQuizThread())
}

func TestSnapshotsAreIsolatedFromStoreState(t *testing.T) {
	st, user := newStoreWithUser(t)
	session, err := st.CreateSession(user.ID)
	require.NoError(t, err)
	_, err = st.Append(session.ID, models.RoleUser, "hello")
	require.NoError(t, err)

	got, err := st.Get(session.ID)
	require.NoError(t, err)
	got.Messages[0].Text = "mutated"
	got.History[0].Content = "mutated"

	fresh, err := st.Get(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", fresh.Messages[0].Text)
	assert.Equal(t, "hello", fresh.History[0].Content)
}

func TestGetUnknownEntity(t *testing.T) {
	st := NewMemoryStore()
	_, err := st.Get("nope")
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestUserLookupByEmail(t *testing.T) {
	st := NewMemoryStore()
	require.NoError(t, st.CreateUser(&models.User{DisplayName: "a", Email: "a@example.com"}))

	u, err := st.GetUserByEmail("a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "a", u.DisplayName)

	_, err = st.GetUserByEmail("missing@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)

	// Guests have empty emails and must never match an empty-email lookup.
	require.NoError(t, st.CreateUser(&models.User{DisplayName: "g", Guest: true}))
	_, err = st.GetUserByEmail("")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
