package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"cognify/backend/internal/llm"
	"cognify/backend/internal/models"
	"cognify/backend/internal/store"
	apperrors "cognify/backend/pkg/errors"
	"cognify/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStream replays fragments and then a terminal error (io.EOF for a
// clean end).
type scriptedStream struct {
	fragments []string
	final     error
	pos       int
}

func (s *scriptedStream) Recv() (string, error) {
	if s.pos < len(s.fragments) {
		f := s.fragments[s.pos]
		s.pos++
		return f, nil
	}
	if s.final != nil {
		return "", s.final
	}
	return "", io.EOF
}

func (s *scriptedStream) Close() error { return nil }

func opener(stream llm.Stream, err error) StreamOpener {
	return func(ctx context.Context, entity *models.ConversationEntity) (llm.Stream, error) {
		return stream, err
	}
}

func testOrchestrator(t *testing.T) (*Orchestrator, store.Store, string) {
	t.Helper()
	st := store.NewMemoryStore()
	user := &models.User{DisplayName: "learner", Guest: true}
	require.NoError(t, st.CreateUser(user))
	session, err := st.CreateSession(user.ID)
	require.NoError(t, err)

	o := NewOrchestrator(st, nil, logger.New(logger.DefaultConfig()), "")
	return o, st, session.ID
}

func collect(t *testing.T, events <-chan Event) (string, Event) {
	t.Helper()
	var buf strings.Builder
	for ev := range events {
		switch ev.Type {
		case EventFragment:
			buf.WriteString(ev.Fragment)
		case EventDone, EventError:
			// Terminal event closes the channel right after.
			for range events {
				t.Fatal("event received after terminal event")
			}
			return buf.String(), ev
		}
	}
	t.Fatal("channel closed without a terminal event")
	return "", Event{}
}

func TestRunCommitsConcatenatedFragments(t *testing.T) {
	o, st, sessionID := testOrchestrator(t)

	events, err := o.Run(context.Background(), TurnRequest{
		EntityID: sessionID,
		Kind:     "chat",
		UserText: "explain recursion",
		Open:     opener(&scriptedStream{fragments: []string{"recursion ", "is ", "self-reference"}}, nil),
	})
	require.NoError(t, err)

	streamed, done := collect(t, events)
	assert.Equal(t, EventDone, done.Type)
	assert.Equal(t, "recursion is self-reference", streamed)
	require.NotNil(t, done.AssistantMessage)
	assert.Equal(t, streamed, done.AssistantMessage.Text)
	require.NotNil(t, done.UserMessage)
	assert.Equal(t, "explain recursion", done.UserMessage.Text)

	entity, err := st.Get(sessionID)
	require.NoError(t, err)
	require.Len(t, entity.Messages, 2)
	assert.Equal(t, models.RoleUser, entity.Messages[0].Role)
	assert.Equal(t, models.RoleAssistant, entity.Messages[1].Role)
	assert.Equal(t, streamed, entity.Messages[1].Text)
}

func TestRunEmptyStreamCommitsFallback(t *testing.T) {
	o, st, sessionID := testOrchestrator(t)

	events, err := o.Run(context.Background(), TurnRequest{
		EntityID: sessionID,
		Kind:     "chat",
		UserText: "hello",
		Open:     opener(&scriptedStream{}, nil),
	})
	require.NoError(t, err)

	_, done := collect(t, events)
	assert.Equal(t, EventDone, done.Type)
	require.NotNil(t, done.AssistantMessage)
	assert.Equal(t, DefaultFallbackText, done.AssistantMessage.Text)

	entity, err := st.Get(sessionID)
	require.NoError(t, err)
	assert.Equal(t, DefaultFallbackText, entity.Messages[1].Text)
}

func TestRunStreamFailureCommitsNothingAssistant(t *testing.T) {
	o, st, sessionID := testOrchestrator(t)

	events, err := o.Run(context.Background(), TurnRequest{
		EntityID: sessionID,
		Kind:     "chat",
		UserText: "hello",
		Open: opener(&scriptedStream{
			fragments: []string{"partial "},
			final:     errors.New("connection reset"),
		}, nil),
	})
	require.NoError(t, err)

	streamed, terminal := collect(t, events)
	assert.Equal(t, EventError, terminal.Type)
	assert.Equal(t, "partial ", streamed)

	appErr, ok := terminal.Err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeProviderError, appErr.Code)

	// The user message is committed, the partial assistant output is not.
	entity, err := st.Get(sessionID)
	require.NoError(t, err)
	require.Len(t, entity.Messages, 1)
	assert.Equal(t, models.RoleUser, entity.Messages[0].Role)
}

func TestRunOpenFailureStillCommitsUserMessage(t *testing.T) {
	o, st, sessionID := testOrchestrator(t)

	events, err := o.Run(context.Background(), TurnRequest{
		EntityID: sessionID,
		Kind:     "chat",
		UserText: "hello",
		Open:     opener(nil, errors.New("dial timeout")),
	})
	require.NoError(t, err)

	_, terminal := collect(t, events)
	assert.Equal(t, EventError, terminal.Type)

	entity, err := st.Get(sessionID)
	require.NoError(t, err)
	require.Len(t, entity.Messages, 1)
}

func TestRunRejectsConcurrentTurnsOnSameEntity(t *testing.T) {
	o, _, sessionID := testOrchestrator(t)

	release := make(chan struct{})
	blocking := StreamOpener(func(ctx context.Context, entity *models.ConversationEntity) (llm.Stream, error) {
		<-release
		return llm.NewTextStream("done"), nil
	})

	events, err := o.Run(context.Background(), TurnRequest{
		EntityID: sessionID,
		Kind:     "chat",
		UserText: "first",
		Open:     blocking,
	})
	require.NoError(t, err)

	// While the first turn waits on the model, a second turn must be
	// rejected, not queued.
	_, err = o.Run(context.Background(), TurnRequest{
		EntityID: sessionID,
		Kind:     "chat",
		UserText: "second",
		Open:     opener(llm.NewTextStream("x"), nil),
	})
	require.Error(t, err)
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeTurnInProgress, appErr.Code)

	close(release)
	_, terminal := collect(t, events)
	assert.Equal(t, EventDone, terminal.Type)

	// The guard is released after the terminal event, so a new turn runs.
	events, err = o.Run(context.Background(), TurnRequest{
		EntityID: sessionID,
		Kind:     "chat",
		UserText: "third",
		Open:     opener(llm.NewTextStream("y"), nil),
	})
	require.NoError(t, err)
	_, terminal = collect(t, events)
	assert.Equal(t, EventDone, terminal.Type)
}

func TestRunUnknownEntity(t *testing.T) {
	o, _, _ := testOrchestrator(t)

	_, err := o.Run(context.Background(), TurnRequest{
		EntityID: "missing",
		Kind:     "chat",
		UserText: "hello",
		Open:     opener(llm.NewTextStream("x"), nil),
	})
	require.Error(t, err)
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeNotFound, appErr.Code)
}

func TestChatTurnRejectsBlankText(t *testing.T) {
	o, st, sessionID := testOrchestrator(t)

	_, err := o.ChatTurn(context.Background(), sessionID, "   ")
	require.Error(t, err)
	appErr, ok := err.(*apperrors.AppError)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeInvalidInput, appErr.Code)

	entity, err := st.Get(sessionID)
	require.NoError(t, err)
	assert.Empty(t, entity.Messages)
}
