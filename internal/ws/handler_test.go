package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cognify/backend/internal/chat"
	"cognify/backend/internal/llm"
	"cognify/backend/internal/models"
	"cognify/backend/internal/quiz"
	"cognify/backend/internal/store"
	"cognify/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeModelServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"streamed \"}}]}\n\n")
			fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"reply\"}}]}\n\n")
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"Generated Title"}}]}`)
	}))
}

func testHub(t *testing.T) (*Hub, store.Store, *models.ConversationEntity) {
	t.Helper()
	model := fakeModelServer(t)
	t.Cleanup(model.Close)

	log := logger.New(logger.DefaultConfig())
	st := store.NewMemoryStore()

	gateway, err := llm.New(llm.Config{
		Provider:  "cerebras",
		Model:     "test-model",
		MaxTokens: 128,
		APIKey:    "test-key",
		BaseURL:   model.URL,
		Timeout:   5 * time.Second,
		Streaming: true,
	}, log)
	require.NoError(t, err)

	orch := chat.NewOrchestrator(st, gateway, log, "")
	quizManager := quiz.NewManager(st, gateway, orch, log)
	hub := NewHub(st, orch, quizManager, log)

	user := &models.User{DisplayName: "learner", Guest: true}
	require.NoError(t, st.CreateUser(user))
	session, err := st.CreateSession(user.ID)
	require.NoError(t, err)
	return hub, st, session
}

// testClient builds a client the tests drive directly. Frames land in Send;
// no network connection is involved.
func testClient(hub *Hub, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:     "test-client",
		UserID: userID,
		Send:   make(chan []byte, 32),
		Hub:    hub,
		ctx:    ctx,
		cancel: cancel,
	}
}

func collectFrames(t *testing.T, c *Client) []Outbound {
	t.Helper()
	var frames []Outbound
	for {
		select {
		case raw := <-c.Send:
			var out Outbound
			require.NoError(t, json.Unmarshal(raw, &out))
			frames = append(frames, out)
		default:
			return frames
		}
	}
}

func TestHandleRequestStreamsChatTurn(t *testing.T) {
	hub, st, session := testHub(t)
	c := testClient(hub, session.OwnerUserID)

	c.handleRequest(Inbound{
		Type:      "chat",
		RequestID: "r1",
		EntityID:  session.ID,
		Text:      "explain recursion",
	})

	frames := collectFrames(t, c)
	require.NotEmpty(t, frames)

	var streamed string
	var done *Outbound
	for i, f := range frames {
		switch f.Type {
		case "chat_chunk":
			streamed += f.Text
		case "chat_done":
			done = &frames[i]
		case "error":
			t.Fatalf("unexpected error frame: %s %s", f.Code, f.Message)
		}
	}
	assert.Equal(t, "streamed reply", streamed)
	require.NotNil(t, done)
	assert.Equal(t, "r1", done.RequestID)
	assert.Equal(t, session.ID, done.EntityID)
	assert.NotEmpty(t, done.MessageID)

	entity, err := st.Get(session.ID)
	require.NoError(t, err)
	require.Len(t, entity.Messages, 2)
	assert.Equal(t, "streamed reply", entity.Messages[1].Text)
}

func TestHandleRequestDisconnectCancelsTurn(t *testing.T) {
	hub, st, session := testHub(t)
	c := testClient(hub, session.OwnerUserID)

	// The peer is already gone when the turn runs. The user message still
	// commits, but the model call fails on the dead connection's context
	// and no assistant message lands.
	c.cancel()
	c.handleRequest(Inbound{
		Type:      "chat",
		RequestID: "r1",
		EntityID:  session.ID,
		Text:      "explain recursion",
	})

	frames := collectFrames(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0].Type)
	assert.Equal(t, "r1", frames[0].RequestID)

	entity, err := st.Get(session.ID)
	require.NoError(t, err)
	require.Len(t, entity.Messages, 1)
	assert.Equal(t, models.RoleUser, entity.Messages[0].Role)
}

func TestHandleRequestRejectsForeignEntity(t *testing.T) {
	hub, st, session := testHub(t)

	intruder := &models.User{DisplayName: "intruder", Guest: true}
	require.NoError(t, st.CreateUser(intruder))
	c := testClient(hub, intruder.ID)

	c.handleRequest(Inbound{
		Type:      "chat",
		RequestID: "r1",
		EntityID:  session.ID,
		Text:      "explain recursion",
	})

	frames := collectFrames(t, c)
	require.Len(t, frames, 1)
	assert.Equal(t, "error", frames[0].Type)
	assert.Equal(t, "NOT_FOUND", frames[0].Code)

	entity, err := st.Get(session.ID)
	require.NoError(t, err)
	assert.Empty(t, entity.Messages)
}
