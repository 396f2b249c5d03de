package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"cognify/backend/internal/chat"
	"cognify/backend/internal/llm"
	"cognify/backend/internal/quiz"
	"cognify/backend/internal/service"
	"cognify/backend/internal/store"
	"cognify/backend/pkg/config"
	"cognify/backend/pkg/jwt"
	"cognify/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// Keep the rate limiter out of the way; every request in these tests
	// shares one client key.
	os.Setenv("RATE_LIMIT", "10000")
	os.Setenv("RATE_LIMIT_BURST", "10000")
	os.Exit(m.Run())
}

// fakeModelServer speaks just enough of the chat-completions API for turns:
// streamed requests get two fragments, blocking ones a fixed body.
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

func testServer(t *testing.T) (http.Handler, store.Store) {
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

	jwtService := jwt.NewService("test-secret", time.Hour)
	users := service.NewUserService(st, jwtService)
	orch := chat.NewOrchestrator(st, gateway, log, "")
	quizManager := quiz.NewManager(st, gateway, orch, log)

	engine := NewRouter(Deps{
		Config:     config.New(),
		Logger:     log,
		Store:      st,
		JWTService: jwtService,
		Users:      users,
		Orch:       orch,
		Quiz:       quizManager,
	})
	return engine, st
}

func doJSON(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func guestToken(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/guest", "", `{"name":"learner"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestGuestSignupAndMe(t *testing.T) {
	h, _ := testServer(t)
	token := guestToken(t, h)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/auth/me", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var user struct {
		Guest       bool   `json:"guest"`
		DisplayName string `json:"display_name"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.True(t, user.Guest)
	assert.Equal(t, "learner", user.DisplayName)
}

func TestSignupLoginRoundTrip(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/auth/signup", "",
		`{"name":"Ada","email":"ada@example.com","password":"longenough"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/api/v1/auth/signup", "",
		`{"name":"Ada","email":"ada@example.com","password":"longenough"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "",
		`{"email":"ada@example.com","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/auth/login", "",
		`{"email":"ada@example.com","password":"longenough"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionsRequireAuth(t *testing.T) {
	h, _ := testServer(t)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionLifecycleWithStreamedTurn(t *testing.T) {
	h, st := testServer(t)
	token := guestToken(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions", token, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))

	rec = doJSON(t, h, http.MethodPost, "/api/v1/sessions/"+session.ID+"/messages", token,
		`{"text":"explain recursion"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, body, `"type":"fragment"`)
	assert.Contains(t, body, `"type":"done"`)

	entity, err := st.Get(session.ID)
	require.NoError(t, err)
	require.Len(t, entity.Messages, 2)
	assert.Equal(t, "explain recursion", entity.Messages[0].Text)
	assert.Equal(t, "streamed reply", entity.Messages[1].Text)
	// First turn generates a title from the blocking call shape.
	assert.Equal(t, "Generated Title", entity.Title)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/sessions", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), session.ID)
}

func TestSessionOwnershipEnforced(t *testing.T) {
	h, _ := testServer(t)
	owner := guestToken(t, h)
	intruder := guestToken(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions", owner, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var session struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))

	rec = doJSON(t, h, http.MethodGet, "/api/v1/sessions/"+session.ID, intruder, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// Starting a quiz on someone else's session must 404 without creating a
// thread on the owner's session.
func TestQuizStartOwnershipEnforced(t *testing.T) {
	h, st := testServer(t)
	owner := guestToken(t, h)
	intruder := guestToken(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions", owner, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var session struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))

	rec = doJSON(t, h, http.MethodPost, "/api/v1/sessions/"+session.ID+"/messages", owner,
		`{"text":"explain dijkstra"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	entity, err := st.Get(session.ID)
	require.NoError(t, err)
	anchorID := entity.Messages[1].ID

	startBody := fmt.Sprintf(`{"session_id":%q,"message_id":%q}`, session.ID, anchorID)
	rec = doJSON(t, h, http.MethodPost, "/api/v1/quizzes", intruder, startBody)
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	entity, err = st.Get(session.ID)
	require.NoError(t, err)
	assert.Empty(t, entity.ChildThreadIDs)
}

func TestQuizFlow(t *testing.T) {
	h, st := testServer(t)
	token := guestToken(t, h)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/sessions", token, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	var session struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))

	rec = doJSON(t, h, http.MethodPost, "/api/v1/sessions/"+session.ID+"/messages", token,
		`{"text":"explain dijkstra"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	entity, err := st.Get(session.ID)
	require.NoError(t, err)
	anchorID := entity.Messages[1].ID

	startBody := fmt.Sprintf(`{"session_id":%q,"message_id":%q}`, session.ID, anchorID)
	rec = doJSON(t, h, http.MethodPost, "/api/v1/quizzes", token, startBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		QuizID string `json:"quiz_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	// Idempotent: same anchor, same thread.
	rec = doJSON(t, h, http.MethodPost, "/api/v1/quizzes", token, startBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	var again struct {
		QuizID string `json:"quiz_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &again))
	assert.Equal(t, created.QuizID, again.QuizID)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/quizzes/"+created.QuizID+"/question", token, `{}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"type":"done"`)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/quizzes/"+created.QuizID+"/answer", token,
		`{"text":"the settled set only grows"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"type":"done"`)

	thread, err := st.Get(created.QuizID)
	require.NoError(t, err)
	// Seeded trigger+anchor, streamed question, answer, evaluation.
	assert.GreaterOrEqual(t, len(thread.Messages), 5)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/quizzes/"+created.QuizID+"/answer", token,
		`{"text":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
