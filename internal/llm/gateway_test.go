package llm

import (
	"context"
	"testing"

	"cognify/backend/internal/models"
	"cognify/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubProvider records the last request and replies with fixed text.
type stubProvider struct {
	reply   string
	lastReq Request
}

func (s *stubProvider) Complete(ctx context.Context, req Request) (string, error) {
	s.lastReq = req
	return s.reply, nil
}

func (s *stubProvider) StreamComplete(ctx context.Context, req Request) (Stream, error) {
	s.lastReq = req
	return NewTextStream(s.reply), nil
}

func testGateway(t *testing.T, reply string) (*Gateway, *stubProvider) {
	t.Helper()
	g, err := New(Config{
		Provider:  "cerebras",
		Model:     "llama-3.3-70b",
		MaxTokens: 256,
		APIKey:    "test-key",
		Streaming: true,
	}, logger.New(logger.DefaultConfig()))
	require.NoError(t, err)

	stub := &stubProvider{reply: reply}
	g.Register("stub", stub)
	g.defaults.Provider = "stub"
	return g, stub
}

func TestNewRejectsMissingAPIKey(t *testing.T) {
	_, err := New(Config{Provider: "cerebras"}, logger.New(logger.DefaultConfig()))
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "mystery", APIKey: "k"}, logger.New(logger.DefaultConfig()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestStreamCompleteNonStreamingServesSingleFragment(t *testing.T) {
	g, _ := testGateway(t, "full reply")

	opts := g.Defaults()
	opts.Streaming = false
	stream, err := g.StreamComplete(context.Background(), "system", nil, opts)
	require.NoError(t, err)

	text, err := Drain(stream)
	require.NoError(t, err)
	assert.Equal(t, "full reply", text)
}

func TestResolveFillsDefaults(t *testing.T) {
	g, stub := testGateway(t, "ok")

	_, err := g.Complete(context.Background(), "sys", []models.HistoryEntry{
		{Role: models.RoleUser, Content: "hi"},
	}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "llama-3.3-70b", stub.lastReq.Model)
	assert.Equal(t, 256, stub.lastReq.MaxTokens)
	assert.Equal(t, "sys", stub.lastReq.System)
}

func TestTitleTrimsQuotes(t *testing.T) {
	g, _ := testGateway(t, "\"Heaps and Heapsort\"\n")

	title, err := g.Title(context.Background(), "explain heaps", "a heap is a tree", g.Defaults())
	require.NoError(t, err)
	assert.Equal(t, "Heaps and Heapsort", title)
}

func TestQuizQuestionAppendsSourcePrompt(t *testing.T) {
	g, stub := testGateway(t, "What is the loop invariant?")

	history := []models.HistoryEntry{{Role: models.RoleUser, Content: "earlier turn"}}
	stream, err := g.QuizQuestion(context.Background(), "source text", "highlighted bit", history, g.Defaults())
	require.NoError(t, err)
	_, err = Drain(stream)
	require.NoError(t, err)

	require.Len(t, stub.lastReq.Messages, 2)
	assert.Equal(t, "earlier turn", stub.lastReq.Messages[0].Content)
	last := stub.lastReq.Messages[1]
	assert.Equal(t, models.RoleUser, last.Role)
	assert.Contains(t, last.Content, "source text")
	assert.Contains(t, last.Content, "highlighted bit")
}
