package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cognify/backend/internal/models"
	"cognify/backend/pkg/logger"
	"cognify/backend/pkg/resilience"
)

// Options selects provider, model and limits for one gateway call. Zero
// values fall back to the gateway defaults; no call depends on global
// mutable selection state.
type Options struct {
	Provider  string
	Model     string
	MaxTokens int
	Streaming bool
}

// Config configures the gateway and its default provider.
type Config struct {
	Provider  string
	Model     string
	MaxTokens int
	APIKey    string
	// BaseURL overrides the provider's default endpoint (useful for
	// compatible self-hosted backends).
	BaseURL   string
	Timeout   time.Duration
	Streaming bool
}

// Gateway is the uniform completion surface for chat turns, quiz question
// generation, answer evaluation, titles and summaries. Every call is
// independently configurable via Options.
type Gateway struct {
	providers map[string]Provider
	defaults  Options
	breaker   *resilience.CircuitBreaker
	log       *logger.Logger
}

// New builds a gateway with the configured default provider registered.
// A missing credential or unknown provider name fails here, never as a
// silent empty completion later.
func New(cfg Config, log *logger.Logger) (*Gateway, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		name = "cerebras"
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		switch name {
		case "cerebras":
			baseURL = cerebrasBaseURL
		case "openai":
			baseURL = openAIBaseURL
		default:
			return nil, fmt.Errorf("unknown completion provider %q", name)
		}
	}

	provider, err := NewHTTPProvider(HTTPProviderConfig{
		Name:    name,
		BaseURL: baseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		providers: map[string]Provider{name: provider},
		defaults: Options{
			Provider:  name,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Streaming: cfg.Streaming,
		},
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("llm-gateway"), log),
		log:     log,
	}
	return g, nil
}

// Register adds a named provider. Existing registrations are replaced.
func (g *Gateway) Register(name string, p Provider) {
	g.providers[strings.ToLower(name)] = p
}

// Defaults returns the gateway's default options.
func (g *Gateway) Defaults() Options { return g.defaults }

func (g *Gateway) resolve(opts Options) (Provider, Request, error) {
	name := strings.ToLower(opts.Provider)
	if name == "" {
		name = g.defaults.Provider
	}
	p, ok := g.providers[name]
	if !ok {
		return nil, Request{}, fmt.Errorf("unknown completion provider %q", name)
	}
	model := opts.Model
	if model == "" {
		model = g.defaults.Model
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.defaults.MaxTokens
	}
	return p, Request{Model: model, MaxTokens: maxTokens, Temperature: 0.7}, nil
}

// Complete runs a blocking completion over the given history.
func (g *Gateway) Complete(ctx context.Context, system string, messages []models.HistoryEntry, opts Options) (string, error) {
	p, req, err := g.resolve(opts)
	if err != nil {
		return "", err
	}
	req.System = system
	req.Messages = messages

	var text string
	err = g.breaker.Execute(func() error {
		var callErr error
		text, callErr = p.Complete(ctx, req)
		return callErr
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// StreamComplete opens a fragment stream over the given history. When
// opts.Streaming is false the completion still runs eagerly and is served
// back as a single-fragment stream, so callers always consume one shape.
func (g *Gateway) StreamComplete(ctx context.Context, system string, messages []models.HistoryEntry, opts Options) (Stream, error) {
	if !opts.Streaming {
		text, err := g.Complete(ctx, system, messages, opts)
		if err != nil {
			return nil, err
		}
		return NewTextStream(text), nil
	}

	p, req, err := g.resolve(opts)
	if err != nil {
		return nil, err
	}
	req.System = system
	req.Messages = messages

	var stream Stream
	err = g.breaker.Execute(func() error {
		var callErr error
		stream, callErr = p.StreamComplete(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// ChatReply is call shape (a): an open-ended tutoring turn over the
// conversation history, which already ends in the newest user message.
func (g *Gateway) ChatReply(ctx context.Context, history []models.HistoryEntry, opts Options) (Stream, error) {
	return g.StreamComplete(ctx, chatSystemPrompt, history, opts)
}

// QuizQuestion is call shape (b): one probing long-answer question about
// the source text, optionally focused on a highlighted excerpt. The
// conversation history gives the model awareness of what was already
// covered; the question itself must reference only the source.
func (g *Gateway) QuizQuestion(ctx context.Context, source, highlight string, history []models.HistoryEntry, opts Options) (Stream, error) {
	messages := make([]models.HistoryEntry, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, models.HistoryEntry{
		Role:    models.RoleUser,
		Content: quizQuestionUserPrompt(source, highlight),
	})
	return g.StreamComplete(ctx, quizQuestionSystemPrompt, messages, opts)
}

// EvaluateAnswer is call shape (c): qualitative feedback on a history that
// ends in {assistant: question, user: answer}. Explicitly no numeric score.
func (g *Gateway) EvaluateAnswer(ctx context.Context, history []models.HistoryEntry, opts Options) (Stream, error) {
	return g.StreamComplete(ctx, evaluationSystemPrompt, history, opts)
}

// Title is call shape (d): a short title from a session's opening message
// pair. Always blocking; titles are never streamed.
func (g *Gateway) Title(ctx context.Context, userText, assistantText string, opts Options) (string, error) {
	messages := []models.HistoryEntry{{
		Role:    models.RoleUser,
		Content: titleUserPrompt(userText, assistantText),
	}}
	title, err := g.Complete(ctx, titleSystemPrompt, messages, opts)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(title), `"`), nil
}

// Summarize is call shape (e): a ten-to-twenty word summary of a
// conversation, used by the knowledge-graph service.
func (g *Gateway) Summarize(ctx context.Context, history []models.HistoryEntry, opts Options) (string, error) {
	return g.Complete(ctx, summarySystemPrompt, history, opts)
}
