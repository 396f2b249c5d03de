package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cognify/backend/internal/models"
)

// Base URLs for the recognized providers. Both speak the OpenAI
// chat-completions wire format.
const (
	cerebrasBaseURL = "https://api.cerebras.ai/v1"
	openAIBaseURL   = "https://api.openai.com/v1"
)

// ErrMissingAPIKey is a configuration error: construction fails rather than
// letting a missing credential masquerade as an empty completion later.
var ErrMissingAPIKey = errors.New("completion provider API key is not configured")

// HTTPProvider speaks the OpenAI-compatible chat-completions API, with SSE
// for streaming responses.
type HTTPProvider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// HTTPProviderConfig configures an HTTPProvider.
type HTTPProviderConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPProvider creates a provider for the given backend. A missing API
// key is rejected here, at construction.
func NewHTTPProvider(cfg HTTPProviderConfig) (*HTTPProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %q: %w", cfg.Name, ErrMissingAPIKey)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider %q: base URL is required", cfg.Name)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &HTTPProvider{
		name:       cfg.Name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type chatCompletionRequest struct {
	Model       string                `json:"model"`
	Messages    []models.HistoryEntry `json:"messages"`
	MaxTokens   int                   `json:"max_tokens,omitempty"`
	Temperature float64               `json:"temperature,omitempty"`
	Stream      bool                  `json:"stream,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *HTTPProvider) buildRequest(ctx context.Context, req Request, stream bool) (*http.Request, error) {
	messages := make([]models.HistoryEntry, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, models.HistoryEntry{Role: models.RoleSystem, Content: req.System})
	}
	messages = append(messages, req.Messages...)

	body := chatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
}

// Complete blocks until the provider returns the full completion.
func (p *HTTPProvider) Complete(ctx context.Context, req Request) (string, error) {
	httpReq, err := p.buildRequest(ctx, req, false)
	if err != nil {
		return "", err
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s API request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s API request failed with status code %d: %s", p.name, resp.StatusCode, string(respBody))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%s API error: %s", p.name, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%s API returned no choices", p.name)
	}
	return parsed.Choices[0].Message.Content, nil
}

// StreamComplete opens an SSE stream of completion fragments.
func (p *HTTPProvider) StreamComplete(ctx context.Context, req Request) (Stream, error) {
	httpReq, err := p.buildRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s API request failed: %w", p.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("%s API request failed with status code %d: %s", p.name, resp.StatusCode, string(respBody))
	}

	return &sseStream{
		provider: p.name,
		body:     resp.Body,
		scanner:  bufio.NewScanner(resp.Body),
	}, nil
}

// sseStream decodes "data:" lines off a chat-completions SSE body into
// fragments. The "[DONE]" sentinel and body EOF both end the stream.
type sseStream struct {
	provider string
	body     io.ReadCloser
	scanner  *bufio.Scanner
	done     bool
}

func (s *sseStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip non-JSON keepalive payloads.
			continue
		}
		if chunk.Error != nil {
			s.done = true
			return "", fmt.Errorf("%s stream error: %s", s.provider, chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("%s stream read failed: %w", s.provider, err)
	}
	return "", io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}
