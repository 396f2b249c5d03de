package llm

import (
	"context"

	"cognify/backend/internal/models"
)

// Request is a fully resolved completion request: the verbatim role/content
// history plus an optional system prompt prepended by the provider.
type Request struct {
	Model       string
	System      string
	Messages    []models.HistoryEntry
	MaxTokens   int
	Temperature float64
}

// Provider translates the uniform completion contract onto one concrete
// backend. Providers never retry; retry policy belongs to callers.
type Provider interface {
	// Complete blocks until the full completion text is available.
	Complete(ctx context.Context, req Request) (string, error)
	// StreamComplete returns a fragment stream. Provider errors surface
	// either here or as the stream's terminal error, never silently.
	StreamComplete(ctx context.Context, req Request) (Stream, error)
}
