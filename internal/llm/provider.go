// Package llm wraps the chat-completion providers used for scene generation.
// All providers speak the same single-prompt contract; parsing and repair of
// the returned text happens in the sanitizer, not here.
package llm

import (
	"context"
	"errors"
)

// ErrMissingAPIKey means the provider was constructed without credentials.
// It is a configuration failure and is never retried.
var ErrMissingAPIKey = errors.New("missing API key")

// Provider defines the interface for chat-completion backends.
type Provider interface {
	// Complete sends a single user message and returns the full response,
	// choices still unextracted. Non-2xx responses surface as errors.
	Complete(ctx context.Context, request *ChatRequest) (*ChatResponse, error)

	// Name returns the provider name (e.g. "openrouter", "gemini")
	Name() string
}

// ChatRequest contains everything needed for one generation call.
type ChatRequest struct {
	Model  string
	Prompt string
}

// ChatResponse mirrors the chat-completion wire shape closely enough for the
// sanitizer to extract the first choice.
type ChatResponse struct {
	Choices []ChatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
	// RawBody is the undecoded response body, persisted on parse failures.
	RawBody string `json:"-"`
}

// ChatChoice is one completion alternative.
type ChatChoice struct {
	Message ChatMessage `json:"message"`
}

// ChatMessage carries the assistant text.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for observability.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}
