// Package llm provides LLM provider abstractions.
//
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific streaming protocol
package llm

import (
	"context"
)

// Provider defines the interface for LLM chat backends.
type Provider interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Model returns the model being used.
	Model() string

	// Chat sends a chat completion request.
	Chat(ctx context.Context, messages []ChatMessage) (Response, error)

	// StreamChat streams a chat completion, sending chunks to the provided channel.
	// Returns token usage when the provider reports it.
	StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error)
}

// Options configure a provider instance.
type Options struct {
	APIKey      string
	Model       string
	BaseURL     string // empty uses the provider's public endpoint
	MaxTokens   uint32
	Temperature float32
}
