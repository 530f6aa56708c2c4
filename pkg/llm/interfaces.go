// Package llm provides chat-completion and embedding clients for
// OpenAI-compatible and Anthropic endpoints.
package llm

import (
	"context"
)

// GenerateResponseResult is a chat completion with its token usage.
type GenerateResponseResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMClient defines the interface for chat completion and embedding
// operations. Use this interface for dependency injection to enable
// mocking in tests.
type LLMClient interface {
	// GenerateResponse generates a chat completion. Set jsonOnly=true to
	// constrain the model to a JSON object response where the provider
	// supports it.
	GenerateResponse(ctx context.Context, prompt string, systemMessage string, temperature float64, jsonOnly bool) (*GenerateResponseResult, error)

	// CreateEmbedding generates an embedding vector for the input text
	// using the configured embedding model.
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)

	// CreateEmbeddings generates embeddings for multiple inputs in one call.
	CreateEmbeddings(ctx context.Context, inputs []string) ([][]float32, error)

	// GetModel returns the configured chat model name.
	GetModel() string

	// GetEmbeddingModel returns the configured embedding model name, or
	// empty when the client cannot embed.
	GetEmbeddingModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}
