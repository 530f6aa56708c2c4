package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/medmap-labs/medmap-engine/pkg/config"
)

// LLMClientFactory is the interface for creating LLM clients.
// Use this interface for dependency injection and testing.
type LLMClientFactory interface {
	// CreateChatClient creates the client used for arbitration calls.
	CreateChatClient() (LLMClient, error)

	// CreateEmbeddingClient creates the client used for embedding calls.
	// Embeddings are always served by an OpenAI-compatible endpoint, even
	// when chat runs on Anthropic.
	CreateEmbeddingClient() (LLMClient, error)
}

// ClientFactory creates LLM clients from the engine AI configuration.
type ClientFactory struct {
	cfg    config.AIConfig
	logger *zap.Logger
}

// NewClientFactory creates a new factory.
func NewClientFactory(cfg config.AIConfig, logger *zap.Logger) *ClientFactory {
	return &ClientFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateChatClient creates the arbitration client for the configured
// provider.
func (f *ClientFactory) CreateChatClient() (LLMClient, error) {
	switch f.cfg.Provider {
	case "anthropic":
		client, err := NewAnthropicClient(&Config{
			Model:  f.cfg.LLMModel,
			APIKey: f.cfg.AnthropicAPIKey,
		}, f.logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil
	case "openai":
		client, err := NewClient(&Config{
			Endpoint: f.cfg.LLMBaseURL,
			Model:    f.cfg.LLMModel,
			APIKey:   f.cfg.OpenAIAPIKey,
		}, f.logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", f.cfg.Provider)
	}
}

// CreateEmbeddingClient creates the embedding client. The configured
// OpenAI-compatible base URL serves embeddings regardless of the chat
// provider.
func (f *ClientFactory) CreateEmbeddingClient() (LLMClient, error) {
	client, err := NewClient(&Config{
		Endpoint:       f.cfg.LLMBaseURL,
		EmbeddingModel: f.cfg.EmbeddingModel,
		EmbeddingDims:  f.cfg.EmbeddingDims,
		APIKey:         f.cfg.OpenAIAPIKey,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}
	return client, nil
}

// Ensure ClientFactory implements LLMClientFactory at compile time.
var _ LLMClientFactory = (*ClientFactory)(nil)
