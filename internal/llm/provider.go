package llm

import (
	"context"
	"errors"
)

var (
	// ErrAPIKeyRequired is returned when a hosted provider has no credentials
	ErrAPIKeyRequired = errors.New("API key required")

	// ErrEmptyResponse is returned when the model produced no completion
	ErrEmptyResponse = errors.New("empty model response")
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Complete sends a single-turn prompt and returns the first completion
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// CompletionRequest is one prompt sent to a model
type CompletionRequest struct {
	// Prompt is the user message
	Prompt string

	// System is an optional system instruction
	System string

	// Model overrides the provider's configured model
	Model string

	// Temperature overrides the configured sampling temperature when non-nil
	Temperature *float64

	// MaxTokens limits the response length
	MaxTokens int
}

// CompletionResponse is the text of the first completion
type CompletionResponse struct {
	Content    string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI-compatible and Anthropic endpoints
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// Temperature used when a request does not set one
	Temperature float64

	// MaxTokens for response generation, 0 leaves it to the provider
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:    "openai",
		Timeout:     300,
		Temperature: 0.01,
	}
}

// Float returns a pointer to f, for CompletionRequest.Temperature
func Float(f float64) *float64 {
	return &f
}

func (c Config) modelFor(req CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return c.Model
}

func (c Config) temperatureFor(req CompletionRequest) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	return c.Temperature
}

func (c Config) maxTokensFor(req CompletionRequest) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return c.MaxTokens
}
