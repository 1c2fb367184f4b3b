package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/entrole/internal/model"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai", "":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromProfile converts a configured model profile to llm.Config
func ConfigFromProfile(profile model.ProfileConfig, httpCfg model.HTTPConfig) Config {
	return Config{
		Provider:    profile.Provider,
		Model:       profile.Model,
		APIKey:      profile.APIKey,
		BaseURL:     profile.BaseURL,
		Timeout:     profile.Timeout,
		Temperature: profile.Temperature,
		MaxTokens:   profile.MaxTokens,
		HTTPProxy:   httpCfg.HTTPProxy,
		HTTPSProxy:  httpCfg.HTTPSProxy,
		NoProxy:     httpCfg.NoProxy,
	}
}
