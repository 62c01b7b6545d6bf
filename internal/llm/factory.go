package llm

import (
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const openRouterURL = "https://openrouter.ai/api/v1"

// ProviderConfig selects and configures a chat model backend.
type ProviderConfig struct {
	// Provider is "openai", "openrouter" or "ollama".
	Provider string
	Model    string
	// APIKey falls back to OPENAI_API_KEY or OPENROUTER_API_KEY.
	APIKey string
	// BaseURL overrides the endpoint; for ollama it falls back to OLLAMA_HOST.
	BaseURL string
	// RequestsPerMinute enables rate limiting when positive.
	RequestsPerMinute int
}

// NewProvider creates the provider described by cfg.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	var p Provider
	switch cfg.Provider {
	case "", "openai":
		apiKey := firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		if cfg.BaseURL == "" {
			p = NewOpenAIProvider(apiKey, cfg.Model)
			break
		}
		c := openai.DefaultConfig(apiKey)
		c.BaseURL = cfg.BaseURL
		p = NewOpenAIProviderWithConfig(c, "openai", cfg.Model)

	case "openrouter":
		apiKey := firstNonEmpty(cfg.APIKey, os.Getenv("OPENROUTER_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("OPENROUTER_API_KEY environment variable is not set")
		}
		c := openai.DefaultConfig(apiKey)
		c.BaseURL = firstNonEmpty(cfg.BaseURL, openRouterURL)
		p = NewOpenAIProviderWithConfig(c, "openrouter", cfg.Model)

	case "ollama":
		p = NewOllamaProvider(firstNonEmpty(cfg.BaseURL, os.Getenv("OLLAMA_HOST"), DefaultOllamaURL), cfg.Model)

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Provider)
	}
	return NewRateLimitedProvider(p, cfg.RequestsPerMinute), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
