package factory

import (
	"errors"
	"fmt"

	"second-brain-be/pkg/llm"
	"second-brain-be/pkg/llm/huggingface"
	"second-brain-be/pkg/llm/ollama"
	"second-brain-be/pkg/llm/openai"
)

// ErrUnknownProvider is returned for a provider type outside the closed set.
var ErrUnknownProvider = errors.New("llm: unknown provider")

// Config carries the credentials and endpoints needed by any provider type.
type Config struct {
	Provider string // "ollama", "openai", "huggingface"
	Model    string
	BaseURL  string // ollama / huggingface router
	APIKey   string // openai / huggingface
}

func NewLLMProvider(cfg Config) (llm.LLMProvider, error) {
	switch cfg.Provider {
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434" // Default
		}
		return ollama.NewOllamaProvider(baseURL, cfg.Model), nil
	case "openai":
		return openai.NewOpenAIProvider(cfg.APIKey, cfg.Model), nil
	case "huggingface":
		return huggingface.NewHuggingFaceProvider(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
