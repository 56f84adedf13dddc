package providers

import (
	"fmt"
	"os"

	"github.com/pmnowak/ollama-code/internal/engine"
)

const defaultOllamaURL = "http://localhost:11434"

// NewLLMClient creates a client for the given provider name. Empty
// provider or base URL fall back to a local Ollama server.
func NewLLMClient(provider, baseURL, model, apiKey string) (engine.LLMClient, string, error) {
	switch provider {
	case "", "ollama":
		if baseURL == "" {
			baseURL = defaultOllamaURL
		}
		if model == "" {
			model = "qwen2.5-coder:7b"
		}
		return NewOllamaClient(baseURL), model, nil

	case "openai":
		if apiKey == "" {
			return nil, "", fmt.Errorf("OPENAI_API_KEY not set")
		}
		if model == "" {
			model = "gpt-4o-mini"
		}
		client, err := NewOpenAIClient(apiKey, model, baseURL)
		if err != nil {
			return nil, "", fmt.Errorf("create OpenAI client: %w", err)
		}
		return client, model, nil

	case "lmstudio", "openai-compatible":
		if baseURL == "" {
			baseURL = "http://localhost:1234/v1"
		}
		if model == "" {
			model = "local-model"
		}
		if apiKey == "" {
			// Local servers accept any key.
			apiKey = "local"
		}
		client, err := NewOpenAIClient(apiKey, model, baseURL)
		if err != nil {
			return nil, "", fmt.Errorf("create OpenAI-compatible client: %w", err)
		}
		return client, model, nil

	case "anthropic":
		if apiKey == "" {
			return nil, "", fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		if model == "" {
			model = "claude-3-5-sonnet-20241022"
		}
		client, err := NewAnthropicClient(apiKey, model)
		if err != nil {
			return nil, "", fmt.Errorf("create Anthropic client: %w", err)
		}
		return client, model, nil

	default:
		return nil, "", fmt.Errorf("unknown provider: %s (supported: ollama, openai, lmstudio, openai-compatible, anthropic)", provider)
	}
}

// NewLLMClientFromEnv builds a client from LLM_PROVIDER and the
// provider's usual environment variables. The default is a local
// Ollama server.
func NewLLMClientFromEnv() (engine.LLMClient, string, error) {
	provider := os.Getenv("LLM_PROVIDER")

	switch provider {
	case "", "ollama":
		return NewLLMClient("ollama", os.Getenv("OLLAMA_BASE_URL"), os.Getenv("OLLAMA_MODEL"), "")
	case "openai":
		return NewLLMClient("openai", os.Getenv("OPENAI_BASE_URL"), os.Getenv("OPENAI_MODEL"), os.Getenv("OPENAI_API_KEY"))
	case "lmstudio", "openai-compatible":
		return NewLLMClient(provider, os.Getenv("LMSTUDIO_BASE_URL"), os.Getenv("LMSTUDIO_MODEL"), os.Getenv("LMSTUDIO_API_KEY"))
	case "anthropic":
		return NewLLMClient("anthropic", "", os.Getenv("ANTHROPIC_MODEL"), os.Getenv("ANTHROPIC_API_KEY"))
	default:
		return NewLLMClient(provider, "", "", "")
	}
}
