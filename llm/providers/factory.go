package providers

import (
	"fmt"

	"github.com/ConnRefused/AI-Chat-TUI/llm"
)

// Default base URLs for the OpenAI-compatible providers.
const (
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	OllamaBaseURL = "http://localhost:11434/v1"
)

// Names lists the supported providers.
var Names = []string{"gemini", "openai", "anthropic", "ollama"}

// NewClient creates an LLM client for the specified provider.
func NewClient(provider string, cfg llm.ClientConfig) (llm.Client, error) {
	switch provider {
	case "openai":
		return NewOpenAIClient(cfg), nil
	case "anthropic":
		return NewAnthropicClient(cfg), nil
	case "gemini":
		return newOpenAICompatible("gemini", GeminiBaseURL, cfg), nil
	case "ollama":
		return NewOllamaClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", provider)
	}
}

// NewOllamaClient creates a client that talks to a local Ollama server
// through its OpenAI-compatible API.
func NewOllamaClient(cfg llm.ClientConfig) *OpenAIClient {
	return newOpenAICompatible("ollama", OllamaBaseURL, cfg)
}

// RequiresKey reports whether provider authenticates with an API key.
func RequiresKey(provider string) bool { return provider != "ollama" }
