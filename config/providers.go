package config

// Providers lists the supported provider names.
var Providers = []string{"gemini", "openai", "anthropic", "ollama"}

type providerInfo struct {
	label        string
	defaultModel string
	keyEnv       string
}

var providerTable = map[string]providerInfo{
	"gemini":    {label: "Google Gemini", defaultModel: "gemini-2.5-flash", keyEnv: "GEMINI_API_KEY"},
	"openai":    {label: "OpenAI", defaultModel: "gpt-4o", keyEnv: "OPENAI_API_KEY"},
	"anthropic": {label: "Anthropic", defaultModel: "claude-sonnet-4-20250514", keyEnv: "ANTHROPIC_API_KEY"},
	"ollama":    {label: "Ollama", defaultModel: "llama3"},
}

// DefaultModel returns the model used for provider when none is configured,
// or "" for an unknown provider.
func DefaultModel(provider string) string { return providerTable[provider].defaultModel }

// Label returns a display name for provider.
func Label(provider string) string {
	if p, ok := providerTable[provider]; ok {
		return p.label
	}
	return provider
}

// APIKeyEnv is the generic API key variable; it wins over the
// provider-specific one.
const APIKeyEnv = "AICHAT_API_KEY"

// ResolveAPIKey returns the API key supplied through the environment for
// provider and the name of the variable it came from.
func ResolveAPIKey(provider string, envVars map[string]string) (key, name string) {
	if k := envVars[APIKeyEnv]; k != "" {
		return k, APIKeyEnv
	}
	if env := providerTable[provider].keyEnv; env != "" {
		if k := envVars[env]; k != "" {
			return k, env
		}
	}
	return "", ""
}
