package providers

import (
	"fmt"
	"os"

	"github.com/mkaddoura/drover/internal/agent"
)

// FromEnv creates a generation backend and model name from environment
// variables. LLM_PROVIDER selects the provider; each provider reads its own
// key, model and base-URL variables.
func FromEnv() (agent.Backend, string, error) {
	provider := os.Getenv("LLM_PROVIDER")
	if provider == "" {
		provider = "openai"
	}

	switch provider {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("OPENAI_API_KEY not set")
		}
		model := envOr("OPENAI_MODEL", "gpt-4o-mini")
		return NewOpenAI(apiKey, os.Getenv("OPENAI_BASE_URL")), model, nil

	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		model := envOr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514")
		return NewAnthropic(apiKey), model, nil

	case "deepseek":
		apiKey := os.Getenv("DEEPSEEK_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("DEEPSEEK_API_KEY not set")
		}
		model := envOr("DEEPSEEK_MODEL", "deepseek-chat")
		return NewOpenAI(apiKey, "https://api.deepseek.com/v1"), model, nil

	case "groq":
		apiKey := os.Getenv("GROQ_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("GROQ_API_KEY not set")
		}
		model := envOr("GROQ_MODEL", "llama-3.1-70b-versatile")
		return NewOpenAI(apiKey, "https://api.groq.com/openai/v1"), model, nil

	case "ollama":
		// Local OpenAI-compatible server; the key is a placeholder.
		baseURL := envOr("OLLAMA_BASE_URL", "http://localhost:11434/v1")
		model := envOr("OLLAMA_MODEL", "llama3.1")
		return NewOpenAI(envOr("OLLAMA_API_KEY", "ollama"), baseURL), model, nil

	default:
		return nil, "", fmt.Errorf("unknown LLM_PROVIDER: %s (supported: openai, anthropic, deepseek, groq, ollama)", provider)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
