// Package ai talks to the text-generation backends that write macro
// documentation and reviews.
package ai

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Message is one turn sent to a model.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// InferOptions configures a single inference call.
type InferOptions struct {
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"maxTokens,omitempty"`
	Temperature float64 `json:"temperature"`
}

// InferResult holds the response from an inference call.
type InferResult struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"inputTokens,omitempty"`
	OutputTokens int    `json:"outputTokens,omitempty"`
}

// Provider is a text-in, text-out model backend.
type Provider interface {
	// Infer sends the conversation and returns the complete response.
	Infer(ctx context.Context, system string, messages []Message, opts InferOptions) (*InferResult, error)

	// Name returns the provider identifier.
	Name() string
}

// Providers lists the supported backend names.
var Providers = []string{"groq", "anthropic", "openai", "ollama"}

// KeyEnv returns the environment variable holding the API key for a
// provider, or "" when the provider needs none.
func KeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case "groq":
		return "GROQ_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

// NewProvider creates a backend by name. API keys come from the environment.
func NewProvider(name string, model string) (Provider, error) {
	name = strings.ToLower(name)
	env := KeyEnv(name)
	apiKey := ""
	if env != "" {
		apiKey = os.Getenv(env)
		if apiKey == "" {
			return nil, fmt.Errorf("%s environment variable is not set", env)
		}
	}

	switch name {
	case "groq":
		return NewGroqProvider(apiKey, model), nil
	case "anthropic":
		return NewAnthropicProvider(apiKey, model), nil
	case "openai":
		return NewOpenAIProvider(apiKey, model), nil
	case "ollama":
		host := os.Getenv("OLLAMA_HOST")
		if host == "" {
			host = "http://localhost:11434"
		}
		return NewOllamaProvider(host, model), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q, supported providers: %s", name, strings.Join(Providers, ", "))
	}
}

// Complete sends a single user prompt and returns the reply text.
func Complete(ctx context.Context, p Provider, prompt string, opts InferOptions) (*InferResult, error) {
	return p.Infer(ctx, "", []Message{{Role: "user", Content: prompt}}, opts)
}
