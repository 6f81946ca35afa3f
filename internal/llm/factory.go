package llm

import (
	"fmt"
	"strings"

	"github.com/loftlabs/loft/internal/config"
)

// Default provider and models used when the configured identifier is
// empty or unknown.
const (
	DefaultProvider       = "anthropic"
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultOpenAIModel    = "gpt-5.2"
	DefaultGeminiModel    = "gemini-3-flash-preview"
)

// ParseProviderModel splits a "provider:model" identifier. A bare
// provider name yields an empty model; an empty string yields the
// default provider.
func ParseProviderModel(s string) (string, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultProvider, ""
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		return strings.ToLower(strings.TrimSpace(s[:idx])), strings.TrimSpace(s[idx+1:])
	}
	return strings.ToLower(s), ""
}

// NewProvider resolves the configured provider/model identifier to a
// streaming provider, wrapped with retry. Unknown provider names fall
// back to the default provider rather than failing.
func NewProvider(cfg *config.Config) (Provider, error) {
	provider, err := NewProviderByName(cfg, cfg.Provider)
	if err != nil {
		return nil, err
	}
	return WrapWithRetry(provider, DefaultRetryConfig()), nil
}

// NewProviderByName creates the named provider without retry wrapping.
func NewProviderByName(cfg *config.Config, identifier string) (Provider, error) {
	name, model := ParseProviderModel(identifier)

	reasoning := ReasoningConfig{
		Enabled:        cfg.Reasoning.Enabled,
		EffortOrBudget: cfg.Reasoning.Effort,
	}

	switch name {
	case "anthropic":
		if model == "" {
			model = chooseModel(cfg.Anthropic.Model, DefaultAnthropicModel)
		}
		return NewAnthropicProvider(cfg.Anthropic.APIKey, model, reasoning)
	case "openai":
		if model == "" {
			model = chooseModel(cfg.OpenAI.Model, DefaultOpenAIModel)
		}
		return NewOpenAIProvider(cfg.OpenAI.APIKey, model, reasoning)
	case "gemini", "google":
		if model == "" {
			model = chooseModel(cfg.Gemini.Model, DefaultGeminiModel)
		}
		return NewGeminiProvider(cfg.Gemini.APIKey, model, reasoning)
	default:
		if name != DefaultProvider {
			fallback := fmt.Sprintf("%s:%s", DefaultProvider, chooseModel(cfg.Anthropic.Model, DefaultAnthropicModel))
			return NewProviderByName(cfg, fallback)
		}
		return nil, fmt.Errorf("unable to resolve provider %q", identifier)
	}
}
