package llm

import (
	"context"
	"fmt"
)

type ProviderKind string

const (
	ProviderOpenAI    ProviderKind = "openai"
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderGemini    ProviderKind = "gemini"
)

// NewProvider builds a provider by kind. baseURL is ignored by Gemini.
func NewProvider(ctx context.Context, kind ProviderKind, apiKey, baseURL string) (Provider, error) {
	switch kind {
	case ProviderOpenAI, "":
		return NewOpenAIProvider(apiKey, baseURL), nil
	case ProviderAnthropic:
		return NewAnthropicProvider(apiKey, baseURL), nil
	case ProviderGemini:
		return NewGeminiProvider(ctx, apiKey)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", kind)
	}
}
