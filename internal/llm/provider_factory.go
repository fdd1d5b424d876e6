package llm

import (
	"context"
	"fmt"
	"strings"
)

// ProviderFactory creates providers based on model name or explicit provider choice
type ProviderFactory struct {
	openRouterAPIKey string
	geminiAPIKey     string
	siteURL          string
	siteName         string
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(openRouterAPIKey, geminiAPIKey, siteURL, siteName string) *ProviderFactory {
	return &ProviderFactory{
		openRouterAPIKey: openRouterAPIKey,
		geminiAPIKey:     geminiAPIKey,
		siteURL:          siteURL,
		siteName:         siteName,
	}
}

// GetProvider returns the appropriate provider for the given model/provider name
func (f *ProviderFactory) GetProvider(ctx context.Context, model, providerName string) (Provider, error) {
	if providerName != "" {
		return f.getProviderByName(ctx, providerName)
	}
	return f.getProviderByModel(ctx, model)
}

func (f *ProviderFactory) getProviderByName(ctx context.Context, providerName string) (Provider, error) {
	switch strings.ToLower(providerName) {
	case providerNameOpenRouter:
		if f.openRouterAPIKey == "" {
			return nil, fmt.Errorf("openrouter: %w", ErrMissingAPIKey)
		}
		return NewOpenRouterProvider(f.openRouterAPIKey, f.siteURL, f.siteName), nil

	case providerNameGemini:
		return NewGeminiProvider(ctx, f.geminiAPIKey)

	default:
		return nil, fmt.Errorf("unknown provider: %s (allowed: openrouter, gemini)", providerName)
	}
}

// getProviderByModel infers the provider from the model name. Gemini models
// are addressed directly; everything else is routed through OpenRouter, which
// multiplexes the remaining model families.
func (f *ProviderFactory) getProviderByModel(ctx context.Context, model string) (Provider, error) {
	if strings.HasPrefix(strings.ToLower(model), "gemini-") {
		return NewGeminiProvider(ctx, f.geminiAPIKey)
	}

	if f.openRouterAPIKey == "" {
		return nil, fmt.Errorf("openrouter (default provider): %w", ErrMissingAPIKey)
	}
	return NewOpenRouterProvider(f.openRouterAPIKey, f.siteURL, f.siteName), nil
}
