//go:build !multiagent_small

package fantasybridge

import (
	"fmt"
	"strings"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	fgoogle "charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	"charm.land/fantasy/providers/openrouter"
)

// nativeProviders are the model APIs with a dedicated fantasy provider.
// Anything else is treated as OpenAI-compatible.
var nativeProviders = map[string]func(Config) (fantasy.Provider, error){
	apiOpenAI:     openAIProvider,
	apiAnthropic:  anthropicProvider,
	apiGoogle:     googleProvider,
	apiOpenRouter: openRouterProvider,
}

func newProvider(cfg Config) (fantasy.Provider, error) {
	build, ok := nativeProviders[cfg.API]
	if !ok {
		return newOpenAICompat(cfg)
	}
	provider, err := build(cfg)
	if err != nil {
		return nil, fmt.Errorf("new fantasy %s provider: %w", cfg.API, err)
	}
	return provider, nil
}

func openAIProvider(cfg Config) (fantasy.Provider, error) {
	opts := []fopenai.Option{fopenai.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, fopenai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, fopenai.WithHTTPClient(cfg.HTTPClient))
	}
	return fopenai.New(opts...)
}

// anthropicProvider accepts base URLs with or without the /v1 suffix; the
// SDK appends it itself.
func anthropicProvider(cfg Config) (fantasy.Provider, error) {
	opts := []anthropic.Option{anthropic.WithAPIKey(cfg.APIKey)}
	if base := strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1"); base != "" {
		opts = append(opts, anthropic.WithBaseURL(base))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, anthropic.WithHTTPClient(cfg.HTTPClient))
	}
	return anthropic.New(opts...)
}

func googleProvider(cfg Config) (fantasy.Provider, error) {
	opts := []fgoogle.Option{fgoogle.WithGeminiAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, fgoogle.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, fgoogle.WithHTTPClient(cfg.HTTPClient))
	}
	return fgoogle.New(opts...)
}

// openRouterProvider ignores BaseURL; OpenRouter has a single endpoint.
func openRouterProvider(cfg Config) (fantasy.Provider, error) {
	opts := []openrouter.Option{openrouter.WithAPIKey(cfg.APIKey)}
	if cfg.HTTPClient != nil {
		opts = append(opts, openrouter.WithHTTPClient(cfg.HTTPClient))
	}
	return openrouter.New(opts...)
}
