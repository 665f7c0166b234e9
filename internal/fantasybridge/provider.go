package fantasybridge

import (
	"fmt"

	"charm.land/fantasy"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
)

// defaultBaseURLs holds endpoints for OpenAI-compatible APIs that are known
// by name.
var defaultBaseURLs = map[string]string{
	"groq":     "https://api.groq.com/openai/v1",
	"ollama":   "http://localhost:11434/v1",
	"deepseek": "https://api.deepseek.com",
}

// newOpenAICompat serves Groq and every other OpenAI-compatible endpoint.
func newOpenAICompat(cfg Config) (fantasy.Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURLs[cfg.API]
	}
	if cfg.API == "" {
		return nil, fmt.Errorf("new fantasy provider: missing API name")
	}
	opts := []fopenaicompat.Option{fopenaicompat.WithName(cfg.API)}
	if cfg.APIKey != "" {
		opts = append(opts, fopenaicompat.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, fopenaicompat.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, fopenaicompat.WithHTTPClient(cfg.HTTPClient))
	}
	provider, err := fopenaicompat.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("new fantasy openai-compatible provider: %w", err)
	}
	return provider, nil
}
