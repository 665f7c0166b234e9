//go:build multiagent_small

package fantasybridge

import "charm.land/fantasy"

func newProvider(cfg Config) (fantasy.Provider, error) {
	// In the small build, only the OpenAI-compatible provider is included.
	return newOpenAICompat(cfg)
}
