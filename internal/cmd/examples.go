package cmd

import (
	"math/rand"
	"regexp"

	"github.com/dotcommander/multiagent/internal/present"
)

var examples = map[string]string{
	"Start the API and the chat UI together":    `multiagent --grace 5s`,
	"Chat with web search against a remote API": `multiagent ui --search --api-url "http://10.0.0.5:9999"`,
	"Probe the API from a health check":         `multiagent health | grep -q HEALTHY`,
}

func randomExample() string {
	keys := make([]string, 0, len(examples))
	for k := range examples {
		keys = append(keys, k)
	}
	return keys[rand.Intn(len(keys))] //nolint:gosec
}

var (
	quotedRe = regexp.MustCompile(`"([^"\\]|\\.)*"`)
	pipeRe   = regexp.MustCompile(`\|`)
)

func cheapHighlighting(s present.Styles, code string) string {
	code = quotedRe.ReplaceAllStringFunc(code, func(x string) string {
		return s.Quote.Render(x)
	})
	return pipeRe.ReplaceAllStringFunc(code, func(x string) string {
		return s.Pipe.Render(x)
	})
}
