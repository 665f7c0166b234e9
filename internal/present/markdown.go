package present

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/glamour"
)

const markdownTabWidth = 4

// NewMarkdownRenderer returns a glamour renderer honouring GLAMOUR_STYLE.
func NewMarkdownRenderer(wordWrap int) (*glamour.TermRenderer, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return nil, fmt.Errorf("new markdown renderer: %w", err)
	}
	return r, nil
}

// RenderMarkdown renders input with r and normalises trailing space and tabs.
// A nil renderer returns input unchanged.
func RenderMarkdown(r *glamour.TermRenderer, input string) string {
	if r == nil {
		return input
	}
	out, err := r.Render(input)
	if err != nil {
		return input
	}
	out = strings.TrimRightFunc(out, unicode.IsSpace)
	out = strings.ReplaceAll(out, "\t", strings.Repeat(" ", markdownTabWidth))
	return out + "\n"
}
