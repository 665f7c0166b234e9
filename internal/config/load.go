package config

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const maxRemotePromptBytes = 2 * 1024 * 1024

// LoadPrompt resolves a system prompt.
//
// Supported inputs:
//   - raw strings
//   - http(s) URLs
//   - file:// paths
//
// For markdown files loaded via file://, YAML frontmatter is stripped.
func LoadPrompt(ctx context.Context, prompt string) (string, error) {
	if strings.HasPrefix(prompt, "https://") || strings.HasPrefix(prompt, "http://") {
		return fetchPrompt(ctx, prompt)
	}

	path, ok := strings.CutPrefix(prompt, "file://")
	if !ok {
		return prompt, nil
	}
	bts, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	if !strings.EqualFold(filepath.Ext(path), ".md") {
		return string(bts), nil
	}
	return StripYAMLFrontmatter(string(bts))
}

func fetchPrompt(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch prompt: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch prompt: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bts, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return "", fmt.Errorf("fetch prompt: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(bts)))
	}
	bts, err := io.ReadAll(io.LimitReader(resp.Body, maxRemotePromptBytes))
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	if len(bts) >= maxRemotePromptBytes {
		return "", fmt.Errorf("read prompt: response too large (>%d bytes)", maxRemotePromptBytes)
	}
	return string(bts), nil
}

// StripYAMLFrontmatter removes YAML frontmatter from markdown content.
func StripYAMLFrontmatter(content string) (string, error) {
	lines := strings.Split(content, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return content, nil
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return "", fmt.Errorf("invalid markdown frontmatter: missing closing delimiter")
	}

	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &parsed); err != nil {
		return "", fmt.Errorf("invalid markdown frontmatter: %w", err)
	}

	return strings.TrimLeft(strings.Join(lines[end+1:], "\n"), "\r\n"), nil
}
