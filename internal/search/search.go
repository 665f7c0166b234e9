// Package search implements the web search tool backed by the Tavily API.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dotcommander/multiagent/internal/proto"
)

const (
	// ToolName is the name the model sees.
	ToolName = "tavily_search"
	// MaxResults is the number of results handed to the model per search.
	MaxResults = 2

	defaultBaseURL = "https://api.tavily.com"
)

// ErrMissingAPIKey is returned when a search is attempted without a key.
var ErrMissingAPIKey = errors.New("TAVILY_API_KEY is not set")

// Result is a single search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Searcher runs web searches.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Client talks to the Tavily REST API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for searches.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// New creates a Tavily client.
func New(apiKey string, options ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, option := range options {
		option(c)
	}
	return c
}

type searchRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type searchResponse struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
}

// Search returns at most maxResults hits for query.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	body, err := json.Marshal(searchRequest{Query: query, MaxResults: maxResults, SearchDepth: "basic"})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return nil, fmt.Errorf("search API returned status code %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if maxResults > 0 && len(parsed.Results) > maxResults {
		parsed.Results = parsed.Results[:maxResults]
	}
	return parsed.Results, nil
}

// NewTool wraps s as a model tool returning at most maxResults hits.
func NewTool(s Searcher, maxResults int) proto.Tool {
	return proto.Tool{
		Name:        ToolName,
		Description: "A search engine optimized for comprehensive, accurate, and trusted results. Useful for answering questions about current events. Input should be a search query.",
		Parameters: map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
		},
		Required: []string{"query"},
		Run: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			query := queryFrom(arguments)
			if query == "" {
				return "", fmt.Errorf("query parameter is required")
			}
			results, err := s.Search(ctx, query, maxResults)
			if err != nil {
				return "", err
			}
			out, err := json.Marshal(results)
			if err != nil {
				return "", fmt.Errorf("encode search results: %w", err)
			}
			return string(out), nil
		},
	}
}

// queryFrom accepts {"query": "..."} or, failing that, treats the raw input
// as the query.
func queryFrom(arguments json.RawMessage) string {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(arguments, &params); err == nil {
		return strings.TrimSpace(params.Query)
	}
	return strings.Trim(strings.TrimSpace(string(arguments)), `"`)
}
