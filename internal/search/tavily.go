// Package search provides the web_search tool backed by the Tavily API.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ariahome/aria/internal/httpkit"
)

const tavilyURL = "https://api.tavily.com/search"

// Client calls the Tavily search API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Tavily client.
func NewClient(apiKey string, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    tavilyURL,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(20 * time.Second)),
		logger:     logger.With("component", "search"),
	}
}

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Response is the answer plus supporting results.
type Response struct {
	Answer  string   `json:"answer"`
	Results []Result `json:"results"`
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

// Search runs one query. maxResults is clamped to [1, 10]; depth must be
// "basic" or "advanced", anything else falls back to basic.
func (c *Client) Search(ctx context.Context, query string, maxResults int, depth string) (*Response, error) {
	if maxResults < 1 {
		maxResults = 3
	}
	if maxResults > 10 {
		maxResults = 10
	}
	if depth != "advanced" {
		depth = "basic"
	}

	payload, err := json.Marshal(tavilyRequest{
		APIKey:        c.apiKey,
		Query:         query,
		MaxResults:    maxResults,
		SearchDepth:   depth,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling tavily: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("tavily returned status %d: %s", resp.StatusCode, body)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	c.logger.Debug("search complete", "query", query, "results", len(out.Results))
	return &out, nil
}
