package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SearchName is the web search tool name.
const SearchName = "web_search"

// SearchBackend performs a web search and returns formatted text results.
type SearchBackend interface {
	Search(ctx context.Context, query string) (string, error)
}

// HTTPSearchBackend queries a JSON search API over HTTP.
type HTTPSearchBackend struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPSearchBackend creates a backend for the given endpoint. The API key
// may be empty for unauthenticated endpoints.
func NewHTTPSearchBackend(endpoint, apiKey string) *HTTPSearchBackend {
	return &HTTPSearchBackend{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

// Search implements SearchBackend.
func (b *HTTPSearchBackend) Search(ctx context.Context, query string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		b.endpoint+"?q="+url.QueryEscape(query), nil)
	if err != nil {
		return "", fmt.Errorf("invalid search request: %w", err)
	}
	if b.apiKey != "" {
		req.Header.Set("X-API-Key", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search API returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read search response: %w", err)
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode search response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return fmt.Sprintf("No results found for %q.", query), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for %q:\n", query)
	for _, r := range parsed.Results {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", r.Title, r.URL, r.Snippet)
	}
	return sb.String(), nil
}

// SearchTool exposes a SearchBackend as a callable tool.
type SearchTool struct {
	backend SearchBackend
}

// NewSearchTool creates the web_search tool.
func NewSearchTool(backend SearchBackend) *SearchTool {
	return &SearchTool{backend: backend}
}

// Definition implements Tool.
func (t *SearchTool) Definition() Definition {
	return Definition{
		Name:        SearchName,
		Description: "Search the web for current information. Use for recent events, prices, or anything requiring up-to-date data.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search query"}
			},
			"required": ["query"]
		}`),
	}
}

// Execute implements Tool.
func (t *SearchTool) Execute(ctx context.Context, _ *Invocation, args map[string]any) (*Result, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return Fail("query must not be empty"), nil
	}
	out, err := t.backend.Search(ctx, query)
	if err != nil {
		return Fail("%v", err), nil
	}
	return Ok(out), nil
}
