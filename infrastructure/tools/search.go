package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ahrav/go-council/internal/domain"
)

const (
	searchNotConfigured = "Web search is not configured. Set SEARCH_API_KEY environment variable."
	noSearchResults     = "No search results found."
	defaultResultCount  = 5
)

// searchResult is one organic result of a SerpAPI query.
type searchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

type searchResponse struct {
	OrganicResults []searchResult `json:"organic_results"`
}

// searchClient queries SerpAPI.
type searchClient struct {
	apiKey   string
	endpoint string
	http     *http.Client
}

func newSearchClient(cfg Config) *searchClient {
	return &searchClient{apiKey: cfg.SearchAPIKey, endpoint: cfg.SearchURL, http: cfg.HTTPClient}
}

func (c *searchClient) configured() bool { return c.apiKey != "" }

// search returns up to num results. A non-200 status is returned with no
// results and no error.
func (c *searchClient) search(ctx context.Context, query string, num int) ([]searchResult, int, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("api_key", c.apiKey)
	q.Set("num", strconv.Itoa(num))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to decode search response: %w", err)
	}
	results := body.OrganicResults
	if len(results) > num {
		results = results[:num]
	}
	return results, resp.StatusCode, nil
}

func statusMessage(status int) string {
	return fmt.Sprintf("Search API returned status %d", status)
}

type webSearchArgs struct {
	Query string `yaml:"query" validate:"required"`
}

func webSearchTool(client *searchClient) domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web for current information. Returns top search results with titles, snippets, and URLs.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "The search query"},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, raw map[string]any) (string, error) {
			if !client.configured() {
				return searchNotConfigured, nil
			}
			var args webSearchArgs
			if err := decodeArgs(raw, &args); err != nil {
				return "", err
			}

			results, status, err := client.search(ctx, args.Query, defaultResultCount)
			if err != nil {
				return "", fmt.Errorf("web search failed: %w", err)
			}
			if status != http.StatusOK {
				return statusMessage(status), nil
			}
			if len(results) == 0 {
				return noSearchResults, nil
			}

			var lines []string
			for _, r := range results {
				lines = append(lines, "**"+r.Title+"**", r.Snippet, r.Link, "")
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}
