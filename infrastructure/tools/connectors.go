package tools

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"strings"

	"github.com/ahrav/go-council/internal/domain"
)

// ConnectorTypeSimple marks a connector configured entirely by request
// fields.
const ConnectorTypeSimple = "simple"

const connectorTextLimit = 15000

type prequeryConfig struct {
	Query      string `yaml:"query" validate:"required"`
	MaxResults int    `yaml:"max_results" validate:"min=1,max=20"`
}

func webSearchPrequeryConnector(client *searchClient) domain.ConnectorDefinition {
	return domain.ConnectorDefinition{
		Name:        "web_search_prequery",
		Description: "Search the web before sending your query. Results are injected as context for all council models.",
		Type:        ConnectorTypeSimple,
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Search query to run before the council query",
				},
				"max_results": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results to include",
					"default":     defaultResultCount,
				},
			},
			"required": []string{"query"},
		},
		Fetcher: func(ctx context.Context, raw map[string]any) (string, error) {
			if !client.configured() {
				return "Web search prequery not available: SEARCH_API_KEY not configured.", nil
			}
			cfg := prequeryConfig{MaxResults: defaultResultCount}
			if err := decodeArgs(raw, &cfg); err != nil {
				return "", err
			}

			results, status, err := client.search(ctx, cfg.Query, cfg.MaxResults)
			if err != nil {
				return "", fmt.Errorf("web search prequery failed: %w", err)
			}
			if status != http.StatusOK {
				return statusMessage(status), nil
			}
			if len(results) == 0 {
				return noSearchResults, nil
			}

			var lines []string
			for _, r := range results {
				lines = append(lines, "Title: "+r.Title, "Snippet: "+r.Snippet, "URL: "+r.Link, "")
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}

type urlContentConfig struct {
	URL string `yaml:"url" validate:"required,url"`
}

func urlContentConnector(client *http.Client) domain.ConnectorDefinition {
	return domain.ConnectorDefinition{
		Name:        "url_content",
		Description: "Fetch a web page and inject its content as context for all council models.",
		Type:        ConnectorTypeSimple,
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "URL to fetch content from"},
			},
			"required": []string{"url"},
		},
		Fetcher: func(ctx context.Context, raw map[string]any) (string, error) {
			var cfg urlContentConfig
			if err := decodeArgs(raw, &cfg); err != nil {
				return "", err
			}
			res, err := fetchText(ctx, client, cfg.URL)
			if err != nil {
				return "", fmt.Errorf("URL content fetch failed: %w", err)
			}
			if res.Status != http.StatusOK {
				return fmt.Sprintf("Failed to fetch URL: HTTP %d", res.Status), nil
			}
			return truncate(res.Text, connectorTextLimit), nil
		},
	}
}

type restAPIConfig struct {
	Endpoint string            `yaml:"endpoint" validate:"required,url"`
	Method   string            `yaml:"method" validate:"oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`
	Headers  map[string]string `yaml:"headers"`
}

func restAPIConnector(client *http.Client) domain.ConnectorDefinition {
	return domain.ConnectorDefinition{
		Name:        "rest_api",
		Description: "Fetch data from a REST API endpoint and inject the response as context.",
		Type:        ConnectorTypeSimple,
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"endpoint": map[string]any{"type": "string", "description": "REST API endpoint URL"},
				"method": map[string]any{
					"type":        "string",
					"description": "HTTP method (GET, POST, etc.)",
					"default":     http.MethodGet,
				},
				"headers": map[string]any{
					"type":        "object",
					"description": "Optional HTTP headers as key-value pairs",
					"default":     map[string]any{},
				},
			},
			"required": []string{"endpoint"},
		},
		Fetcher: func(ctx context.Context, raw map[string]any) (string, error) {
			cfg := restAPIConfig{Method: http.MethodGet}
			raw = maps.Clone(raw)
			if m, ok := raw["method"].(string); ok {
				raw["method"] = strings.ToUpper(m)
			}
			if err := decodeArgs(raw, &cfg); err != nil {
				return "", err
			}

			req, err := http.NewRequestWithContext(ctx, cfg.Method, cfg.Endpoint, nil)
			if err != nil {
				return "", fmt.Errorf("failed to create request: %w", err)
			}
			for k, v := range cfg.Headers {
				req.Header.Set(k, v)
			}
			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("REST API fetch failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return "", fmt.Errorf("failed to read body: %w", err)
			}
			return fmt.Sprintf("Status: %d\n\n%s", resp.StatusCode, truncate(string(body), connectorTextLimit)), nil
		},
	}
}
