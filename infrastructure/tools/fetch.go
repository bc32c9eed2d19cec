package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/ahrav/go-council/internal/domain"
)

// TruncationMarker is appended to text cut at a size limit.
const TruncationMarker = "\n\n[... truncated ...]"

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 10 << 20

const userAgent = "go-council/1.0"

// strippedElements never contribute page text.
const strippedElements = "script, style, nav, footer, header"

// fetchResult is a fetched page reduced to text.
type fetchResult struct {
	Status int
	Text   string
}

// fetchText GETs url and returns its body as text. HTML bodies are reduced
// to their visible text. Non-2xx responses are returned with an empty Text
// and no error.
func fetchText(ctx context.Context, client *http.Client, url string) (fetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetchResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return fetchResult{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fetchResult{Status: resp.StatusCode}, nil
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	if strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "html") {
		text, err := HTMLToText(body)
		if err != nil {
			return fetchResult{}, err
		}
		return fetchResult{Status: resp.StatusCode, Text: text}, nil
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return fetchResult{}, fmt.Errorf("failed to read body: %w", err)
	}
	return fetchResult{Status: resp.StatusCode, Text: string(raw)}, nil
}

// HTMLToText parses an HTML document and returns its visible text, one
// trimmed text node per line. Scripts, styles, and page chrome (nav,
// header, footer) are dropped.
func HTMLToText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find(strippedElements).Remove()

	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				lines = append(lines, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.Join(lines, "\n"), nil
}

// truncate cuts text to limit characters and marks the cut.
func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return domain.TruncateRunes(text, limit) + TruncationMarker
}

const urlFetchLimit = 10000

type urlFetchArgs struct {
	URL string `yaml:"url" validate:"required,url"`
}

func urlFetchTool(client *http.Client) domain.ToolDefinition {
	return domain.ToolDefinition{
		Name:        "url_fetch",
		Description: "Fetch and read the content of a web page URL. Returns the text content of the page.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "The URL to fetch"},
			},
			"required": []string{"url"},
		},
		Handler: func(ctx context.Context, raw map[string]any) (string, error) {
			var args urlFetchArgs
			if err := decodeArgs(raw, &args); err != nil {
				return "", err
			}
			res, err := fetchText(ctx, client, args.URL)
			if err != nil {
				return "", fmt.Errorf("URL fetch failed: %w", err)
			}
			if res.Status != http.StatusOK {
				return fmt.Sprintf("Failed to fetch URL: HTTP %d", res.Status), nil
			}
			return truncate(res.Text, urlFetchLimit), nil
		},
	}
}
