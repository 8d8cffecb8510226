package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// WebSearchTool calls the Firecrawl search API directly over net/http: no
// Go Firecrawl SDK exists anywhere in the example pack, and this is a
// single GET+POST-shaped call, so reaching for the stdlib client here
// (rather than hand-rolling a vendored SDK stub) is the documented
// standard-library exception for this tool.
type WebSearchTool struct {
	APIKey string
	Client *http.Client
}

func (t *WebSearchTool) Name() string { return "web_search" }

type firecrawlSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type firecrawlSearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Markdown    string `json:"markdown"`
}

type firecrawlSearchResponse struct {
	Data struct {
		Web []firecrawlSearchResult `json:"web"`
	} `json:"data"`
}

func (t *WebSearchTool) Run(ctx context.Context, query string) string {
	if t.APIKey == "" {
		return "Web search is not configured (missing FIRECRAWL_API_KEY)."
	}

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	body, err := json.Marshal(firecrawlSearchRequest{Query: query, Limit: 5})
	if err != nil {
		return "Web search failed. Please try again later."
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.firecrawl.dev/v1/search", strings.NewReader(string(body)))
	if err != nil {
		return "Web search failed. Please try again later."
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.APIKey)

	resp, err := client.Do(req)
	if err != nil {
		slog.WarnContext(ctx, "firecrawl search failed", "error", err)
		return "Web search failed. Please try again later."
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.WarnContext(ctx, "firecrawl search non-200", "status", resp.StatusCode)
		return "Web search failed. Please try again later."
	}

	var parsed firecrawlSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "Web search failed. Please try again later."
	}

	if len(parsed.Data.Web) == 0 {
		return "No web results found."
	}

	parts := make([]string, 0, len(parsed.Data.Web))
	for i, item := range parsed.Data.Web {
		snippet := item.Description
		if snippet == "" && item.Markdown != "" {
			snippet = item.Markdown
			if len(snippet) > 300 {
				snippet = snippet[:300]
			}
		}
		parts = append(parts, fmt.Sprintf("[%d] %s\n    %s\n    %s", i+1, item.Title, item.URL, snippet))
	}
	return strings.Join(parts, "\n\n")
}
