package search

import (
	"context"
	"fmt"
	"time"

	"github.com/imroc/req/v3"

	"github.com/marcus-tan/askleads/internal/domain"
)

// Client wraps a Firecrawl-compatible search/scrape API.
type Client struct {
	http *req.Client
}

// NewClient creates a new search client. baseURL must already be
// normalized; an empty apiKey is allowed for self-hosted deployments.
func NewClient(apiKey, baseURL string) *Client {
	c := req.C().
		SetBaseURL(baseURL).
		SetTimeout(90 * time.Second)
	if apiKey != "" {
		c.SetCommonBearerAuthToken(apiKey)
	}
	return &Client{http: c}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    []struct {
		URL         string `json:"url"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"data"`
}

// Search returns up to limit candidate pages for the query. An empty
// result set is a valid outcome, not an error.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	var out searchResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&searchRequest{Query: query, Limit: limit}).
		SetSuccessResult(&out).
		Post("/v1/search")
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	if !resp.IsSuccessState() {
		return nil, fmt.Errorf("search returned %s: %s", resp.Status, resp.String())
	}
	if !out.Success && out.Error != "" {
		return nil, fmt.Errorf("search failed: %s", out.Error)
	}

	results := make([]domain.SearchResult, 0, len(out.Data))
	for _, d := range out.Data {
		if d.URL == "" {
			continue
		}
		results = append(results, domain.SearchResult{
			URL:     d.URL,
			Title:   d.Title,
			Snippet: d.Description,
		})
	}
	return results, nil
}

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		Markdown string `json:"markdown"`
	} `json:"data"`
}

// ScrapeURL fetches one page as markdown. Pages that yield no content
// come back with an empty Markdown, not an error.
func (c *Client) ScrapeURL(ctx context.Context, url string) (domain.ScrapedPage, error) {
	var out scrapeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&scrapeRequest{URL: url, Formats: []string{"markdown"}}).
		SetSuccessResult(&out).
		Post("/v1/scrape")
	if err != nil {
		return domain.ScrapedPage{}, fmt.Errorf("scrape request failed: %w", err)
	}
	if !resp.IsSuccessState() {
		return domain.ScrapedPage{}, fmt.Errorf("scrape returned %s: %s", resp.Status, resp.String())
	}
	if !out.Success && out.Error != "" {
		return domain.ScrapedPage{}, fmt.Errorf("scrape failed: %s", out.Error)
	}

	return domain.ScrapedPage{URL: url, Markdown: out.Data.Markdown}, nil
}
