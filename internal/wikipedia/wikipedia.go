// Package wikipedia looks up article summaries through the public
// MediaWiki APIs.
package wikipedia

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/fetch"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/httpkit"
)

const (
	defaultTopK     = 3
	defaultMaxChars = 4000
)

// Summary is the lead section of one article.
type Summary struct {
	Title   string `json:"title"`
	Extract string `json:"extract"`
	URL     string `json:"url"`
}

// Client queries one language edition of Wikipedia.
type Client struct {
	baseURL    string
	httpClient *http.Client
	topK       int
	maxChars   int
}

// New creates a client for language (e.g. "en").
func New(language string) *Client {
	if language == "" {
		language = "en"
	}
	return &Client{
		baseURL:    fmt.Sprintf("https://%s.wikipedia.org", language),
		httpClient: httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
		topK:       defaultTopK,
		maxChars:   defaultMaxChars,
	}
}

type searchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

type summaryResponse struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Extract     string `json:"extract"`
	ContentURLs struct {
		Desktop struct {
			Page string `json:"page"`
		} `json:"desktop"`
	} `json:"content_urls"`
}

// Search returns the titles of the best matching articles.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]string, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {strconv.Itoa(limit)},
		"format":   {"json"},
	}
	var sr searchResponse
	if err := httpkit.GetJSON(ctx, c.httpClient, c.baseURL+"/w/api.php?"+params.Encode(), nil, &sr); err != nil {
		return nil, fmt.Errorf("wikipedia search: %w", err)
	}
	titles := make([]string, 0, len(sr.Query.Search))
	for _, s := range sr.Query.Search {
		titles = append(titles, s.Title)
	}
	return titles, nil
}

// Summary fetches the lead extract for an exact article title.
func (c *Client) Summary(ctx context.Context, title string) (*Summary, error) {
	path := url.PathEscape(strings.ReplaceAll(title, " ", "_"))
	var sr summaryResponse
	if err := httpkit.GetJSON(ctx, c.httpClient, c.baseURL+"/api/rest_v1/page/summary/"+path, nil, &sr); err != nil {
		return nil, fmt.Errorf("wikipedia summary %q: %w", title, err)
	}
	return &Summary{Title: sr.Title, Extract: sr.Extract, URL: sr.ContentURLs.Desktop.Page}, nil
}

// Lookup searches for query and returns the summaries of the top
// matches. Disambiguation pages are skipped. Articles whose summary
// cannot be fetched are skipped as long as one succeeds.
func (c *Client) Lookup(ctx context.Context, query string) ([]Summary, error) {
	titles, err := c.Search(ctx, query, c.topK)
	if err != nil {
		return nil, err
	}
	var (
		out     []Summary
		lastErr error
	)
	for _, title := range titles {
		s, err := c.Summary(ctx, title)
		if err != nil {
			lastErr = err
			continue
		}
		if s.Extract == "" {
			continue
		}
		out = append(out, *s)
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// Format renders summaries the way the model sees them, capped at
// maxChars runes.
func Format(summaries []Summary, maxChars int) string {
	if len(summaries) == 0 {
		return "No good Wikipedia Search Result was found"
	}
	parts := make([]string, 0, len(summaries))
	for _, s := range summaries {
		parts = append(parts, fmt.Sprintf("Page: %s\nSummary: %s", s.Title, s.Extract))
	}
	return fetch.TruncateUTF8(strings.Join(parts, "\n\n"), maxChars)
}
