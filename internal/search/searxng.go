package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/httpkit"
)

// SearXNG queries a self-hosted SearXNG metasearch instance. The
// instance must have the json output format enabled.
type SearXNG struct {
	baseURL    string
	httpClient *http.Client
}

// NewSearXNG returns a provider for the instance rooted at baseURL,
// for example "http://localhost:8080".
func NewSearXNG(baseURL string) *SearXNG {
	return &SearXNG{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

// Name returns "searxng".
func (s *SearXNG) Name() string { return "searxng" }

type searxngResponse struct {
	Answers []any `json:"answers"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search runs query. Instant answers are returned ahead of web results
// and count toward the limit.
func (s *SearXNG) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	q := url.Values{"q": {query}, "format": {"json"}}
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}

	var resp searxngResponse
	if err := httpkit.GetJSON(ctx, s.httpClient, s.baseURL+"/search?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("searxng: %w", err)
	}

	limit := opts.count()
	out := make([]Result, 0, limit)
	for _, a := range resp.Answers {
		if text := answerText(a); text != "" {
			out = append(out, Result{Title: "Answer", Snippet: text})
		}
	}
	for _, r := range resp.Results {
		if len(out) >= limit {
			break
		}
		out = append(out, Result{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return out, nil
}

// answerText handles both answer shapes SearXNG has used: a bare
// string, and an object with an "answer" field.
func answerText(a any) string {
	switch v := a.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		s, _ := v["answer"].(string)
		return strings.TrimSpace(s)
	}
	return ""
}
