package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/httpkit"
)

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// Brave queries the Brave Search web API.
type Brave struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewBrave returns a Brave provider using apiKey.
func NewBrave(apiKey string) *Brave {
	return &Brave{
		apiKey:     apiKey,
		endpoint:   braveEndpoint,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

// Name returns "brave".
func (b *Brave) Name() string { return "brave" }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title         string   `json:"title"`
			URL           string   `json:"url"`
			Description   string   `json:"description"`
			ExtraSnippets []string `json:"extra_snippets"`
		} `json:"results"`
	} `json:"web"`
}

// Search runs query. Brave caps count at 20.
func (b *Brave) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("count", strconv.Itoa(min(opts.count(), 20)))
	if opts.Language != "" {
		q.Set("search_lang", opts.Language)
	}
	header := http.Header{"X-Subscription-Token": {b.apiKey}, "Accept": {"application/json"}}

	var resp braveResponse
	if err := httpkit.GetJSON(ctx, b.httpClient, b.endpoint+"?"+q.Encode(), header, &resp); err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}

	out := make([]Result, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		snippet := r.Description
		if snippet == "" && len(r.ExtraSnippets) > 0 {
			snippet = r.ExtraSnippets[0]
		}
		out = append(out, Result{Title: stripMarkup(r.Title), URL: r.URL, Snippet: stripMarkup(snippet)})
	}
	return out, nil
}
