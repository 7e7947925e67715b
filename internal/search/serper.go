package search

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/httpkit"
)

const serperEndpoint = "https://google.serper.dev/search"

// Serper implements the Provider interface for Google results through
// the serper.dev API.
type Serper struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// NewSerper creates a Serper provider.
func NewSerper(apiKey string) *Serper {
	return &Serper{
		apiKey:     apiKey,
		endpoint:   serperEndpoint,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

func (s *Serper) Name() string { return "serper" }

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
	HL  string `json:"hl,omitempty"`
}

type serperResponse struct {
	AnswerBox *struct {
		Title   string `json:"title"`
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
	} `json:"answerBox"`
	KnowledgeGraph *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"knowledgeGraph"`
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Search posts the query to Serper. A direct answer box or knowledge
// graph entry, when present, is returned ahead of the organic results.
func (s *Serper) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	count := opts.count()
	header := http.Header{}
	header.Set("X-API-KEY", s.apiKey)

	var sr serperResponse
	req := serperRequest{Q: query, Num: count, HL: opts.Language}
	if err := httpkit.PostJSON(ctx, s.httpClient, s.endpoint, header, req, &sr); err != nil {
		return nil, fmt.Errorf("serper: %w", err)
	}

	var results []Result
	if ab := sr.AnswerBox; ab != nil {
		answer := ab.Answer
		if answer == "" {
			answer = ab.Snippet
		}
		if answer != "" {
			results = append(results, Result{Title: "Answer", Snippet: answer})
		}
	}
	if kg := sr.KnowledgeGraph; kg != nil && kg.Description != "" {
		results = append(results, Result{Title: kg.Title, Snippet: kg.Description})
	}
	for _, o := range sr.Organic {
		if len(results) >= count {
			break
		}
		results = append(results, Result{Title: o.Title, URL: o.Link, Snippet: o.Snippet})
	}
	return results, nil
}
