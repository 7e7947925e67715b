package fetch

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/tools"
)

// maxToolLinks bounds the links returned with include_links.
const maxToolLinks = 50

type toolResult struct {
	*Result
	Links []Link `json:"links,omitempty"`
}

// Register adds the web_fetch tool to r.
func Register(r *tools.Registry, f *Fetcher) {
	r.Register(&tools.Tool{
		Name: "web_fetch",
		Description: "Download a web page and return its readable text as JSON without running scripts. " +
			"Faster than the browser; use the browser tools for pages that need JavaScript or clicks.",
		Parameters: tools.Schema(map[string]any{
			"url":           tools.Prop("string", "URL to fetch. A bare host gets https://."),
			"max_chars":     tools.Prop("integer", "Maximum characters of text to return. Default: 50000."),
			"include_links": tools.Prop("boolean", "Also return up to 50 links found on the page."),
		}, "url"),
		Handler: f.handleTool,
	})
}

func (f *Fetcher) handleTool(ctx context.Context, args map[string]any) (string, error) {
	target := tools.StringArg(args, "url")
	if target == "" {
		return "", errors.New("web_fetch: url is required")
	}
	res, err := f.Fetch(ctx, target, tools.IntArg(args, "max_chars", 0))
	if err != nil {
		return "", err
	}

	out := toolResult{Result: res}
	if tools.BoolArg(args, "include_links") {
		out.Links = res.links
		if len(out.Links) > maxToolLinks {
			out.Links = out.Links[:maxToolLinks]
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
