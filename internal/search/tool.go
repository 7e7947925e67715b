package search

import (
	"context"
	"errors"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/tools"
)

// maxToolCount bounds the count argument of web_search.
const maxToolCount = 10

// Register adds web_search to r. Nothing is registered when mgr has no
// providers.
func Register(r *tools.Registry, mgr *Manager) {
	if mgr == nil || !mgr.Configured() {
		return
	}
	provider := tools.Prop("string", "Search provider to use. Omit to use the default, with fallback to the others.")
	provider["enum"] = mgr.Providers()

	r.Register(&tools.Tool{
		Name: "web_search",
		Description: "Search the web for current information. Returns titles, URLs and snippets. " +
			"Use it for facts that may have changed since training, such as dates, news or prices.",
		Parameters: tools.Schema(map[string]any{
			"query":    tools.Prop("string", "The search query string."),
			"count":    tools.Prop("integer", "Maximum number of results (1-10). Default: 5."),
			"language": tools.Prop("string", "ISO 639-1 language code for results, such as 'en' or 'de'."),
			"provider": provider,
		}, "query"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return runSearchTool(ctx, mgr, args)
		},
	})
}

func runSearchTool(ctx context.Context, mgr *Manager, args map[string]any) (string, error) {
	query := tools.StringArg(args, "query")
	if query == "" {
		return "", errors.New("web_search: query is required")
	}
	opts := Options{
		Count:    min(tools.IntArg(args, "count", 0), maxToolCount),
		Language: tools.StringArg(args, "language"),
	}

	var (
		results []Result
		err     error
	)
	if name := tools.StringArg(args, "provider"); name != "" {
		results, err = mgr.SearchWith(ctx, name, query, opts)
	} else {
		results, err = mgr.Search(ctx, query, opts)
	}
	if err != nil {
		return "", err
	}
	return FormatResults(results), nil
}
