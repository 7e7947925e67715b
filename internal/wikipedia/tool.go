package wikipedia

import (
	"context"
	"fmt"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/tools"
)

// Register adds the wikipedia tool to r.
func Register(r *tools.Registry, c *Client) {
	r.Register(&tools.Tool{
		Name: "wikipedia",
		Description: "Look up a topic on Wikipedia and return summaries of the best matching articles. " +
			"Good for people, places, events, and general knowledge.",
		Parameters: tools.Schema(map[string]any{
			"query": tools.Prop("string", "Topic to look up"),
		}, "query"),
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query := tools.StringArg(args, "query")
			if query == "" {
				return "", fmt.Errorf("wikipedia: query is required")
			}
			summaries, err := c.Lookup(ctx, query)
			if err != nil {
				return "", err
			}
			return Format(summaries, c.maxChars), nil
		},
	})
}
