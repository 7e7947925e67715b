package llm

import "context"

// Client is a chat model backend. Failures are returned as *ModelError
// so callers can branch on Kind.
type Client interface {
	// Chat sends one completion request. tools holds JSON-schema tool
	// definitions in the OpenAI function shape; providers translate them.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
