package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/teilomillet/gollm"
)

// GollmClient serves OpenAI (and any other gollm provider) through
// github.com/teilomillet/gollm. gollm has no structured tool-call
// output, so tool calls are recovered from the response text.
type GollmClient struct {
	provider  string
	apiKey    string
	maxTokens int
	logger    *slog.Logger

	mu sync.Mutex
	// One gollm.LLM per model, built on first use.
	gens map[string]generateFunc
	// newGen builds a generator for a model. Replaced in tests.
	newGen func(model string) (generateFunc, error)
}

type generateFunc func(ctx context.Context, prompt *gollm.Prompt) (string, error)

// NewGollmClient creates a client for provider (e.g. "openai"). If apiKey
// is empty, gollm reads the provider's usual environment variable.
func NewGollmClient(provider, apiKey string, logger *slog.Logger) *GollmClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &GollmClient{
		provider:  provider,
		apiKey:    apiKey,
		maxTokens: 4096,
		logger:    logger.With("provider", provider),
		gens:      make(map[string]generateFunc),
	}
	c.newGen = c.buildLLM
	return c
}

func (c *GollmClient) buildLLM(model string) (generateFunc, error) {
	opts := []gollm.ConfigOption{
		gollm.SetProvider(c.provider),
		gollm.SetModel(model),
		gollm.SetMaxTokens(c.maxTokens),
		gollm.SetTemperature(0.7),
		gollm.SetMaxRetries(0), // RetryClient owns retries
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if c.apiKey != "" {
		opts = append(opts, gollm.SetAPIKey(c.apiKey))
	}
	l, err := gollm.NewLLM(opts...)
	if err != nil {
		return nil, fmt.Errorf("create gollm %s/%s: %w", c.provider, model, err)
	}
	return func(ctx context.Context, p *gollm.Prompt) (string, error) {
		return l.Generate(ctx, p)
	}, nil
}

func (c *GollmClient) generator(model string) (generateFunc, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.gens[model]; ok {
		return g, nil
	}
	g, err := c.newGen(model)
	if err != nil {
		return nil, &ModelError{Kind: ErrorKindAuth, Provider: c.provider, Err: err}
	}
	c.gens[model] = g
	return g, nil
}

// Chat flattens messages into a gollm prompt and parses the reply.
func (c *GollmClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	gen, err := c.generator(model)
	if err != nil {
		return nil, err
	}

	system, text := flattenForGollm(messages)
	opts := []gollm.PromptOption{}
	if system != "" {
		opts = append(opts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}
	if len(tools) > 0 {
		opts = append(opts, gollm.WithTools(convertToolsToGollm(tools)), gollm.WithToolChoice("auto"))
	}
	prompt := gollm.NewPrompt(text, opts...)

	c.logger.Log(ctx, LevelTrace, "gollm prompt", "system", system, "input", text)

	out, err := gen(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, WrapTransport(c.provider, ctx.Err())
		}
		return nil, c.translateError(err)
	}
	out = strings.TrimSpace(out)

	msg := Message{Role: RoleAssistant, Content: out}
	if len(tools) > 0 {
		if calls := parseTextToolCalls(out, extractToolNames(tools)); len(calls) > 0 {
			for i := range calls {
				calls[i].ID = positionalCallID(i)
			}
			msg.ToolCalls = calls
			msg.Content = ""
		}
	}
	if msg.Content == "" && len(msg.ToolCalls) == 0 {
		return nil, InvalidOutput(c.provider, "empty response")
	}

	return &ChatResponse{
		Model:        model,
		Message:      msg,
		Done:         true,
		InputTokens:  len(system+text) / 4, // gollm does not report usage
		OutputTokens: len(out) / 4,
	}, nil
}

// Ping verifies that a gollm instance can be configured. gollm exposes
// no cheap health call.
func (c *GollmClient) Ping(ctx context.Context) error {
	_, err := c.generator("gpt-4o-mini")
	return err
}

// flattenForGollm turns a chat transcript into gollm's single-input
// prompt: system messages become the system prompt and everything else
// is rendered as labelled turns.
func flattenForGollm(messages []Message) (system, text string) {
	var sys []string
	var turns []string
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			sys = append(sys, m.Content)
		case RoleUser:
			turns = append(turns, "[User]: "+m.Content)
		case RoleAssistant:
			if m.Content != "" {
				turns = append(turns, "[Assistant]: "+m.Content)
			}
			for _, tc := range m.ToolCalls {
				turns = append(turns, fmt.Sprintf("[Tool Call %s]: %s %s", tc.ID, tc.Function.Name, mustJSON(tc.Function.Arguments)))
			}
		case RoleTool:
			turns = append(turns, fmt.Sprintf("[Tool Result %s]: %s", m.ToolCallID, m.Content))
		}
	}
	text = strings.Join(turns, "\n")
	if text == "" {
		text = "Hello"
	}
	return strings.Join(sys, "\n\n"), text
}

func convertToolsToGollm(tools []map[string]any) []gollm.Tool {
	out := make([]gollm.Tool, 0, len(tools))
	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		params, _ := fn["parameters"].(map[string]any)
		out = append(out, gollm.Tool{
			Type: "function",
			Function: gollm.Function{
				Name:        name,
				Description: desc,
				Parameters:  params,
			},
		})
	}
	return out
}

// translateError classifies gollm's untyped errors by message.
func (c *GollmClient) translateError(err error) *ModelError {
	msg := strings.ToLower(err.Error())
	e := &ModelError{Provider: c.provider, Err: err}
	switch {
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"):
		e.Kind = ErrorKindAuth
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"):
		e.Kind = ErrorKindRateLimit
		e.Retryable = true
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		e.Kind = ErrorKindTimeout
		e.Retryable = true
	case strings.Contains(msg, "500"), strings.Contains(msg, "502"), strings.Contains(msg, "503"),
		strings.Contains(msg, "internal server"):
		e.Kind = ErrorKindProvider
		e.Retryable = true
	default:
		e.Kind = ErrorKindProvider
	}
	return e
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
