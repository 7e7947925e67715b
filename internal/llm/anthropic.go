package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/httpkit"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
	anthropicProvider   = "anthropic"
	anthropicPingModel  = "claude-haiku-4-5"
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	apiKey     string
	url        string
	maxTokens  int
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAnthropicClient returns a client authenticated with apiKey. The
// overall call is bounded by the caller's context rather than a client
// timeout, so a long worker turn is not cut short.
func NewAnthropicClient(apiKey string, logger *slog.Logger) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	return &AnthropicClient{
		apiKey:     apiKey,
		url:        anthropicAPIURL,
		maxTokens:  4096,
		logger:     logger.With("provider", anthropicProvider),
		httpClient: httpkit.NewClient(httpkit.WithTimeout(0), httpkit.WithTransport(t)),
	}
}

// WithBaseURL points the client at a different Messages endpoint.
func (c *AnthropicClient) WithBaseURL(url string) *AnthropicClient {
	c.url = url
	return c
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
	MaxTokens int                `json:"max_tokens"`
}

// anthropicMessage content is either a plain string or []anthropicBlock.
type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Input any    `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type anthropicTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema"`
}

type anthropicReply struct {
	Model      string           `json:"model"`
	Role       string           `json:"role"`
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat sends one Messages request. A reply with neither text nor tool
// calls, or one whose tool call was cut off by max_tokens, is reported
// as invalid output.
func (c *AnthropicClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	msgs, system := toAnthropicMessages(messages)
	req := anthropicRequest{
		Model:     model,
		System:    system,
		Messages:  msgs,
		Tools:     toAnthropicTools(tools),
		MaxTokens: c.maxTokens,
	}
	c.logger.Debug("sending request",
		"model", model,
		"messages", len(req.Messages),
		"tools", len(req.Tools),
		"system_len", len(system),
	)

	var reply anthropicReply
	if err := c.send(ctx, req, &reply); err != nil {
		return nil, err
	}
	if reply.StopReason == "max_tokens" && hasBlock(reply.Content, "tool_use") {
		return nil, InvalidOutput(anthropicProvider, "tool call truncated at max_tokens")
	}

	out := fromAnthropicReply(&reply)
	if out.Message.Content == "" && len(out.Message.ToolCalls) == 0 {
		return nil, InvalidOutput(anthropicProvider, "empty response")
	}
	c.logger.Debug("response received",
		"model", out.Model,
		"stop_reason", reply.StopReason,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"tool_calls", len(out.Message.ToolCalls),
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", out.Message.Content)
	return out, nil
}

// Ping sends a one-token request. The API has no health endpoint, and
// this also proves the key is accepted.
func (c *AnthropicClient) Ping(ctx context.Context) error {
	return c.send(ctx, anthropicRequest{
		Model:     anthropicPingModel,
		Messages:  []anthropicMessage{{Role: RoleUser, Content: "ping"}},
		MaxTokens: 1,
	}, nil)
}

// send posts req and decodes a 200 reply into out, which may be nil.
// Every failure comes back as *ModelError.
func (c *AnthropicClient) send(ctx context.Context, req anthropicRequest, out any) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(payload))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return WrapTransport(anthropicProvider, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", body)
		return ErrorFromStatus(anthropicProvider, resp.StatusCode, body, resp.Header.Get("Retry-After"))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return WrapTransport(anthropicProvider, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// toAnthropicMessages maps the transcript onto Messages API turns.
// System messages are joined into the separate system prompt. Tool
// results travel as user-role tool_result blocks, and consecutive
// results from one parallel batch share a single user message.
func toAnthropicMessages(messages []Message) ([]anthropicMessage, string) {
	var (
		system []string
		out    []anthropicMessage
	)
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleUser:
			out = append(out, anthropicMessage{Role: RoleUser, Content: m.Content})
		case RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, anthropicMessage{Role: RoleAssistant, Content: m.Content})
				continue
			}
			out = append(out, anthropicMessage{Role: RoleAssistant, Content: toolUseBlocks(m)})
		case RoleTool:
			result := anthropicBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content}
			if n := len(out); n > 0 && isToolResultTurn(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content.([]anthropicBlock), result)
				continue
			}
			out = append(out, anthropicMessage{Role: RoleUser, Content: []anthropicBlock{result}})
		}
	}
	return out, strings.Join(system, "\n\n")
}

// toolUseBlocks renders an assistant turn that requested tools. Calls
// without a provider ID get a stable synthetic one so their results can
// still be correlated.
func toolUseBlocks(m Message) []anthropicBlock {
	blocks := make([]anthropicBlock, 0, len(m.ToolCalls)+1)
	if m.Content != "" {
		blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
	}
	for i, tc := range m.ToolCalls {
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("toolu_%s_%d", tc.Function.Name, i)
		}
		input := tc.Function.Arguments
		if input == nil {
			input = map[string]any{}
		}
		blocks = append(blocks, anthropicBlock{Type: "tool_use", ID: id, Name: tc.Function.Name, Input: input})
	}
	return blocks
}

func isToolResultTurn(m anthropicMessage) bool {
	if m.Role != RoleUser {
		return false
	}
	blocks, ok := m.Content.([]anthropicBlock)
	return ok && hasBlock(blocks, "tool_result")
}

func hasBlock(blocks []anthropicBlock, typ string) bool {
	for _, b := range blocks {
		if b.Type == typ {
			return true
		}
	}
	return false
}

// toAnthropicTools converts OpenAI-shaped function definitions. Entries
// without a function object are skipped; a missing parameter schema
// becomes an empty object schema.
func toAnthropicTools(tools []map[string]any) []anthropicTool {
	var out []anthropicTool
	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}
		tool := anthropicTool{InputSchema: fn["parameters"]}
		tool.Name, _ = fn["name"].(string)
		tool.Description, _ = fn["description"].(string)
		if tool.InputSchema == nil {
			tool.InputSchema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, tool)
	}
	return out
}

func fromAnthropicReply(r *anthropicReply) *ChatResponse {
	var text strings.Builder
	msg := Message{Role: RoleAssistant}
	for _, b := range r.Content {
		switch b.Type {
		case "text":
			text.WriteString(b.Text)
		case "tool_use":
			args, _ := b.Input.(map[string]any)
			if args == nil {
				args = map[string]any{}
			}
			msg.ToolCalls = append(msg.ToolCalls, NewToolCall(b.ID, b.Name, args))
		}
	}
	msg.Content = text.String()
	return &ChatResponse{
		Model:        r.Model,
		Message:      msg,
		Done:         true,
		InputTokens:  r.Usage.InputTokens,
		OutputTokens: r.Usage.OutputTokens,
	}
}
