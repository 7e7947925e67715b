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

const ollamaProvider = "ollama"

// OllamaClient talks to a local or remote Ollama server over /api/chat.
// Requests are sent with stream disabled; the reply arrives as a single
// JSON object.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient returns a client for the server at baseURL. The
// response header timeout is generous because the first call to a
// model may have to load it from disk.
func NewOllamaClient(baseURL string, logger *slog.Logger) *OllamaClient {
	if logger == nil {
		logger = slog.Default()
	}
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 300 * time.Second
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("provider", ollamaProvider),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithLogger(logger),
		),
	}
}

type ollamaChatRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Stream   bool             `json:"stream"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ollamaChatReply is the /api/chat response. Durations are nanoseconds.
type ollamaChatReply struct {
	Model              string        `json:"model"`
	CreatedAt          string        `json:"created_at"`
	Message            ollamaMessage `json:"message"`
	Done               bool          `json:"done"`
	TotalDuration      int64         `json:"total_duration"`
	LoadDuration       int64         `json:"load_duration"`
	PromptEvalCount    int           `json:"prompt_eval_count"`
	PromptEvalDuration int64         `json:"prompt_eval_duration"`
	EvalCount          int           `json:"eval_count"`
	EvalDuration       int64         `json:"eval_duration"`
	Error              string        `json:"error,omitempty"`
}

// toChatResponse converts the wire reply. Ollama does not assign tool
// call IDs, so positional ones are generated.
func (r *ollamaChatReply) toChatResponse() *ChatResponse {
	created, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	out := &ChatResponse{
		Model:         r.Model,
		CreatedAt:     created,
		Done:          r.Done,
		Message:       Message{Role: RoleAssistant, Content: r.Message.Content},
		InputTokens:   r.PromptEvalCount,
		OutputTokens:  r.EvalCount,
		TotalDuration: time.Duration(r.TotalDuration),
		LoadDuration:  time.Duration(r.LoadDuration),
		EvalDuration:  time.Duration(r.EvalDuration),
	}
	for i, tc := range r.Message.ToolCalls {
		out.Message.ToolCalls = append(out.Message.ToolCalls,
			NewToolCall(positionalCallID(i), tc.Function.Name, tc.Function.Arguments))
	}
	return out
}

func positionalCallID(i int) string { return fmt.Sprintf("call_%d", i) }

// Chat sends one chat request. Small local models often write tool calls
// into the reply text instead of the tool_calls field; when tools were
// offered those are recovered with parseTextToolCalls.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	payload, err := json.Marshal(ollamaChatRequest{
		Model:    model,
		Messages: toOllamaMessages(messages),
		Tools:    tools,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, WrapTransport(ollamaProvider, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", body)
		return nil, ErrorFromStatus(ollamaProvider, resp.StatusCode, body, resp.Header.Get("Retry-After"))
	}

	var reply ollamaChatReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, InvalidOutput(ollamaProvider, "decode response: %v", err)
	}
	if reply.Error != "" {
		return nil, &ModelError{Kind: ErrorKindProvider, Provider: ollamaProvider, Message: reply.Error}
	}

	out := reply.toChatResponse()
	if len(out.Message.ToolCalls) == 0 && len(tools) > 0 {
		if recovered := parseTextToolCalls(out.Message.Content, extractToolNames(tools)); len(recovered) > 0 {
			for i := range recovered {
				recovered[i].ID = positionalCallID(i)
			}
			c.logger.Debug("recovered text tool calls", "count", len(recovered))
			out.Message.ToolCalls = recovered
			out.Message.Content = ""
		}
	}

	c.logger.Debug("response received",
		"model", out.Model,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"tool_calls", len(out.Message.ToolCalls),
		"load", out.LoadDuration,
	)
	return out, nil
}

func toOllamaMessages(messages []Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		om := ollamaMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, ollamaToolCall{Function: ollamaFunction{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}})
		}
		out = append(out, om)
	}
	return out
}

// Ping lists installed models to confirm the server answers.
func (c *OllamaClient) Ping(ctx context.Context) error {
	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := httpkit.GetJSON(ctx, c.httpClient, c.baseURL+"/api/tags", nil, &tags); err != nil {
		return WrapTransport(ollamaProvider, err)
	}
	c.logger.Debug("ollama reachable", "models", len(tags.Models))
	return nil
}
