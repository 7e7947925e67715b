// Package llm provides the language model collaborator: a provider-neutral
// chat interface, typed model errors, retry, and clients for Anthropic,
// Ollama and gollm-backed providers.
package llm

import (
	"log/slog"
	"time"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Roles used in Message.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message for the LLM.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool responses
}

// ToolCall represents a tool call from the model.
type ToolCall struct {
	ID       string       `json:"id,omitempty"` // Provider-assigned ID (required by Anthropic for tool_result correlation)
	Function ToolFunction `json:"function"`
}

// ToolFunction names the tool and carries its decoded arguments.
type ToolFunction struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// NewToolCall is shorthand for building a ToolCall.
func NewToolCall(id, name string, args map[string]any) ToolCall {
	return ToolCall{ID: id, Function: ToolFunction{Name: name, Arguments: args}}
}

// ChatResponse is the unified response from any LLM provider.
// Wire format conversion happens at provider boundaries.
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message
	Done      bool

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int

	// Timing (populated when available)
	TotalDuration time.Duration
	LoadDuration  time.Duration
	EvalDuration  time.Duration
}
