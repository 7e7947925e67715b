package agent

import "time"

// UpdateKind identifies an Update.
type UpdateKind string

const (
	UpdateAssistant  UpdateKind = "assistant"
	UpdateToolCall   UpdateKind = "tool_call"
	UpdateToolResult UpdateKind = "tool_result"
	UpdateEvaluation UpdateKind = "evaluation"
	UpdatePhase      UpdateKind = "phase"
	UpdateFinal      UpdateKind = "final"
)

// Update is one progress report from a run. Fields are populated per
// Kind; the rest are zero.
type Update struct {
	Kind      UpdateKind `json:"kind"`
	SessionID string     `json:"session_id"`
	RunID     string     `json:"run_id"`
	Iteration int        `json:"iteration"`
	Timestamp time.Time  `json:"ts"`

	// UpdatePhase
	From Phase `json:"from,omitempty"`
	To   Phase `json:"to,omitempty"`

	// UpdateAssistant, UpdateToolResult
	Content string `json:"content,omitempty"`

	// UpdateToolCall, UpdateToolResult
	Tool       string         `json:"tool,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`

	// UpdateEvaluation
	Verdict *Verdict `json:"verdict,omitempty"`

	// UpdateFinal
	Outcome *Outcome `json:"outcome,omitempty"`
}

// Emitter receives updates. It must not block for long.
type Emitter func(Update)
