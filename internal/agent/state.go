// Package agent runs the worker/evaluator loop: a worker model plans and
// calls tools until it produces an answer, an evaluator model judges the
// answer against the success criteria, and a small state machine decides
// whether to stop, ask the user, or go around again. State is persisted
// through a Memory after every transition so runs can be resumed.
package agent

import (
	"strings"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/llm"
)

// DefaultSuccessCriteria applies when a run is started without criteria.
const DefaultSuccessCriteria = "The answer should be clear and accurate"

// FeedbackPrefix starts the user-role message that carries evaluator
// feedback into the next worker turn.
const FeedbackPrefix = "Evaluator feedback on your last answer:"

// Exhaust reasons.
const (
	ExhaustMaxIterations    = "max_iterations"
	ExhaustIterationTimeout = "iteration_timeout"
)

// InterruptedResult is the tool result recorded for a call that never
// ran because its run ended first.
const InterruptedResult = "Error: interrupted"

// LastError records why a run ended FAILED.
type LastError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// State is the checkpointed conversation of one session.
type State struct {
	SessionID string `json:"session_id"`
	RunID     string `json:"run_id,omitempty"`
	Task      string `json:"task,omitempty"`
	Phase     Phase  `json:"phase"`
	Iteration int    `json:"iteration"`
	// MaxIterations is the ceiling of the current run, kept so a resumed
	// run honours the limit it was started with.
	MaxIterations int `json:"max_iterations,omitempty"`

	// Messages is append-only within a run. System prompts are never
	// stored; the worker rebuilds its prompt every turn.
	Messages []llm.Message `json:"messages"`

	SuccessCriteria    string `json:"success_criteria"`
	FeedbackOnWork     string `json:"feedback_on_work,omitempty"`
	SuccessCriteriaMet bool   `json:"success_criteria_met"`
	UserInputNeeded    bool   `json:"user_input_needed"`

	ExhaustReason string     `json:"exhaust_reason,omitempty"`
	LastError     *LastError `json:"last_error,omitempty"`
	// FailedFrom is the phase a FAILED run was in when it failed. A
	// resume restarts there.
	FailedFrom Phase `json:"failed_from,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewState returns an empty state for sessionID.
func NewState(sessionID string) *State {
	return &State{SessionID: sessionID, Phase: PhasePlanning}
}

// Append adds messages to the conversation.
func (s *State) Append(msgs ...llm.Message) {
	s.Messages = append(s.Messages, msgs...)
}

// LastMessage returns the newest message, or nil.
func (s *State) LastMessage() *llm.Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// LastAssistant returns the newest assistant message, or nil.
func (s *State) LastAssistant() *llm.Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == llm.RoleAssistant {
			return &s.Messages[i]
		}
	}
	return nil
}

// PendingToolCalls returns the tool calls of the newest assistant message
// that have no tool result after it, in request order.
func (s *State) PendingToolCalls() []llm.ToolCall {
	idx := -1
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == llm.RoleAssistant {
			idx = i
			break
		}
	}
	if idx < 0 || len(s.Messages[idx].ToolCalls) == 0 {
		return nil
	}

	answered := make(map[string]bool)
	for _, m := range s.Messages[idx+1:] {
		if m.Role == llm.RoleTool {
			answered[m.ToolCallID] = true
		}
	}
	var pending []llm.ToolCall
	for _, tc := range s.Messages[idx].ToolCalls {
		if !answered[tc.ID] {
			pending = append(pending, tc)
		}
	}
	return pending
}

// Resumable reports whether a run can continue without a new task: it
// was interrupted before reaching a terminal phase, or it FAILED and
// recorded where.
func (s *State) Resumable() bool {
	if s == nil {
		return false
	}
	if s.Phase == PhaseFailed {
		return s.FailedFrom != "" && !s.FailedFrom.Terminal()
	}
	return !s.Phase.Terminal()
}

// restartFailed moves a FAILED run back to the phase it failed in and
// clears the failure.
func (s *State) restartFailed() {
	if s.Phase != PhaseFailed {
		return
	}
	s.Phase = s.FailedFrom
	s.FailedFrom = ""
	s.LastError = nil
}

// closePending records InterruptedResult for every tool call of the
// newest assistant message that has no result, so the conversation
// stays valid for providers that require a result per call.
func (s *State) closePending() []llm.ToolCall {
	pending := s.PendingToolCalls()
	for _, tc := range pending {
		s.Append(llm.Message{Role: llm.RoleTool, Content: InterruptedResult, ToolCallID: tc.ID})
	}
	return pending
}

// beginRun resets the per-run fields and appends the task as a user
// message. Earlier messages stay as conversation history; tool calls
// left unanswered by an interrupted run are closed first.
func (s *State) beginRun(runID, task, criteria string, maxIterations int) {
	if strings.TrimSpace(criteria) == "" {
		criteria = DefaultSuccessCriteria
	}
	s.closePending()
	s.RunID = runID
	s.Task = task
	s.Phase = PhasePlanning
	s.Iteration = 0
	s.MaxIterations = maxIterations
	s.SuccessCriteria = criteria
	s.FeedbackOnWork = ""
	s.SuccessCriteriaMet = false
	s.UserInputNeeded = false
	s.ExhaustReason = ""
	s.LastError = nil
	s.FailedFrom = ""
	s.Append(llm.Message{Role: llm.RoleUser, Content: task})
}

// Clone returns a deep copy safe to hand to other goroutines. Tool call
// arguments are copied down through nested maps and slices.
func (s *State) Clone() *State {
	c := *s
	c.Messages = make([]llm.Message, len(s.Messages))
	for i, m := range s.Messages {
		if len(m.ToolCalls) > 0 {
			calls := make([]llm.ToolCall, len(m.ToolCalls))
			for j, tc := range m.ToolCalls {
				if tc.Function.Arguments != nil {
					tc.Function.Arguments = cloneValue(tc.Function.Arguments).(map[string]any)
				}
				calls[j] = tc
			}
			m.ToolCalls = calls
		}
		c.Messages[i] = m
	}
	if s.LastError != nil {
		le := *s.LastError
		c.LastError = &le
	}
	return &c
}

// cloneValue copies the maps and slices of a decoded JSON value.
func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
