package agent

import (
	"testing"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/llm"
)

func TestPendingToolCalls(t *testing.T) {
	s := NewState("s")
	if s.PendingToolCalls() != nil {
		t.Error("empty state has pending calls")
	}

	s.Append(
		llm.Message{Role: llm.RoleUser, Content: "q"},
		llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			llm.NewToolCall("a", "x", nil),
			llm.NewToolCall("b", "y", nil),
		}},
		llm.Message{Role: llm.RoleTool, ToolCallID: "a", Content: "done"},
	)
	pending := s.PendingToolCalls()
	if len(pending) != 1 || pending[0].ID != "b" {
		t.Errorf("pending = %+v", pending)
	}

	s.Append(llm.Message{Role: llm.RoleTool, ToolCallID: "b", Content: "done"})
	if len(s.PendingToolCalls()) != 0 {
		t.Error("answered calls still pending")
	}
}

func TestBeginRunDefaultsCriteria(t *testing.T) {
	s := NewState("s")
	s.FeedbackOnWork = "old"
	s.SuccessCriteriaMet = true
	s.LastError = &LastError{Kind: ErrorCancelled}
	s.beginRun("r", "task", "   ", 7)

	if s.SuccessCriteria != DefaultSuccessCriteria {
		t.Errorf("criteria = %q", s.SuccessCriteria)
	}
	if s.FeedbackOnWork != "" || s.SuccessCriteriaMet || s.LastError != nil {
		t.Error("per-run fields not reset")
	}
	if s.Phase != PhasePlanning || s.MaxIterations != 7 || s.LastMessage().Content != "task" {
		t.Errorf("state = %+v", s)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := NewState("s")
	s.Append(llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{llm.NewToolCall("a", "x", map[string]any{
		"url":  "https://a.test",
		"opts": map[string]any{"wait": true},
		"tags": []any{"one"},
	})}})
	c := s.Clone()
	c.Messages[0].ToolCalls[0].ID = "changed"
	args := c.Messages[0].ToolCalls[0].Function.Arguments
	args["url"] = "https://b.test"
	args["opts"].(map[string]any)["wait"] = false
	args["tags"].([]any)[0] = "two"
	c.Append(llm.Message{Role: llm.RoleUser})

	orig := s.Messages[0].ToolCalls[0]
	if orig.ID != "a" || len(s.Messages) != 1 {
		t.Error("clone shares messages with original")
	}
	if orig.Function.Arguments["url"] != "https://a.test" {
		t.Error("clone shares the argument map")
	}
	if orig.Function.Arguments["opts"].(map[string]any)["wait"] != true {
		t.Error("clone shares nested argument maps")
	}
	if orig.Function.Arguments["tags"].([]any)[0] != "one" {
		t.Error("clone shares nested argument slices")
	}
}

func TestResumable(t *testing.T) {
	tests := []struct {
		name  string
		state *State
		want  bool
	}{
		{"nil", nil, false},
		{"planning", &State{Phase: PhasePlanning}, true},
		{"acting", &State{Phase: PhaseActing}, true},
		{"succeeded", &State{Phase: PhaseSucceeded}, false},
		{"needs user", &State{Phase: PhaseNeedsUser}, false},
		{"failed with phase", &State{Phase: PhaseFailed, FailedFrom: PhaseEvaluating}, true},
		{"failed without phase", &State{Phase: PhaseFailed}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.Resumable(); got != tt.want {
				t.Errorf("Resumable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBeginRunClosesPendingCalls(t *testing.T) {
	s := NewState("s")
	s.Append(
		llm.Message{Role: llm.RoleUser, Content: "q"},
		llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			llm.NewToolCall("a", "x", nil),
			llm.NewToolCall("b", "y", nil),
		}},
		llm.Message{Role: llm.RoleTool, ToolCallID: "a", Content: "done"},
	)
	s.Phase = PhaseFailed
	s.FailedFrom = PhaseActing
	s.beginRun("r2", "next", "", 5)

	if s.FailedFrom != "" {
		t.Errorf("failed from = %q, want cleared", s.FailedFrom)
	}
	if len(s.Messages) != 5 {
		t.Fatalf("messages = %+v", s.Messages)
	}
	if m := s.Messages[3]; m.Role != llm.RoleTool || m.ToolCallID != "b" || m.Content != InterruptedResult {
		t.Errorf("closing message = %+v", m)
	}
	if m := s.Messages[4]; m.Role != llm.RoleUser || m.Content != "next" {
		t.Errorf("task message = %+v", m)
	}
}
