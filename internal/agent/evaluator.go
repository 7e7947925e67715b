package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/llm"
)

// Verdict is the evaluator's judgement of an answer.
type Verdict struct {
	Feedback           string `json:"feedback"`
	SuccessCriteriaMet bool   `json:"success_criteria_met"`
	UserInputNeeded    bool   `json:"user_input_needed"`
}

// Evaluator judges worker answers against the success criteria.
type Evaluator struct {
	client llm.Client
	model  string
	logger *slog.Logger
}

// NewEvaluator creates an evaluator.
func NewEvaluator(client llm.Client, model string, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{client: client, model: model, logger: logger.With("component", "evaluator")}
}

// Judge asks the evaluator model for a verdict on lastResponse.
func (e *Evaluator) Judge(ctx context.Context, s *State, lastResponse string) (Verdict, error) {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: evaluatorSystemPrompt(s.Iteration)},
		{Role: llm.RoleUser, Content: evaluatorUserPrompt(s, lastResponse)},
	}

	e.logger.Info("evaluator llm call",
		"session", s.SessionID,
		"run", s.RunID,
		"iter", s.Iteration,
		"model", e.model,
	)

	start := time.Now()
	resp, err := e.client.Chat(ctx, e.model, msgs, nil)
	if err != nil {
		return Verdict{}, modelCallError(err)
	}

	v, err := parseVerdict(resp.Message.Content)
	if err != nil {
		e.logger.Warn("evaluator output unparseable", "session", s.SessionID, "error", err)
		return Verdict{}, &ModelCallError{Kind: llm.ErrorKindInvalidOutput, Err: err}
	}

	e.logger.Info("evaluator verdict",
		"session", s.SessionID,
		"iter", s.Iteration,
		"met", v.SuccessCriteriaMet,
		"needs_user", v.UserInputNeeded,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return v, nil
}

// parseVerdict extracts the JSON verdict from model output, tolerating
// code fences and prose around the object.
func parseVerdict(text string) (Verdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Verdict{}, fmt.Errorf("no JSON object in evaluator output")
	}

	var raw struct {
		Feedback           *string `json:"feedback"`
		SuccessCriteriaMet *bool   `json:"success_criteria_met"`
		UserInputNeeded    *bool   `json:"user_input_needed"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return Verdict{}, fmt.Errorf("decode evaluator output: %w", err)
	}
	if raw.SuccessCriteriaMet == nil {
		return Verdict{}, fmt.Errorf("evaluator output missing success_criteria_met")
	}

	v := Verdict{SuccessCriteriaMet: *raw.SuccessCriteriaMet}
	if raw.Feedback != nil {
		v.Feedback = strings.TrimSpace(*raw.Feedback)
	}
	if raw.UserInputNeeded != nil {
		v.UserInputNeeded = *raw.UserInputNeeded
	}
	return v, nil
}
