package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/llm"
)

// ToolLister supplies tool definitions in OpenAI function format.
type ToolLister interface {
	List() []map[string]any
}

// WorkerOutput is either a batch of tool calls or a final answer.
type WorkerOutput struct {
	ToolCalls   []llm.ToolCall
	FinalAnswer string
}

// Worker is the planning/acting model.
type Worker struct {
	client  llm.Client
	model   string
	tools   ToolLister
	context ContextProvider
	logger  *slog.Logger
	now     func() time.Time
}

// NewWorker creates a worker. extra may be nil.
func NewWorker(client llm.Client, model string, tools ToolLister, extra ContextProvider, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		client:  client,
		model:   model,
		tools:   tools,
		context: extra,
		logger:  logger.With("component", "worker"),
		now:     time.Now,
	}
}

// Act runs one worker turn and appends the model's reply to s.Messages.
func (w *Worker) Act(ctx context.Context, s *State) (WorkerOutput, error) {
	if last := s.LastMessage(); last != nil && last.Role == llm.RoleAssistant {
		return WorkerOutput{}, ErrUnconsumedOutput
	}

	var extra string
	if w.context != nil {
		extra, _ = w.context.GetContext(ctx, s)
	}
	system := workerSystemPrompt(s, w.now(), extra)

	msgs := make([]llm.Message, 0, len(s.Messages)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	msgs = append(msgs, s.Messages...)

	var toolDefs []map[string]any
	if w.tools != nil {
		toolDefs = w.tools.List()
	}

	w.logger.Info("worker llm call",
		"session", s.SessionID,
		"run", s.RunID,
		"iter", s.Iteration,
		"model", w.model,
		"msgs", len(msgs),
		"tools", len(toolDefs),
	)
	w.logger.Log(ctx, llm.LevelTrace, "worker system prompt", "prompt", system)

	start := time.Now()
	resp, err := w.client.Chat(ctx, w.model, msgs, toolDefs)
	if err != nil {
		return WorkerOutput{}, modelCallError(err)
	}

	reply := resp.Message
	reply.Role = llm.RoleAssistant

	if len(reply.ToolCalls) == 0 && strings.TrimSpace(reply.Content) == "" {
		return WorkerOutput{}, &ModelCallError{
			Kind: llm.ErrorKindInvalidOutput,
			Err:  fmt.Errorf("worker returned neither text nor tool calls"),
		}
	}

	for i := range reply.ToolCalls {
		if reply.ToolCalls[i].ID == "" {
			reply.ToolCalls[i].ID = fmt.Sprintf("call_%d_%d", s.Iteration, i)
		}
		if reply.ToolCalls[i].Function.Arguments == nil {
			reply.ToolCalls[i].Function.Arguments = map[string]any{}
		}
	}
	s.Append(reply)

	w.logger.Info("worker llm response",
		"session", s.SessionID,
		"iter", s.Iteration,
		"tool_calls", len(reply.ToolCalls),
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	if len(reply.ToolCalls) > 0 {
		return WorkerOutput{ToolCalls: reply.ToolCalls}, nil
	}
	return WorkerOutput{FinalAnswer: reply.Content}, nil
}
