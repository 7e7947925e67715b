package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/llm"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/tools"
)

// ToolExecutor runs a named tool with JSON arguments.
type ToolExecutor interface {
	Execute(ctx context.Context, name, argsJSON string) (string, error)
}

// ToolResult is the outcome of one tool call.
type ToolResult struct {
	CallID   string
	Tool     string
	Content  string
	Err      *ToolExecutionError
	Duration time.Duration
	// Unavailable is set when the tool's shared resource could not be
	// acquired. The call did not run and can be retried.
	Unavailable bool
}

// Message converts r to a tool-role message.
func (r ToolResult) Message() llm.Message {
	return llm.Message{Role: llm.RoleTool, Content: r.Content, ToolCallID: r.CallID}
}

// Dispatcher runs tool batches.
type Dispatcher struct {
	exec    ToolExecutor
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher with a per-call timeout.
func NewDispatcher(exec ToolExecutor, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{exec: exec, timeout: timeout, logger: logger.With("component", "dispatch")}
}

// Dispatch runs calls concurrently and returns one result per call in
// request order. Failures become results the model can read. The only
// error returned is *ResourceAcquisitionError, alongside the full
// result slice.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []llm.ToolCall) ([]ToolResult, error) {
	results := make([]ToolResult, len(calls))
	resErrs := make([]error, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()
			results[i], resErrs[i] = d.run(ctx, call)
		}(i, call)
	}
	wg.Wait()

	for _, err := range resErrs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (d *Dispatcher) run(ctx context.Context, call llm.ToolCall) (ToolResult, error) {
	name := call.Function.Name
	res := ToolResult{CallID: call.ID, Tool: name}

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	argsJSON, err := json.Marshal(call.Function.Arguments)
	if err != nil {
		res.Err = &ToolExecutionError{Tool: name, Message: "invalid arguments: " + err.Error()}
		res.Content = "Error: " + res.Err.Message
		return res, nil
	}

	d.logger.Debug("tool exec", "tool", name, "args", string(argsJSON))

	start := time.Now()
	out, err := d.exec.Execute(callCtx, name, string(argsJSON))
	res.Duration = time.Since(start)

	if err == nil {
		res.Content = out
		d.logger.Info("tool done", "tool", name, "elapsed", res.Duration.Round(time.Millisecond), "len", len(out))
		return res, nil
	}

	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) && callCtx.Err() != nil {
		msg = "tool timed out after " + d.timeout.String()
	}
	res.Err = &ToolExecutionError{Tool: name, Message: msg}
	res.Content = "Error: " + msg

	var re *tools.ResourceError
	if errors.As(err, &re) {
		res.Unavailable = true
		d.logger.Error("tool resource unavailable", "tool", name, "resource", re.Resource, "error", re.Err)
		return res, &ResourceAcquisitionError{Resource: re.Resource, Err: re.Err}
	}

	d.logger.Warn("tool failed", "tool", name, "error", err)
	return res, nil
}
