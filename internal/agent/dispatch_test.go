package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/llm"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/tools"
)

func TestDispatchOrderUnderReversedCompletion(t *testing.T) {
	reg := tools.NewEmptyRegistry()
	reg.Register(&tools.Tool{Name: "sleep", Handler: func(ctx context.Context, args map[string]any) (string, error) {
		ms := tools.IntArg(args, "ms", 0)
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return fmt.Sprintf("slept %d", ms), nil
	}})
	d := NewDispatcher(reg, time.Second, nil)

	calls := []llm.ToolCall{
		llm.NewToolCall("a", "sleep", map[string]any{"ms": 60}),
		llm.NewToolCall("b", "sleep", map[string]any{"ms": 30}),
		llm.NewToolCall("c", "sleep", map[string]any{"ms": 1}),
	}
	start := time.Now()
	results, err := d.Dispatch(context.Background(), calls)
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("calls did not run in parallel: %v", elapsed)
	}
	want := []struct{ id, content string }{{"a", "slept 60"}, {"b", "slept 30"}, {"c", "slept 1"}}
	for i, w := range want {
		if results[i].CallID != w.id || results[i].Content != w.content {
			t.Errorf("results[%d] = %+v, want %s/%s", i, results[i], w.id, w.content)
		}
	}
}

func TestDispatchErrors(t *testing.T) {
	reg := tools.NewEmptyRegistry()
	reg.Register(&tools.Tool{Name: "bad", Handler: func(context.Context, map[string]any) (string, error) {
		return "", errors.New("kaput")
	}})
	reg.Register(&tools.Tool{Name: "hang", Handler: func(ctx context.Context, _ map[string]any) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}})
	d := NewDispatcher(reg, 20*time.Millisecond, nil)

	results, err := d.Dispatch(context.Background(), []llm.ToolCall{
		llm.NewToolCall("1", "bad", nil),
		llm.NewToolCall("2", "missing", nil),
		llm.NewToolCall("3", "hang", nil),
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if results[0].Content != "Error: kaput" || results[0].Err == nil || results[0].Err.Tool != "bad" {
		t.Errorf("bad = %+v", results[0])
	}
	if !strings.HasPrefix(results[1].Content, "Error: ") || results[1].Err == nil {
		t.Errorf("missing = %+v", results[1])
	}
	if !strings.Contains(results[2].Content, "timed out") {
		t.Errorf("hang = %+v", results[2])
	}
	if m := results[0].Message(); m.Role != llm.RoleTool || m.ToolCallID != "1" {
		t.Errorf("message = %+v", m)
	}
}

func TestDispatchResourceError(t *testing.T) {
	reg := tools.NewEmptyRegistry()
	reg.Register(&tools.Tool{Name: "browse", Handler: func(context.Context, map[string]any) (string, error) {
		return "", &tools.ResourceError{Resource: "browser", Err: errors.New("no chrome")}
	}})
	d := NewDispatcher(reg, time.Second, nil)

	results, err := d.Dispatch(context.Background(), []llm.ToolCall{llm.NewToolCall("1", "browse", nil)})
	var rae *ResourceAcquisitionError
	if !errors.As(err, &rae) || rae.Resource != "browser" {
		t.Fatalf("err = %v, want ResourceAcquisitionError", err)
	}
	if len(results) != 1 || !strings.HasPrefix(results[0].Content, "Error: ") || !results[0].Unavailable {
		t.Errorf("results = %+v", results)
	}
}

func TestDispatchPassesSessionContext(t *testing.T) {
	reg := tools.NewEmptyRegistry()
	reg.Register(&tools.Tool{Name: "who", Handler: func(ctx context.Context, _ map[string]any) (string, error) {
		return tools.SessionIDFromContext(ctx) + "/" + tools.RunIDFromContext(ctx), nil
	}})
	d := NewDispatcher(reg, time.Second, nil)

	s := NewState("sess")
	s.RunID = "run"
	results, _ := d.Dispatch(withRunContext(context.Background(), s), []llm.ToolCall{llm.NewToolCall("1", "who", nil)})
	if results[0].Content != "sess/run" {
		t.Errorf("content = %q", results[0].Content)
	}
}
