package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/llm"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/tools"
)

// step is one scripted model reply.
type step func(ctx context.Context, msgs []llm.Message) (*llm.ChatResponse, error)

func reply(text string) step {
	return func(context.Context, []llm.Message) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, Content: text}}, nil
	}
}

func callTools(calls ...llm.ToolCall) step {
	return func(context.Context, []llm.Message) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{Message: llm.Message{Role: llm.RoleAssistant, ToolCalls: calls}}, nil
	}
}

func verdict(met, needsUser bool, feedback string) step {
	return reply(fmt.Sprintf(`{"feedback": %q, "success_criteria_met": %t, "user_input_needed": %t}`, feedback, met, needsUser))
}

func fail(err error) step {
	return func(context.Context, []llm.Message) (*llm.ChatResponse, error) { return nil, err }
}

// blockUntilDone waits for ctx to end and returns its error.
func blockUntilDone() step {
	return func(ctx context.Context, _ []llm.Message) (*llm.ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// scriptedClient replays worker and evaluator steps by model name. The
// last step of each script repeats once the script runs out.
type scriptedClient struct {
	mu         sync.Mutex
	worker     []step
	evaluator  []step
	workerMsgs [][]llm.Message
	evalMsgs   [][]llm.Message
}

func (c *scriptedClient) Chat(ctx context.Context, model string, msgs []llm.Message, _ []map[string]any) (*llm.ChatResponse, error) {
	c.mu.Lock()
	var script *[]step
	if model == "evaluator" {
		script = &c.evaluator
		c.evalMsgs = append(c.evalMsgs, msgs)
	} else {
		script = &c.worker
		c.workerMsgs = append(c.workerMsgs, msgs)
	}
	if len(*script) == 0 {
		c.mu.Unlock()
		return nil, errors.New("script exhausted")
	}
	next := (*script)[0]
	if len(*script) > 1 {
		*script = (*script)[1:]
	}
	c.mu.Unlock()
	return next(ctx, msgs)
}

func (c *scriptedClient) Ping(context.Context) error { return nil }

// memStore is an in-memory Memory that keeps every saved snapshot.
type memStore struct {
	mu        sync.Mutex
	states    map[string]*State
	snapshots []*State
	saveErr   error
	runs      []RunRecord
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]*State)}
}

func (m *memStore) Load(_ context.Context, id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[id]; ok {
		return s.Clone(), nil
	}
	return nil, nil
}

func (m *memStore) Save(_ context.Context, id string, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.states[id] = s.Clone()
	m.snapshots = append(m.snapshots, s.Clone())
	return nil
}

func (m *memStore) Reset(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	return nil
}

func (m *memStore) RecordRun(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, rec)
	return nil
}

func (m *memStore) get(id string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[id]
}

type testHarness struct {
	client *scriptedClient
	reg    *tools.Registry
	mem    *memStore
	ctrl   *Controller
}

func newHarness(t *testing.T, client *scriptedClient, iterTimeout time.Duration) *testHarness {
	t.Helper()
	reg := tools.NewEmptyRegistry()
	mem := newMemStore()
	w := NewWorker(client, "worker", reg, nil, nil)
	w.now = func() time.Time { return time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC) }
	ctrl := NewController(ControllerConfig{
		Worker:           w,
		Evaluator:        NewEvaluator(client, "evaluator", nil),
		Dispatcher:       NewDispatcher(reg, time.Second, nil),
		Memory:           mem,
		Runs:             mem,
		MaxIterations:    10,
		IterationTimeout: iterTimeout,
	})
	return &testHarness{client: client, reg: reg, mem: mem, ctrl: ctrl}
}

func (h *testHarness) addTool(name string, fn func(ctx context.Context, args map[string]any) (string, error)) {
	h.reg.Register(&tools.Tool{Name: name, Description: name, Handler: fn})
}

// collect returns an emitter and a getter for everything it received.
func collect() (Emitter, func() []Update) {
	var mu sync.Mutex
	var got []Update
	return func(u Update) {
			mu.Lock()
			got = append(got, u)
			mu.Unlock()
		}, func() []Update {
			mu.Lock()
			defer mu.Unlock()
			return append([]Update(nil), got...)
		}
}
