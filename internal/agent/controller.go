package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/events"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/llm"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/tools"
)

// DefaultMaxIterations bounds a run when neither the request nor the
// config sets a ceiling.
const DefaultMaxIterations = 50

// Memory persists session state.
type Memory interface {
	// Load returns the stored state, or nil and no error when absent.
	Load(ctx context.Context, sessionID string) (*State, error)
	Save(ctx context.Context, sessionID string, s *State) error
	// Reset clears the state but keeps the session record.
	Reset(ctx context.Context, sessionID string) error
}

// RunRecorder stores completed run records.
type RunRecorder interface {
	RecordRun(ctx context.Context, rec RunRecord) error
}

// RunRecord summarizes one finished run.
type RunRecord struct {
	ID            string        `json:"id"`
	SessionID     string        `json:"session_id"`
	Task          string        `json:"task"`
	Status        Phase         `json:"status"`
	ExhaustReason string        `json:"exhaust_reason,omitempty"`
	ErrorKind     ErrorKind     `json:"error_kind,omitempty"`
	Iterations    int           `json:"iterations"`
	ToolsCalled   int           `json:"tools_called"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	FinalAnswer   string        `json:"final_answer,omitempty"`
}

// Request starts or resumes a run. An empty Task resumes the session's
// interrupted run.
type Request struct {
	Task            string `json:"task"`
	SuccessCriteria string `json:"success_criteria,omitempty"`
	SessionID       string `json:"session_id"`
	MaxIterations   int    `json:"max_iterations,omitempty"`
}

// Outcome is the result of a run.
type Outcome struct {
	RunID         string    `json:"run_id"`
	SessionID     string    `json:"session_id"`
	Status        Phase     `json:"status"`
	FinalMessage  string    `json:"final_message"`
	Iterations    int       `json:"iterations"`
	ExhaustReason string    `json:"exhaust_reason,omitempty"`
	ErrorKind     ErrorKind `json:"error_kind,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// ControllerConfig wires a Controller.
type ControllerConfig struct {
	Worker     *Worker
	Evaluator  *Evaluator
	Dispatcher *Dispatcher
	Memory     Memory
	Runs       RunRecorder // optional
	Bus        *events.Bus // optional
	Logger     *slog.Logger

	MaxIterations    int
	IterationTimeout time.Duration
}

// Controller drives the worker/evaluator state machine for one run at a
// time per session. It is safe for concurrent use across sessions.
type Controller struct {
	worker           *Worker
	evaluator        *Evaluator
	dispatcher       *Dispatcher
	memory           Memory
	runs             RunRecorder
	bus              *events.Bus
	logger           *slog.Logger
	maxIterations    int
	iterationTimeout time.Duration
}

// NewController creates a controller.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	return &Controller{
		worker:           cfg.Worker,
		evaluator:        cfg.Evaluator,
		dispatcher:       cfg.Dispatcher,
		memory:           cfg.Memory,
		runs:             cfg.Runs,
		bus:              cfg.Bus,
		logger:           cfg.Logger.With("component", "agent"),
		maxIterations:    cfg.MaxIterations,
		iterationTimeout: cfg.IterationTimeout,
	}
}

// run carries the mutable bookkeeping of one Run call.
type run struct {
	state     *State
	emit      Emitter
	started   time.Time
	iterStart time.Time
	iterCtx   context.Context
	iterDone  context.CancelFunc
	answer    string
	toolCalls int
}

// Run executes a run to a terminal phase. Cancelling ctx is the
// cancellation flag: it is observed at the top of PLANNING, and an
// in-flight tool batch finishes first. The returned error is non-nil
// only when the run could not start; every other failure is reported in
// the Outcome with status FAILED. A FAILED run keeps its state, and a
// request without a task restarts it from the phase that failed under
// the same run id.
func (c *Controller) Run(ctx context.Context, req Request, emit Emitter) (*Outcome, error) {
	if emit == nil {
		emit = func(Update) {}
	}
	// Persistence and bookkeeping outlive cancellation.
	bg := context.WithoutCancel(ctx)

	state, err := c.memory.Load(bg, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", req.SessionID, err)
	}

	r := &run{emit: emit, started: time.Now()}
	switch {
	case req.Task != "":
		if state == nil {
			state = NewState(req.SessionID)
		}
		runID, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate run id: %w", err)
		}
		maxIter := req.MaxIterations
		if maxIter <= 0 {
			maxIter = c.maxIterations
		}
		if closed := state.closePending(); len(closed) > 0 {
			c.logger.Warn("closed tool calls left by interrupted run",
				"session", state.SessionID, "run", state.RunID, "calls", len(closed))
		}
		state.beginRun(runID.String(), req.Task, req.SuccessCriteria, maxIter)
	case !state.Resumable():
		return nil, ErrNothingToResume
	default:
		if state.Phase == PhaseFailed {
			c.logger.Info("retrying failed run",
				"session", state.SessionID, "run", state.RunID,
				"from", state.FailedFrom, "last_error", state.LastError)
			state.restartFailed()
		}
		if req.MaxIterations > 0 {
			state.MaxIterations = req.MaxIterations
		}
		if state.MaxIterations <= 0 {
			state.MaxIterations = c.maxIterations
		}
		c.logger.Info("resuming run", "session", state.SessionID, "run", state.RunID, "phase", state.Phase, "iter", state.Iteration)
	}
	r.state = state

	c.bus.Emit(events.SourceAgent, events.KindRunStart, map[string]any{
		"session_id":     state.SessionID,
		"run_id":         state.RunID,
		"task_len":       len(state.Task),
		"max_iterations": state.MaxIterations,
	})
	c.logger.Info("run started",
		"session", state.SessionID,
		"run", state.RunID,
		"phase", state.Phase,
		"max_iterations", state.MaxIterations,
	)

	if err := c.save(bg, r); err != nil {
		c.fail(bg, r, ErrorPersistence, err)
	}

	for !r.state.Phase.Terminal() {
		c.step(ctx, bg, r)
	}
	if r.iterDone != nil {
		r.iterDone()
	}

	return c.finish(bg, r), nil
}

// step performs the work of the current phase and transitions once.
func (c *Controller) step(ctx, bg context.Context, r *run) {
	s := r.state
	switch s.Phase {
	case PhasePlanning:
		if ctx.Err() != nil {
			c.fail(bg, r, ErrorCancelled, context.Cause(ctx))
			return
		}
		if s.Iteration >= s.MaxIterations {
			s.ExhaustReason = ExhaustMaxIterations
			c.transition(bg, r, EventCeiling)
			return
		}
		c.beginIteration(ctx, r)

		out, err := c.worker.Act(r.iterCtx, s)
		if err != nil {
			c.modelFailure(ctx, bg, r, err)
			return
		}
		if len(out.ToolCalls) > 0 {
			r.emit(c.update(r, Update{Kind: UpdateAssistant, Content: s.LastMessage().Content}))
			c.transition(bg, r, EventToolCalls)
			return
		}
		r.answer = out.FinalAnswer
		r.emit(c.update(r, Update{Kind: UpdateAssistant, Content: out.FinalAnswer}))
		c.transition(bg, r, EventAnswer)

	case PhaseActing:
		if r.iterStart.IsZero() {
			c.beginIteration(ctx, r)
		}
		calls := s.PendingToolCalls()
		for _, tc := range calls {
			r.emit(c.update(r, Update{Kind: UpdateToolCall, Tool: tc.Function.Name, ToolCallID: tc.ID, Args: tc.Function.Arguments}))
			c.bus.Emit(events.SourceAgent, events.KindToolCall, map[string]any{
				"session_id": s.SessionID,
				"run_id":     s.RunID,
				"tool":       tc.Function.Name,
			})
		}

		// The batch runs to completion even if the run is cancelled.
		results, err := c.dispatcher.Dispatch(withRunContext(bg, s), calls)
		r.toolCalls += len(results)
		for _, res := range results {
			// A call whose resource was unavailable stays pending so a
			// resume retries it.
			if !res.Unavailable {
				s.Append(res.Message())
			}
			r.emit(c.update(r, Update{
				Kind:       UpdateToolResult,
				Tool:       res.Tool,
				ToolCallID: res.CallID,
				Content:    res.Content,
				IsError:    res.Err != nil,
			}))
			c.bus.Emit(events.SourceAgent, events.KindToolResult, map[string]any{
				"session_id":  s.SessionID,
				"run_id":      s.RunID,
				"tool":        res.Tool,
				"ok":          res.Err == nil,
				"duration_ms": res.Duration.Milliseconds(),
			})
		}
		if err != nil {
			c.fail(bg, r, ErrorResourceAcquisition, err)
			return
		}
		if c.iterationExpired(r) {
			s.ExhaustReason = ExhaustIterationTimeout
			c.transition(bg, r, EventCeiling)
			return
		}
		c.transition(bg, r, EventToolsDone)

	case PhaseEvaluating:
		if r.iterStart.IsZero() {
			c.beginIteration(ctx, r)
		}
		answer := r.answer
		if answer == "" {
			if last := s.LastAssistant(); last != nil {
				answer = last.Content
			}
		}

		v, err := c.evaluator.Judge(r.iterCtx, s, answer)
		if err != nil {
			c.modelFailure(ctx, bg, r, err)
			return
		}
		s.FeedbackOnWork = v.Feedback
		s.SuccessCriteriaMet = v.SuccessCriteriaMet
		s.UserInputNeeded = v.UserInputNeeded

		r.emit(c.update(r, Update{Kind: UpdateEvaluation, Verdict: &v}))
		c.bus.Emit(events.SourceAgent, events.KindEvaluation, map[string]any{
			"session_id": s.SessionID,
			"run_id":     s.RunID,
			"iter":       s.Iteration,
			"met":        v.SuccessCriteriaMet,
			"needs_user": v.UserInputNeeded,
		})

		ev := VerdictEvent(v.SuccessCriteriaMet, v.UserInputNeeded)
		if ev == EventRejected {
			s.Append(llm.Message{Role: llm.RoleUser, Content: FeedbackPrefix + " " + v.Feedback})
			if s.Iteration >= s.MaxIterations {
				s.ExhaustReason = ExhaustMaxIterations
				ev = EventCeiling
			}
		}
		c.transition(bg, r, ev)

	case PhaseContinue:
		c.transition(bg, r, EventNext)

	default:
		c.fail(bg, r, ErrorModel, fmt.Errorf("unknown phase %q", s.Phase))
	}
}

func (c *Controller) beginIteration(ctx context.Context, r *run) {
	if r.iterDone != nil {
		r.iterDone()
	}
	if r.state.Phase == PhasePlanning {
		r.state.Iteration++
	}
	r.iterStart = time.Now()
	r.answer = ""
	if c.iterationTimeout > 0 {
		r.iterCtx, r.iterDone = context.WithTimeout(ctx, c.iterationTimeout)
	} else {
		r.iterCtx, r.iterDone = context.WithCancel(ctx)
	}
}

func (c *Controller) iterationExpired(r *run) bool {
	return c.iterationTimeout > 0 && time.Since(r.iterStart) > c.iterationTimeout
}

// modelFailure classifies a worker or evaluator error: cancellation,
// the iteration budget running out, or a genuine model failure.
func (c *Controller) modelFailure(ctx, bg context.Context, r *run, err error) {
	switch {
	case ctx.Err() != nil:
		c.fail(bg, r, ErrorCancelled, err)
	case r.iterCtx != nil && errors.Is(r.iterCtx.Err(), context.DeadlineExceeded):
		r.state.ExhaustReason = ExhaustIterationTimeout
		c.transition(bg, r, EventCeiling)
	default:
		c.fail(bg, r, kindOf(err), err)
	}
}

// transition applies e, persists the state and reports the change.
func (c *Controller) transition(bg context.Context, r *run, e Event) {
	s := r.state
	from := s.Phase
	s.Phase = Next(from, e)

	c.logger.Debug("phase transition", "session", s.SessionID, "iter", s.Iteration, "from", from, "to", s.Phase, "event", e)
	r.emit(c.update(r, Update{Kind: UpdatePhase, From: from, To: s.Phase}))
	c.bus.Emit(events.SourceAgent, events.KindPhase, map[string]any{
		"session_id": s.SessionID,
		"run_id":     s.RunID,
		"iter":       s.Iteration,
		"from":       string(from),
		"to":         string(s.Phase),
	})

	if err := c.save(bg, r); err != nil && s.Phase != PhaseFailed {
		c.fail(bg, r, ErrorPersistence, err)
	}
}

// fail moves the run to FAILED with kind.
func (c *Controller) fail(bg context.Context, r *run, kind ErrorKind, err error) {
	s := r.state
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.LastError = &LastError{Kind: kind, Message: msg}
	if !s.Phase.Terminal() {
		s.FailedFrom = s.Phase
	}
	c.logger.Error("run failed", "session", s.SessionID, "run", s.RunID, "iter", s.Iteration, "kind", kind, "error", err)
	c.transition(bg, r, EventFatal)
}

func (c *Controller) save(ctx context.Context, r *run) error {
	r.state.UpdatedAt = time.Now().UTC()
	if err := c.memory.Save(ctx, r.state.SessionID, r.state); err != nil {
		c.logger.Error("state save failed", "session", r.state.SessionID, "error", err)
		return err
	}
	return nil
}

func (c *Controller) finish(bg context.Context, r *run) *Outcome {
	s := r.state
	out := &Outcome{
		RunID:         s.RunID,
		SessionID:     s.SessionID,
		Status:        s.Phase,
		Iterations:    s.Iteration,
		ExhaustReason: s.ExhaustReason,
	}
	if last := s.LastAssistant(); last != nil {
		out.FinalMessage = last.Content
	}
	if s.LastError != nil {
		out.ErrorKind = s.LastError.Kind
		out.Error = s.LastError.Message
	}

	elapsed := time.Since(r.started)
	c.logger.Info("run complete",
		"session", s.SessionID,
		"run", s.RunID,
		"status", out.Status,
		"iterations", out.Iterations,
		"tools", r.toolCalls,
		"elapsed", elapsed.Round(time.Millisecond),
	)
	c.bus.Emit(events.SourceAgent, events.KindRunComplete, map[string]any{
		"session_id": s.SessionID,
		"run_id":     s.RunID,
		"status":     string(out.Status),
		"iterations": out.Iterations,
		"error_kind": string(out.ErrorKind),
		"elapsed_ms": elapsed.Milliseconds(),
	})

	if c.runs != nil {
		rec := RunRecord{
			ID:            s.RunID,
			SessionID:     s.SessionID,
			Task:          s.Task,
			Status:        out.Status,
			ExhaustReason: out.ExhaustReason,
			ErrorKind:     out.ErrorKind,
			Iterations:    out.Iterations,
			ToolsCalled:   r.toolCalls,
			StartedAt:     r.started.UTC(),
			Duration:      elapsed,
			FinalAnswer:   out.FinalMessage,
		}
		if err := c.runs.RecordRun(bg, rec); err != nil {
			c.logger.Warn("run record failed", "run", s.RunID, "error", err)
		}
	}

	r.emit(c.update(r, Update{Kind: UpdateFinal, Outcome: out}))
	return out
}

func (c *Controller) update(r *run, u Update) Update {
	u.SessionID = r.state.SessionID
	u.RunID = r.state.RunID
	u.Iteration = r.state.Iteration
	u.Timestamp = time.Now()
	return u
}

// withRunContext tags ctx with the session and run that tools serve.
func withRunContext(ctx context.Context, s *State) context.Context {
	return tools.WithRunScope(ctx, tools.RunScope{SessionID: s.SessionID, RunID: s.RunID})
}
