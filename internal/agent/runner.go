package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/events"
)

// ResourceReleaser frees shared resources such as the browser.
type ResourceReleaser interface {
	ReleaseAll(ctx context.Context)
}

// updateBuffer sizes each run's update channel.
const updateBuffer = 64

type activeRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Runner is the caller-facing API. It runs at most one run per session
// and streams each run's updates on a channel.
type Runner struct {
	ctrl      *Controller
	memory    Memory
	resources ResourceReleaser
	bus       *events.Bus
	logger    *slog.Logger

	base       context.Context
	cancelBase context.CancelFunc

	mu     sync.Mutex
	active map[string]*activeRun
	closed bool
	wg     sync.WaitGroup
}

// NewRunner creates a runner. resources and bus may be nil.
func NewRunner(ctrl *Controller, memory Memory, resources ResourceReleaser, bus *events.Bus, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		ctrl:       ctrl,
		memory:     memory,
		resources:  resources,
		bus:        bus,
		logger:     logger.With("component", "runner"),
		base:       base,
		cancelBase: cancel,
		active:     make(map[string]*activeRun),
	}
}

// StartOrResume starts a run for task, or resumes the session's
// interrupted or failed run when task is empty. The returned channel
// carries the run's updates and is closed after the final one. If ctx
// ends, the run keeps going but further updates are dropped.
func (r *Runner) StartOrResume(ctx context.Context, sessionID, task, criteria string) (<-chan Update, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	if task == "" {
		s, err := r.memory.Load(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("load session %s: %w", sessionID, err)
		}
		if !s.Resumable() {
			return nil, ErrNothingToResume
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if _, busy := r.active[sessionID]; busy {
		r.mu.Unlock()
		return nil, ErrSessionBusy
	}
	runCtx, cancel := context.WithCancel(r.base)
	ar := &activeRun{cancel: cancel, done: make(chan struct{})}
	r.active[sessionID] = ar
	r.wg.Add(1)
	r.mu.Unlock()

	updates := make(chan Update, updateBuffer)
	emit := func(u Update) {
		select {
		case updates <- u:
		case <-ctx.Done():
		}
	}

	go func() {
		defer r.wg.Done()
		defer close(updates)
		defer func() {
			r.mu.Lock()
			delete(r.active, sessionID)
			r.mu.Unlock()
			cancel()
			close(ar.done)
		}()

		req := Request{Task: task, SuccessCriteria: criteria, SessionID: sessionID}
		if _, err := r.ctrl.Run(runCtx, req, emit); err != nil {
			r.logger.Error("run did not start", "session", sessionID, "error", err)
			emit(Update{
				Kind:      UpdateFinal,
				SessionID: sessionID,
				Outcome:   &Outcome{SessionID: sessionID, Status: PhaseFailed, ErrorKind: ErrorPersistence, Error: err.Error()},
			})
		}
	}()

	return updates, nil
}

// Run starts or resumes a run and blocks until it ends, returning the
// final outcome.
func (r *Runner) Run(ctx context.Context, sessionID, task, criteria string) (*Outcome, error) {
	ch, err := r.StartOrResume(ctx, sessionID, task, criteria)
	if err != nil {
		return nil, err
	}
	var out *Outcome
	for u := range ch {
		if u.Kind == UpdateFinal {
			out = u.Outcome
		}
	}
	if out == nil {
		return nil, errors.New("run ended without an outcome")
	}
	return out, nil
}

// Cancel requests cancellation of the session's active run. It reports
// whether a run was active.
func (r *Runner) Cancel(sessionID string) bool {
	r.mu.Lock()
	ar, ok := r.active[sessionID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	r.logger.Info("cancelling run", "session", sessionID)
	ar.cancel()
	return true
}

// Active reports whether sessionID has a run in progress.
func (r *Runner) Active(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[sessionID]
	return ok
}

// Reset cancels any active run, waits for it to stop, clears the
// session's memory and releases shared resources.
func (r *Runner) Reset(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	ar := r.active[sessionID]
	r.mu.Unlock()

	if ar != nil {
		ar.cancel()
		select {
		case <-ar.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := r.memory.Reset(ctx, sessionID); err != nil {
		return fmt.Errorf("reset session %s: %w", sessionID, err)
	}
	if r.resources != nil {
		r.resources.ReleaseAll(ctx)
	}
	r.bus.Emit(events.SourceSession, events.KindSessionReset, map[string]any{"session_id": sessionID})
	r.logger.Info("session reset", "session", sessionID)
	return nil
}

// Shutdown cancels every run, waits for them to finish or ctx to end,
// and releases shared resources. Later StartOrResume calls fail with
// ErrShuttingDown.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancelBase()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if r.resources != nil {
		r.resources.ReleaseAll(ctx)
	}
	r.logger.Info("runner shut down")
	return err
}
