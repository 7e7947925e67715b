// Package events is the in-process bus for operational events. The
// agent loop, browser manager, session store, notifier and service
// monitor publish; the websocket event stream and the MQTT status
// bridge subscribe. Publishing on a nil *Bus is a no-op.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceAgent identifies events from the worker/evaluator loop.
	SourceAgent = "agent"
	// SourceBrowser identifies events from the shared browser manager.
	SourceBrowser = "browser"
	// SourceSession identifies events from session memory.
	SourceSession = "session"
	// SourceNotify identifies events from notification delivery.
	SourceNotify = "notify"
	// SourceHealth identifies events from external service probes.
	SourceHealth = "health"
)

// Kind constants describe the type of event within a source.
const (
	// KindRunStart signals the beginning of a run.
	// Data: session_id, run_id, task_len, max_iterations.
	KindRunStart = "run_start"
	// KindPhase signals a loop state transition.
	// Data: session_id, run_id, iter, from, to.
	KindPhase = "phase"
	// KindLLMCall signals a worker or evaluator model call.
	// Data: session_id, run_id, iter, role, model.
	KindLLMCall = "llm_call"
	// KindToolCall signals the start of a tool execution.
	// Data: session_id, run_id, tool.
	KindToolCall = "tool_call"
	// KindToolResult signals completion of a tool execution.
	// Data: session_id, run_id, tool, ok, duration_ms.
	KindToolResult = "tool_result"
	// KindEvaluation carries an evaluator verdict.
	// Data: session_id, run_id, iter, met, needs_user.
	KindEvaluation = "evaluation"
	// KindRunComplete signals the end of a run.
	// Data: session_id, run_id, status, iterations, error_kind, elapsed_ms.
	KindRunComplete = "run_complete"

	// KindBrowserLaunch signals that the shared browser was started.
	// Data: headless, reason.
	KindBrowserLaunch = "browser_launch"
	// KindBrowserRelease signals that the shared browser was closed.
	KindBrowserRelease = "browser_release"

	// KindSessionReset signals that a session's state was cleared.
	// Data: session_id.
	KindSessionReset = "session_reset"
	// KindSessionDeleted signals that a session was removed.
	// Data: session_id.
	KindSessionDeleted = "session_deleted"
	// KindSessionPruned signals that old sessions were evicted.
	// Data: removed, kept.
	KindSessionPruned = "session_pruned"

	// KindNotifySent signals a delivered notification.
	// Data: channel, ok.
	KindNotifySent = "notify_sent"

	// KindServiceUp signals that a watched service became reachable.
	// Data: service.
	KindServiceUp = "service_up"
	// KindServiceDown signals that a watched service became unreachable.
	// Data: service, error.
	KindServiceDown = "service_down"
)

// Event is one published occurrence.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Filter selects events by source and by the session_id data key.
// Empty fields match everything.
type Filter struct {
	Source    string
	SessionID string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Event) bool {
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	if f.SessionID != "" {
		if id, _ := e.Data["session_id"].(string); id != f.SessionID {
			return false
		}
	}
	return true
}

type subscription struct {
	ch     chan Event
	filter Filter
}

// Bus fans events out to subscribers without blocking publishers: a
// subscriber whose buffer is full misses the event, and the miss is
// counted in Dropped.
type Bus struct {
	mu      sync.RWMutex
	subs    map[<-chan Event]*subscription
	dropped atomic.Uint64
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[<-chan Event]*subscription)}
}

// Publish delivers e to every subscriber whose filter matches.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.filter.Match(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Emit stamps and publishes an event.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	if b == nil {
		return
	}
	b.Publish(Event{Timestamp: time.Now(), Source: source, Kind: kind, Data: data})
}

// Subscribe returns a channel with room for bufSize events. Only events
// matching filter are delivered; the zero Filter matches all. Call
// Unsubscribe when done.
func (b *Bus) Subscribe(bufSize int, filter ...Filter) <-chan Event {
	s := &subscription{ch: make(chan Event, bufSize)}
	if len(filter) > 0 {
		s.filter = filter[0]
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[s.ch] = s
	return s.ch
}

// Unsubscribe removes the subscription and closes its channel. Unknown
// or already removed channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(s.ch)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a
// subscriber was full.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}
