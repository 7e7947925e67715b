// Package connwatch tracks whether the services Sidekick depends on
// (model providers, the MQTT broker) are reachable.
//
// Each watched service is probed on its own goroutine. Failures are
// retried with exponential backoff; a healthy service is re-probed on a
// fixed poll interval. Transitions between reachable and unreachable are
// logged and published on the event bus, and the latest status of every
// service is available for the health endpoint.
package connwatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/events"
)

// ProbeFunc checks whether a service is reachable. Return nil if healthy.
type ProbeFunc func(ctx context.Context) error

// Backoff controls probe timing.
type Backoff struct {
	// Initial is the delay after the first failure (default 2s).
	Initial time.Duration
	// Max caps the failure delay (default 60s).
	Max time.Duration
	// Poll is the delay between probes of a healthy service (default 60s).
	Poll time.Duration
	// ProbeTimeout limits each probe (default 10s).
	ProbeTimeout time.Duration
}

// DefaultBackoff returns 2s, 4s, 8s ... 60s on failure and 60s polling.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:      2 * time.Second,
		Max:          60 * time.Second,
		Poll:         60 * time.Second,
		ProbeTimeout: 10 * time.Second,
	}
}

func (b Backoff) withDefaults() Backoff {
	d := DefaultBackoff()
	if b.Initial <= 0 {
		b.Initial = d.Initial
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Poll <= 0 {
		b.Poll = d.Poll
	}
	if b.ProbeTimeout <= 0 {
		b.ProbeTimeout = d.ProbeTimeout
	}
	return b
}

// next returns the delay before the following probe. failures counts
// consecutive failed probes including the one just made.
func (b Backoff) next(failures int) time.Duration {
	if failures == 0 {
		return b.Poll
	}
	d := b.Initial
	for i := 1; i < failures && d < b.Max; i++ {
		d *= 2
	}
	return min(d, b.Max)
}

// Status is the health of one service.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check,omitzero"`
	LastError string    `json:"last_error,omitempty"`
	Failures  int       `json:"consecutive_failures,omitempty"`
}

type watcher struct {
	name  string
	probe ProbeFunc

	mu      sync.Mutex
	status  Status
	checked bool
}

func (w *watcher) snapshot() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// record stores a probe result and reports whether readiness changed.
// The first result always counts as a change.
func (w *watcher) record(err error, now time.Time) (changed bool, failures int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ready := err == nil
	changed = !w.checked || w.status.Ready != ready
	w.checked = true
	w.status.Ready = ready
	w.status.LastCheck = now
	if ready {
		w.status.LastError = ""
		w.status.Failures = 0
	} else {
		w.status.LastError = err.Error()
		w.status.Failures++
	}
	return changed, w.status.Failures
}

// Monitor watches a set of services.
type Monitor struct {
	bus     *events.Bus
	logger  *slog.Logger
	backoff Backoff

	mu       sync.RWMutex
	watchers map[string]*watcher
	cancel   []context.CancelFunc
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor. bus may be nil. Zero Backoff fields
// take their defaults.
func NewMonitor(bus *events.Bus, logger *slog.Logger, backoff Backoff) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		bus:      bus,
		logger:   logger.With("component", "connwatch"),
		backoff:  backoff.withDefaults(),
		watchers: make(map[string]*watcher),
	}
}

// Watch starts probing a service until ctx ends or Stop is called. The
// first probe runs immediately.
func (m *Monitor) Watch(ctx context.Context, name string, probe ProbeFunc) {
	w := &watcher{name: name, probe: probe, status: Status{Name: name}}
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.watchers[name] = w
	m.cancel = append(m.cancel, cancel)
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx, w)
	}()
}

func (m *Monitor) run(ctx context.Context, w *watcher) {
	for {
		probeCtx, cancel := context.WithTimeout(ctx, m.backoff.ProbeTimeout)
		err := w.probe(probeCtx)
		cancel()
		if ctx.Err() != nil {
			return
		}

		changed, failures := w.record(err, time.Now())
		if changed {
			m.announce(w.name, err)
		} else if err != nil {
			m.logger.Debug("service still unreachable", "service", w.name, "failures", failures, "error", err)
		}

		timer := time.NewTimer(m.backoff.next(failures))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Monitor) announce(name string, err error) {
	if err == nil {
		m.logger.Info("service reachable", "service", name)
		m.bus.Emit(events.SourceHealth, events.KindServiceUp, map[string]any{"service": name})
		return
	}
	m.logger.Warn("service unreachable", "service", name, "error", err)
	m.bus.Emit(events.SourceHealth, events.KindServiceDown, map[string]any{"service": name, "error": err.Error()})
}

// Status returns every watched service's status, sorted by name.
func (m *Monitor) Status() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.watchers))
	for _, w := range m.watchers {
		out = append(out, w.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Stop ends all watchers and waits for them to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancels := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	for _, c := range cancels {
		c()
	}
	m.wg.Wait()
}
