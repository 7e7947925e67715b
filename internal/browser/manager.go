package browser

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/events"
	"github.com/pranavpai/Sidekick-Langraph-Agent/internal/tools"
)

// Options configures a Manager.
type Options struct {
	// Headless overrides environment detection when non-nil.
	Headless *bool
	// ExecPath overrides the browser binary.
	ExecPath string
	// OpTimeout caps a single WithBrowser call. Zero means no cap.
	OpTimeout time.Duration
	// Launch starts the browser. Defaults to LaunchChrome.
	Launch Launcher
}

// Manager holds at most one browser and hands it to tools one operation
// at a time.
type Manager struct {
	opts   Options
	bus    *events.Bus
	logger *slog.Logger

	mu       sync.Mutex // guards b, headless
	b        Browser
	headless bool

	opMu sync.Mutex // serializes operations on b
}

// NewManager creates a manager. No browser is started until the first
// AcquireBrowser.
func NewManager(opts Options, bus *events.Bus, logger *slog.Logger) *Manager {
	if opts.Launch == nil {
		opts.Launch = LaunchChrome
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{opts: opts, bus: bus, logger: logger.With("component", "browser")}
}

// AcquireBrowser returns the shared browser, launching it on first use.
// Concurrent callers block on the same launch and share its result; a
// failed launch is retried by the next caller.
func (m *Manager) AcquireBrowser(ctx context.Context) (Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.b != nil {
		return m.b, nil
	}

	headless, reason := DetectHeadless(m.opts.Headless)
	start := time.Now()
	b, err := m.opts.Launch(ctx, LaunchOptions{Headless: headless, ExecPath: m.opts.ExecPath})
	if err != nil {
		m.logger.Error("browser launch failed", "headless", headless, "reason", reason, "error", err)
		return nil, &tools.ResourceError{Resource: "browser", Err: err}
	}

	m.b = b
	m.headless = headless
	m.logger.Info("browser launched",
		"headless", headless,
		"reason", reason,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	m.bus.Emit(events.SourceBrowser, events.KindBrowserLaunch, map[string]any{
		"headless": headless,
		"reason":   reason,
	})
	return b, nil
}

// WithBrowser runs fn against the shared browser while holding the
// operation lock. Launch failures are returned as *tools.ResourceError.
func (m *Manager) WithBrowser(ctx context.Context, fn func(ctx context.Context, b Browser) error) error {
	b, err := m.lockCurrent(ctx)
	if err != nil {
		return err
	}
	defer m.opMu.Unlock()

	if m.opts.OpTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.opts.OpTimeout)
		defer cancel()
	}
	return fn(ctx, b)
}

// lockCurrent acquires the browser and takes the operation lock. If the
// browser was released while waiting for the lock, it acquires again, so
// the returned browser is the live one until opMu is unlocked.
func (m *Manager) lockCurrent(ctx context.Context) (Browser, error) {
	for {
		b, err := m.AcquireBrowser(ctx)
		if err != nil {
			return nil, err
		}
		m.opMu.Lock()
		m.mu.Lock()
		live := m.b == b
		m.mu.Unlock()
		if live {
			return b, nil
		}
		m.opMu.Unlock()
		m.logger.Debug("browser released while waiting, acquiring again")
	}
}

// Active reports whether a browser is currently running.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.b != nil
}

// Headless reports the mode of the running browser.
func (m *Manager) Headless() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.headless
}

// ReleaseAll closes the browser if one is running. It is safe to call
// repeatedly and when nothing was launched. Close errors are logged.
func (m *Manager) ReleaseAll(ctx context.Context) {
	m.mu.Lock()
	b := m.b
	m.b = nil
	m.mu.Unlock()

	if b == nil {
		return
	}

	// Let an in-flight operation finish before tearing down.
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := b.Close(ctx); err != nil {
		m.logger.Warn("browser close failed", "error", err)
	} else {
		m.logger.Info("browser released")
	}
	m.bus.Emit(events.SourceBrowser, events.KindBrowserRelease, nil)
}
