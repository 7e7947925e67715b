// Package search backs the web_search tool. Each backend implements
// [Provider]; the [Manager] sends a query to the configured primary
// backend and falls back to the others in registration order when it
// fails.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// defaultCount is used when Options.Count is zero.
const defaultCount = 5

// Result is one search hit. Direct answers have no URL.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// Options tune a query.
type Options struct {
	Count    int    // maximum results; 0 means 5
	Language string // ISO 639-1 code
}

func (o Options) count() int {
	if o.Count <= 0 {
		return defaultCount
	}
	return o.Count
}

// Provider is a search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) ([]Result, error)
}

// Manager routes queries to registered providers. It is safe for
// concurrent use once registration is done.
type Manager struct {
	primary string
	logger  *slog.Logger

	mu        sync.RWMutex
	providers []Provider
}

// NewManager returns a manager that prefers the provider named primary.
func NewManager(primary string) *Manager {
	return &Manager{primary: primary, logger: slog.Default()}
}

// WithLogger sets the logger used for fallback warnings.
func (m *Manager) WithLogger(l *slog.Logger) *Manager {
	if l != nil {
		m.logger = l.With("component", "search")
	}
	return m
}

// Register adds p, replacing any provider with the same name.
func (m *Manager) Register(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = slices.DeleteFunc(m.providers, func(q Provider) bool { return q.Name() == p.Name() })
	m.providers = append(m.providers, p)
}

func (m *Manager) lookup(name string) Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.providers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// order returns the primary provider first, then the rest.
func (m *Manager) order() []Provider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Provider, 0, len(m.providers))
	for _, p := range m.providers {
		if p.Name() == m.primary {
			out = append([]Provider{p}, out...)
		} else {
			out = append(out, p)
		}
	}
	return out
}

// Search queries the primary provider and, if it fails, each other
// provider in turn. The error lists every failure when none succeeds.
func (m *Manager) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	ps := m.order()
	if len(ps) == 0 {
		return nil, fmt.Errorf("search provider %q not configured", m.primary)
	}
	var errs []error
	for _, p := range ps {
		results, err := p.Search(ctx, query, opts)
		if err == nil {
			return dedupe(results), nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		m.logger.Warn("search provider failed", "provider", p.Name(), "error", err)
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

// SearchWith queries one named provider without fallback.
func (m *Manager) SearchWith(ctx context.Context, provider, query string, opts Options) ([]Result, error) {
	p := m.lookup(provider)
	if p == nil {
		return nil, fmt.Errorf("search provider %q not configured", provider)
	}
	results, err := p.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	return dedupe(results), nil
}

// Providers returns the registered provider names, sorted.
func (m *Manager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.providers))
	for _, p := range m.providers {
		names = append(names, p.Name())
	}
	slices.Sort(names)
	return names
}

// Primary returns the preferred provider name.
func (m *Manager) Primary() string { return m.primary }

// Configured reports whether any provider is registered.
func (m *Manager) Configured() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.providers) > 0
}

// dedupe drops repeated URLs, keeping the first occurrence. Results
// without a URL are always kept.
func dedupe(results []Result) []Result {
	seen := make(map[string]bool, len(results))
	out := results[:0:0]
	for _, r := range results {
		if r.URL != "" {
			if seen[r.URL] {
				continue
			}
			seen[r.URL] = true
		}
		out = append(out, r)
	}
	return out
}
