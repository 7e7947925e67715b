package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// MultiClient dispatches each request to the provider a model is mapped
// to. Models without a mapping go to the default client, normally the
// local Ollama instance.
type MultiClient struct {
	def Client

	mu        sync.RWMutex
	providers map[string]Client
	routes    map[string]string
}

// NewMultiClient returns a router whose unmapped models use def. def
// may be nil, in which case unmapped models fail.
func NewMultiClient(def Client) *MultiClient {
	return &MultiClient{
		def:       def,
		providers: make(map[string]Client),
		routes:    make(map[string]string),
	}
}

// AddProvider registers c under name, replacing any earlier client.
func (m *MultiClient) AddProvider(name string, c Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[name] = c
}

// AddModel routes model to the named provider.
func (m *MultiClient) AddModel(model, provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[model] = provider
}

func (m *MultiClient) route(model string) Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.providers[m.routes[model]]; ok {
		return c
	}
	return m.def
}

// Chat forwards to the client serving model.
func (m *MultiClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	c := m.route(model)
	if c == nil {
		return nil, &ModelError{Kind: ErrorKindProvider, Message: fmt.Sprintf("no provider configured for model %q", model)}
	}
	return c.Chat(ctx, model, messages, tools)
}

// Ping probes every registered provider and the default client. All
// failures are reported, each prefixed with its provider name.
func (m *MultiClient) Ping(ctx context.Context) error {
	m.mu.RLock()
	targets := make(map[string]Client, len(m.providers))
	for name, c := range m.providers {
		targets[name] = c
	}
	m.mu.RUnlock()

	if len(targets) == 0 && m.def == nil {
		return errors.New("no providers configured")
	}
	var errs []error
	for _, name := range sortedKeys(targets) {
		if err := targets[name].Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if m.def != nil {
		if err := m.def.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("default: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Providers returns the registered provider names, sorted.
func (m *MultiClient) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.providers)
}

func sortedKeys(clients map[string]Client) []string {
	names := make([]string, 0, len(clients))
	for name := range clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
