package agent

import (
	"context"
	"fmt"
	"strings"
)

// ContextProvider contributes a section to the worker system prompt.
type ContextProvider interface {
	GetContext(ctx context.Context, s *State) (string, error)
}

// CompositeContextProvider combines multiple context providers.
// Each provider's output is concatenated with blank lines.
type CompositeContextProvider struct {
	providers []ContextProvider
}

// NewCompositeContextProvider creates a composite from multiple providers.
func NewCompositeContextProvider(providers ...ContextProvider) *CompositeContextProvider {
	c := &CompositeContextProvider{}
	for _, p := range providers {
		c.Add(p)
	}
	return c
}

// Add appends a provider to the composite.
func (c *CompositeContextProvider) Add(provider ContextProvider) {
	if provider != nil {
		c.providers = append(c.providers, provider)
	}
}

// GetContext calls all providers and combines their output. A failing
// provider is skipped.
func (c *CompositeContextProvider) GetContext(ctx context.Context, s *State) (string, error) {
	var parts []string
	for _, p := range c.providers {
		content, err := p.GetContext(ctx, s)
		if err != nil {
			continue
		}
		if content = strings.TrimSpace(content); content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// WorkspaceProvider tells the worker where file tools read and write.
type WorkspaceProvider struct {
	Path string
}

func (p WorkspaceProvider) GetContext(context.Context, *State) (string, error) {
	if p.Path == "" {
		return "", nil
	}
	return fmt.Sprintf("Files you read and write live in the workspace directory %q. "+
		"Use paths relative to it.", p.Path), nil
}

// StaticProvider returns fixed text.
type StaticProvider string

func (p StaticProvider) GetContext(context.Context, *State) (string, error) {
	return string(p), nil
}
